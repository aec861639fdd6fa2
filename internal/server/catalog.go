package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voyagen/arematv/internal/log"
	"github.com/voyagen/arematv/internal/metrics"
	"github.com/voyagen/arematv/internal/models"
	"github.com/voyagen/arematv/internal/service"
	"github.com/voyagen/arematv/internal/store"
	"github.com/voyagen/arematv/internal/timetable"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// --- channel handlers ---

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.store.ListChannels(r.Context())
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, channels)
}

func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	ch, err := s.store.GetChannel(r.Context(), chi.URLParam(r, "channelId"))
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

// --- episode and series handlers ---

func (s *Server) handleListEpisodes(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	episodes, err := s.store.ListEpisodes(r.Context(), page)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, episodes)
}

func (s *Server) handleGetEpisode(w http.ResponseWriter, r *http.Request) {
	ep, err := s.store.GetEpisode(r.Context(), chi.URLParam(r, "episodeId"))
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ep)
}

func (s *Server) handleListSeries(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	series, err := s.store.ListSeries(r.Context(), page)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (s *Server) handleGetSeries(w http.ResponseWriter, r *http.Request) {
	sr, err := s.store.GetSeries(r.Context(), chi.URLParam(r, "seriesId"))
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sr)
}

// --- timetable and program handlers ---

func (s *Server) handleTimetable(w http.ResponseWriter, r *http.Request) {
	since, err := parseTime(r, "since")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	until, err := parseTime(r, "until")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	programs, err := s.catalog.Timetable(r.Context(), since, until)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, programOrEmpty(programs))
}

func (s *Server) handleListPrograms(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	programs, err := s.catalog.ListPrograms(r.Context(), page)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, programOrEmpty(programs))
}

func (s *Server) handleGetProgram(w http.ResponseWriter, r *http.Request) {
	detail, err := s.catalog.Program(r.Context(), chi.URLParam(r, "programId"))
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// handleFollowProgram streams server-sent events while the program is on
// air: a "current" event first, then one event per status change until the
// channel runs out of programs or the client goes away.
func (s *Server) handleFollowProgram(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	detail, err := s.catalog.Program(ctx, chi.URLParam(r, "programId"))
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErr(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	logger := log.WithComponentFromContext(ctx, "follow")
	send := func(event string, v any) bool {
		data, err := json.Marshal(v)
		if err != nil {
			logger.Error().Err(err).Msg("encode event")
			return false
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send("current", detail) {
		return
	}

	follower := &timetable.Follower{Next: s.catalog.Next, Interval: s.cfg.FollowInterval}
	for ev := range follower.Follow(ctx, detail.Program) {
		metrics.RecordRollover(string(ev.Kind))
		logger.Debug().Str("kind", string(ev.Kind)).Str("program_id", ev.Program.ID).Msg("follow event")
		if !send(string(ev.Kind), ev) {
			return
		}
	}
}

func parseTime(r *http.Request, param string) (time.Time, error) {
	v := r.URL.Query().Get(param)
	if v == "" {
		return time.Time{}, fmt.Errorf("%s is required", param)
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %s (want RFC 3339)", param, v)
	}
	return t, nil
}

// --- recommendation and search handlers ---

func (s *Server) handleRecommended(w http.ResponseWriter, r *http.Request) {
	modules, err := s.recommended.Get(r.Context(), chi.URLParam(r, "referenceId"))
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, modules)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.embedder == nil {
		writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("%w (VOYAGE_API_KEY not set)", service.ErrSearchUnavailable))
		return
	}
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		writeErr(w, http.StatusBadRequest, errors.New("q parameter is required"))
		return
	}
	limit := defaultSearchLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid limit: %s", v))
			return
		}
		limit = min(n, maxSearchLimit)
	}

	matches, err := service.SearchSeries(r.Context(), s.store, s.embedder, query, limit)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	if matches == nil {
		matches = []store.SeriesMatch{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"series": matches,
		"limit":  limit,
	})
}

// programOrEmpty keeps list responses as JSON arrays.
func programOrEmpty(p []models.Program) []models.Program {
	if p == nil {
		return []models.Program{}
	}
	return p
}
