package server

import (
	"errors"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voyagen/arematv/internal/hls"
	"github.com/voyagen/arematv/internal/metrics"
)

// imageExts get long-lived immutable caching under /public.
var imageExts = map[string]bool{
	".avif": true, ".gif": true, ".jpeg": true, ".jpg": true,
	".png": true, ".svg": true, ".webp": true,
}

func (s *Server) handleEpisodePlaylist(w http.ResponseWriter, r *http.Request) {
	st, err := s.catalog.EpisodeStream(r.Context(), chi.URLParam(r, "episodeId"))
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	body, err := hls.EpisodePlaylist(*st, s.cfg.SegmentDuration)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	metrics.RecordPlaylist("episode")
	writePlaylist(w, body)
}

func (s *Server) handleChannelPlaylist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	channelID := chi.URLParam(r, "channelId")
	now := time.Now()
	src, err := s.catalog.Airings(ctx, channelID, now)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	body, err := hls.ChannelPlaylist(ctx, src, channelID, now, s.cfg.SegmentDuration, s.cfg.LiveWindow)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	metrics.RecordPlaylist("channel")
	writePlaylist(w, body)
}

func writePlaylist(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", hls.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handleSegment serves a transport stream chunk from StreamsDir.
func (s *Server) handleSegment(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "streamId")
	if streamID == "" || streamID == "." || streamID == ".." || strings.ContainsAny(streamID, `/\`) {
		writeErr(w, http.StatusBadRequest, errors.New("invalid stream id"))
		return
	}
	name := chi.URLParam(r, "segment") + ".ts"
	w.Header().Set("Content-Type", "video/mp2t")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeFile(w, r, filepath.Join(s.cfg.StreamsDir, streamID, name))
}

// handlePublic serves static assets, marking images immutable.
func (s *Server) handlePublic(w http.ResponseWriter, r *http.Request) {
	rel := chi.URLParam(r, "*")
	if imageExts[strings.ToLower(path.Ext(rel))] {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	}
	http.StripPrefix("/public", http.FileServer(http.Dir(s.cfg.PublicDir))).ServeHTTP(w, r)
}
