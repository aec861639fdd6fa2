package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"

	"github.com/voyagen/arematv/api"
	"github.com/voyagen/arematv/internal/config"
	"github.com/voyagen/arematv/internal/hls"
	"github.com/voyagen/arematv/internal/log"
	"github.com/voyagen/arematv/internal/metrics"
	"github.com/voyagen/arematv/internal/service"
	"github.com/voyagen/arematv/internal/session"
	"github.com/voyagen/arematv/internal/store"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 1000

	authRateLimit  = 20
	authRateWindow = time.Minute
)

// Deps are the collaborators a Server needs.
type Deps struct {
	Store    store.Store
	Sessions session.Store
	// Embedder enables /api/search; leave nil when VoyageAI is not configured.
	Embedder service.Embedder
}

// Server holds dependencies for the HTTP API.
type Server struct {
	cfg         *config.Config
	store       store.Store
	catalog     *service.Catalog
	recommended *service.Recommended
	auth        *service.Auth
	embedder    service.Embedder
	cookies     session.Cookies
	router      chi.Router
}

// New creates a Server and registers routes. Call Close to stop the
// recommendation batcher.
func New(cfg *config.Config, deps Deps) *Server {
	sessions := deps.Sessions
	if sessions == nil {
		sessions = session.NewMemoryStore(cfg.SessionTTL)
	}
	srv := &Server{
		cfg:     cfg,
		store:   deps.Store,
		catalog: service.NewCatalog(deps.Store, cfg.Location()),
		recommended: service.NewRecommended(deps.Store, service.RecommendedOptions{
			Window:         cfg.BatchWindow,
			MaxSize:        cfg.BatchMaxSize,
			OptimizeImages: cfg.OptimizeImages,
		}),
		auth:     service.NewAuth(deps.Store, sessions),
		embedder: deps.Embedder,
		cookies:  session.Cookies{Name: session.CookieName, TTL: cfg.SessionTTL},
	}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(withCORS(s.cfg.CORSOrigins))
	r.Use(metrics.Middleware())
	r.Use(log.Middleware())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/channels", s.handleListChannels)
		r.Get("/channels/{channelId}", s.handleGetChannel)

		r.Get("/episodes", s.handleListEpisodes)
		r.Get("/episodes/{episodeId}", s.handleGetEpisode)

		r.Get("/series", s.handleListSeries)
		r.Get("/series/{seriesId}", s.handleGetSeries)

		r.Get("/timetable", s.handleTimetable)

		r.Get("/programs", s.handleListPrograms)
		r.Get("/programs/{programId}", s.handleGetProgram)
		r.Get("/programs/{programId}/follow", s.handleFollowProgram)

		r.Get("/recommended/{referenceId}", s.handleRecommended)

		r.Group(func(r chi.Router) {
			r.Use(rateLimit(authRateLimit, authRateWindow))
			r.Post("/signUp", s.handleSignUp)
			r.Post("/signIn", s.handleSignIn)
		})
		r.Post("/signOut", s.handleSignOut)
		r.Get("/users/me", s.handleCurrentUser)

		r.Get("/search", s.handleSearch)

		r.Get("/docs", handleSwaggerUI)
		r.Get("/docs/openapi.yaml", handleOpenAPISpec)
	})

	r.Get("/streams/episode/{episodeId}/playlist.m3u8", s.handleEpisodePlaylist)
	r.Get("/streams/channel/{channelId}/playlist.m3u8", s.handleChannelPlaylist)
	r.Get("/streams/{streamId}/{segment:[0-9]+}.ts", s.handleSegment)

	r.Get("/public/*", s.handlePublic)
	r.Get("/favicon.ico", func(w http.ResponseWriter, _ *http.Request) {
		writeErr(w, http.StatusNotFound, errors.New("no favicon"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusNotFound, fmt.Errorf("no route for %s", r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("%s not allowed on %s", r.Method, r.URL.Path))
	})
	s.router = r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops background work owned by the server.
func (s *Server) Close() {
	s.recommended.Close()
}

// ListenAndServe starts the HTTP server on the configured port.
// It blocks until the server is shut down or ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	logger := log.WithComponent("server")
	addr := ":" + s.cfg.ServerPort
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Follow streams stay open for a whole program.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	logger.Info().Str("addr", addr).Msg("listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ListenAndServe: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("database: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- middleware ---

// withCORS echoes listed origins with credentials so the session cookie
// travels on cross-origin requests. An empty list or "*" allows any origin
// without credentials.
func withCORS(origins []string) func(http.Handler) http.Handler {
	allowAll := len(origins) == 0 || lo.Contains(origins, "*")
	allowed := lo.SliceToMap(origins, func(o string) (string, bool) { return o, true })

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch origin := r.Header.Get("Origin"); {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimit limits requests per client IP and answers with the error envelope.
func rateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
			writeErr(w, http.StatusTooManyRequests, errors.New("too many requests, try again later"))
		}),
	)
}

// --- helpers ---

// APIError is the standard error envelope for all error responses.
type APIError struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// parsePage reads limit and offset, applying the default and maximum limit.
func parsePage(r *http.Request) (store.Page, error) {
	page := store.Page{Limit: defaultPageLimit}
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return page, fmt.Errorf("invalid limit: %s", v)
		}
		if n > 0 {
			page.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return page, fmt.Errorf("invalid offset: %s", v)
		}
		page.Offset = n
	}
	page.Limit = min(page.Limit, maxPageLimit)
	return page, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := log.WithComponent("server")
		logger.Warn().Err(err).Msg("writeJSON")
	}
}

func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func writeErr(w http.ResponseWriter, status int, err error) {
	if status >= 500 {
		logger := log.WithComponent("server")
		logger.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, APIError{
		Status: status,
		Error:  http.StatusText(status),
		Detail: err.Error(),
	})
}

// writeStoreErr maps service and store errors onto HTTP statuses.
func writeStoreErr(w http.ResponseWriter, err error) {
	writeErr(w, statusFor(err), err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, hls.ErrEmptyStream):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrEmailTaken),
		errors.Is(err, service.ErrInvalidWindow):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrSearchUnavailable), errors.Is(err, store.ErrUnsupported):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// --- docs handlers ---

func handleOpenAPISpec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(api.OpenAPISpec)
}

func handleSwaggerUI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, swaggerUIHTML)
}

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>AremaTV API Docs</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
  <style>html{box-sizing:border-box;overflow-y:scroll}*,*:before,*:after{box-sizing:inherit}body{margin:0;background:#fafafa}</style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: "/api/docs/openapi.yaml",
      dom_id: "#swagger-ui",
      presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
      layout: "BaseLayout",
    });
  </script>
</body>
</html>`
