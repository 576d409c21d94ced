// internal/httpserver/server.go
//
// HTTP server wiring for the color memory backend.
// Responsibilities:
//   - Router + middleware (CORS, timeouts, panic recovery, request IDs, access log).
//   - Public endpoints: "/", "/health", POST /games.
//   - Session endpoints (token required): mounted under /games/{id}.
//   - WebSocket stream of phase changes and the reveal countdown.
//   - JSON error bodies with a status derived from the error chain.
//
// Notes:
//   - CORS is origin‑aware and credentials‑enabled (so the token cookie works).
//   - The request timeout only wraps the REST handlers; a WebSocket lives as
//     long as the client keeps it open.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/robalobadob/colormemory/internal/config"
	"github.com/robalobadob/colormemory/internal/game"
	"github.com/robalobadob/colormemory/internal/store"
	"github.com/robalobadob/colormemory/internal/token"
)

const requestTimeout = 10 * time.Second

// Server bundles router, session store, token signer and settings.
type Server struct {
	r      *chi.Mux
	cfg    *config.Config
	store  store.Store
	signer *token.Signer
	log    zerolog.Logger

	engineOpts     []game.Option
	countdownEvery time.Duration
	pingEvery      time.Duration
	now            func() time.Time
}

// Option customizes a Server.
type Option func(*Server)

// WithEngineOptions appends options passed to every new engine.
func WithEngineOptions(opts ...game.Option) Option {
	return func(s *Server) { s.engineOpts = append(s.engineOpts, opts...) }
}

// WithCountdownInterval sets how often the reveal countdown is pushed to
// WebSocket clients (default one second).
func WithCountdownInterval(d time.Duration) Option {
	return func(s *Server) { s.countdownEvery = d }
}

// WithPingInterval sets how often WebSocket clients are pinged.
func WithPingInterval(d time.Duration) Option {
	return func(s *Server) { s.pingEvery = d }
}

// New constructs a Server, installs middleware, and registers routes.
func New(cfg *config.Config, st store.Store, signer *token.Signer, logger zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		r:      chi.NewRouter(),
		cfg:    cfg,
		store:  st,
		signer: signer,
		log:    logger.With().Str("component", "http").Logger(),

		countdownEvery: time.Second,
		pingEvery:      pingPeriod,
		now:            time.Now,
	}
	for _, o := range opts {
		o(s)
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID)           // add X-Request-ID
	s.r.Use(chimw.RealIP)              // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(requestLogger(s.log))      // one line per request
	s.r.Use(chimw.Recoverer)           // recover from panics
	s.r.Use(corsFor(cfg.ClientOrigin)) // credentials-friendly CORS

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"service":   "colormemory-go",
			"endpoints": []string{"/health", "POST /games", "/games/{id}/*", "/games/{id}/ws"},
		})
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sessions": s.store.Len()})
	})

	s.r.With(chimw.Timeout(requestTimeout), jsonContentType).Post("/games", s.handleNewGame)
	s.mountGameRoutes()

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "path": r.URL.Path})
	})
	s.r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return s
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// newEngine builds an engine with the server-wide rule and palette.
// extra is applied last.
func (s *Server) newEngine(sessionID string, extra ...game.Option) *game.Engine {
	opts := []game.Option{
		game.WithPalette(s.cfg.Palette),
		game.WithWinRule(s.cfg.WinRule),
		game.WithLogger(s.log.With().Str("component", "engine").Str("session", sessionID).Logger()),
	}
	opts = append(opts, s.engineOpts...)
	return game.New(append(opts, extra...)...)
}

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// corsFor enables credentialed CORS for a single origin.
func corsFor(origin string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   []string{origin},
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
	}).Handler
}

// requestLogger writes an access log line once the handler returns.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Str("requestId", chimw.GetReqID(r.Context())).
					Msg("request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// ------------------------------ responses ----------------------------------

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error": msg}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errBadRequest marks malformed input that is not a game rule violation.
var errBadRequest = errors.New("bad request")

// statusFor maps an error chain onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, game.ErrInvalidConfig),
		errors.Is(err, game.ErrInvalidIndex),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, game.ErrInvalidPhase):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, token.ErrInvalidToken):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// fail writes err with its mapped status; unexpected errors are logged and
// not echoed back.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

// present hides the answer while the player is guessing.
func present(snap game.Snapshot) game.Snapshot {
	if snap.Phase == game.PhaseGuessing {
		return snap.Masked()
	}
	return snap
}
