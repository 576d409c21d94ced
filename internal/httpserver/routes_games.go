// internal/httpserver/routes_games.go
//
// Game session endpoints.
//
// Routes:
//   POST   /games                    → create a session, configure and start its first game
//                                       (?daily=true: today's shared board for that config)
//   GET    /games/{id}               → current snapshot
//   PUT    /games/{id}/config        → change the config (setup/result only)
//   POST   /games/{id}/start         → start (or restart while revealing)
//   POST   /games/{id}/reveal        → end the reveal early
//   POST   /games/{id}/marks/{index} → toggle a mark
//   POST   /games/{id}/submit        → score the marks
//   DELETE /games/{id}               → close the session
//   GET    /games/{id}/ws            → live phase/countdown stream
//
// Notes:
//   - Every /games/{id} route needs the token issued by POST /games.
//   - While guessing the grid is masked on the wire.

package httpserver

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/robalobadob/colormemory/internal/daily"
	"github.com/robalobadob/colormemory/internal/game"
	"github.com/robalobadob/colormemory/internal/store"
)

// mountGameRoutes registers the session-scoped routes under /games/{id}.
func (s *Server) mountGameRoutes() {
	s.r.Route("/games/{id}", func(r chi.Router) {
		r.Use(s.requireSession)

		r.Get("/ws", s.handleWS)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(requestTimeout))
			r.Use(jsonContentType)

			r.Get("/", s.handleSnapshot)
			r.Delete("/", s.handleDelete)
			r.Put("/config", s.handleConfigure)
			r.Post("/start", s.handleStart)
			r.Post("/reveal", s.handleReveal)
			r.Post("/marks/{index}", s.handleToggle)
			r.Post("/submit", s.handleSubmit)
		})
	})
}

// newGameRes is the payload of POST /games.
type newGameRes struct {
	GameID    string        `json:"gameId"`
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expiresAt"`
	Daily     string        `json:"daily,omitempty"` // YYYY-MM-DD of the shared board
	Game      game.Snapshot `json:"game"`
}

// handleNewGame creates a session, applies the requested config over the
// server defaults and starts the first game.
func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	cfg, isDaily, err := s.requestedConfig(r, s.cfg.DefaultGame)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	id := store.NewID()
	var extra []game.Option
	var dateKey string
	if isDaily {
		now := s.now()
		dateKey = daily.DateKey(now)
		extra = append(extra, game.WithRand(daily.Rand(now, s.cfg.DailySalt)))
	}
	eng := s.newEngine(id, extra...)
	if err := eng.Configure(cfg); err != nil {
		eng.Close()
		s.fail(w, r, err)
		return
	}
	snap, err := eng.Start()
	if err != nil {
		eng.Close()
		s.fail(w, r, err)
		return
	}

	sess := store.NewSession(id, eng)
	if err := s.store.Save(r.Context(), sess); err != nil {
		eng.Close()
		s.fail(w, r, fmt.Errorf("save session: %w", err))
		return
	}
	tok, exp, err := s.issueToken(w, id)
	if err != nil {
		_ = s.store.Delete(r.Context(), id)
		s.fail(w, r, err)
		return
	}

	s.log.Info().Str("session", id).Interface("config", cfg).Str("daily", dateKey).Msg("session created")
	writeJSON(w, http.StatusCreated, newGameRes{
		GameID:    id,
		Token:     tok,
		ExpiresAt: exp,
		Daily:     dateKey,
		Game:      present(snap),
	})
}

// requestedConfig decodes query params over base and enforces the server limits.
// The second result reports whether the daily board was asked for.
func (s *Server) requestedConfig(r *http.Request, base game.Config) (game.Config, bool, error) {
	cfg, isDaily, err := decodeConfig(r.URL.Query(), base)
	if err != nil {
		return game.Config{}, false, err
	}
	if err := s.cfg.Limits.Check(cfg); err != nil {
		return game.Config{}, false, err
	}
	return cfg, isDaily, nil
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, present(sessionFrom(r).Engine.Snapshot()))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), sessionFrom(r).ID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.clearTokenCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	eng := sessionFrom(r).Engine
	cfg, _, err := s.requestedConfig(r, eng.Config())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := eng.Configure(cfg); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, present(eng.Snapshot()))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	snap, err := sessionFrom(r).Engine.Start()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, present(snap))
}

func (s *Server) handleReveal(w http.ResponseWriter, r *http.Request) {
	eng := sessionFrom(r).Engine
	if err := eng.Reveal(); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, present(eng.Snapshot()))
}

// handleToggle flips one mark and returns the full mark set.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.fail(w, r, fmt.Errorf("%w: index must be an integer", errBadRequest))
		return
	}
	eng := sessionFrom(r).Engine
	if err := eng.Toggle(index); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]int{"marks": eng.Marks()})
}

// submitRes carries the score plus the now fully revealed game.
type submitRes struct {
	Result game.Result   `json:"result"`
	Game   game.Snapshot `json:"game"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	eng := sessionFrom(r).Engine
	res, err := eng.Submit()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, submitRes{Result: res, Game: present(eng.Snapshot())})
}
