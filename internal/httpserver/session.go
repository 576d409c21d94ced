// internal/httpserver/session.go
//
// Session token handling: issuing the cookie, extracting the token from a
// request and the middleware that binds {id} to a live session.

package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/robalobadob/colormemory/internal/store"
	"github.com/robalobadob/colormemory/internal/token"
)

// ctxSessionKey is the context key type for storing *store.Session.
type ctxSessionKey struct{}

// sessionFrom returns the session placed by requireSession.
func sessionFrom(r *http.Request) *store.Session {
	sess, _ := r.Context().Value(ctxSessionKey{}).(*store.Session)
	return sess
}

// requireSession verifies the token, checks that it was issued for the
// {id} in the path and loads that session into the request context.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := s.tokenFrom(r)
		if tok == "" {
			writeError(w, http.StatusUnauthorized, "missing token")
			return
		}
		sid, err := s.signer.Verify(tok)
		if err != nil {
			s.log.Debug().Err(err).Msg("token rejected")
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if id := chi.URLParam(r, "id"); sid != id {
			s.fail(w, r, fmt.Errorf("%w: issued for another game", token.ErrInvalidToken))
			return
		}
		sess, err := s.store.Get(r.Context(), sid)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		sess.Touch()
		ctx := context.WithValue(r.Context(), ctxSessionKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// tokenFrom extracts the token from the Authorization header or cookie.
// Browsers cannot set headers on a WebSocket handshake, so upgrade requests
// may also pass it as ?token=.
func (s *Server) tokenFrom(r *http.Request) string {
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	if c, err := r.Cookie(s.cfg.CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if websocket.IsWebSocketUpgrade(r) {
		return r.URL.Query().Get("token")
	}
	return ""
}

// setTokenCookie writes the session token cookie with appropriate security attributes.
func (s *Server) setTokenCookie(w http.ResponseWriter, tok string, exp time.Time) {
	http.SetCookie(w, s.cookie(tok, exp))
}

// clearTokenCookie deletes the session token cookie.
func (s *Server) clearTokenCookie(w http.ResponseWriter) {
	c := s.cookie("", time.Time{})
	c.MaxAge = -1
	http.SetCookie(w, c)
}

func (s *Server) cookie(value string, exp time.Time) *http.Cookie {
	sameSite := http.SameSiteLaxMode
	if s.cfg.Production {
		sameSite = http.SameSiteNoneMode // required for third‑party contexts when Secure
	}
	return &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.Production,
		SameSite: sameSite,
		Expires:  exp,
	}
}

// issueToken signs a token for sessionID and sets it as a cookie.
func (s *Server) issueToken(w http.ResponseWriter, sessionID string) (string, time.Time, error) {
	tok, exp, err := s.signer.Sign(sessionID)
	if err != nil {
		return "", time.Time{}, err
	}
	s.setTokenCookie(w, tok, exp)
	return tok, exp, nil
}
