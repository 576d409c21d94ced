// internal/token/token.go
//
// Session access tokens.
// A token is an HS256 JWT carrying the session ID ("sid") plus iat/exp.
// Whoever holds it may drive that one session; there are no user accounts.

package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers bad signatures, expiry and missing claims.
var ErrInvalidToken = errors.New("invalid token")

// Signer issues and verifies session tokens.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner creates a Signer using secret as the HMAC key.
func NewSigner(secret string, ttl time.Duration) *Signer {
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign creates a token for sessionID and returns it with its expiry.
func (s *Signer) Sign(sessionID string) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sid": sessionID,
		"iat": now.Unix(),
		"exp": exp.Unix(),
	})
	ss, err := t.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return ss, exp, nil
}

// Verify checks tok and returns the session ID it grants access to.
func (s *Signer) Verify(tok string) (string, error) {
	claims := jwt.MapClaims{}
	t, err := jwt.ParseWithClaims(tok, claims,
		func(t *jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !t.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	sid, _ := claims["sid"].(string)
	if sid == "" {
		return "", fmt.Errorf("%w: missing sid", ErrInvalidToken)
	}
	return sid, nil
}
