// Package session carries the caller's backend credentials. A Session is
// built once per request from the bearer token and passed explicitly to every
// gateway call; nothing here is global.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrExpired      = errors.New("session expired")
	ErrInvalidToken = errors.New("invalid token signature")
)

type Session struct {
	Token     string
	Subject   string
	ExpiresAt time.Time // zero when the token carries no exp claim
	// Verified is set when the signature was checked against the configured key.
	Verified  bool
}

// Parser builds sessions from bearer tokens. With a Key it checks the HMAC
// signature and rejects tokens that fail. Without one it only reads exp and
// sub, and the subject is not trusted for anything but display.
type Parser struct {
	Key []byte
}

var hmacMethods = []string{"HS256", "HS384", "HS512"}

func (p Parser) FromToken(token string, now time.Time) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, ErrMissingToken
	}

	s := Session{Token: token}
	claims := jwt.RegisteredClaims{}

	if len(p.Key) > 0 {
		_, err := jwt.ParseWithClaims(token, &claims,
			func(*jwt.Token) (any, error) { return p.Key, nil },
			jwt.WithValidMethods(hmacMethods),
			jwt.WithTimeFunc(func() time.Time { return now }),
		)
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Session{}, ErrExpired
		case err != nil:
			return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		s.Verified = true
	} else if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		// opaque token
		return s, nil
	}

	s.Subject = claims.Subject
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	if s.Expired(now) {
		return Session{}, ErrExpired
	}
	return s, nil
}

// FromHeader parses an Authorization header value of the form "Bearer <token>".
func (p Parser) FromHeader(header string, now time.Time) (Session, error) {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return Session{}, ErrMissingToken
	}
	return p.FromToken(header[len(prefix):], now)
}

// FromToken reads a token without verifying it. The backend verifies; this
// side only needs to know when to stop forwarding a token that is already dead.
func FromToken(token string, now time.Time) (Session, error) {
	return Parser{}.FromToken(token, now)
}

func FromHeader(header string, now time.Time) (Session, error) {
	return Parser{}.FromHeader(header, now)
}

// Key identifies the desk behind the session. It is derived from the token
// itself, so two tokens claiming the same subject never share state.
func (s Session) Key() string {
	if s.Token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(s.Token))
	return hex.EncodeToString(sum[:])
}

// Actor is the name written to the audit log: the subject when the signature
// was verified, otherwise a token fingerprint.
func (s Session) Actor() string {
	if s.Verified && s.Subject != "" {
		return s.Subject
	}
	if k := s.Key(); k != "" {
		return "token:" + k[:16]
	}
	return ""
}

func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Authorization renders the header value forwarded to the backend.
func (s Session) Authorization() string {
	if s.Token == "" {
		return ""
	}
	return "Bearer " + s.Token
}

type ctxKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(Session)
	return s, ok
}
