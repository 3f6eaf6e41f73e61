package middleware

import (
	"errors"
	"net/http"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// SessionCookie names the cookie carrying the signed session id.
const SessionCookie = "evibench_session"

type SessionClaims struct {
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

// SessionSigner issues and verifies HS256 tokens binding a browser to a
// server-side session id.
type SessionSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionSigner(secret string, ttl time.Duration) *SessionSigner {
	if secret == "" {
		secret = "evibench-dev-secret"
	}
	return &SessionSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (s *SessionSigner) Sign(sid string) (string, error) {
	now := s.now()
	claims := SessionClaims{SID: sid, RegisteredClaims: jwt.RegisteredClaims{
		Subject:   sid,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *SessionSigner) parseClaims(tok string) (*SessionClaims, error) {
	t, err := jwt.ParseWithClaims(tok, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}
	if c, ok := t.Claims.(*SessionClaims); ok && t.Valid && c.SID != "" {
		return c, nil
	}
	return nil, errors.New("invalid session token")
}

func (s *SessionSigner) Parse(tok string) (string, error) {
	c, err := s.parseClaims(tok)
	if err != nil {
		return "", err
	}
	return c.SID, nil
}

// SessionID returns the verified session id carried by r, if any.
func (s *SessionSigner) SessionID(r *http.Request) (string, bool) {
	sid, _, ok := s.Verify(r)
	return sid, ok
}

// Verify is SessionID plus renew, set once less than half of the token's
// lifetime is left so an active participant keeps their session.
func (s *SessionSigner) Verify(r *http.Request) (sid string, renew bool, ok bool) {
	c, err := r.Cookie(SessionCookie)
	if err != nil || c.Value == "" {
		return "", false, false
	}
	claims, err := s.parseClaims(c.Value)
	if err != nil {
		return "", false, false
	}
	if claims.ExpiresAt != nil {
		renew = claims.ExpiresAt.Time.Sub(s.now()) < s.ttl/2
	}
	return claims.SID, renew, true
}

// SetCookie attaches a fresh token for sid.
func (s *SessionSigner) SetCookie(w http.ResponseWriter, r *http.Request, sid string) error {
	tok, err := s.Sign(sid)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    tok,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.ttl.Seconds()),
	})
	return nil
}
