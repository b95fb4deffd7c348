package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidSessionCookie = errors.New("invalid session cookie")

// SessionSigner wraps a session token in an HS256 JWT so the cookie validity
// window is enforced server-side.
type SessionSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionSigner(secret string, ttl time.Duration) *SessionSigner {
	return &SessionSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (s *SessionSigner) TTL() time.Duration { return s.ttl }

func (s *SessionSigner) Sign(sessionToken string) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sessionToken,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	})
	return token.SignedString(s.secret)
}

// Parse returns the session token carried by a signed cookie value.
func (s *SessionSigner) Parse(value string) (string, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(value, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return "", ErrInvalidSessionCookie
	}
	if !HasToken(claims.Subject) {
		return "", ErrInvalidSessionCookie
	}
	return claims.Subject, nil
}
