// middlewares/session_middleware.go
package middlewares

import (
	"net/http"

	"dietlog/utils"

	"github.com/gin-gonic/gin"
)

const sessionKey = "session"

// SessionCookies moves session tokens in and out of the signed cookie.
type SessionCookies struct {
	signer *utils.SessionSigner
	name   string
	secure bool
}

func NewSessionCookies(signer *utils.SessionSigner, name string, secure bool) *SessionCookies {
	return &SessionCookies{signer: signer, name: name, secure: secure}
}

// Read returns the session carried by the request cookie, if it is valid and unexpired.
func (s *SessionCookies) Read(c *gin.Context) (string, bool) {
	raw, err := c.Cookie(s.name)
	if err != nil || raw == "" {
		return "", false
	}
	token, err := s.signer.Parse(raw)
	if err != nil {
		return "", false
	}
	return token, true
}

func (s *SessionCookies) Write(c *gin.Context, token string) error {
	signed, err := s.signer.Sign(token)
	if err != nil {
		return err
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.name, signed, int(s.signer.TTL().Seconds()), "/", "", s.secure, true)
	return nil
}

// LoadSession puts the caller's session in the context when one is presented.
func LoadSession(cookies *SessionCookies) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := cookies.Read(c); ok {
			c.Set(sessionKey, token)
		}
		c.Next()
	}
}

// RequireSession rejects requests that carry no valid session.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if SessionFrom(c) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized."})
			return
		}
		c.Next()
	}
}

// SessionFrom returns the session loaded by LoadSession, or "".
func SessionFrom(c *gin.Context) string {
	return c.GetString(sessionKey)
}
