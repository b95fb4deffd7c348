package utils

import (
	"strings"

	"github.com/google/uuid"
)

// NewSessionToken mints an opaque, unguessable session token (random UUIDv4).
func NewSessionToken() string {
	return uuid.NewString()
}

// HasToken reports whether a presented token is usable as-is.
func HasToken(token string) bool {
	return strings.TrimSpace(token) != ""
}
