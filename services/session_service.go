package services

import "dietlog/utils"

// EnsureSession returns the presented token unchanged, or mints a new one when
// the caller has none. isNew tells the caller to hand the token back to the client.
func EnsureSession(presented string) (token string, isNew bool) {
	if utils.HasToken(presented) {
		return presented, false
	}
	return utils.NewSessionToken(), true
}
