package handlers

import (
	"errors"
	"strings"

	"github.com/dextop-world/dextop/pkg/wire"
)

// ErrMissingToken is returned when a handshake or authenticate event
// carries no token.
var ErrMissingToken = errors.New("Missing authentication token")

// ValidateSocketAuthPayload extracts the bearer token from a handshake or
// authenticate payload. A "Bearer " prefix is accepted and stripped.
func ValidateSocketAuthPayload(auth wire.SocketAuthPayload) (string, error) {
	token := strings.TrimSpace(auth.Token)
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
