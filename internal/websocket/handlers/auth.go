package handlers

import "github.com/dextop-world/dextop/internal/relay"

// AuthContext carries the socket identity into handler functions. It
// intentionally excludes transport-specific types.
//
// UserID is empty until the connection has been promoted to
// authenticated.
type AuthContext struct {
	userID   string
	username string
	socketID string
}

// NewAuthContext constructs an AuthContext for a single socket event.
func NewAuthContext(userID, username, socketID string) AuthContext {
	return AuthContext{
		userID:   userID,
		username: username,
		socketID: socketID,
	}
}

// UserID returns the authenticated account id.
func (a AuthContext) UserID() string {
	return a.userID
}

// Username returns the account's display name.
func (a AuthContext) Username() string {
	return a.username
}

// SocketID returns the caller socket id, which doubles as the player id.
func (a AuthContext) SocketID() string {
	return a.socketID
}

// Authenticated reports whether the caller has a resolved identity.
func (a AuthContext) Authenticated() bool {
	return a.userID != ""
}

func (a AuthContext) sender() relay.Sender {
	return relay.Sender{UserID: a.userID, Username: a.username}
}
