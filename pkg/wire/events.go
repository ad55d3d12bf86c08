// Package wire defines the JSON payloads exchanged over the Socket.IO
// transport between dextop clients and the server.
package wire

// Client to server events.
const (
	EventAuthenticate        = "authenticate"
	EventJoinDextop          = "joinDextop"
	EventCreateRoom          = "createRoom"
	EventJoinRoom            = "joinRoom"
	EventLeaveContext        = "leaveContext"
	EventPlayerMove          = "playerMove"
	EventDextopPlayerMove    = "dextopPlayerMove"
	EventPlayerStateUpdate   = "playerStateUpdate"
	EventVisitorStateUpdate  = "visitorStateUpdate"
	EventDesktopStateUpdate  = "desktopStateUpdate"
	EventDextopStateUpdate   = "dextopStateUpdate"
	EventLocalMessage        = "localMessage"
	EventDextopMessage       = "dextopMessage"
	EventPrivateMessage      = "privateMessage"
	EventFriendRequest       = "friendRequest"
	EventAcceptFriendRequest = "acceptFriendRequest"
	EventRejectFriendRequest = "rejectFriendRequest"
	EventGetFriendsList      = "getFriendsList"
	EventHeartbeat           = "heartbeat"
)

// Server to client events. Some names are shared with the client events
// above (localMessage, privateMessage, visitorStateUpdate, friendRequest).
const (
	EventAuthenticated         = "authenticated"
	EventDextopJoined          = "dextopJoined"
	EventRoomJoined            = "roomJoined"
	EventPlayerMoved           = "playerMoved"
	EventVisitorMoved          = "visitorMoved"
	EventPlayersUpdate         = "playersUpdate"
	EventVisitorsUpdate        = "visitorsUpdate"
	EventVisitorLeft           = "visitorLeft"
	EventPlayerLeft            = "playerLeft"
	EventDesktopState          = "desktopState"
	EventDextopState           = "dextopState"
	EventFriendRequestAccepted = "friendRequestAccepted"
	EventFriendStatusUpdate    = "friendStatusUpdate"
	EventOfflineMessages       = "offlineMessages"
	EventOfflineFriendRequests = "offlineFriendRequests"
	EventError                 = "error"
)

// ResultAck is the minimal ACK response shape used by Socket.IO handlers.
type ResultAck struct {
	// Result is one of "success" or "error".
	Result string `json:"result"`
	// Message is an optional error annotation.
	Message string `json:"message,omitempty"`
}

// AckSuccess is the canonical success ACK.
func AckSuccess() ResultAck { return ResultAck{Result: "success"} }

// AckError builds an error ACK.
func AckError(msg string) ResultAck { return ResultAck{Result: "error", Message: msg} }

// SocketAuthPayload is the Socket.IO handshake auth object.
type SocketAuthPayload struct {
	Token string `json:"token"`
}

// AuthenticatePayload re-asserts identity on an existing connection.
type AuthenticatePayload struct {
	Token string `json:"token"`
}

// AuthenticatedPayload confirms a resolved identity to the caller.
type AuthenticatedPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	PlayerID string `json:"playerId"`
	DextopID string `json:"dextopId"`
}

// JoinDextopPayload requests entry into a dextop session. An empty DextopID
// means the caller's own dextop.
type JoinDextopPayload struct {
	Token    string `json:"token,omitempty"`
	DextopID string `json:"dextopId"`
}

// DextopJoinedPayload confirms a dextop join.
type DextopJoinedPayload struct {
	DextopID string `json:"dextopId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	PlayerID string `json:"playerId"`
	IsOwner  bool   `json:"isOwner"`
	// Restored is true when the owner's snapshot came from the visit cache.
	Restored bool `json:"restored,omitempty"`
}

// CreateRoomPayload creates a fresh ephemeral room.
type CreateRoomPayload struct {
	Username string `json:"username"`
}

// JoinRoomPayload joins (or creates) a room by code.
type JoinRoomPayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

// RoomJoinedPayload confirms a room join.
type RoomJoinedPayload struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
	Username string `json:"username"`
	Quadrant int    `json:"quadrant"`
}

// DesktopStateUpdatePayload carries a room snapshot (legacy channel).
type DesktopStateUpdatePayload struct {
	RoomID       string          `json:"roomId"`
	DesktopState DesktopSnapshot `json:"desktopState"`
}

// DextopStateUpdatePayload carries a dextop snapshot.
type DextopStateUpdatePayload struct {
	DextopID     string          `json:"dextopId"`
	DesktopState DesktopSnapshot `json:"desktopState"`
}

// DesktopStatePayload is the server to client snapshot broadcast.
type DesktopStatePayload struct {
	ContextID    string          `json:"contextId"`
	DesktopState DesktopSnapshot `json:"desktopState"`
}

// HeartbeatPayload is the optional heartbeat body.
type HeartbeatPayload struct {
	Time int64 `json:"time,omitempty"`
}

// LeftPayload notifies context members that a connection left.
type LeftPayload struct {
	ContextID string `json:"contextId"`
	PlayerID  string `json:"playerId"`
	UserID    string `json:"userId,omitempty"`
	// Stale is true when the presence sweep evicted the connection.
	Stale bool `json:"stale,omitempty"`
}
