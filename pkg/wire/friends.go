package wire

// FriendRequestStatus is the lifecycle state of a friend request.
type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "pending"
	FriendRequestAccepted FriendRequestStatus = "accepted"
	FriendRequestRejected FriendRequestStatus = "rejected"
)

// FriendRequest is a friend request as seen by clients.
type FriendRequest struct {
	ID           string              `json:"requestId"`
	FromUserID   string              `json:"from"`
	FromUsername string              `json:"username"`
	ToUserID     string              `json:"to"`
	Status       FriendRequestStatus `json:"status"`
	CreatedAt    int64               `json:"createdAt"`
	RespondedAt  int64               `json:"respondedAt,omitempty"`
}

// Friend is one entry of a friends list, including live presence.
type Friend struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
	// DextopID is the dextop the friend is currently in, if any.
	DextopID string `json:"dextopId,omitempty"`
}

// SendFriendRequestPayload asks to befriend a user by username.
type SendFriendRequestPayload struct {
	Username string `json:"username"`
}

// FriendRequestActionPayload accepts or rejects a request.
type FriendRequestActionPayload struct {
	RequestID string `json:"requestId"`
}

// FriendRequestAcceptedPayload is sent to both parties on acceptance.
type FriendRequestAcceptedPayload struct {
	Friend      Friend   `json:"friend"`
	FriendsList []Friend `json:"friendsList"`
}

// FriendStatusPayload carries a full refreshed friends list.
type FriendStatusPayload struct {
	Friends []Friend `json:"friends"`
}

// OfflineFriendRequestsPayload is the pending request batch replayed after
// connect.
type OfflineFriendRequestsPayload struct {
	Requests []FriendRequest `json:"requests"`
}
