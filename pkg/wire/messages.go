package wire

// MessageKind distinguishes context-scoped chat from direct messages.
type MessageKind string

const (
	MessageLocal   MessageKind = "local"
	MessagePrivate MessageKind = "private"
)

// Message is a chat message as relayed to clients.
type Message struct {
	ID          string      `json:"id"`
	SenderID    string      `json:"senderId"`
	SenderName  string      `json:"senderName"`
	RecipientID string      `json:"recipientId,omitempty"`
	ContextID   string      `json:"contextId,omitempty"`
	Content     string      `json:"content"`
	Timestamp   int64       `json:"timestamp"`
	Kind        MessageKind `json:"kind"`
	// Color is a rendering hint for local chat bubbles.
	Color string `json:"color,omitempty"`
	// Read is only meaningful for private messages.
	Read bool `json:"read,omitempty"`
}

// OutgoingMessage is the client supplied part of a chat message.
type OutgoingMessage struct {
	Content string `json:"content"`
	Color   string `json:"color,omitempty"`
}

// LocalMessagePayload is the room-scoped chat event.
type LocalMessagePayload struct {
	RoomID  string          `json:"roomId"`
	Message OutgoingMessage `json:"message"`
}

// DextopMessagePayload is the dextop-scoped chat event.
type DextopMessagePayload struct {
	DextopID string          `json:"dextopId"`
	Message  OutgoingMessage `json:"message"`
}

// PrivateMessagePayload addresses a message to a user id.
type PrivateMessagePayload struct {
	RecipientID string          `json:"recipientId"`
	Message     OutgoingMessage `json:"message"`
}

// OfflineMessagesPayload is the batch replayed after connect.
type OfflineMessagesPayload struct {
	Messages []Message `json:"messages"`
}
