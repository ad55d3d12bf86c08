package types

import "github.com/google/uuid"

// NewID generates a unique identifier for messages, requests and windows.
//
// Ids are UUIDv7 so that lexical order follows creation order.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Common response types

type ErrorResponse struct {
	Error string `json:"error"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}
