package client

import (
	"errors"
	"time"
)

const (
	// DefaultPath is the server's Socket.IO mount point.
	DefaultPath = "/socket.io/"

	DefaultHeartbeatInterval    = 25 * time.Second
	DefaultReconnectBaseDelay   = time.Second
	DefaultMaxReconnectAttempts = 5
)

// DefaultPrivatePrograms are the program types that never leave the client.
var DefaultPrivatePrograms = []string{"characterEditor", "inventory", "shop", "achievements"}

// Options configure a Client.
type Options struct {
	// URL is the server base URL, e.g. http://localhost:3005.
	URL string
	// Token is the bearer token presented at connect time.
	Token string
	// Path overrides DefaultPath.
	Path string

	HeartbeatInterval time.Duration
	// ReconnectBaseDelay is the linear backoff unit: attempt n waits
	// n * ReconnectBaseDelay.
	ReconnectBaseDelay time.Duration
	// MaxReconnectAttempts bounds automatic reconnection. Once exceeded
	// the client stays disconnected until Connect is called again.
	MaxReconnectAttempts int

	// PrivatePrograms are stripped from every snapshot before it is sent.
	PrivatePrograms []string

	// Dialer opens transports. Defaults to DialSocketIO.
	Dialer Dialer

	// EventBuffer sizes the Events channel. Events are dropped when the
	// consumer falls behind.
	EventBuffer int
}

func (o Options) withDefaults() (Options, error) {
	if o.URL == "" {
		return o, errors.New("client: server URL required")
	}
	if o.Path == "" {
		o.Path = DefaultPath
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.ReconnectBaseDelay <= 0 {
		o.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if o.PrivatePrograms == nil {
		o.PrivatePrograms = DefaultPrivatePrograms
	}
	if o.Dialer == nil {
		o.Dialer = DialSocketIO
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 64
	}
	return o, nil
}
