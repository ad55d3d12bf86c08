package runtime

import (
	"context"

	"github.com/dextop-world/dextop/pkg/wire"
)

// Store abstracts persistence for the runtime.
type Store interface {
	SaveDextopSnapshot(ctx context.Context, userID string, snap wire.DesktopSnapshot) error
}

// Task is one unit of queued work. It runs on the key's goroutine.
type Task func(ctx context.Context)

type taskEvent struct {
	ctx  context.Context
	name string
	fn   Task
}

type snapshotEvent struct {
	ctx context.Context
}
