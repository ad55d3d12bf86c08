package client

import (
	"sort"
	"sync"

	"github.com/dextop-world/dextop/pkg/wire"
)

// MessageLog keeps chat messages de-duplicated by id. A private message can
// arrive live, in an offline batch and again in a history fetch; it is kept
// once.
type MessageLog struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	items []wire.Message
	limit int
}

// NewMessageLog keeps at most limit messages (0 means unbounded). The
// oldest are evicted first.
func NewMessageLog(limit int) *MessageLog {
	return &MessageLog{seen: make(map[string]struct{}), limit: limit}
}

// Add records messages and returns the ones not seen before, in the order
// given. Messages without an id are always new.
func (l *MessageLog) Add(msgs ...wire.Message) []wire.Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	var added []wire.Message
	for _, m := range msgs {
		if m.ID != "" {
			if _, dup := l.seen[m.ID]; dup {
				continue
			}
			l.seen[m.ID] = struct{}{}
		}
		l.items = append(l.items, m)
		added = append(added, m)
	}
	if len(added) == 0 {
		return nil
	}

	sort.SliceStable(l.items, func(i, j int) bool {
		return l.items[i].Timestamp < l.items[j].Timestamp
	})
	if l.limit > 0 && len(l.items) > l.limit {
		drop := len(l.items) - l.limit
		for _, m := range l.items[:drop] {
			delete(l.seen, m.ID)
		}
		l.items = append([]wire.Message(nil), l.items[drop:]...)
	}
	return added
}

// Messages returns the log oldest first.
func (l *MessageLog) Messages() []wire.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]wire.Message(nil), l.items...)
}

// Conversation returns the private messages exchanged with userID.
func (l *MessageLog) Conversation(userID string) []wire.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []wire.Message
	for _, m := range l.items {
		if m.Kind != wire.MessagePrivate {
			continue
		}
		if m.SenderID == userID || m.RecipientID == userID {
			out = append(out, m)
		}
	}
	return out
}
