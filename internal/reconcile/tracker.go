package reconcile

import "sync"

// Origin records where a value came from.
type Origin int

const (
	// Local values were produced by this process and may need broadcasting.
	Local Origin = iota
	// Remote values were received from a peer and are never re-broadcast.
	Remote
)

func (o Origin) String() string {
	if o == Remote {
		return "remote"
	}
	return "local"
}

// Tagged carries a value together with its provenance.
type Tagged[T any] struct {
	Value  T
	Origin Origin
}

// LocalValue tags v as locally produced.
func LocalValue[T any](v T) Tagged[T] { return Tagged[T]{Value: v, Origin: Local} }

// RemoteValue tags v as received from a peer.
func RemoteValue[T any](v T) Tagged[T] { return Tagged[T]{Value: v, Origin: Remote} }

// Tracker remembers the last broadcast value of one state graph.
type Tracker[T any] struct {
	detector ChangeDetector[T]
	sanitize func(T) T

	mu      sync.Mutex
	last    T
	hasLast bool
}

// NewTracker builds a tracker. sanitize may be nil.
func NewTracker[T any](detector ChangeDetector[T], sanitize func(T) T) *Tracker[T] {
	if sanitize == nil {
		sanitize = func(v T) T { return v }
	}
	return &Tracker[T]{detector: detector, sanitize: sanitize}
}

// Observe runs one reconciliation tick. It returns the sanitized value and
// true when it must be broadcast. Remote values update the baseline and are
// never returned for broadcast.
func (t *Tracker[T]) Observe(in Tagged[T]) (T, bool) {
	clean := t.sanitize(in.Value)

	t.mu.Lock()
	defer t.mu.Unlock()

	if in.Origin == Remote {
		t.last = clean
		t.hasLast = true
		var zero T
		return zero, false
	}
	if t.hasLast && !t.detector.HasChanged(t.last, clean) {
		var zero T
		return zero, false
	}
	t.last = clean
	t.hasLast = true
	return clean, true
}

// Last returns the current baseline.
func (t *Tracker[T]) Last() (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.hasLast
}

// Reset forgets the baseline, e.g. after switching contexts.
func (t *Tracker[T]) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	var zero T
	t.last = zero
	t.hasLast = false
}
