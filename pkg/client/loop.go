package client

import (
	"context"
	"sync"
)

// input is an item delivered to the client's mailbox. Inputs are either
// observations from the runtime (transport events, timers) or commands
// from callers.
type input interface {
	isInput()
}

// effect is a side effect requested by a step. Effects are data; the
// runtime interprets them and feeds follow-up inputs back to the mailbox.
type effect interface {
	isEffect()
}

type inputBase struct{}

func (inputBase) isInput() {}

type effectBase struct{}

func (effectBase) isEffect() {}

// stepFunc advances state S by one input. It runs on the loop goroutine and
// may mutate the state it owns, but must not perform I/O: everything that
// touches the network or the clock is returned as an effect.
type stepFunc[S any] func(state S, in input) []effect

// runtime interprets effects and emits follow-up inputs.
type runtime interface {
	// handleEffects must return quickly; blocking work runs asynchronously
	// and stops emitting once ctx is canceled.
	handleEffects(ctx context.Context, effects []effect, emit func(input))
	stop()
}

// loop is a single goroutine that owns state S. All inputs are processed
// in arrival order, one at a time.
type loop[S any] struct {
	step    stepFunc[S]
	runtime runtime

	mu     sync.Mutex
	state  S
	inbox  chan input
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

const defaultMailboxSize = 256

func newLoop[S any](initial S, step stepFunc[S], rt runtime, mailbox int) *loop[S] {
	if mailbox <= 0 {
		mailbox = defaultMailboxSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &loop[S]{
		step:    step,
		runtime: rt,
		state:   initial,
		inbox:   make(chan input, mailbox),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// start is idempotent.
func (l *loop[S]) start() {
	l.once.Do(func() { go l.run() })
}

// stop cancels the loop and the runtime. Safe to call more than once.
func (l *loop[S]) stop() {
	l.cancel()
	if l.runtime != nil {
		l.runtime.stop()
	}
}

func (l *loop[S]) stopped() <-chan struct{} { return l.done }

// enqueue delivers an input. It returns false once the loop is stopped or
// when the mailbox is full.
func (l *loop[S]) enqueue(in input) bool {
	if in == nil {
		return false
	}
	select {
	case <-l.ctx.Done():
		return false
	default:
	}
	select {
	case l.inbox <- in:
		return true
	default:
		return false
	}
}

// inspect runs fn with the state locked. It is meant for read-only
// snapshots taken from other goroutines.
func (l *loop[S]) inspect(fn func(S)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.state)
}

func (l *loop[S]) run() {
	defer close(l.done)

	emit := func(in input) { _ = l.enqueue(in) }

	for {
		select {
		case <-l.ctx.Done():
			return
		case in := <-l.inbox:
			if in == nil {
				continue
			}
			l.mu.Lock()
			effects := l.step(l.state, in)
			l.mu.Unlock()

			if l.runtime != nil && len(effects) > 0 {
				l.runtime.handleEffects(l.ctx, effects, emit)
			}
		}
	}
}
