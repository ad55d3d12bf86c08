package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dextop-world/dextop/internal/logger"
	"github.com/dextop-world/dextop/pkg/wire"
)

// socketRuntime interprets session effects against real transports and
// timers.
type socketRuntime struct {
	cfg    DialConfig
	dialer Dialer
	events chan<- Event
	// after schedules f; it is swapped in tests.
	after func(d time.Duration, f func()) func() bool

	mu        sync.Mutex
	gen       int
	transport Transport
	timers    []func() bool
}

func newSocketRuntime(opts Options, events chan<- Event) *socketRuntime {
	return &socketRuntime{
		cfg:    DialConfig{URL: opts.URL, Path: opts.Path, Token: opts.Token},
		dialer: opts.Dialer,
		events: events,
		after: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
	}
}

func (r *socketRuntime) handleEffects(ctx context.Context, effects []effect, emit func(input)) {
	for _, eff := range effects {
		switch eff := eff.(type) {
		case effDial:
			r.dial(ctx, eff.gen, emit)
		case effEmit:
			r.emit(eff)
		case effClose:
			r.closeTransport()
		case effAfter:
			in := eff.in
			stop := r.after(eff.delay, func() {
				if ctx.Err() == nil {
					emit(in)
				}
			})
			r.mu.Lock()
			r.timers = append(r.timers, stop)
			r.mu.Unlock()
		case effPublish:
			select {
			case r.events <- eff.ev:
			default:
				logger.Debugf("[client] event consumer is slow, dropping %s", eff.ev.Name)
			}
		}
	}
}

func (r *socketRuntime) dial(ctx context.Context, gen int, emit func(input)) {
	guard := func(in input) {
		if ctx.Err() == nil {
			emit(in)
		}
	}
	r.closeTransport()

	t, err := r.dialer(r.cfg, TransportHandler{
		OnConnect:    func() { guard(transportUp{gen: gen}) },
		OnDisconnect: func(reason string) { guard(transportDown{gen: gen, reason: reason}) },
		OnEvent: func(event string, raw json.RawMessage) {
			guard(serverEvent{gen: gen, event: event, raw: raw})
		},
	})
	if err != nil {
		logger.Warnf("[client] dial failed: %v", err)
		guard(transportDown{gen: gen, reason: err.Error()})
		return
	}

	r.mu.Lock()
	r.gen = gen
	r.transport = t
	// Earlier reconnect timers have fired by now.
	r.timers = nil
	r.mu.Unlock()
}

func (r *socketRuntime) emit(eff effEmit) {
	r.mu.Lock()
	t := r.transport
	current := r.gen == eff.gen
	r.mu.Unlock()

	if t == nil || !current {
		respond(eff.reply, ErrTransportDisconnected)
		return
	}

	var ack func(wire.ResultAck, error)
	if eff.reply != nil {
		ack = func(res wire.ResultAck, err error) {
			switch {
			case err != nil:
				respond(eff.reply, err)
			case res.Result == "error":
				respond(eff.reply, &ServerError{Event: eff.event, Message: res.Message})
			default:
				respond(eff.reply, nil)
			}
		}
	}
	if err := t.Emit(eff.event, eff.payload, ack); err != nil {
		logger.Debugf("[client] emit %s failed: %v", eff.event, err)
		if errors.Is(err, ErrTransportDisconnected) {
			respond(eff.reply, ErrTransportDisconnected)
			return
		}
		respond(eff.reply, err)
	}
}

func (r *socketRuntime) closeTransport() {
	r.mu.Lock()
	t := r.transport
	r.transport = nil
	r.mu.Unlock()
	if t != nil {
		_ = t.Close()
	}
}

func (r *socketRuntime) stop() {
	r.mu.Lock()
	timers := r.timers
	r.timers = nil
	r.mu.Unlock()
	for _, stop := range timers {
		stop()
	}
	r.closeTransport()
}
