package presence

import (
	"context"
	"time"

	"github.com/dextop-world/dextop/internal/logger"
)

const (
	DefaultSweepInterval = time.Minute
	DefaultStaleAfter    = 5 * time.Minute
)

// Sweepable removes and returns presences last seen before cutoff.
type Sweepable interface {
	Sweep(cutoff time.Time) []Stale
}

// Sweeper periodically evicts presences of connections that went silent
// without a clean disconnect.
type Sweeper struct {
	target     Sweepable
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
	notify     func([]Stale)
}

// NewSweeper builds a sweeper. notify receives each non-empty batch of
// evictions; it runs on the sweeper goroutine.
func NewSweeper(target Sweepable, interval, staleAfter time.Duration, notify func([]Stale)) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Sweeper{
		target:     target,
		interval:   interval,
		staleAfter: staleAfter,
		now:        time.Now,
		notify:     notify,
	}
}

// Tick runs one sweep pass at the given time.
func (s *Sweeper) Tick(now time.Time) []Stale {
	evicted := s.target.Sweep(now.Add(-s.staleAfter))
	if len(evicted) == 0 {
		return nil
	}
	logger.Infof("[sweeper] evicted %d stale presence(s)", len(evicted))
	if s.notify != nil {
		s.notify(evicted)
	}
	return evicted
}

// Run sweeps on every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(s.now())
		}
	}
}
