package prediction

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Countdown reports the time left until a deadline. Every tick recomputes
// max(0, deadline - now) from the clock, so a late or skipped tick never
// drifts the display. After reporting zero it stops until the next Start.
type Countdown struct {
	clock    clockwork.Clock
	interval time.Duration
	onTick   func(remaining time.Duration)

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}

	emitMu sync.Mutex
}

func NewCountdown(clock clockwork.Clock, interval time.Duration, onTick func(time.Duration)) *Countdown {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Countdown{clock: clock, interval: interval, onTick: onTick}
}

// Start (re)starts the countdown toward deadline, replacing any running one.
func (c *Countdown) Start(deadline time.Time) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.gen++
	gen := c.gen
	prev := c.cancel
	c.cancel, c.done = cancel, done
	c.mu.Unlock()

	if prev != nil {
		prev()
	}
	go c.run(ctx, gen, deadline, done)
}

// Stop halts the running countdown, if any, without reporting.
func (c *Countdown) Stop() {
	c.mu.Lock()
	c.gen++
	cancel := c.cancel
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Done is closed when the current countdown has reported zero or been
// replaced. Nil when none was started.
func (c *Countdown) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *Countdown) run(ctx context.Context, gen uint64, deadline time.Time, done chan struct{}) {
	defer close(done)

	if !c.emit(ctx, gen, deadline) {
		return
	}

	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if !c.emit(ctx, gen, deadline) {
				return
			}
		}
	}
}

// emit reports the remaining time and whether to keep ticking. Emissions
// are serialized, and a run replaced by Start or Stop never reports again.
func (c *Countdown) emit(ctx context.Context, gen uint64, deadline time.Time) bool {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	live := c.gen == gen
	c.mu.Unlock()
	if !live || ctx.Err() != nil {
		return false
	}
	rem := RemainingUntil(c.clock.Now(), deadline)
	if c.onTick != nil {
		c.onTick(rem)
	}
	return rem > 0
}
