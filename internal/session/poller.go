package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// PollState is the retry poller's lifecycle state.
type PollState int

const (
	PollIdle PollState = iota
	PollPolling
	PollGaveUp
)

func (s PollState) String() string {
	switch s {
	case PollIdle:
		return "idle"
	case PollPolling:
		return "polling"
	case PollGaveUp:
		return "gave_up"
	default:
		return "unknown"
	}
}

// PollConfig controls the retry cadence. The interval grows by Multiplier up
// to MaxInterval, and after MaxAttempts failed ticks the poller lands in a
// terminal gave-up state instead of retrying forever.
type PollConfig struct {
	Interval    time.Duration
	MaxInterval time.Duration
	Multiplier  float64
	MaxAttempts int // 0 means no ceiling
}

func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval:    3 * time.Second,
		MaxInterval: 30 * time.Second,
		Multiplier:  2.0,
		MaxAttempts: 10,
	}
}

// PollEvent is delivered to the notify callback on every state change and on
// every attempt, so a UI can show "Attempt N" and dismiss on success.
type PollEvent struct {
	State   PollState
	Attempt int
	Err     error
}

// RetryPoller re-invokes a failed fetch until it succeeds, the user cancels,
// or the attempt ceiling is hit. Each Start bumps a generation counter;
// anything still in flight from an older generation is discarded when it
// lands, so a cancelled tick can never mutate state afterwards.
type RetryPoller struct {
	mu         sync.Mutex
	log        *slog.Logger
	cfg        PollConfig
	state      PollState
	attempts   int
	generation uint64
	cancel     context.CancelFunc
	notify     func(PollEvent)
}

func NewRetryPoller(log *slog.Logger, cfg PollConfig) *RetryPoller {
	if cfg.Interval <= 0 {
		cfg = DefaultPollConfig()
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	if cfg.MaxInterval < cfg.Interval {
		cfg.MaxInterval = cfg.Interval
	}
	return &RetryPoller{log: log, cfg: cfg, state: PollIdle}
}

// SetNotify installs the event callback. Must be called before Start.
func (p *RetryPoller) SetNotify(fn func(PollEvent)) {
	p.mu.Lock()
	p.notify = fn
	p.mu.Unlock()
}

// Start begins polling with the given fetch. A Start while already polling is
// a no-op, so a second fetch failure cannot spawn a second timer. fetch runs
// with a context that is cancelled by Cancel; it should both fetch and apply
// its result.
func (p *RetryPoller) Start(ctx context.Context, fetch func(context.Context) error) {
	p.mu.Lock()
	if p.state == PollPolling {
		p.mu.Unlock()
		return
	}
	p.generation++
	gen := p.generation
	p.state = PollPolling
	p.attempts = 0
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	p.log.Info("retry_poll_started", "interval", p.cfg.Interval)
	go p.run(pollCtx, gen, fetch)
}

// Cancel stops polling and returns the poller to idle. The in-flight tick, if
// any, is invalidated by the generation bump and its result dropped.
func (p *RetryPoller) Cancel() {
	p.mu.Lock()
	if p.state != PollPolling {
		p.mu.Unlock()
		return
	}
	p.generation++
	p.state = PollIdle
	p.attempts = 0
	cancel := p.cancel
	p.cancel = nil
	notify := p.notify
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.log.Info("retry_poll_cancelled")
	if notify != nil {
		notify(PollEvent{State: PollIdle})
	}
}

// Reset returns a gave-up poller to idle so the next natural fetch trigger
// can start a fresh cycle.
func (p *RetryPoller) Reset() {
	p.mu.Lock()
	if p.state == PollGaveUp {
		p.state = PollIdle
		p.attempts = 0
	}
	p.mu.Unlock()
}

func (p *RetryPoller) State() PollState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *RetryPoller) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

func (p *RetryPoller) run(ctx context.Context, gen uint64, fetch func(context.Context) error) {
	interval := p.cfg.Interval

	for attempt := 1; ; attempt++ {
		if err := waitCtx(ctx, interval); err != nil {
			return // cancelled while waiting for the next tick
		}

		p.mu.Lock()
		if p.generation != gen || p.state != PollPolling {
			p.mu.Unlock()
			return
		}
		p.attempts = attempt
		notify := p.notify
		p.mu.Unlock()

		if notify != nil {
			notify(PollEvent{State: PollPolling, Attempt: attempt})
		}
		p.log.Debug("retry_poll_attempt", "attempt", attempt)

		err := fetch(ctx)

		p.mu.Lock()
		if p.generation != gen || p.state != PollPolling {
			// cancelled while the fetch was in flight; drop the result
			p.mu.Unlock()
			return
		}
		if err == nil {
			p.state = PollIdle
			p.attempts = 0
			if p.cancel != nil {
				p.cancel()
				p.cancel = nil
			}
			notify := p.notify
			p.mu.Unlock()
			p.log.Info("retry_poll_succeeded", "attempts", attempt)
			if notify != nil {
				notify(PollEvent{State: PollIdle})
			}
			return
		}
		if p.cfg.MaxAttempts > 0 && attempt >= p.cfg.MaxAttempts {
			p.state = PollGaveUp
			if p.cancel != nil {
				p.cancel()
				p.cancel = nil
			}
			notify := p.notify
			p.mu.Unlock()
			p.log.Warn("retry_poll_gave_up", "attempts", attempt, "error", err)
			if notify != nil {
				notify(PollEvent{State: PollGaveUp, Attempt: attempt, Err: err})
			}
			return
		}
		p.mu.Unlock()

		p.log.Debug("retry_poll_attempt_failed", "attempt", attempt, "error", err)

		interval = time.Duration(float64(interval) * p.cfg.Multiplier)
		if interval > p.cfg.MaxInterval {
			interval = p.cfg.MaxInterval
		}
	}
}

func waitCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
