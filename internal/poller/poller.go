package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"edengolf/internal/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	DefaultInterval = 15 * time.Second
	DefaultNudgeGap = 2 * time.Second
)

// FetchFunc loads one snapshot. It must honour ctx cancellation.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// ApplyFunc receives the result of the most recently started cycle.
type ApplyFunc[T any] func(result T, err error)

// Config tunes a Poller.
type Config struct {
	// Interval between scheduled cycles.
	Interval time.Duration
	// NudgeGap is the minimum gap between two accepted nudges.
	NudgeGap time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.NudgeGap <= 0 {
		c.NudgeGap = DefaultNudgeGap
	}
	return c
}

// Poller runs fetch on a fixed interval and hands results to apply. Every cycle takes
// a token; a result whose token was superseded by a newer cycle, a restart or Stop
// is dropped on arrival. A failed cycle is reported to apply and the schedule goes on.
type Poller[T any] struct {
	name    string
	fetch   FetchFunc[T]
	apply   ApplyFunc[T]
	config  Config
	limiter *rate.Limiter
	logger  *zerolog.Logger

	mu     sync.Mutex
	token  uint64
	cancel context.CancelFunc
	done   chan struct{}
	nudge  chan struct{}

	cycles atomic.Int64
}

// New creates an idle poller.
func New[T any](name string, fetch FetchFunc[T], apply ApplyFunc[T], config Config, logger *zerolog.Logger) *Poller[T] {
	config = config.withDefaults()
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Poller[T]{
		name:    name,
		fetch:   fetch,
		apply:   apply,
		config:  config,
		limiter: rate.NewLimiter(rate.Every(config.NudgeGap), 1),
		logger:  logger,
	}
}

// Start begins polling with an immediate cycle. A running loop is stopped first and
// its in-flight result discarded.
func (p *Poller[T]) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.nudge = make(chan struct{}, 1)
	go p.loop(loopCtx, p.done, p.nudge)
}

// Stop cancels the loop and invalidates any in-flight cycle. It does not wait for
// the loop goroutine; use Wait for that.
func (p *Poller[T]) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// Wait blocks until the current loop, if any, has exited.
func (p *Poller[T]) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Running reports whether a loop is active.
func (p *Poller[T]) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Nudge asks for an early cycle, e.g. when the golfer comes back to the page. Nudges
// closer together than the configured gap are ignored. It reports whether the nudge
// was accepted.
func (p *Poller[T]) Nudge() bool {
	p.mu.Lock()
	ch := p.nudge
	running := p.cancel != nil
	p.mu.Unlock()

	if !running || !p.limiter.Allow() {
		return false
	}
	select {
	case ch <- struct{}{}:
	default:
	}
	return true
}

// RunOnce performs one cycle in the caller's goroutine. It reports whether the
// result was applied.
func (p *Poller[T]) RunOnce(ctx context.Context) bool {
	return p.cycle(ctx)
}

// Cycles returns the number of cycles started so far.
func (p *Poller[T]) Cycles() int64 {
	return p.cycles.Load()
}

func (p *Poller[T]) stopLocked() {
	p.token++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *Poller[T]) loop(ctx context.Context, done chan struct{}, nudge <-chan struct{}) {
	defer close(done)

	p.logger.Debug().Str("poller", p.name).Dur("interval", p.config.Interval).Msg("poller started")
	p.cycle(ctx)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug().Str("poller", p.name).Msg("poller stopped")
			return
		case <-ticker.C:
			p.cycle(ctx)
		case <-nudge:
			p.cycle(ctx)
			ticker.Reset(p.config.Interval)
		}
	}
}

func (p *Poller[T]) cycle(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	p.mu.Lock()
	p.token++
	token := p.token
	p.mu.Unlock()
	p.cycles.Add(1)

	result, err := p.fetch(ctx)

	p.mu.Lock()
	current := token == p.token
	p.mu.Unlock()
	if !current {
		metrics.IncStaleDiscarded()
		p.logger.Debug().Str("poller", p.name).Uint64("token", token).Msg("discarding superseded poll result")
		return false
	}

	metrics.IncPollCycle(err == nil)
	if err != nil {
		p.logger.Debug().Err(err).Str("poller", p.name).Msg("poll cycle failed, waiting for next tick")
	}
	p.apply(result, err)
	return true
}
