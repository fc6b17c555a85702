// Package scheduler fires the control cycle at a fixed period. A cycle that
// overruns its period skips the ticks it missed instead of queueing them.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/san-kum/nmpc/internal/dynamo"
)

// Work is one control cycle.
type Work func(ctx context.Context)

type Option func(*Scheduler)

func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Scheduler) { s.logger = l }
}

type Scheduler struct {
	period time.Duration
	work   Work
	clock  clock.Clock
	logger *zap.SugaredLogger

	cycles  atomic.Uint64
	skipped atomic.Uint64
	overrun atomic.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

func New(period time.Duration, work Work, opts ...Option) (*Scheduler, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: period must be positive, got %v", dynamo.ErrConfigInvalid, period)
	}
	if work == nil {
		return nil, fmt.Errorf("%w: nil work", dynamo.ErrConfigInvalid)
	}
	s := &Scheduler{
		period: period,
		work:   work,
		clock:  clock.New(),
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Scheduler) Period() time.Duration { return s.period }

// Cycles is the number of cycles run so far.
func (s *Scheduler) Cycles() uint64 { return s.cycles.Load() }

// Skipped is the number of ticks dropped because a cycle overran.
func (s *Scheduler) Skipped() uint64 { return s.skipped.Load() }

// WorstOverrun is the longest cycle that exceeded the period.
func (s *Scheduler) WorstOverrun() time.Duration { return s.overrun.Load() }

// Run blocks, firing the work every period until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := s.clock.Ticker(s.period)
	defer ticker.Stop()

	s.logger.Infow("control loop started", "period", s.period)
	for {
		select {
		case <-ctx.Done():
			s.logger.Infow("control loop stopped", "cycles", s.Cycles(), "skipped", s.Skipped())
			return ctx.Err()
		case <-ticker.C:
			s.fire(ctx, ticker.C)
		}
	}
}

// fire runs one cycle. After an overrun the missed ticks are counted and
// any tick already waiting in the channel is dropped.
func (s *Scheduler) fire(ctx context.Context, ticks <-chan time.Time) {
	if ctx.Err() != nil {
		return
	}
	start := s.clock.Now()
	s.work(ctx)
	elapsed := s.clock.Since(start)
	s.cycles.Inc()

	if elapsed <= s.period {
		return
	}
	missed := uint64(elapsed / s.period)
	s.skipped.Add(missed)
	if elapsed > s.overrun.Load() {
		s.overrun.Store(elapsed)
	}
	s.logger.Warnw("cycle overran its period", "elapsed", elapsed, "period", s.period, "skipped", missed)

	select {
	case <-ticks:
	default:
	}
}

// Start runs the loop in the background until Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.stopped = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		_ = s.Run(ctx)
	}(s.stopped)
}

// Stop cancels a loop started with Start and waits for the current cycle.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.stopped
	s.cancel, s.stopped = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
