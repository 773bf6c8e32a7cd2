package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SweepFunc runs one pass of a periodic task.
type SweepFunc func(context.Context) error

// Scheduler invokes a sweep function on a fixed interval. It owns its own
// cancellation scope so the sweep logic stays directly callable in tests.
type Scheduler struct {
	name     string
	interval time.Duration
	sweep    SweepFunc
	logger   *zap.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewScheduler builds a scheduler for the given sweep.
func NewScheduler(name string, interval time.Duration, sweep SweepFunc, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{name: name, interval: interval, sweep: sweep, logger: logger}
}

// Start launches the ticker goroutine. Safe to call once.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
	s.started = true
	s.logger.Sugar().Infow("scheduler started", "scheduler", s.name, "interval", s.interval)
}

// Stop cancels the ticker goroutine and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Sugar().Infow("scheduler stopped", "scheduler", s.name)
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.sweep(s.ctx); err != nil {
				s.logger.Sugar().Warnw("sweep failed", "scheduler", s.name, "error", err)
			}
		}
	}
}
