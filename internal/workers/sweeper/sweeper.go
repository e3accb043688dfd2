// Package sweeper runs the scheduled verification sweep in the background
// so time-driven transitions happen without any user action.
package sweeper

import (
	"context"
	"log"
	"time"

	"satdigital/internal/domain"
)

// Runner is the sweep entry point of the workflow engine.
type Runner interface {
	RunScheduledSweep(ctx context.Context) (domain.SweepResult, error)
}

// Sweeper calls Runner once on start and then every interval. Start may be
// called once; Stop before Start is a no-op.
type Sweeper struct {
	runner   Runner
	interval time.Duration
	logger   *log.Logger
	started  bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a sweeper but does not start it. An interval of 0 disables
// the sweeper.
func New(r Runner, interval time.Duration, logger *log.Logger) *Sweeper {
	if logger == nil {
		logger = log.Default()
	}
	return &Sweeper{runner: r, interval: interval, logger: logger, done: make(chan struct{})}
}

func (s *Sweeper) Start(ctx context.Context) {
	s.started = true
	if s.interval <= 0 {
		s.logger.Printf("sweeper disabled (interval=0)")
		close(s.done)
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
	s.logger.Printf("sweeper started (interval=%s)", s.interval)
}

// Stop cancels the loop and waits for an in-flight sweep to return.
func (s *Sweeper) Stop() {
	if !s.started {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	res, err := s.runner.RunScheduledSweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Printf("sweep error: %v", err)
		}
		return
	}
	if res.Transitioned > 0 || res.Failed > 0 {
		s.logger.Printf("sweep: checked=%d transitioned=%d failed=%d", res.Checked, res.Transitioned, res.Failed)
	}
}
