package sweeper

import (
	"context"
	"errors"
	"io"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"satdigital/internal/domain"
)

type countingRunner struct {
	calls atomic.Int32
	err   error
}

func (r *countingRunner) RunScheduledSweep(context.Context) (domain.SweepResult, error) {
	r.calls.Add(1)
	return domain.SweepResult{Checked: 1, Transitioned: 1}, r.err
}

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func TestSweeperRunsImmediatelyAndOnTick(t *testing.T) {
	r := &countingRunner{}
	s := New(r, 10*time.Millisecond, quiet())
	s.Start(context.Background())

	assert.Eventually(t, func() bool { return r.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	s.Stop()

	after := r.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, r.calls.Load(), "no sweeps after Stop")
}

func TestSweeperKeepsGoingAfterErrors(t *testing.T) {
	r := &countingRunner{err: errors.New("db down")}
	s := New(r, 5*time.Millisecond, quiet())
	s.Start(context.Background())
	assert.Eventually(t, func() bool { return r.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	s.Stop()
}

func TestSweeperDisabled(t *testing.T) {
	r := &countingRunner{}
	s := New(r, 0, quiet())
	s.Start(context.Background())
	s.Stop()
	assert.Zero(t, r.calls.Load())
}

func TestSweeperStopsWithContext(t *testing.T) {
	r := &countingRunner{}
	ctx, cancel := context.WithCancel(context.Background())
	s := New(r, time.Hour, quiet())
	s.Start(ctx)
	assert.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-s.done:
	case <-time.After(time.Second):
		t.Fatal("loop did not exit on context cancel")
	}
}

func TestStopWithoutStart(t *testing.T) {
	r := &countingRunner{}
	for _, interval := range []time.Duration{0, time.Hour} {
		s := New(r, interval, quiet())
		stopped := make(chan struct{})
		go func() {
			s.Stop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(time.Second):
			t.Fatalf("Stop blocked without Start (interval=%s)", interval)
		}
	}
	assert.Zero(t, r.calls.Load())
}
