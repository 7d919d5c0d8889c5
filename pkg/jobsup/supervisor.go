// Package jobsup implements the shared cooperative-worker shape background
// loops run under: a 1-second poll quantum, a
// stop-signal channel instead of shared mutable state, and a guarded
// status snapshot every other package's supervisor can expose uniformly.
package jobsup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is the point-in-time snapshot a Supervisor exposes.
type Status struct {
	Running     bool
	LastTickAt  time.Time
	LastError   string
	TickCount   int64
}

// Tick is the function a Supervisor calls once per due cycle. An error
// is recorded on the status snapshot but never stops the loop.
type Tick func(ctx context.Context) error

// Supervisor runs Tick on a fixed interval, checking a stop signal every
// pollQuantum regardless of how long the interval is, so Stop takes
// effect within one quantum plus any in-flight tick.
type Supervisor struct {
	name        string
	interval    time.Duration
	pollQuantum time.Duration
	tick        Tick
	logger      *zap.Logger

	mu     sync.Mutex
	status Status

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewSupervisor builds a Supervisor. pollQuantum defaults to one second
// when zero.
func NewSupervisor(name string, interval time.Duration, pollQuantum time.Duration, tick Tick, logger *zap.Logger) *Supervisor {
	if pollQuantum <= 0 {
		pollQuantum = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		name:        name,
		interval:    interval,
		pollQuantum: pollQuantum,
		tick:        tick,
		logger:      logger.With(zap.String("worker", name)),
	}
}

// Start launches the supervisor loop in its own goroutine. Calling Start
// twice without an intervening Stop is a no-op.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.status.Running = true
	stopCh := s.stopCh
	doneCh := s.doneCh
	s.mu.Unlock()

	go s.loop(ctx, stopCh, doneCh)
}

// Stop signals the loop to exit and blocks until it does.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	stopCh := s.stopCh
	doneCh := s.doneCh
	s.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh

	s.mu.Lock()
	s.stopCh = nil
	s.doneCh = nil
	s.status.Running = false
	s.mu.Unlock()
}

// StatusSnapshot returns a copy of the current status.
func (s *Supervisor) StatusSnapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Supervisor) loop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	nextDue := time.Now()
	ticker := time.NewTicker(s.pollQuantum)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if now.Before(nextDue) {
				continue
			}
			s.runOnce(ctx)
			nextDue = now.Add(s.interval)
		}
	}
}

func (s *Supervisor) runOnce(ctx context.Context) {
	var err error
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("supervised tick panicked: %v", rec)
			}
		}()
		err = s.tick(ctx)
	}()

	s.mu.Lock()
	s.status.LastTickAt = time.Now()
	s.status.TickCount++
	if err != nil {
		s.status.LastError = err.Error()
	} else {
		s.status.LastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("supervised tick failed", zap.Error(err))
	}
}
