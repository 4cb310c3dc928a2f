package alert

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/syndilab/hub/internal/settings"
)

// HeartbeatRunner is the slice of the Detector the scheduler drives.
type HeartbeatRunner interface {
	RunHeartbeat(ctx context.Context)
}

const heartbeatTimeout = 30 * time.Second

// Scheduler owns the single heartbeat timer. Applying new settings
// cancels any running timer and, for a batched frequency, arms a new one
// at the mapped interval starting from now. Two timers never overlap.
type Scheduler struct {
	runner HeartbeatRunner
	logger *slog.Logger

	mu       sync.Mutex
	interval time.Duration // 0 means no heartbeat scheduled
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(runner HeartbeatRunner, logger *slog.Logger) *Scheduler {
	return &Scheduler{runner: runner, logger: logger}
}

// Apply re-derives the heartbeat cadence from the settings. A frequency
// change swaps the timer; anything else is a no-op so unrelated settings
// edits do not reset the interval clock.
func (s *Scheduler) Apply(cfg settings.AlertSettings) {
	interval, _ := cfg.Frequency.Interval()

	s.mu.Lock()
	defer s.mu.Unlock()

	if interval == s.interval {
		return
	}
	s.stopLocked()
	s.interval = interval

	if interval == 0 {
		s.logger.Info("heartbeat disabled, immediate alerting active")
		return
	}

	s.stopCh = make(chan struct{})
	s.wg.Add(1)
	go s.loop(s.stopCh, interval)
	s.logger.Info("heartbeat scheduled", "frequency", cfg.Frequency, "interval", interval)
}

// Stop cancels any scheduled heartbeat and waits for an in-flight run to
// finish. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopLocked()
	s.interval = 0
	s.mu.Unlock()
	s.wg.Wait()
}

// Running reports whether a heartbeat timer is armed.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCh != nil
}

func (s *Scheduler) stopLocked() {
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
}

func (s *Scheduler) loop(stopCh chan struct{}, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), heartbeatTimeout)
			s.runner.RunHeartbeat(ctx)
			cancel()
		}
	}
}
