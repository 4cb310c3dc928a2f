package alert

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/syndilab/hub/internal/settings"
)

type countingRunner struct {
	runs atomic.Int64
}

func (r *countingRunner) RunHeartbeat(context.Context) { r.runs.Add(1) }

func schedulerSettings(freq settings.Frequency) settings.AlertSettings {
	s := settings.Defaults()
	s.Frequency = freq
	return s
}

func TestSchedulerArmsOnlyForBatchedFrequencies(t *testing.T) {
	s := NewScheduler(&countingRunner{}, testLogger())
	defer s.Stop()

	s.Apply(schedulerSettings(settings.FrequencyImmediate))
	if s.Running() {
		t.Error("immediate frequency armed a heartbeat")
	}

	s.Apply(schedulerSettings(settings.FrequencyDaily))
	if !s.Running() {
		t.Error("daily frequency did not arm a heartbeat")
	}

	s.Apply(schedulerSettings(settings.FrequencyImmediate))
	if s.Running() {
		t.Error("switch back to immediate left the heartbeat armed")
	}
}

func TestSchedulerApplyIsNoOpForUnchangedInterval(t *testing.T) {
	s := NewScheduler(&countingRunner{}, testLogger())
	defer s.Stop()

	s.Apply(schedulerSettings(settings.FrequencyDaily))
	s.mu.Lock()
	first := s.stopCh
	s.mu.Unlock()

	// An unrelated settings edit with the same frequency must not reset
	// the interval clock.
	cfg := schedulerSettings(settings.FrequencyDaily)
	cfg.Threshold = 99
	s.Apply(cfg)

	s.mu.Lock()
	second := s.stopCh
	s.mu.Unlock()
	if first != second {
		t.Error("unchanged interval swapped the timer")
	}
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	s := NewScheduler(&countingRunner{}, testLogger())
	s.Apply(schedulerSettings(settings.FrequencyWeekly))
	s.Stop()
	s.Stop()
	if s.Running() {
		t.Error("scheduler still running after Stop")
	}
}

func TestSchedulerLoopTicksAndStops(t *testing.T) {
	runner := &countingRunner{}
	s := NewScheduler(runner, testLogger())

	stopCh := make(chan struct{})
	s.wg.Add(1)
	go s.loop(stopCh, 5*time.Millisecond)

	deadline := time.After(2 * time.Second)
	for runner.runs.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("heartbeat never ticked")
		case <-time.After(5 * time.Millisecond):
		}
	}

	close(stopCh)
	s.wg.Wait()

	settled := runner.runs.Load()
	time.Sleep(20 * time.Millisecond)
	if runner.runs.Load() != settled {
		t.Error("loop kept ticking after stop")
	}
}
