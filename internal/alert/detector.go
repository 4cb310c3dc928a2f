package alert

import (
	"context"
	"log/slog"
	"time"

	"github.com/syndilab/hub/internal/domain"
	"github.com/syndilab/hub/internal/settings"
)

// AlertSink is the slice of the Dispatcher the detector needs.
type AlertSink interface {
	DispatchSpike(ctx context.Context, count int64, threshold, windowHours int)
	DispatchHeartbeat(ctx context.Context, m domain.WindowMetrics, threshold, windowHours int, freq settings.Frequency)
}

// Detector evaluates windowed duplicate counts against the configured
// threshold. It decides whether a crossing fires an immediate alert or
// is left for the heartbeat batch to absorb.
type Detector struct {
	events   domain.EventRepository
	settings *settings.Store
	sink     AlertSink
	logger   *slog.Logger
	now      func() time.Time
}

// NewDetector creates a spike detector.
func NewDetector(events domain.EventRepository, st *settings.Store, sink AlertSink, logger *slog.Logger) *Detector {
	return &Detector{
		events:   events,
		settings: st,
		sink:     sink,
		logger:   logger,
		now:      time.Now,
	}
}

// dispatchTimeout bounds a backgrounded spike dispatch.
const dispatchTimeout = 10 * time.Second

// CheckAfterDuplicate re-evaluates the spike condition after a duplicate
// insert. Only the immediate frequency dispatches here; for batched
// frequencies the heartbeat independently re-evaluates, so a storm of
// duplicate inserts produces at most one message per interval. The
// dispatch itself runs on a background goroutine with its own deadline
// so a slow alert channel never stalls the ingesting request.
func (d *Detector) CheckAfterDuplicate(ctx context.Context) {
	s := d.settings.Get()
	since := d.now().UTC().Add(-time.Duration(s.ScanningWindowHours) * time.Hour)

	count, err := d.events.DuplicateCountSince(ctx, since)
	if err != nil {
		d.logger.Error("spike scan failed", "error", err)
		return
	}
	if count < int64(s.Threshold) {
		return
	}

	d.logger.Warn("duplicate spike detected",
		"count", count,
		"threshold", s.Threshold,
		"window_hours", s.ScanningWindowHours,
		"frequency", s.Frequency,
	)

	if s.Frequency != settings.FrequencyImmediate {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		d.sink.DispatchSpike(ctx, count, s.Threshold, s.ScanningWindowHours)
	}()
}

// RunHeartbeat evaluates the scanning window and, when the threshold is
// still met, dispatches one batched summary. Invoked by the scheduler.
func (d *Detector) RunHeartbeat(ctx context.Context) {
	s := d.settings.Get()

	m, err := d.events.MetricsForWindow(ctx, s.ScanningWindowHours)
	if err != nil {
		d.logger.Error("heartbeat scan failed", "error", err)
		return
	}
	if m.Duplicates < int64(s.Threshold) {
		d.logger.Debug("heartbeat below threshold",
			"duplicates", m.Duplicates,
			"threshold", s.Threshold,
		)
		return
	}

	d.sink.DispatchHeartbeat(ctx, m, s.Threshold, s.ScanningWindowHours, s.Frequency)
}
