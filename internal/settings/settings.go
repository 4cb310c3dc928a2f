// Package settings holds the process-wide alerting configuration: a
// strongly-typed document persisted as JSON and hot-reloaded on change.
package settings

import (
	"fmt"
	"time"
)

// Frequency is the alert cadence. Immediate dispatches a spike alert per
// threshold crossing; the others batch into a periodic heartbeat summary.
type Frequency string

const (
	FrequencyImmediate Frequency = "immediate"
	FrequencySixHours  Frequency = "6h"
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
)

// Interval returns the heartbeat interval for the frequency. ok is false
// for FrequencyImmediate, which schedules no heartbeat.
func (f Frequency) Interval() (interval time.Duration, ok bool) {
	switch f {
	case FrequencySixHours:
		return 6 * time.Hour, true
	case FrequencyDaily:
		return 24 * time.Hour, true
	case FrequencyWeekly:
		return 7 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

func (f Frequency) valid() bool {
	switch f {
	case FrequencyImmediate, FrequencySixHours, FrequencyDaily, FrequencyWeekly:
		return true
	}
	return false
}

// AlertSettings is the singleton alerting configuration.
type AlertSettings struct {
	// Threshold is the duplicate count at which a spike fires. Minimum 1.
	Threshold int `json:"threshold"`

	// ScanningWindowHours bounds the spike scan. One of 1, 6, 24.
	// Distinct from the fixed 24h dedup window.
	ScanningWindowHours int `json:"scanning_window_hours"`

	Frequency Frequency `json:"alert_frequency"`

	WebhookURL     string `json:"webhook_url"`
	WebhookEnabled bool   `json:"webhook_enabled"`

	// EmailRecipients is a comma- or newline-separated list.
	EmailRecipients string `json:"email_recipients"`
	EmailEnabled    bool   `json:"email_enabled"`

	// ErrorWebhookEnabled gates system-error notifications separately
	// from spike alerts.
	ErrorWebhookEnabled bool `json:"error_webhook_enabled"`
}

// Defaults returns the settings used when no document has been written.
func Defaults() AlertSettings {
	return AlertSettings{
		Threshold:           5,
		ScanningWindowHours: 1,
		Frequency:           FrequencyImmediate,
	}
}

// Validate checks field constraints.
func (s AlertSettings) Validate() error {
	if s.Threshold < 1 {
		return fmt.Errorf("threshold must be at least 1, got %d", s.Threshold)
	}
	switch s.ScanningWindowHours {
	case 1, 6, 24:
	default:
		return fmt.Errorf("scanning_window_hours must be 1, 6, or 24, got %d", s.ScanningWindowHours)
	}
	if !s.Frequency.valid() {
		return fmt.Errorf("unknown alert_frequency %q", s.Frequency)
	}
	return nil
}
