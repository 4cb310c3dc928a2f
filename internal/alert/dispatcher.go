package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/syndilab/hub/internal/domain"
	"github.com/syndilab/hub/internal/settings"
)

// Dispatcher composes and delivers alert messages across the enabled
// channels. Delivery is fire-and-forget relative to whatever triggered
// it: failures are logged and audited, never returned upstream, and
// nothing is retried.
type Dispatcher struct {
	settings     *settings.Store
	webhook      WebhookSender
	mailer       Mailer
	audit        domain.AlertRepository
	dashboardURL string
	defaultEmail string
	logger       *slog.Logger
	now          func() time.Time
}

// NewDispatcher creates a dispatcher. mailer may be nil when no SMTP
// relay is configured; audit may be nil to skip the persisted trail.
func NewDispatcher(
	st *settings.Store,
	webhook WebhookSender,
	mailer Mailer,
	audit domain.AlertRepository,
	dashboardURL string,
	defaultEmail string,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		settings:     st,
		webhook:      webhook,
		mailer:       mailer,
		audit:        audit,
		dashboardURL: dashboardURL,
		defaultEmail: defaultEmail,
		logger:       logger,
		now:          time.Now,
	}
}

// DispatchSpike sends an immediate spike alert with the raw duplicate count.
func (d *Dispatcher) DispatchSpike(ctx context.Context, count int64, threshold, windowHours int) {
	s := d.settings.Get()

	if s.EmailEnabled {
		subject := "[Hub Alert] Duplicate Syndication Spike Detected"
		body := fmt.Sprintf(
			"Hello,\n\nA spike in duplicate syndications was detected.\n\n"+
				"Total duplicates in the last %d hour(s): %d\nThreshold set at: %d\n\n"+
				"Dashboard: %s\n",
			windowHours, count, threshold, d.dashboardURL,
		)
		d.sendEmail(ctx, s, subject, body)
	}

	if s.WebhookEnabled {
		payload := WebhookPayload{
			Username: "Syndication Hub",
			Embeds: []Embed{{
				Title:       "DUPLICATE SPIKE DETECTED",
				Description: "A surge in duplicate publishing events was detected within the scanning window.",
				Color:       colorRed,
				Fields: []EmbedField{
					{Name: "Duplicates Found", Value: fmt.Sprintf("%d", count), Inline: true},
					{Name: "Window", Value: fmt.Sprintf("%d hour(s)", windowHours), Inline: true},
					{Name: "Threshold", Value: fmt.Sprintf("%d", threshold), Inline: true},
					{Name: "Dashboard", Value: d.dashboardURL, Inline: false},
				},
				Footer:    &embedFooter{Text: "Syndication Hub Monitoring"},
				Timestamp: d.now().UTC().Format(time.RFC3339),
			}},
		}
		d.sendWebhook(ctx, s, payload)
	}

	d.record(ctx, domain.AlertRecord{
		Type:           domain.AlertSpike,
		Message:        fmt.Sprintf("%d duplicates in %d hour(s)", count, windowHours),
		DuplicateCount: count,
		Threshold:      threshold,
		WindowHours:    windowHours,
	})
}

// DispatchHeartbeat sends the periodic batched summary for non-immediate
// frequencies.
func (d *Dispatcher) DispatchHeartbeat(ctx context.Context, m domain.WindowMetrics, threshold, windowHours int, freq settings.Frequency) {
	s := d.settings.Get()
	rate := duplicateRate(m)

	if s.EmailEnabled {
		subject := fmt.Sprintf("[Hub Heartbeat] %s Summary", titleCase(string(freq)))
		body := fmt.Sprintf(
			"Hello,\n\nThis is your scheduled %s heartbeat summary.\n\n"+
				"Summary for last %d hour(s):\n- Total Events: %d\n- Duplicates: %d\n- Violation Rate: %.2f%%\n\n"+
				"Threshold: %d\n\nDashboard: %s\n",
			freq, windowHours, m.Total, m.Duplicates, rate, threshold, d.dashboardURL,
		)
		d.sendEmail(ctx, s, subject, body)
	}

	if s.WebhookEnabled {
		payload := WebhookPayload{
			Username: "Syndication Hub Heartbeat",
			Embeds: []Embed{{
				Title:       fmt.Sprintf("%s PULSE SUMMARY", strings.ToUpper(string(freq))),
				Description: fmt.Sprintf("Aggregated network performance for the last %d hour(s).", windowHours),
				Color:       colorBlue,
				Fields: []EmbedField{
					{Name: "Total Events", Value: fmt.Sprintf("%d", m.Total), Inline: true},
					{Name: "Duplicates", Value: fmt.Sprintf("%d", m.Duplicates), Inline: true},
					{Name: "Intensity", Value: fmt.Sprintf("%.2f%%", rate), Inline: true},
					{Name: "Dashboard", Value: d.dashboardURL, Inline: false},
				},
				Footer:    &embedFooter{Text: "Syndication Hub Monitoring"},
				Timestamp: d.now().UTC().Format(time.RFC3339),
			}},
		}
		d.sendWebhook(ctx, s, payload)
	}

	d.record(ctx, domain.AlertRecord{
		Type:           domain.AlertHeartbeat,
		Message:        fmt.Sprintf("%s summary: %d/%d duplicates in %d hour(s)", freq, m.Duplicates, m.Total, windowHours),
		DuplicateCount: m.Duplicates,
		Threshold:      threshold,
		WindowHours:    windowHours,
	})
}

// DispatchSystemError reports an infrastructure fault through the error
// channel. Gated by its own enable flag, independent of spike alerts.
func (d *Dispatcher) DispatchSystemError(ctx context.Context, message string) {
	s := d.settings.Get()
	if !s.ErrorWebhookEnabled {
		return
	}

	payload := WebhookPayload{
		Username: "Syndication Hub Error Reporter",
		Embeds: []Embed{{
			Title:       "HUB SYSTEM ERROR",
			Description: message,
			Color:       colorOrange,
			Footer:      &embedFooter{Text: "Syndication Hub Audit"},
			Timestamp:   d.now().UTC().Format(time.RFC3339),
		}},
	}
	d.sendWebhook(ctx, s, payload)

	d.record(ctx, domain.AlertRecord{
		Type:        domain.AlertError,
		Message:     message,
		Threshold:   s.Threshold,
		WindowHours: s.ScanningWindowHours,
	})
}

// DispatchTest sends the generic event card used by the manual admin
// test action.
func (d *Dispatcher) DispatchTest(ctx context.Context, siteName, siteURL string) {
	s := d.settings.Get()
	if siteName == "" {
		siteName = "Unknown"
	}
	if siteURL == "" {
		siteURL = "N/A"
	}

	payload := WebhookPayload{
		Username: "Syndication Hub",
		Embeds: []Embed{{
			Title:       "Syndication Alert",
			Description: fmt.Sprintf("**Test Event Reported**\n\n**Source:** %s\n**URL:** %s", siteName, siteURL),
			Color:       colorGreen,
			Footer:      &embedFooter{Text: "Syndication Hub Notification"},
			Timestamp:   d.now().UTC().Format(time.RFC3339),
		}},
	}
	d.sendWebhook(ctx, s, payload)

	d.record(ctx, domain.AlertRecord{
		Type:        domain.AlertTest,
		Message:     fmt.Sprintf("test dispatch for %s", siteName),
		Threshold:   s.Threshold,
		WindowHours: s.ScanningWindowHours,
	})
}

func (d *Dispatcher) sendWebhook(ctx context.Context, s settings.AlertSettings, payload WebhookPayload) {
	if s.WebhookURL == "" {
		d.logger.Info("webhook skipped: no URL configured")
		return
	}
	if err := d.webhook.Send(ctx, s.WebhookURL, payload); err != nil {
		d.logger.Error("webhook dispatch failed", "error", err)
		return
	}
	d.logger.Info("webhook alert sent")
}

func (d *Dispatcher) sendEmail(ctx context.Context, s settings.AlertSettings, subject, body string) {
	if d.mailer == nil {
		d.logger.Info("email skipped: no mailer configured")
		return
	}
	recipients := ParseRecipients(s.EmailRecipients, d.defaultEmail)
	if len(recipients) == 0 {
		d.logger.Warn("email skipped: no recipients")
		return
	}
	if err := d.mailer.Send(ctx, recipients, subject, body); err != nil {
		d.logger.Error("email dispatch failed", "error", err)
		return
	}
	d.logger.Info("email alert sent", "recipients", len(recipients))
}

func (d *Dispatcher) record(ctx context.Context, rec domain.AlertRecord) {
	if d.audit == nil {
		return
	}
	rec.CreatedAt = d.now().UTC()
	if _, err := d.audit.InsertAlert(ctx, &rec); err != nil {
		d.logger.Error("alert audit write failed", "type", rec.Type, "error", err)
	}
}

func duplicateRate(m domain.WindowMetrics) float64 {
	if m.Total == 0 {
		return 0
	}
	return float64(m.Duplicates) / float64(m.Total) * 100
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
