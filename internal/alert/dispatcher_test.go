package alert

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/syndilab/hub/internal/domain"
	"github.com/syndilab/hub/internal/settings"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSettings(t *testing.T, mutate func(*settings.AlertSettings)) *settings.Store {
	t.Helper()
	st, err := settings.NewStore(filepath.Join(t.TempDir(), "alert_settings.json"), testLogger())
	if err != nil {
		t.Fatalf("settings store: %v", err)
	}
	if mutate != nil {
		next := st.Get()
		mutate(&next)
		if err := st.Update(next); err != nil {
			t.Fatalf("update settings: %v", err)
		}
	}
	return st
}

type sentWebhook struct {
	url     string
	payload WebhookPayload
}

type fakeWebhook struct {
	sent []sentWebhook
	err  error
}

func (f *fakeWebhook) Send(_ context.Context, url string, payload WebhookPayload) error {
	f.sent = append(f.sent, sentWebhook{url: url, payload: payload})
	return f.err
}

type sentMail struct {
	to      []string
	subject string
	body    string
}

type fakeMailer struct {
	sent []sentMail
}

func (f *fakeMailer) Send(_ context.Context, to []string, subject, body string) error {
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

type fakeAudit struct {
	records []domain.AlertRecord
}

func (f *fakeAudit) InsertAlert(_ context.Context, r *domain.AlertRecord) (int64, error) {
	f.records = append(f.records, *r)
	return int64(len(f.records)), nil
}

func (f *fakeAudit) RecentAlerts(context.Context, int, int, domain.AlertType) ([]domain.AlertRecord, error) {
	return f.records, nil
}

func (f *fakeAudit) AlertCount(context.Context, domain.AlertType) (int64, error) {
	return int64(len(f.records)), nil
}

func (f *fakeAudit) ClearAlerts(context.Context) error {
	f.records = nil
	return nil
}

func TestDispatchSpikeUsesEnabledChannels(t *testing.T) {
	st := newTestSettings(t, func(s *settings.AlertSettings) {
		s.WebhookEnabled = true
		s.WebhookURL = "https://discord.com/api/webhooks/1/abc"
		s.EmailEnabled = true
		s.EmailRecipients = "ops@example.com"
	})
	webhook := &fakeWebhook{}
	mailer := &fakeMailer{}
	audit := &fakeAudit{}
	d := NewDispatcher(st, webhook, mailer, audit, "https://hub.example/admin", "", testLogger())

	d.DispatchSpike(context.Background(), 7, 5, 1)

	if len(webhook.sent) != 1 {
		t.Fatalf("webhook sends = %d, want 1", len(webhook.sent))
	}
	embed := webhook.sent[0].payload.Embeds[0]
	if embed.Color != colorRed {
		t.Errorf("spike embed color = %d, want %d", embed.Color, colorRed)
	}
	if embed.Title != "DUPLICATE SPIKE DETECTED" {
		t.Errorf("embed title = %q", embed.Title)
	}

	if len(mailer.sent) != 1 {
		t.Fatalf("mail sends = %d, want 1", len(mailer.sent))
	}
	if mailer.sent[0].to[0] != "ops@example.com" {
		t.Errorf("mail to = %v", mailer.sent[0].to)
	}

	if len(audit.records) != 1 || audit.records[0].Type != domain.AlertSpike {
		t.Fatalf("audit records = %+v", audit.records)
	}
	if audit.records[0].DuplicateCount != 7 || audit.records[0].Threshold != 5 {
		t.Errorf("audit record = %+v", audit.records[0])
	}
}

func TestDispatchSpikeSkipsDisabledChannels(t *testing.T) {
	st := newTestSettings(t, func(s *settings.AlertSettings) {
		s.WebhookURL = "https://discord.com/api/webhooks/1/abc"
		// both channels left disabled
	})
	webhook := &fakeWebhook{}
	mailer := &fakeMailer{}
	d := NewDispatcher(st, webhook, mailer, nil, "https://hub.example/admin", "", testLogger())

	d.DispatchSpike(context.Background(), 7, 5, 1)

	if len(webhook.sent) != 0 {
		t.Error("webhook sent while disabled")
	}
	if len(mailer.sent) != 0 {
		t.Error("mail sent while disabled")
	}
}

func TestDispatchSpikeSkipsEmptyWebhookURL(t *testing.T) {
	st := newTestSettings(t, func(s *settings.AlertSettings) {
		s.WebhookEnabled = true
	})
	webhook := &fakeWebhook{}
	d := NewDispatcher(st, webhook, nil, nil, "", "", testLogger())

	d.DispatchSpike(context.Background(), 7, 5, 1)

	if len(webhook.sent) != 0 {
		t.Error("webhook sent without a configured URL")
	}
}

func TestDispatchHeartbeatSummarizesWindow(t *testing.T) {
	st := newTestSettings(t, func(s *settings.AlertSettings) {
		s.WebhookEnabled = true
		s.WebhookURL = "https://discord.com/api/webhooks/1/abc"
		s.Frequency = settings.FrequencyDaily
	})
	webhook := &fakeWebhook{}
	audit := &fakeAudit{}
	d := NewDispatcher(st, webhook, nil, audit, "https://hub.example/admin", "", testLogger())

	m := domain.WindowMetrics{Total: 20, Duplicates: 8}
	d.DispatchHeartbeat(context.Background(), m, 5, 24, settings.FrequencyDaily)

	if len(webhook.sent) != 1 {
		t.Fatalf("webhook sends = %d, want 1", len(webhook.sent))
	}
	embed := webhook.sent[0].payload.Embeds[0]
	if embed.Color != colorBlue {
		t.Errorf("heartbeat embed color = %d, want %d", embed.Color, colorBlue)
	}
	if embed.Title != "DAILY PULSE SUMMARY" {
		t.Errorf("embed title = %q", embed.Title)
	}

	if len(audit.records) != 1 || audit.records[0].Type != domain.AlertHeartbeat {
		t.Fatalf("audit records = %+v", audit.records)
	}
	if audit.records[0].DuplicateCount != 8 {
		t.Errorf("audit duplicate count = %d, want 8", audit.records[0].DuplicateCount)
	}
}

func TestDispatchSystemErrorGatedByFlag(t *testing.T) {
	st := newTestSettings(t, func(s *settings.AlertSettings) {
		s.WebhookURL = "https://discord.com/api/webhooks/1/abc"
	})
	webhook := &fakeWebhook{}
	d := NewDispatcher(st, webhook, nil, nil, "", "", testLogger())

	d.DispatchSystemError(context.Background(), "database unreachable")
	if len(webhook.sent) != 0 {
		t.Fatal("system error sent with flag disabled")
	}

	next := st.Get()
	next.ErrorWebhookEnabled = true
	if err := st.Update(next); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	d.DispatchSystemError(context.Background(), "database unreachable")
	if len(webhook.sent) != 1 {
		t.Fatalf("webhook sends = %d, want 1", len(webhook.sent))
	}
	if webhook.sent[0].payload.Embeds[0].Color != colorOrange {
		t.Errorf("error embed color = %d, want %d", webhook.sent[0].payload.Embeds[0].Color, colorOrange)
	}
}

func TestDispatchTestFillsPlaceholders(t *testing.T) {
	st := newTestSettings(t, func(s *settings.AlertSettings) {
		s.WebhookURL = "https://discord.com/api/webhooks/1/abc"
	})
	webhook := &fakeWebhook{}
	audit := &fakeAudit{}
	d := NewDispatcher(st, webhook, nil, audit, "", "", testLogger())

	d.DispatchTest(context.Background(), "", "")

	if len(webhook.sent) != 1 {
		t.Fatalf("webhook sends = %d, want 1", len(webhook.sent))
	}
	embed := webhook.sent[0].payload.Embeds[0]
	if embed.Color != colorGreen {
		t.Errorf("test embed color = %d, want %d", embed.Color, colorGreen)
	}
	if audit.records[0].Type != domain.AlertTest {
		t.Errorf("audit type = %q, want test", audit.records[0].Type)
	}
}

func TestDispatchFailuresAreSwallowed(t *testing.T) {
	st := newTestSettings(t, func(s *settings.AlertSettings) {
		s.WebhookEnabled = true
		s.WebhookURL = "https://discord.com/api/webhooks/1/abc"
	})
	webhook := &fakeWebhook{err: context.DeadlineExceeded}
	d := NewDispatcher(st, webhook, nil, nil, "", "", testLogger())

	// Must not panic or propagate anything.
	d.DispatchSpike(context.Background(), 7, 5, 1)
}

func TestDispatcherTimestampsAreUTC(t *testing.T) {
	st := newTestSettings(t, func(s *settings.AlertSettings) {
		s.WebhookEnabled = true
		s.WebhookURL = "https://discord.com/api/webhooks/1/abc"
	})
	webhook := &fakeWebhook{}
	d := NewDispatcher(st, webhook, nil, nil, "", "", testLogger())
	fixed := time.Date(2026, 3, 1, 12, 30, 0, 0, time.FixedZone("CET", 3600))
	d.now = func() time.Time { return fixed }

	d.DispatchSpike(context.Background(), 7, 5, 1)

	got := webhook.sent[0].payload.Embeds[0].Timestamp
	if got != "2026-03-01T11:30:00Z" {
		t.Errorf("embed timestamp = %q, want UTC RFC3339", got)
	}
}
