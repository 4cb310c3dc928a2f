package domain

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ValidationError reports a missing or malformed required field in an
// ingestion request.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return "missing required field: " + e.Field
}

// IngestInput carries the sanitized fields of one ingestion request.
type IngestInput struct {
	PostID     int64
	SiteURL    string
	SiteName   string
	Aggregator string
}

// IngestService is the core domain service. It owns the business logic
// for validating incoming reports, classifying duplicates, persisting
// events, and kicking off spike evaluation.
type IngestService struct {
	events  EventRepository
	spikes  SpikeChecker
	hooks   *Hooks
	logger  *slog.Logger
	allowed map[string]struct{}
	now     func() time.Time
}

// NewIngestService creates an IngestService. The spike checker may be nil
// when spike evaluation is handled elsewhere (e.g. in tools that only
// backfill events).
func NewIngestService(events EventRepository, spikes SpikeChecker, hooks *Hooks, logger *slog.Logger) *IngestService {
	allowed := map[string]struct{}{
		AggregatorFeedzy:    {},
		AggregatorWPeMatico: {},
		AggregatorUnknown:   {},
		AggregatorTest:      {},
	}
	return &IngestService{
		events:  events,
		spikes:  spikes,
		hooks:   hooks,
		logger:  logger,
		allowed: allowed,
		now:     time.Now,
	}
}

// NormalizeAggregator checks a free-text aggregator name against the
// allow-list (plus any hook-admitted names) and coerces outsiders to
// AggregatorUnknown. Unknown aggregators are tolerated, never rejected.
func (s *IngestService) NormalizeAggregator(name string) string {
	if name == "" {
		return AggregatorUnknown
	}
	if _, ok := s.allowed[name]; ok {
		return name
	}
	if s.hooks != nil && s.hooks.AggregatorAllowed(name) {
		return name
	}
	return AggregatorUnknown
}

// Ingest validates, classifies, and persists one syndication report.
// Duplicate classification is a successful outcome, never an error; a
// duplicate insert additionally triggers spike evaluation.
//
// The duplicate check and the insert are deliberately not atomic with
// each other. Two identical submissions racing through this path can
// both be stored unflagged; that narrow window is accepted rather than
// serialized away.
func (s *IngestService) Ingest(ctx context.Context, in IngestInput) (int64, error) {
	if in.PostID <= 0 {
		return 0, &ValidationError{Field: "post_id"}
	}
	if in.SiteURL == "" {
		return 0, &ValidationError{Field: "site_url"}
	}

	now := s.now().UTC()
	aggregator := s.NormalizeAggregator(in.Aggregator)

	dup, err := s.events.IsDuplicate(ctx, in.PostID, in.SiteURL, now)
	if err != nil {
		return 0, fmt.Errorf("duplicate check: %w", err)
	}

	event := &SyndicationEvent{
		PostID:      in.PostID,
		SiteURL:     in.SiteURL,
		SiteName:    in.SiteName,
		Aggregator:  aggregator,
		IsDuplicate: dup,
		Timestamp:   now,
	}
	id, err := s.events.InsertEvent(ctx, event)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	event.ID = id

	s.logger.Info("event stored",
		"id", id,
		"post_id", in.PostID,
		"site_url", in.SiteURL,
		"aggregator", aggregator,
		"is_duplicate", dup,
	)

	if dup && s.spikes != nil {
		s.spikes.CheckAfterDuplicate(ctx)
	}

	if s.hooks != nil {
		s.hooks.FireEventStored(*event)
	}

	return id, nil
}
