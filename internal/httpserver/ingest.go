package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/syndilab/hub/internal/domain"
	"github.com/syndilab/hub/internal/keys"
	"github.com/syndilab/hub/internal/ratelimit"
)

// siteKeyHeader carries the agent credential.
const siteKeyHeader = "X-Site-Key"

type logRequest struct {
	PostID     json.Number `json:"post_id"`
	SiteURL    string      `json:"site_url"`
	SiteName   string      `json:"site_name"`
	Aggregator string      `json:"aggregator"`
}

// handleLog is the authenticated ingestion endpoint. The request walks
// auth, rate limiting, the connectivity-test short circuit, validation,
// and storage; every failure below this boundary maps to a status code
// and nothing is allowed to crash the handler.
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	secret := r.Header.Get(siteKeyHeader)
	if secret == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized: missing site key")
		return
	}

	keyID, err := s.deps.Registry.Validate(ctx, secret)
	if err != nil {
		if errors.Is(err, keys.ErrInvalidKey) {
			s.recordAuthFailure()
			writeError(w, http.StatusForbidden, "Unauthorized: invalid site key")
			return
		}
		s.logger.Error("key validation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Authentication backend unavailable")
		return
	}

	if err := s.deps.Limiter.Check(keyID); err != nil {
		var limitErr *ratelimit.LimitError
		if errors.As(err, &limitErr) {
			retry := int(limitErr.RetryAfter.Seconds() + 0.5)
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			s.logger.Warn("rate limit exceeded", "key_id", keyID)
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}
		writeError(w, http.StatusInternalServerError, "Rate limiter unavailable")
		return
	}

	// Liveness refresh is best-effort and must not fail the request.
	s.deps.Registry.TouchLastSeen(ctx, keyID)

	var req logRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Connectivity pings store nothing and touch no metrics.
	if req.Aggregator == domain.AggregatorTest {
		s.logger.Info("connection test received", "site_url", req.SiteURL, "key_id", keyID)
		writeJSON(w, http.StatusOK, map[string]string{"message": "Connection successful"})
		return
	}

	postID, _ := req.PostID.Int64()
	id, err := s.deps.Ingest.Ingest(ctx, domain.IngestInput{
		PostID:     postID,
		SiteURL:    req.SiteURL,
		SiteName:   req.SiteName,
		Aggregator: req.Aggregator,
	})
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, "Missing required fields")
			return
		}
		s.logger.Error("event store failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to store event")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Event stored successfully",
		"id":      id,
	})
}

// recordAuthFailure counts invalid-key attempts and raises one
// system-error alert per window when they pile up.
func (s *Server) recordAuthFailure() {
	if !s.failures.record() {
		return
	}
	s.logger.Warn("repeated invalid key attempts", "limit", s.failures.limit)
	if s.deps.Dispatcher == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.deps.Dispatcher.DispatchSystemError(ctx,
			fmt.Sprintf("%d invalid site key attempts within %s", s.failures.limit, s.failures.window))
	}()
}

// failureMonitor tracks invalid-key attempts in a fixed window and
// reports the moment the limit is crossed, once per window.
type failureMonitor struct {
	limit  int
	window time.Duration

	mu       sync.Mutex
	start    time.Time
	count    int
	notified bool
	now      func() time.Time
}

func newFailureMonitor(limit int, window time.Duration) *failureMonitor {
	return &failureMonitor{limit: limit, window: window, now: time.Now}
}

func (m *failureMonitor) record() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.start.IsZero() || now.Sub(m.start) > m.window {
		m.start = now
		m.count = 0
		m.notified = false
	}
	m.count++
	if m.count >= m.limit && !m.notified {
		m.notified = true
		return true
	}
	return false
}
