package httpserver

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/syndilab/hub/internal/domain"
	"github.com/syndilab/hub/internal/settings"
)

// adminTokenHeader authenticates administrative callers (the excluded
// dashboard UI).
const adminTokenHeader = "X-Admin-Token"

// requireAdmin guards the administrative surface. With no token
// configured the whole surface is disabled.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminToken == "" {
			writeError(w, http.StatusForbidden, "Admin API disabled")
			return
		}
		token := r.Header.Get(adminTokenHeader)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Unauthorized: missing admin token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) != 1 {
			writeError(w, http.StatusForbidden, "Unauthorized: invalid admin token")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Registry.List(r.Context())
	if err != nil {
		s.logger.Error("list keys failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list keys")
		return
	}
	active, err := s.deps.Registry.ActiveCount(r.Context())
	if err != nil {
		s.logger.Error("count keys failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to count keys")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"keys":         list,
		"active_count": active,
	})
}

func (s *Server) handleGenerateKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SiteName string `json:"site_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SiteName == "" {
		writeError(w, http.StatusBadRequest, "site_name is required")
		return
	}

	key, err := s.deps.Registry.Generate(r.Context(), req.SiteName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate key")
		return
	}
	writeJSON(w, http.StatusOK, key)
}

func (s *Server) handleRevokeKey(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.deps.Registry.Revoke(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to revoke key")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Key revoked"})
}

func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.deps.Registry.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete key")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Key deleted"})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Settings.Get())
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var next settings.AlertSettings
	if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid settings document")
		return
	}
	if err := s.deps.Settings.Update(next); err != nil {
		s.logger.Warn("settings update rejected", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Settings.Get())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.deps.Events.Metrics(r.Context())
	if err != nil {
		s.logger.Error("metrics query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to compute metrics")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 1, 200)
	offset := queryInt(r, "offset", 0, 0, 1<<30)

	events, err := s.deps.Events.RecentEvents(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("events query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list events")
		return
	}
	total, err := s.deps.Events.TotalCount(r.Context())
	if err != nil {
		s.logger.Error("events count failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to count events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": eventsJSON(events),
		"total":  total,
	})
}

func (s *Server) handlePurgeEvents(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Events.PurgeEvents(r.Context()); err != nil {
		s.logger.Error("event purge failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to purge events")
		return
	}
	s.logger.Info("all events purged")
	writeJSON(w, http.StatusOK, map[string]string{"message": "Events purged"})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20, 1, 200)
	offset := queryInt(r, "offset", 0, 0, 1<<30)
	alertType := domain.AlertType(r.URL.Query().Get("type"))

	records, err := s.deps.Alerts.RecentAlerts(r.Context(), limit, offset, alertType)
	if err != nil {
		s.logger.Error("alerts query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list alerts")
		return
	}
	total, err := s.deps.Alerts.AlertCount(r.Context(), alertType)
	if err != nil {
		s.logger.Error("alerts count failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to count alerts")
		return
	}
	if records == nil {
		records = []domain.AlertRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": records,
		"total":  total,
	})
}

func (s *Server) handleClearAlerts(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Alerts.ClearAlerts(r.Context()); err != nil {
		s.logger.Error("alert clear failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to clear alerts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Alerts cleared"})
}

func (s *Server) handleTestAlert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SiteName string `json:"site_name"`
		SiteURL  string `json:"site_url"`
	}
	// An empty body is fine for a test dispatch.
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.deps.Dispatcher.DispatchTest(r.Context(), req.SiteName, req.SiteURL)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Test alert dispatched"})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	s.deps.Stream.HandleUpgrade(w, r)
}

// eventJSON is the wire shape of an event in admin responses.
type eventJSON struct {
	ID          int64  `json:"id"`
	PostID      int64  `json:"post_id"`
	SiteURL     string `json:"site_url"`
	SiteName    string `json:"site_name"`
	Aggregator  string `json:"aggregator"`
	IsDuplicate bool   `json:"is_duplicate"`
	Timestamp   string `json:"timestamp"`
}

func eventsJSON(events []domain.SyndicationEvent) []eventJSON {
	out := make([]eventJSON, len(events))
	for i, e := range events {
		out[i] = eventJSON{
			ID:          e.ID,
			PostID:      e.PostID,
			SiteURL:     e.SiteURL,
			SiteName:    e.SiteName,
			Aggregator:  e.Aggregator,
			IsDuplicate: e.IsDuplicate,
			Timestamp:   e.Timestamp.UTC().Format(time.RFC3339),
		}
	}
	return out
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "Invalid key ID")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, fallback, min, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min || v > max {
		return fallback
	}
	return v
}
