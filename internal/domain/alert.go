package domain

import "time"

// AlertType classifies a persisted alert record.
type AlertType string

const (
	AlertSpike     AlertType = "spike"
	AlertHeartbeat AlertType = "heartbeat"
	AlertError     AlertType = "error"
	AlertTest      AlertType = "test"
)

// AlertRecord is the audit trail entry written when an alert is dispatched.
type AlertRecord struct {
	ID             int64     `json:"id"`
	Type           AlertType `json:"type"`
	Message        string    `json:"message"`
	DuplicateCount int64     `json:"duplicate_count"`
	Threshold      int       `json:"threshold"`
	WindowHours    int       `json:"window_hours"`
	CreatedAt      time.Time `json:"created_at"`
}
