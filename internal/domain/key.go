package domain

import (
	"errors"
	"time"
)

// ErrKeyValueTaken is returned by CreateKey when the generated value
// collides with a stored one, letting callers retry with a fresh secret.
var ErrKeyValueTaken = errors.New("key value already exists")

// KeyStatus is the lifecycle state of a site key.
type KeyStatus string

const (
	KeyActive  KeyStatus = "active"
	KeyRevoked KeyStatus = "revoked"
)

// SiteKey is an opaque per-agent credential. Revoked keys keep their row
// (and therefore their value) so a secret is never reissued; only a hard
// delete removes it.
type SiteKey struct {
	ID        int64      `json:"id"`
	Value     string     `json:"value"`
	SiteName  string     `json:"site_name"`
	Status    KeyStatus  `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
}
