// Package keys manages opaque site credentials: issuance, validation,
// revocation, and liveness tracking.
package keys

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/syndilab/hub/internal/domain"
)

// ErrInvalidKey is returned by Validate when no active key matches.
var ErrInvalidKey = errors.New("invalid site key")

// secretPrefix identifies hub-issued credentials at a glance.
const secretPrefix = "SK-"

// Registry is the site key service. All persistence goes through the
// injected repository.
type Registry struct {
	repo   domain.KeyRepository
	hooks  *domain.Hooks
	logger *slog.Logger
	now    func() time.Time
}

// NewRegistry creates a key registry. hooks may be nil.
func NewRegistry(repo domain.KeyRepository, hooks *domain.Hooks, logger *slog.Logger) *Registry {
	return &Registry{
		repo:   repo,
		hooks:  hooks,
		logger: logger,
		now:    time.Now,
	}
}

// generateAttempts bounds the retry loop on value collisions. A
// collision needs two identical 16-byte random secrets, so a second
// attempt is already overkill.
const generateAttempts = 3

// Generate issues a new active key for the given site label. The secret
// is cryptographically random; the unique constraint on the stored value
// guarantees no secret is ever reissued, revoked keys included. A value
// collision is retried with a fresh secret.
func (r *Registry) Generate(ctx context.Context, siteName string) (domain.SiteKey, error) {
	var lastErr error
	for attempt := 0; attempt < generateAttempts; attempt++ {
		secret, err := newSecret()
		if err != nil {
			return domain.SiteKey{}, fmt.Errorf("generate secret: %w", err)
		}

		key := domain.SiteKey{
			Value:     secret,
			SiteName:  siteName,
			Status:    domain.KeyActive,
			CreatedAt: r.now().UTC(),
		}
		id, err := r.repo.CreateKey(ctx, &key)
		if errors.Is(err, domain.ErrKeyValueTaken) {
			r.logger.Warn("key value collision, retrying", "site_name", siteName)
			lastErr = err
			continue
		}
		if err != nil {
			r.logger.Error("key generation failed", "site_name", siteName, "error", err)
			return domain.SiteKey{}, fmt.Errorf("persist key: %w", err)
		}
		key.ID = id

		r.logger.Info("site key generated", "key_id", id, "site_name", siteName)
		if r.hooks != nil {
			r.hooks.FireKeyGenerated(key)
		}
		return key, nil
	}
	return domain.SiteKey{}, fmt.Errorf("persist key: %w", lastErr)
}

// Validate returns the ID of the active key matching secret, or
// ErrInvalidKey. Every candidate is compared in constant time so the
// lookup leaks no timing signal about issued values.
func (r *Registry) Validate(ctx context.Context, secret string) (int64, error) {
	active, err := r.repo.ActiveKeys(ctx)
	if err != nil {
		return 0, fmt.Errorf("load active keys: %w", err)
	}

	probe := []byte(secret)
	var matched int64
	found := false
	for _, k := range active {
		if subtle.ConstantTimeCompare(probe, []byte(k.Value)) == 1 {
			matched = k.ID
			found = true
		}
	}
	if !found {
		return 0, ErrInvalidKey
	}
	return matched, nil
}

// Revoke flips a key to revoked without removing its history. Idempotent.
func (r *Registry) Revoke(ctx context.Context, id int64) error {
	if err := r.repo.UpdateKeyStatus(ctx, id, domain.KeyRevoked); err != nil {
		r.logger.Error("key revoke failed", "key_id", id, "error", err)
		return err
	}
	r.logger.Info("site key revoked", "key_id", id)
	return nil
}

// Delete hard-removes a key. Idempotent.
func (r *Registry) Delete(ctx context.Context, id int64) error {
	if err := r.repo.DeleteKey(ctx, id); err != nil {
		r.logger.Error("key delete failed", "key_id", id, "error", err)
		return err
	}
	r.logger.Info("site key deleted", "key_id", id)
	return nil
}

// TouchLastSeen refreshes the liveness timestamp for a key. Best-effort:
// failures are logged and never propagated to the calling request.
func (r *Registry) TouchLastSeen(ctx context.Context, id int64) {
	if err := r.repo.TouchLastSeen(ctx, id, r.now().UTC()); err != nil {
		r.logger.Warn("last_seen refresh failed", "key_id", id, "error", err)
	}
}

// List returns all keys, newest first.
func (r *Registry) List(ctx context.Context) ([]domain.SiteKey, error) {
	return r.repo.ListKeys(ctx)
}

// ActiveCount returns the number of active keys.
func (r *Registry) ActiveCount(ctx context.Context) (int64, error) {
	return r.repo.ActiveKeyCount(ctx)
}

func newSecret() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return secretPrefix + strings.ToUpper(hex.EncodeToString(buf)), nil
}
