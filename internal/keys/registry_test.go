package keys

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/syndilab/hub/internal/domain"
)

type fakeKeyRepo struct {
	keys     map[int64]*domain.SiteKey
	nextID   int64
	touchErr error
	touched  []int64

	// collisions makes the next N CreateKey calls report a taken value.
	collisions int
	attempted  []string
}

func newFakeKeyRepo() *fakeKeyRepo {
	return &fakeKeyRepo{keys: make(map[int64]*domain.SiteKey), nextID: 1}
}

func (r *fakeKeyRepo) CreateKey(_ context.Context, key *domain.SiteKey) (int64, error) {
	r.attempted = append(r.attempted, key.Value)
	if r.collisions > 0 {
		r.collisions--
		return 0, domain.ErrKeyValueTaken
	}
	for _, k := range r.keys {
		if k.Value == key.Value {
			return 0, domain.ErrKeyValueTaken
		}
	}
	id := r.nextID
	r.nextID++
	stored := *key
	stored.ID = id
	r.keys[id] = &stored
	return id, nil
}

func (r *fakeKeyRepo) ActiveKeys(context.Context) ([]domain.SiteKey, error) {
	var out []domain.SiteKey
	for _, k := range r.keys {
		if k.Status == domain.KeyActive {
			out = append(out, *k)
		}
	}
	return out, nil
}

func (r *fakeKeyRepo) ListKeys(context.Context) ([]domain.SiteKey, error) {
	var out []domain.SiteKey
	for _, k := range r.keys {
		out = append(out, *k)
	}
	return out, nil
}

func (r *fakeKeyRepo) UpdateKeyStatus(_ context.Context, id int64, status domain.KeyStatus) error {
	if k, ok := r.keys[id]; ok {
		k.Status = status
	}
	return nil
}

func (r *fakeKeyRepo) DeleteKey(_ context.Context, id int64) error {
	delete(r.keys, id)
	return nil
}

func (r *fakeKeyRepo) TouchLastSeen(_ context.Context, id int64, t time.Time) error {
	if r.touchErr != nil {
		return r.touchErr
	}
	r.touched = append(r.touched, id)
	if k, ok := r.keys[id]; ok {
		k.LastSeen = &t
	}
	return nil
}

func (r *fakeKeyRepo) ActiveKeyCount(context.Context) (int64, error) {
	var n int64
	for _, k := range r.keys {
		if k.Status == domain.KeyActive {
			n++
		}
	}
	return n, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGenerateIssuesPrefixedSecret(t *testing.T) {
	repo := newFakeKeyRepo()
	reg := NewRegistry(repo, nil, testLogger())

	key, err := reg.Generate(context.Background(), "partner-a")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(key.Value, "SK-") {
		t.Errorf("secret %q missing prefix", key.Value)
	}
	if len(key.Value) != len("SK-")+32 {
		t.Errorf("secret length = %d, want %d", len(key.Value), len("SK-")+32)
	}
	if key.Status != domain.KeyActive {
		t.Errorf("new key status = %q, want active", key.Status)
	}
	if key.ID == 0 {
		t.Error("key ID not assigned")
	}
}

func TestGenerateRetriesOnValueCollision(t *testing.T) {
	repo := newFakeKeyRepo()
	repo.collisions = 1
	reg := NewRegistry(repo, nil, testLogger())

	key, err := reg.Generate(context.Background(), "partner-a")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(repo.attempted) != 2 {
		t.Fatalf("CreateKey attempts = %d, want 2", len(repo.attempted))
	}
	if repo.attempted[0] == repo.attempted[1] {
		t.Error("retry reused the colliding secret")
	}
	if key.Value != repo.attempted[1] {
		t.Errorf("issued value = %q, want the retried secret %q", key.Value, repo.attempted[1])
	}
}

func TestGenerateGivesUpAfterRepeatedCollisions(t *testing.T) {
	repo := newFakeKeyRepo()
	repo.collisions = 10
	reg := NewRegistry(repo, nil, testLogger())

	if _, err := reg.Generate(context.Background(), "partner-a"); !errors.Is(err, domain.ErrKeyValueTaken) {
		t.Fatalf("got %v, want ErrKeyValueTaken", err)
	}
	if len(repo.attempted) != generateAttempts {
		t.Errorf("CreateKey attempts = %d, want %d", len(repo.attempted), generateAttempts)
	}
}

func TestGenerateFiresHook(t *testing.T) {
	repo := newFakeKeyRepo()
	hooks := domain.NewHooks()
	var got []domain.SiteKey
	hooks.OnKeyGenerated(func(k domain.SiteKey) { got = append(got, k) })

	reg := NewRegistry(repo, hooks, testLogger())
	key, err := reg.Generate(context.Background(), "partner-b")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(got) != 1 || got[0].ID != key.ID {
		t.Fatalf("hook fired %d times, want once with ID %d", len(got), key.ID)
	}
}

func TestValidate(t *testing.T) {
	repo := newFakeKeyRepo()
	reg := NewRegistry(repo, nil, testLogger())
	ctx := context.Background()

	key, err := reg.Generate(ctx, "partner-a")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	id, err := reg.Validate(ctx, key.Value)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if id != key.ID {
		t.Errorf("Validate returned ID %d, want %d", id, key.ID)
	}

	if _, err := reg.Validate(ctx, "SK-DOESNOTEXIST"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("unknown secret: got %v, want ErrInvalidKey", err)
	}
}

func TestValidateRejectsRevokedKey(t *testing.T) {
	repo := newFakeKeyRepo()
	reg := NewRegistry(repo, nil, testLogger())
	ctx := context.Background()

	key, err := reg.Generate(ctx, "partner-a")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := reg.Revoke(ctx, key.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := reg.Validate(ctx, key.Value); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("revoked key: got %v, want ErrInvalidKey", err)
	}

	// Revoke is idempotent.
	if err := reg.Revoke(ctx, key.ID); err != nil {
		t.Fatalf("second Revoke: %v", err)
	}
}

func TestDeleteHardRemoves(t *testing.T) {
	repo := newFakeKeyRepo()
	reg := NewRegistry(repo, nil, testLogger())
	ctx := context.Background()

	key, err := reg.Generate(ctx, "partner-a")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := reg.Delete(ctx, key.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	list, err := reg.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("key still listed after delete: %v", list)
	}
	// Deleting again is not an error.
	if err := reg.Delete(ctx, key.ID); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestTouchLastSeenIsBestEffort(t *testing.T) {
	repo := newFakeKeyRepo()
	repo.touchErr = errors.New("storage down")
	reg := NewRegistry(repo, nil, testLogger())

	// Must not panic or propagate.
	reg.TouchLastSeen(context.Background(), 42)
}
