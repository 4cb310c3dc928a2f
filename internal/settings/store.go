package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// schemaJSON constrains the persisted settings document. Reloads and
// admin writes are both validated against it before being applied.
const schemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"threshold": {"type": "integer", "minimum": 1},
		"scanning_window_hours": {"enum": [1, 6, 24]},
		"alert_frequency": {"enum": ["immediate", "6h", "daily", "weekly"]},
		"webhook_url": {"type": "string"},
		"webhook_enabled": {"type": "boolean"},
		"email_recipients": {"type": "string"},
		"email_enabled": {"type": "boolean"},
		"error_webhook_enabled": {"type": "boolean"}
	},
	"required": ["threshold", "scanning_window_hours", "alert_frequency"]
}`

// Store owns the cached AlertSettings and their JSON file persistence.
// Writes go through Update; external edits to the file are picked up by
// Watch and applied to the cache. Subscribers are notified whenever the
// effective settings change.
type Store struct {
	path   string
	logger *slog.Logger
	schema *jsonschema.Schema

	mu      sync.RWMutex
	current AlertSettings
	subs    []func(AlertSettings)
}

// NewStore loads the settings document at path, falling back to defaults
// when the file does not exist yet.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, fmt.Errorf("compile settings schema: %w", err)
	}

	s := &Store{
		path:    path,
		logger:  logger,
		schema:  schema,
		current: Defaults(),
	}

	loaded, err := s.load()
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Info("no settings file, using defaults", "path", path)
	case err != nil:
		return nil, err
	default:
		s.current = loaded
	}
	return s, nil
}

func compileSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("alert_settings.json", doc); err != nil {
		return nil, err
	}
	return c.Compile("alert_settings.json")
}

// Get returns the current settings.
func (s *Store) Get() AlertSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Subscribe registers a callback invoked with the new settings after
// every effective change.
func (s *Store) Subscribe(fn func(AlertSettings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// Update validates next, persists it, applies it to the cache, and
// notifies subscribers.
func (s *Store) Update(next AlertSettings) error {
	if err := next.Validate(); err != nil {
		return err
	}

	raw, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := s.validateDocument(raw); err != nil {
		return err
	}

	// Atomic replace so the watcher and concurrent readers never see a
	// partial document.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace settings file: %w", err)
	}

	s.apply(next)
	return nil
}

// Watch follows the settings file with fsnotify until ctx is cancelled,
// reloading the cache whenever the document changes. The parent
// directory is watched so atomic renames are observed.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	base := filepath.Base(s.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			s.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("settings watcher error", "error", err)
		}
	}
}

func (s *Store) reload() {
	loaded, err := s.load()
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Error("settings reload rejected", "path", s.path, "error", err)
		}
		return
	}
	s.apply(loaded)
}

// apply swaps the cache and notifies subscribers; no-op when unchanged
// (Update triggers a watcher event for its own write, which lands here).
func (s *Store) apply(next AlertSettings) {
	s.mu.Lock()
	if s.current == next {
		s.mu.Unlock()
		return
	}
	s.current = next
	subs := s.subs
	s.mu.Unlock()

	s.logger.Info("alert settings applied",
		"threshold", next.Threshold,
		"window_hours", next.ScanningWindowHours,
		"frequency", next.Frequency,
	)
	for _, fn := range subs {
		fn(next)
	}
}

func (s *Store) load() (AlertSettings, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return AlertSettings{}, err
	}
	if err := s.validateDocument(raw); err != nil {
		return AlertSettings{}, err
	}

	var loaded AlertSettings
	if err := json.Unmarshal(raw, &loaded); err != nil {
		return AlertSettings{}, fmt.Errorf("decode settings: %w", err)
	}
	if err := loaded.Validate(); err != nil {
		return AlertSettings{}, err
	}
	return loaded, nil
}

func (s *Store) validateDocument(raw []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("parse settings document: %w", err)
	}
	if err := s.schema.Validate(inst); err != nil {
		return fmt.Errorf("settings document invalid: %w", err)
	}
	return nil
}
