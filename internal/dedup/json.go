package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/daviddao/mailagent/internal/types"
)

// savedIDs is the on-disk shape of email_saved.json.
type savedIDs struct {
	ID []string `json:"id"`
}

// JSONFilter keeps ingested IDs in a JSON file of the form {"id": [...]}.
type JSONFilter struct {
	path string
	log  zerolog.Logger

	mu     sync.Mutex
	ids    []string
	set    map[string]bool
	loaded bool
}

// NewJSONFilter returns a filter backed by the file at path. The file is
// read lazily and created on the first FilterNew.
func NewJSONFilter(path string, logger zerolog.Logger) *JSONFilter {
	return &JSONFilter{
		path: path,
		log:  logger.With().Str("component", "dedup").Logger(),
	}
}

// Path returns the backing file path.
func (f *JSONFilter) Path() string {
	return f.path
}

func (f *JSONFilter) load() error {
	if f.loaded {
		return nil
	}
	f.set = make(map[string]bool)

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		f.log.Debug().Str("path", f.path).Msg("no saved ids yet")
		f.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", f.path, err)
	}

	var saved savedIDs
	if len(data) > 0 {
		if err := json.Unmarshal(data, &saved); err != nil {
			return fmt.Errorf("parse %s: %w", f.path, err)
		}
	}
	for _, id := range saved.ID {
		if !f.set[id] {
			f.set[id] = true
			f.ids = append(f.ids, id)
		}
	}
	f.loaded = true
	return nil
}

func (f *JSONFilter) save(ids []string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	data, err := json.MarshalIndent(savedIDs{ID: ids}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, data, 0o644)
}

// FilterNew implements Filter.
func (f *JSONFilter) FilterNew(_ context.Context, emails []*types.Email) ([]*types.Email, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.load(); err != nil {
		return nil, err
	}
	fresh := f.unseen(emails)
	if err := f.mark(emailIDs(fresh)); err != nil {
		return nil, err
	}
	f.log.Debug().Int("new", len(fresh)).Int("total", len(f.ids)).Msg("filtered emails")
	return fresh, nil
}

// Unseen implements Filter.
func (f *JSONFilter) Unseen(_ context.Context, emails []*types.Email) ([]*types.Email, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.load(); err != nil {
		return nil, err
	}
	return f.unseen(emails), nil
}

// Mark implements Filter. The file is written before the in-memory set
// changes, so a failed write leaves the ids unseen.
func (f *JSONFilter) Mark(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.load(); err != nil {
		return err
	}
	return f.mark(ids)
}

func (f *JSONFilter) unseen(emails []*types.Email) []*types.Email {
	var fresh []*types.Email
	for _, e := range unique(emails) {
		if !f.set[e.ID] {
			fresh = append(fresh, e)
		}
	}
	return fresh
}

func (f *JSONFilter) mark(ids []string) error {
	next := slices.Clone(f.ids)
	added := make(map[string]bool)
	for _, id := range ids {
		if f.set[id] || added[id] {
			continue
		}
		added[id] = true
		next = append(next, id)
	}
	if len(added) == 0 && f.fileExists() {
		return nil
	}
	if err := f.save(next); err != nil {
		return fmt.Errorf("save ids: %w", err)
	}
	for id := range added {
		f.set[id] = true
	}
	f.ids = next
	return nil
}

func (f *JSONFilter) fileExists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

// Seen implements Filter.
func (f *JSONFilter) Seen(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return false, err
	}
	return f.set[id], nil
}

// Count implements Filter.
func (f *JSONFilter) Count(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return 0, err
	}
	return len(f.ids), nil
}

// Close implements Filter.
func (f *JSONFilter) Close() error { return nil }
