// Package inmemory provides a process-local transcript store.
package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/kgourjau/BridgeAI/pkg/storage"
)

// Driver implements storage.Driver using an in-memory slice.
type Driver struct {
	// mu is a read write sync mutex guarding entries
	mu sync.RWMutex

	// entries holds the transcript in insertion order
	entries []*storage.Entry
}

// NewDriver creates a new in-memory store.
func NewDriver() *Driver {
	return &Driver{}
}

// Put appends entries. Entries are copied so later caller edits do not leak in.
func (s *Driver) Put(_ context.Context, entries ...*storage.Entry) error {
	for _, e := range entries {
		if e == nil {
			return storage.ErrNilEntry
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		cp := *e
		s.entries = append(s.entries, &cp)
	}
	return nil
}

// Get retrieves an entry by ID.
func (s *Driver) Get(_ context.Context, id string) (*storage.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.ID == id {
			cp := *e
			return &cp, nil
		}
	}
	return nil, storage.NotFoundError{ID: id}
}

// List returns the most recent limit entries, oldest first.
func (s *Driver) List(_ context.Context, limit int) ([]*storage.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from := 0
	if limit > 0 && len(s.entries) > limit {
		from = len(s.entries) - limit
	}

	out := make([]*storage.Entry, 0, len(s.entries)-from)
	for _, e := range s.entries[from:] {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

// DeleteBefore removes entries older than cutoff.
func (s *Driver) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	var removed int64
	for _, e := range s.entries {
		if e.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	clear(s.entries[len(kept):])
	s.entries = kept
	return removed, nil
}

// Close is a no-op for the in-memory store.
func (s *Driver) Close() error {
	return nil
}
