package selection

import (
	"context"
	"sync"
	"time"
)

// Store keeps one selection per viewer. Missing or expired entries read as Empty.
type Store interface {
	Get(ctx context.Context, viewer string) (Selection, error)
	Put(ctx context.Context, viewer string, sel Selection) error
	Clear(ctx context.Context, viewer string) error
}

type entry struct {
	sel       Selection
	updatedAt time.Time
}

// MemoryStore manages selections in process memory.
type MemoryStore struct {
	entries map[string]entry
	mu      sync.RWMutex
	timeout time.Duration
	now     func() time.Time
}

// NewMemoryStore creates a new store. Selections idle longer than timeout are dropped.
func NewMemoryStore(timeout time.Duration) *MemoryStore {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &MemoryStore{
		entries: make(map[string]entry),
		timeout: timeout,
		now:     time.Now,
	}
}

// Get returns the viewer's selection.
func (s *MemoryStore) Get(_ context.Context, viewer string) (Selection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[viewer]
	if !ok || s.expired(e) {
		return Empty(), nil
	}
	return e.sel, nil
}

// Put stores sel for viewer.
func (s *MemoryStore) Put(_ context.Context, viewer string, sel Selection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[viewer] = entry{sel: sel.normalized(), updatedAt: s.now()}
	return nil
}

// Clear removes a selection.
func (s *MemoryStore) Clear(_ context.Context, viewer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, viewer)
	return nil
}

// Cleanup removes expired selections.
func (s *MemoryStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for viewer, e := range s.entries {
		if s.expired(e) {
			delete(s.entries, viewer)
			removed++
		}
	}
	return removed
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (s *MemoryStore) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cleanup()
		}
	}
}

func (s *MemoryStore) expired(e entry) bool {
	return s.now().Sub(e.updatedAt) > s.timeout
}
