package selection

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverStore reads and writes the primary store and falls back to a
// secondary one while the primary is failing. The primary is retried once
// per recoveryInterval.
type FailoverStore struct {
	primary  Store
	fallback Store
	logger   *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

// NewFailoverStore combines primary (usually Redis) with an in-memory fallback.
func NewFailoverStore(primary, fallback Store, logger *zerolog.Logger) *FailoverStore {
	return &FailoverStore{primary: primary, fallback: fallback, logger: logger}
}

func (s *FailoverStore) usePrimary() bool {
	if !s.isDown.Load() {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Since(s.lastCheck) < recoveryInterval {
		return false
	}
	s.lastCheck = time.Now()
	return true
}

func (s *FailoverStore) markDown(err error) {
	if !s.isDown.Swap(true) {
		s.logger.Warn().Err(err).Msg("selection store primary failed, using fallback")
	}
	s.mu.Lock()
	s.lastCheck = time.Now()
	s.mu.Unlock()
}

func (s *FailoverStore) markUp() {
	if s.isDown.Swap(false) {
		s.logger.Info().Msg("selection store primary recovered")
	}
}

// Get returns the viewer's selection.
func (s *FailoverStore) Get(ctx context.Context, viewer string) (Selection, error) {
	if s.usePrimary() {
		sel, err := s.primary.Get(ctx, viewer)
		if err == nil {
			s.markUp()
			return sel, nil
		}
		s.markDown(err)
	}
	return s.fallback.Get(ctx, viewer)
}

// Put stores sel.
func (s *FailoverStore) Put(ctx context.Context, viewer string, sel Selection) error {
	if s.usePrimary() {
		err := s.primary.Put(ctx, viewer, sel)
		if err == nil {
			s.markUp()
			return nil
		}
		s.markDown(err)
	}
	return s.fallback.Put(ctx, viewer, sel)
}

// Clear removes a selection from both stores.
func (s *FailoverStore) Clear(ctx context.Context, viewer string) error {
	_ = s.fallback.Clear(ctx, viewer)
	if s.usePrimary() {
		err := s.primary.Clear(ctx, viewer)
		if err == nil {
			s.markUp()
			return nil
		}
		s.markDown(err)
	}
	return nil
}
