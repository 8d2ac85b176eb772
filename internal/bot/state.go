package bot

import (
	"sync"

	"skovkrogen/internal/booking"
)

type bookingStep string

const (
	stepNone     bookingStep = "none"
	stepCalendar bookingStep = "calendar"
	stepName     bookingStep = "name"
	stepCount    bookingStep = "count"
	stepShared   bookingStep = "shared"
	stepPurpose  bookingStep = "purpose"
	stepConfirm  bookingStep = "confirm"
)

// userState is the conversation around one booking. The date selection
// itself lives in the shared selection store so the web calendar and the
// bot see the same picker.
type userState struct {
	Step        bookingStep
	Draft       booking.Details
	Year        int
	Month       int
	CalendarMsg int
}

type stateStore struct {
	mu sync.Mutex
	m  map[int64]*userState
}

func newStateStore() *stateStore {
	return &stateStore{m: make(map[int64]*userState)}
}

func (s *stateStore) get(userID int64) *userState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.m[userID]
	if st == nil {
		st = &userState{Step: stepNone}
		s.m[userID] = st
	}
	return st
}

func (s *stateStore) reset(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, userID)
}
