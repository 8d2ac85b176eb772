// Package availability derives blocked days from a snapshot of bookings.
//
// An Index is rebuilt from scratch on every fetch and never mutated, so it
// can be shared between goroutines without locking.
package availability

import (
	"sort"
	"time"

	"skovkrogen/internal/interval"
	"skovkrogen/internal/models"
)

// Reason explains why a day is or is not selectable.
type Reason string

const (
	ReasonFree    Reason = ""
	ReasonPast    Reason = "past"
	ReasonBooked  Reason = "booked"
	ReasonOutside Reason = "outside_window" // past the booking window, not blocked
)

// DayStatus is the availability of one calendar day.
type DayStatus struct {
	Date      interval.Day    `json:"date"`
	Available bool            `json:"available"`
	Reason    Reason          `json:"reason,omitempty"`
	Booking   *models.Booking `json:"booking,omitempty"`
}

// Index answers blocked-day queries for a fixed "today".
type Index struct {
	today     interval.Day
	confirmed []models.Booking
	horizon   interval.Day
}

// Option tweaks Build.
type Option func(*Index)

// WithHorizon sets the last day the calendar offers. A zero day disables it.
func WithHorizon(last interval.Day) Option {
	return func(ix *Index) { ix.horizon = last }
}

// Build keeps the confirmed bookings with a well-formed range, ordered by id.
func Build(bookings []models.Booking, today interval.Day, opts ...Option) *Index {
	ix := &Index{today: today}
	for i := range bookings {
		b := bookings[i]
		if !b.IsConfirmed() || !b.Interval().Valid() {
			continue
		}
		ix.confirmed = append(ix.confirmed, b)
	}
	sort.SliceStable(ix.confirmed, func(i, j int) bool {
		return ix.confirmed[i].ID < ix.confirmed[j].ID
	})
	for _, o := range opts {
		o(ix)
	}
	return ix
}

// Today is the reference day the index was built for.
func (ix *Index) Today() interval.Day {
	return ix.today
}

// Horizon is the last bookable day, zero when unbounded.
func (ix *Index) Horizon() interval.Day {
	return ix.horizon
}

// Confirmed returns the blocking bookings ordered by id.
func (ix *Index) Confirmed() []models.Booking {
	return append([]models.Booking(nil), ix.confirmed...)
}

// IsBlocked is true for days before today and days inside a confirmed booking.
func (ix *Index) IsBlocked(day interval.Day) bool {
	if day.Before(ix.today) {
		return true
	}
	_, ok := ix.FindBlocking(day)
	return ok
}

// FindBlocking returns the confirmed booking covering day with the lowest id.
func (ix *Index) FindBlocking(day interval.Day) (*models.Booking, bool) {
	for i := range ix.confirmed {
		if ix.confirmed[i].Interval().Contains(day) {
			b := ix.confirmed[i]
			return &b, true
		}
	}
	return nil, false
}

// RangeHasBlockedDay checks every day of [start, end]. Arguments may come in
// either order.
func (ix *Index) RangeHasBlockedDay(start, end interval.Day) bool {
	span := interval.Span(start, end)
	if span.Start.Before(ix.today) {
		return true
	}
	for i := range ix.confirmed {
		if ix.confirmed[i].Interval().Overlaps(span) {
			return true
		}
	}
	return false
}

// BeyondHorizon reports whether day lies past the booking window.
func (ix *Index) BeyondHorizon(day interval.Day) bool {
	return !ix.horizon.IsZero() && day.After(ix.horizon)
}

// Status describes a single day for display.
func (ix *Index) Status(day interval.Day) DayStatus {
	st := DayStatus{Date: day, Available: true}
	if b, ok := ix.FindBlocking(day); ok {
		st.Available = false
		st.Reason = ReasonBooked
		st.Booking = b
		return st
	}
	switch {
	case day.Before(ix.today):
		st.Available = false
		st.Reason = ReasonPast
	case ix.BeyondHorizon(day):
		st.Available = false
		st.Reason = ReasonOutside
	}
	return st
}

// Month lists the status of every day in the given month.
func (ix *Index) Month(year int, month time.Month) []DayStatus {
	first := interval.Date(year, month, 1)
	last := interval.Date(year, month+1, 0)
	days := interval.Interval{Start: first, End: last}.Days()
	out := make([]DayStatus, 0, len(days))
	for _, d := range days {
		out = append(out, ix.Status(d))
	}
	return out
}

// Conflict is a pair of confirmed bookings sharing at least one day.
type Conflict struct {
	First  models.Booking `json:"first"`
	Second models.Booking `json:"second"`
}

// Conflicts lists overlapping confirmed pairs. Selection-time checks are the
// only guard against double booking, so two concurrent sessions can create one.
func (ix *Index) Conflicts() []Conflict {
	var out []Conflict
	for i := 0; i < len(ix.confirmed); i++ {
		for j := i + 1; j < len(ix.confirmed); j++ {
			if ix.confirmed[i].Interval().Overlaps(ix.confirmed[j].Interval()) {
				out = append(out, Conflict{First: ix.confirmed[i], Second: ix.confirmed[j]})
			}
		}
	}
	return out
}
