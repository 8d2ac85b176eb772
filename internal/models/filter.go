package models

import (
	"sort"
	"strings"

	"skovkrogen/internal/interval"
)

// BookingFilter narrows the upcoming-bookings list. Zero fields match everything.
type BookingFilter struct {
	Email      string
	From       interval.Day
	To         interval.Day
	SharedOnly bool
}

// Match applies the filter to a single booking.
func (f BookingFilter) Match(b *Booking) bool {
	if f.Email != "" && !strings.Contains(strings.ToLower(b.GuestEmail), strings.ToLower(f.Email)) {
		return false
	}
	if !f.From.IsZero() && b.StartDate.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && b.EndDate.After(f.To) {
		return false
	}
	if f.SharedOnly && !b.AllowOtherFamily {
		return false
	}
	return true
}

// Upcoming keeps bookings that have not ended before today, applies f and
// sorts by start date. Ties keep id order.
func Upcoming(bookings []Booking, today interval.Day, f BookingFilter) []Booking {
	out := make([]Booking, 0, len(bookings))
	for i := range bookings {
		b := &bookings[i]
		if b.EndDate.Before(today) {
			continue
		}
		if !f.Match(b) {
			continue
		}
		out = append(out, *b)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].StartDate.Compare(out[j].StartDate); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	return out
}
