package models

import (
	"strings"
	"time"

	"skovkrogen/internal/checklist"
	"skovkrogen/internal/interval"
)

// Status of a booking. Only confirmed bookings block days.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusPending   Status = "pending"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusConfirmed, StatusCancelled, StatusPending:
		return true
	}
	return false
}

// Booking is one reservation of the house.
type Booking struct {
	ID               int64               `json:"id"`
	StartDate        interval.Day        `json:"start_date"`
	EndDate          interval.Day        `json:"end_date"`
	GuestName        string              `json:"guest_name"`
	GuestEmail       string              `json:"guest_email"`
	GuestCount       int                 `json:"guest_count"`
	AllowOtherFamily bool                `json:"allow_other_family"`
	Purpose          *string             `json:"purpose"`
	Status           Status              `json:"status"`
	Checklist        checklist.Checklist `json:"checkout_checklist"`
	CreatedAt        time.Time           `json:"created_at"`
}

// Interval is the closed range of days the booking covers.
func (b *Booking) Interval() interval.Interval {
	return interval.Interval{Start: b.StartDate, End: b.EndDate}
}

// IsConfirmed reports whether the booking blocks its days.
func (b *Booking) IsConfirmed() bool {
	return b.Status == StatusConfirmed
}

// OwnedBy compares the creator email case-insensitively.
func (b *Booking) OwnedBy(email string) bool {
	return email != "" && strings.EqualFold(b.GuestEmail, email)
}

// PurposeText returns the purpose or "" when absent.
func (b *Booking) PurposeText() string {
	if b.Purpose == nil {
		return ""
	}
	return *b.Purpose
}

// Normalize fills defaults for fields the store may leave out.
func (b *Booking) Normalize() {
	if b.Checklist == nil {
		b.Checklist = checklist.Checklist{}
	}
	if b.Status == "" {
		b.Status = StatusConfirmed
	}
	if b.Purpose != nil && strings.TrimSpace(*b.Purpose) == "" {
		b.Purpose = nil
	}
}

// NewBooking is what a store receives on insert. Dates are already normalized.
type NewBooking struct {
	StartDate        interval.Day        `json:"start_date"`
	EndDate          interval.Day        `json:"end_date"`
	GuestName        string              `json:"guest_name"`
	GuestEmail       string              `json:"guest_email"`
	GuestCount       int                 `json:"guest_count"`
	AllowOtherFamily bool                `json:"allow_other_family"`
	Purpose          *string             `json:"purpose"`
	Status           Status              `json:"status"`
	Checklist        checklist.Checklist `json:"checkout_checklist"`
}

// Interval is the closed range of days requested.
func (n *NewBooking) Interval() interval.Interval {
	return interval.Interval{Start: n.StartDate, End: n.EndDate}
}

// BookingPatch is a partial update. Nil fields are left unchanged.
type BookingPatch struct {
	GuestName *string             `json:"guest_name,omitempty"`
	Checklist checklist.Checklist `json:"checkout_checklist,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p BookingPatch) Empty() bool {
	return p.GuestName == nil && p.Checklist == nil
}
