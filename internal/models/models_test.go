package models

import (
	"encoding/json"
	"testing"

	"skovkrogen/internal/interval"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) interval.Day { return interval.MustParse(s) }

func TestBooking_Helpers(t *testing.T) {
	b := &Booking{
		ID:         1,
		StartDate:  d("2024-07-10"),
		EndDate:    d("2024-07-14"),
		GuestEmail: "A@x.com",
		Status:     StatusConfirmed,
	}

	t.Run("OwnedBy", func(t *testing.T) {
		assert.True(t, b.OwnedBy("a@x.com"))
		assert.False(t, b.OwnedBy("b@x.com"))
		assert.False(t, b.OwnedBy(""))
	})

	t.Run("Interval", func(t *testing.T) {
		assert.True(t, b.Interval().Contains(d("2024-07-12")))
		assert.True(t, b.IsConfirmed())
	})

	t.Run("Normalize", func(t *testing.T) {
		blank := "  "
		nb := &Booking{Purpose: &blank}
		nb.Normalize()
		assert.Nil(t, nb.Purpose)
		assert.NotNil(t, nb.Checklist)
		assert.Equal(t, StatusConfirmed, nb.Status)
		assert.Equal(t, "", nb.PurposeText())
	})
}

func TestBooking_JSON(t *testing.T) {
	raw := `{
		"id": 7,
		"start_date": "2024-07-10",
		"end_date": "2024-07-14",
		"guest_name": "Kurt",
		"guest_email": "a@x.com",
		"guest_count": 2,
		"allow_other_family": false,
		"purpose": null,
		"status": "confirmed",
		"checkout_checklist": null,
		"created_at": "2024-06-01T10:00:00Z"
	}`

	var b Booking
	require.NoError(t, json.Unmarshal([]byte(raw), &b))
	assert.Equal(t, int64(7), b.ID)
	assert.Equal(t, d("2024-07-10"), b.StartDate)
	assert.Nil(t, b.Purpose)
	assert.NotNil(t, b.Checklist)
	assert.False(t, b.Checklist.Done("lock_doors"))
}

func TestRoster_Contains(t *testing.T) {
	r := Roster(DefaultRoster)
	assert.True(t, r.Contains("Kurt"))
	assert.True(t, r.Contains(" Mina "))
	assert.False(t, r.Contains("kurt"))
	assert.False(t, r.Contains(""))
	assert.False(t, r.Contains("Bob"))
}

func TestUpcoming(t *testing.T) {
	today := d("2024-07-01")
	bookings := []Booking{
		{ID: 1, StartDate: d("2024-08-01"), EndDate: d("2024-08-03"), GuestEmail: "kurt@x.com"},
		{ID: 2, StartDate: d("2024-06-20"), EndDate: d("2024-06-25"), GuestEmail: "beth@x.com"},
		{ID: 3, StartDate: d("2024-06-28"), EndDate: d("2024-07-01"), GuestEmail: "beth@x.com", AllowOtherFamily: true},
		{ID: 4, StartDate: d("2024-07-10"), EndDate: d("2024-07-14"), GuestEmail: "Mina@x.com", AllowOtherFamily: true},
	}

	tests := []struct {
		name   string
		filter BookingFilter
		want   []int64
	}{
		{"future sorted by start", BookingFilter{}, []int64{3, 4, 1}},
		{"email substring case-insensitive", BookingFilter{Email: "MINA"}, []int64{4}},
		{"from bound", BookingFilter{From: d("2024-07-01")}, []int64{4, 1}},
		{"to bound", BookingFilter{To: d("2024-07-31")}, []int64{3, 4}},
		{"shared only", BookingFilter{SharedOnly: true}, []int64{3, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Upcoming(bookings, today, tt.filter)
			ids := make([]int64, 0, len(got))
			for _, b := range got {
				ids = append(ids, b.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestStatus_Valid(t *testing.T) {
	assert.True(t, StatusConfirmed.Valid())
	assert.True(t, StatusPending.Valid())
	assert.False(t, Status("archived").Valid())
}
