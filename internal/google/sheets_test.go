package google

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"skovkrogen/internal/checklist"
	"skovkrogen/internal/events"
	"skovkrogen/internal/interval"
	"skovkrogen/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeValues struct {
	mu      sync.Mutex
	cleared []string
	updates map[string][][]any
	err     error
}

func newFakeValues() *fakeValues {
	return &fakeValues{updates: map[string][][]any{}}
}

func (f *fakeValues) Clear(_ context.Context, _ string, rng string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, rng)
	return f.err
}

func (f *fakeValues) Update(_ context.Context, _ string, rng string, values [][]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[rng] = values
	return f.err
}

func (f *fakeValues) get(rng string) [][]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates[rng]
}

func d(s string) interval.Day { return interval.MustParse(s) }

func booking(id int64, name, start, end string, status models.Status) models.Booking {
	return models.Booking{
		ID:        id,
		StartDate: d(start),
		EndDate:   d(end),
		GuestName: name,
		Status:    status,
		Checklist: checklist.Checklist{},
	}
}

func TestFilterActiveBookings(t *testing.T) {
	s := &SheetsService{}

	active := s.filterActiveBookings([]models.Booking{
		booking(1, "Kurt", "2024-08-01", "2024-08-02", models.StatusPending),
		booking(2, "Beth", "2024-07-01", "2024-07-02", models.StatusConfirmed),
		booking(3, "Mina", "2024-06-01", "2024-06-02", models.StatusCancelled),
	})

	require.Len(t, active, 2)
	assert.Equal(t, int64(2), active[0].ID)
	assert.Equal(t, int64(1), active[1].ID)
}

func TestBookingRowValues(t *testing.T) {
	purpose := "Påske"
	b := booking(123, "Kurt", "2024-12-25", "2024-12-27", models.StatusConfirmed)
	b.GuestEmail = "a@x.com"
	b.GuestCount = 4
	b.AllowOtherFamily = true
	b.Purpose = &purpose
	b.Checklist = checklist.Checklist{"lock_doors": true, "empty_trash": true}

	assert.Equal(t, []any{
		int64(123), "2024-12-25", "2024-12-27", "Kurt", "a@x.com", 4, "Ja", "Påske", "confirmed", "2/6",
	}, bookingRowValues(&b, checklist.Default()))
}

func TestPrepareDateHeaders(t *testing.T) {
	s := &SheetsService{}
	headers, cols := s.prepareDateHeaders(d("2024-12-31"), d("2025-01-02"))
	assert.Equal(t, 3, cols)
	assert.Equal(t, []any{"Dato", "31.12", "01.01", "02.01"}, headers)
}

func TestFormatOccupancyCell(t *testing.T) {
	s := &SheetsService{}
	confirmed := []models.Booking{booking(1, "Kurt", "2024-07-10", "2024-07-14", models.StatusConfirmed)}

	assert.Equal(t, "Kurt", s.formatOccupancyCell(d("2024-07-14"), confirmed))
	assert.Equal(t, "", s.formatOccupancyCell(d("2024-07-15"), confirmed))
}

func TestSyncBookings(t *testing.T) {
	api := newFakeValues()
	logger := zerolog.New(io.Discard)
	s := NewSheetsService(api, "sheet-id", "Bookinger", nil, &logger)

	err := s.SyncBookings(context.Background(), []models.Booking{
		booking(1, "Kurt", "2024-07-10", "2024-07-14", models.StatusConfirmed),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"'Bookinger'!A:Z"}, api.cleared)
	rows := api.get("'Bookinger'!A1")
	require.Len(t, rows, 2)
	assert.Equal(t, headerRow, rows[0])
}

func TestSyncBookings_Error(t *testing.T) {
	api := newFakeValues()
	api.err = errors.New("quota exceeded")
	s := NewSheetsService(api, "sheet-id", "Bookinger", nil, nil)

	err := s.SyncBookings(context.Background(), nil)
	assert.ErrorContains(t, err, "quota exceeded")
}

type staticSource []models.Booking

func (s staticSource) ListBookings(context.Context) ([]models.Booking, error) {
	return append([]models.Booking(nil), s...), nil
}

func TestMirror_SyncsOnEvents(t *testing.T) {
	api := newFakeValues()
	s := NewSheetsService(api, "sheet-id", "Bookinger", nil, nil)
	source := staticSource{
		booking(1, "Kurt", "2024-07-02", "2024-07-03", models.StatusConfirmed),
		booking(2, "Beth", "2024-07-04", "2024-07-04", models.StatusCancelled),
	}
	m := NewMirror(s, source, func() interval.Day { return d("2024-07-01") }, 5, nil)

	bus := events.NewEventBus()
	m.Attach(bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	occupancy := "'Bookinger belægning'!A1"
	require.Eventually(t, func() bool { return api.get(occupancy) != nil }, time.Second, 5*time.Millisecond)

	rows := api.get(occupancy)
	assert.Equal(t, []any{"Dato", "01.07", "02.07", "03.07", "04.07", "05.07"}, rows[0])
	assert.Equal(t, []any{"Booket af", "", "Kurt", "Kurt", "", ""}, rows[1])

	bus.Publish(events.NewBookingEvent(events.BookingDeleted, events.BookingPayload{BookingID: 1}))
	assert.Eventually(t, func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return len(api.cleared) >= 4
	}, time.Second, 5*time.Millisecond)
}
