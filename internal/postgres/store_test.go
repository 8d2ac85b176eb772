package postgres

import (
	"context"
	"os"
	"sync"
	"testing"

	"skovkrogen/internal/checklist"
	"skovkrogen/internal/interval"
	"skovkrogen/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests need a disposable database; the bookings table is truncated.
func setupStore(t *testing.T) *Store {
	dsn := os.Getenv("SKOVKROGEN_TEST_POSTGRES_URL")
	if dsn == "" {
		t.Skip("SKOVKROGEN_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()
	pool, err := Connect(ctx, dsn)
	require.NoError(t, err)
	s := NewStore(pool)
	t.Cleanup(s.Close)

	require.NoError(t, s.Migrate(ctx))
	_, err = pool.Exec(ctx, `TRUNCATE bookings RESTART IDENTITY`)
	require.NoError(t, err)
	return s
}

func newBooking(start, end, email string) models.NewBooking {
	return models.NewBooking{
		StartDate:  interval.MustParse(start),
		EndDate:    interval.MustParse(end),
		GuestName:  "Kurt",
		GuestEmail: email,
		GuestCount: 2,
		Status:     models.StatusConfirmed,
		Checklist:  checklist.Checklist{},
	}
}

func TestStore_RoundTrip(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	created, err := s.InsertBooking(ctx, newBooking("2024-07-10", "2024-07-14", "a@x.com"))
	require.NoError(t, err)
	assert.Equal(t, "2024-07-10", created.StartDate.String())
	assert.Nil(t, created.Purpose)

	name := "Beth"
	require.NoError(t, s.UpdateBooking(ctx, created.ID, models.BookingPatch{GuestName: &name}))
	require.NoError(t, s.UpdateBooking(ctx, created.ID, models.BookingPatch{Checklist: checklist.Checklist{"lock_doors": true}}))

	got, err := s.GetBooking(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Beth", got.GuestName)
	assert.True(t, got.Checklist.Done("lock_doors"))
	assert.Equal(t, "2024-07-14", got.EndDate.String())

	require.NoError(t, s.DeleteBooking(ctx, created.ID))
	assert.ErrorIs(t, s.DeleteBooking(ctx, created.ID), models.ErrBookingNotFound)

	list, err := s.ListBookings(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStore_ExclusiveInsertSerializes(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, r := range [][2]string{{"2024-07-10", "2024-07-14"}, {"2024-07-12", "2024-07-16"}} {
		wg.Add(1)
		go func(i int, start, end string) {
			defer wg.Done()
			_, errs[i] = s.InsertBookingExclusive(ctx, newBooking(start, end, "a@x.com"))
		}(i, r[0], r[1])
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, models.ErrOverlap)
			failed++
		}
	}
	assert.Equal(t, 1, failed)

	list, err := s.ListBookings(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
