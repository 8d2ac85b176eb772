package database

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"skovkrogen/internal/checklist"
	"skovkrogen/internal/config"
	"skovkrogen/internal/interval"
	"skovkrogen/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	logger := zerolog.New(io.Discard)
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
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

func TestInsertAndList(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	nb := newBooking("2024-07-10", "2024-07-14", "a@x.com")
	purpose := "Sommerferie"
	nb.Purpose = &purpose
	nb.AllowOtherFamily = true

	created, err := db.InsertBooking(ctx, nb)
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	list, err := db.ListBookings(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	got := list[0]
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "2024-07-10", got.StartDate.String())
	assert.Equal(t, "2024-07-14", got.EndDate.String())
	assert.Equal(t, "a@x.com", got.GuestEmail)
	assert.True(t, got.AllowOtherFamily)
	require.NotNil(t, got.Purpose)
	assert.Equal(t, "Sommerferie", *got.Purpose)
	assert.Equal(t, models.StatusConfirmed, got.Status)
	assert.NotNil(t, got.Checklist)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestNullPurposeAndChecklistDefaults(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `INSERT INTO bookings (start_date, end_date, guest_name, guest_email) VALUES ('2024-08-01', '2024-08-02', 'Beth', 'b@x.com')`)
	require.NoError(t, err)

	list, err := db.ListBookings(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].Purpose)
	assert.Equal(t, checklist.Checklist{}, list[0].Checklist)
	assert.Equal(t, models.StatusConfirmed, list[0].Status)
}

func TestUpdateBooking(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	created, err := db.InsertBooking(ctx, newBooking("2024-07-10", "2024-07-14", "a@x.com"))
	require.NoError(t, err)

	name := "Beth"
	require.NoError(t, db.UpdateBooking(ctx, created.ID, models.BookingPatch{GuestName: &name}))
	require.NoError(t, db.UpdateBooking(ctx, created.ID, models.BookingPatch{
		Checklist: checklist.Checklist{"lock_doors": true},
	}))

	got, err := db.GetBooking(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Beth", got.GuestName)
	assert.True(t, got.Checklist.Done("lock_doors"))
	assert.Equal(t, "2024-07-10", got.StartDate.String())

	err = db.UpdateBooking(ctx, 999, models.BookingPatch{GuestName: &name})
	assert.ErrorIs(t, err, models.ErrBookingNotFound)
}

func TestDeleteBooking(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	created, err := db.InsertBooking(ctx, newBooking("2024-07-10", "2024-07-14", "a@x.com"))
	require.NoError(t, err)

	require.NoError(t, db.DeleteBooking(ctx, created.ID))
	assert.ErrorIs(t, db.DeleteBooking(ctx, created.ID), models.ErrBookingNotFound)

	_, err = db.GetBooking(ctx, created.ID)
	assert.ErrorIs(t, err, models.ErrBookingNotFound)
}

func TestInsertBookingExclusive(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.InsertBookingExclusive(ctx, newBooking("2024-07-10", "2024-07-14", "a@x.com"))
	require.NoError(t, err)

	_, err = db.InsertBookingExclusive(ctx, newBooking("2024-07-14", "2024-07-16", "b@x.com"))
	assert.ErrorIs(t, err, models.ErrOverlap)

	_, err = db.InsertBookingExclusive(ctx, newBooking("2024-07-15", "2024-07-16", "b@x.com"))
	assert.NoError(t, err)

	list, err := db.ListBookings(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestInsertBookingExclusive_IgnoresCancelled(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	nb := newBooking("2024-07-10", "2024-07-14", "a@x.com")
	nb.Status = models.StatusCancelled
	_, err := db.InsertBooking(ctx, nb)
	require.NoError(t, err)

	_, err = db.InsertBookingExclusive(ctx, newBooking("2024-07-12", "2024-07-13", "b@x.com"))
	assert.NoError(t, err)
}

func TestMemoryDB(t *testing.T) {
	logger := zerolog.New(io.Discard)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.InsertBooking(context.Background(), newBooking("2024-07-10", "2024-07-14", "a@x.com"))
	require.NoError(t, err)
	list, err := db.ListBookings(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestBackupService(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, err := db.InsertBooking(ctx, newBooking("2024-07-10", "2024-07-14", "a@x.com"))
	require.NoError(t, err)

	dir := t.TempDir()
	logger := zerolog.New(io.Discard)
	svc := NewBackupService(db, config.BackupConfig{Enabled: true, StoragePath: dir, RetentionDays: 7}, &logger)

	path, err := svc.PerformBackup(ctx)
	require.NoError(t, err)
	assert.FileExists(t, path)

	restored, err := NewDB(path, &logger)
	require.NoError(t, err)
	defer restored.Close()
	list, err := restored.ListBookings(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	old := filepath.Join(dir, backupPrefix+"20000101_000000.db")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o600))
	past := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(old, past, past))
	unrelated := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(unrelated, []byte("x"), 0o600))
	require.NoError(t, os.Chtimes(unrelated, past, past))

	assert.Equal(t, 1, svc.CleanupOldBackups())
	assert.NoFileExists(t, old)
	assert.FileExists(t, unrelated)
	assert.FileExists(t, path)
}
