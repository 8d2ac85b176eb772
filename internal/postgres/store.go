// Package postgres stores bookings in a Postgres database with the same
// schema as the hosted Supabase table.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"skovkrogen/internal/checklist"
	"skovkrogen/internal/interval"
	"skovkrogen/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const queryTimeout = 3 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS bookings (
	id BIGSERIAL PRIMARY KEY,
	start_date DATE NOT NULL,
	end_date DATE NOT NULL,
	guest_name TEXT NOT NULL,
	guest_email TEXT NOT NULL,
	guest_count INT NOT NULL DEFAULT 1,
	allow_other_family BOOLEAN NOT NULL DEFAULT false,
	purpose TEXT,
	status TEXT NOT NULL DEFAULT 'confirmed',
	checkout_checklist JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK (start_date <= end_date)
);
CREATE INDEX IF NOT EXISTS idx_bookings_dates ON bookings (start_date, end_date);
CREATE INDEX IF NOT EXISTS idx_bookings_email ON bookings (lower(guest_email));
`

const bookingCols = `id, start_date, end_date, guest_name, guest_email, guest_count,
allow_other_family, purpose, status, checkout_checklist, created_at`

// Connect opens a pool with the settings used for the booking store.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MinConns = 1
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = time.Hour
	cfg.HealthCheckPeriod = 30 * time.Second
	return pgxpool.NewWithConfig(ctx, cfg)
}

// Store implements the booking repository on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the bookings table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}

func scanBooking(row pgx.Row) (models.Booking, error) {
	var (
		b          models.Booking
		start, end time.Time
		status     string
		list       []byte
	)
	err := row.Scan(&b.ID, &start, &end, &b.GuestName, &b.GuestEmail, &b.GuestCount,
		&b.AllowOtherFamily, &b.Purpose, &status, &list, &b.CreatedAt)
	if err != nil {
		return b, err
	}
	b.StartDate = interval.FromTime(start)
	b.EndDate = interval.FromTime(end)
	b.Status = models.Status(status)
	if len(list) > 0 {
		if err := json.Unmarshal(list, &b.Checklist); err != nil {
			return b, fmt.Errorf("decode checklist of booking %d: %w", b.ID, err)
		}
	}
	b.Normalize()
	return b, nil
}

func dateArg(d interval.Day) time.Time {
	return d.Time(time.UTC)
}

func checklistArg(c checklist.Checklist) ([]byte, error) {
	return json.Marshal(c)
}

// ListBookings returns the whole collection ordered by id.
func (s *Store) ListBookings(ctx context.Context) ([]models.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM bookings ORDER BY id`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// GetBooking loads one booking.
func (s *Store) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM bookings WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	b, err := scanBooking(s.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insert(ctx context.Context, q queryRower, nb models.NewBooking) (*models.Booking, error) {
	const stmt = `INSERT INTO bookings (
		start_date, end_date, guest_name, guest_email, guest_count,
		allow_other_family, purpose, status, checkout_checklist
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	RETURNING ` + bookingCols

	list, err := checklistArg(nb.Checklist)
	if err != nil {
		return nil, err
	}
	b, err := scanBooking(q.QueryRow(ctx, stmt,
		dateArg(nb.StartDate), dateArg(nb.EndDate), nb.GuestName, nb.GuestEmail, nb.GuestCount,
		nb.AllowOtherFamily, nb.Purpose, string(nb.Status), list,
	))
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// InsertBooking stores nb without looking at other bookings.
func (s *Store) InsertBooking(ctx context.Context, nb models.NewBooking) (*models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return insert(ctx, s.pool, nb)
}

// InsertBookingExclusive serializes inserts with a table lock that conflicts
// with itself but not with readers, then checks for overlap and inserts.
func (s *Store) InsertBookingExclusive(ctx context.Context, nb models.NewBooking) (*models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `LOCK TABLE bookings IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return nil, fmt.Errorf("lock bookings: %w", err)
	}

	if nb.Status == models.StatusConfirmed {
		var overlap bool
		err = tx.QueryRow(ctx, `SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE status=$1 AND start_date <= $2 AND $3 <= end_date)`,
			string(models.StatusConfirmed), dateArg(nb.EndDate), dateArg(nb.StartDate),
		).Scan(&overlap)
		if err != nil {
			return nil, err
		}
		if overlap {
			return nil, models.ErrOverlap
		}
	}

	b, err := insert(ctx, tx, nb)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// UpdateBooking applies the non-nil fields of patch.
func (s *Store) UpdateBooking(ctx context.Context, id int64, patch models.BookingPatch) error {
	if patch.Empty() {
		return nil
	}
	var (
		sets []string
		args []any
	)
	if patch.GuestName != nil {
		args = append(args, *patch.GuestName)
		sets = append(sets, fmt.Sprintf("guest_name=$%d", len(args)))
	}
	if patch.Checklist != nil {
		list, err := checklistArg(patch.Checklist)
		if err != nil {
			return err
		}
		args = append(args, list)
		sets = append(sets, fmt.Sprintf("checkout_checklist=$%d", len(args)))
	}
	args = append(args, id)
	q := fmt.Sprintf(`UPDATE bookings SET %s WHERE id=$%d`, strings.Join(sets, ", "), len(args))

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrBookingNotFound
	}
	return nil
}

// DeleteBooking hard-deletes a booking.
func (s *Store) DeleteBooking(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `DELETE FROM bookings WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrBookingNotFound
	}
	return nil
}
