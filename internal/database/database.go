package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"skovkrogen/internal/checklist"
	"skovkrogen/internal/models"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB is the embedded SQLite booking store.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

const bookingCols = `id, start_date, end_date, guest_name, guest_email, guest_count,
	allow_other_family, purpose, status, checkout_checklist, created_at`

// NewDB opens the database at path and creates tables if they don't exist.
// ":memory:" opens a private in-memory database shared by the pool.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	var dsn string
	if path == ":memory:" {
		dsn = "file:skovkrogen-" + uuid.NewString() + "?mode=memory&cache=shared&_txlock=immediate"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		// WAL, busy timeout and BEGIN IMMEDIATE for every transaction.
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{DB: db, path: path, logger: logger}
	if err := instance.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if logger != nil {
		logger.Info().Str("path", path).Msg("Database initialized")
	}
	return instance, nil
}

// Path is the database file, used by the backup loop.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bookings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			start_date TEXT NOT NULL,
			end_date TEXT NOT NULL,
			guest_name TEXT NOT NULL,
			guest_email TEXT NOT NULL,
			guest_count INTEGER NOT NULL DEFAULT 1,
			allow_other_family BOOLEAN NOT NULL DEFAULT 0,
			purpose TEXT,
			status TEXT NOT NULL DEFAULT 'confirmed',
			checkout_checklist TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			CHECK (start_date <= end_date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_dates ON bookings(start_date, end_date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_email ON bookings(guest_email)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return db.ensureNewColumns()
}

// ensureNewColumns upgrades databases created before a column existed.
func (db *DB) ensureNewColumns() error {
	migrations := []string{
		`ALTER TABLE bookings ADD COLUMN allow_other_family BOOLEAN NOT NULL DEFAULT 0`,
		`ALTER TABLE bookings ADD COLUMN checkout_checklist TEXT NOT NULL DEFAULT '{}'`,
	}

	for _, m := range migrations {
		_, err := db.Exec(m)
		if err != nil && !strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
			if db.logger != nil {
				db.logger.Debug().Err(err).Str("migration", m).Msg("Migration skipped")
			}
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (models.Booking, error) {
	var (
		b       models.Booking
		purpose sql.NullString
		list    sql.NullString
		created sql.NullTime
	)
	err := row.Scan(&b.ID, &b.StartDate, &b.EndDate, &b.GuestName, &b.GuestEmail, &b.GuestCount,
		&b.AllowOtherFamily, &purpose, &b.Status, &list, &created)
	if err != nil {
		return b, err
	}
	if purpose.Valid {
		p := purpose.String
		b.Purpose = &p
	}
	if list.Valid && list.String != "" {
		if err := json.Unmarshal([]byte(list.String), &b.Checklist); err != nil {
			return b, fmt.Errorf("decode checklist of booking %d: %w", b.ID, err)
		}
	}
	if created.Valid {
		b.CreatedAt = created.Time
	}
	b.Normalize()
	return b, nil
}

func encodeChecklist(c checklist.Checklist) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

// ListBookings returns the whole collection ordered by id.
func (db *DB) ListBookings(ctx context.Context) ([]models.Booking, error) {
	return db.queryBookings(ctx, db.DB, `SELECT `+bookingCols+` FROM bookings ORDER BY id`)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (db *DB) queryBookings(ctx context.Context, q querier, query string, args ...any) ([]models.Booking, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	var out []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetBooking loads a single booking.
func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingCols+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (db *DB) insert(ctx context.Context, ex execer, nb models.NewBooking) (*models.Booking, error) {
	list, err := encodeChecklist(nb.Checklist)
	if err != nil {
		return nil, err
	}
	created := time.Now().UTC()
	res, err := ex.ExecContext(ctx, `
		INSERT INTO bookings (start_date, end_date, guest_name, guest_email, guest_count,
			allow_other_family, purpose, status, checkout_checklist, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nb.StartDate, nb.EndDate, nb.GuestName, nb.GuestEmail, nb.GuestCount,
		nb.AllowOtherFamily, nullString(nb.Purpose), string(nb.Status), list, created)
	if err != nil {
		return nil, fmt.Errorf("insert booking: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	b := models.Booking{
		ID:               id,
		StartDate:        nb.StartDate,
		EndDate:          nb.EndDate,
		GuestName:        nb.GuestName,
		GuestEmail:       nb.GuestEmail,
		GuestCount:       nb.GuestCount,
		AllowOtherFamily: nb.AllowOtherFamily,
		Purpose:          nb.Purpose,
		Status:           nb.Status,
		Checklist:        nb.Checklist,
		CreatedAt:        created,
	}
	b.Normalize()
	return &b, nil
}

// InsertBooking stores nb without looking at other bookings.
func (db *DB) InsertBooking(ctx context.Context, nb models.NewBooking) (*models.Booking, error) {
	return db.insert(ctx, db.DB, nb)
}

// InsertBookingExclusive checks for an overlapping confirmed booking and
// inserts inside one write transaction. Transactions start with BEGIN
// IMMEDIATE, so a second writer waits for the first to commit.
func (db *DB) InsertBookingExclusive(ctx context.Context, nb models.NewBooking) (*models.Booking, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var n int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bookings
		WHERE status = ? AND start_date <= ? AND ? <= end_date`,
		string(models.StatusConfirmed), nb.EndDate, nb.StartDate).Scan(&n)
	if err != nil {
		return nil, fmt.Errorf("overlap check: %w", err)
	}
	if n > 0 && nb.Status == models.StatusConfirmed {
		return nil, models.ErrOverlap
	}

	b, err := db.insert(ctx, tx, nb)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return b, nil
}

// UpdateBooking applies the non-nil fields of patch.
func (db *DB) UpdateBooking(ctx context.Context, id int64, patch models.BookingPatch) error {
	if patch.Empty() {
		return nil
	}
	var (
		sets []string
		args []any
	)
	if patch.GuestName != nil {
		sets = append(sets, "guest_name = ?")
		args = append(args, *patch.GuestName)
	}
	if patch.Checklist != nil {
		list, err := encodeChecklist(patch.Checklist)
		if err != nil {
			return err
		}
		sets = append(sets, "checkout_checklist = ?")
		args = append(args, list)
	}
	args = append(args, id)

	res, err := db.ExecContext(ctx, `UPDATE bookings SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	return expectOne(res)
}

// DeleteBooking hard-deletes a booking.
func (db *DB) DeleteBooking(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrBookingNotFound
	}
	return nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}
