package google

import (
	"context"
	"time"

	"skovkrogen/internal/events"
	"skovkrogen/internal/interval"
	"skovkrogen/internal/models"

	"github.com/rs/zerolog"
)

// Source lists the full booking collection.
type Source interface {
	ListBookings(ctx context.Context) ([]models.Booking, error)
}

// Mirror keeps the spreadsheet in step with the store. Booking events only
// set a pending flag, so a burst of changes results in one sync.
type Mirror struct {
	sheets  *SheetsService
	source  Source
	today   func() interval.Day
	days    int
	trigger chan struct{}
	timeout time.Duration
	logger  *zerolog.Logger
}

// NewMirror syncs the bookings sheet and an occupancy sheet covering days
// days from today.
func NewMirror(sheets *SheetsService, source Source, today func() interval.Day, days int, logger *zerolog.Logger) *Mirror {
	if days <= 0 {
		days = 90
	}
	return &Mirror{
		sheets:  sheets,
		source:  source,
		today:   today,
		days:    days,
		trigger: make(chan struct{}, 1),
		timeout: 30 * time.Second,
		logger:  logger,
	}
}

// Attach requests a sync on every booking event.
func (m *Mirror) Attach(bus *events.EventBus) {
	bus.SubscribeAll(func(events.Event) error {
		m.Trigger()
		return nil
	})
}

// Trigger requests a sync without blocking.
func (m *Mirror) Trigger() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// Run syncs once and then on every trigger until ctx is done.
func (m *Mirror) Run(ctx context.Context) {
	m.Trigger()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.trigger:
			syncCtx, cancel := context.WithTimeout(ctx, m.timeout)
			if err := m.Sync(syncCtx); err != nil && m.logger != nil {
				m.logger.Error().Err(err).Msg("Google Sheets sync failed")
			}
			cancel()
		}
	}
}

// Sync fetches the collection and rewrites both sheets.
func (m *Mirror) Sync(ctx context.Context) error {
	bookings, err := m.source.ListBookings(ctx)
	if err != nil {
		return err
	}
	for i := range bookings {
		bookings[i].Normalize()
	}
	if err := m.sheets.SyncBookings(ctx, bookings); err != nil {
		return err
	}

	confirmed := make([]models.Booking, 0, len(bookings))
	for _, b := range bookings {
		if b.IsConfirmed() {
			confirmed = append(confirmed, b)
		}
	}
	start := m.today()
	return m.sheets.SyncOccupancy(ctx, confirmed, start, start.AddDays(m.days-1))
}
