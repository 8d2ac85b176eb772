// Package booking implements the create, rename, delete and checklist
// mutations on top of an external booking store.
package booking

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"skovkrogen/internal/availability"
	"skovkrogen/internal/checklist"
	"skovkrogen/internal/events"
	"skovkrogen/internal/interval"
	"skovkrogen/internal/metrics"
	"skovkrogen/internal/models"
	"skovkrogen/internal/selection"

	"github.com/rs/zerolog"
)

const (
	MinGuests = 1
	MaxGuests = 20
)

// Repository is the persistence collaborator.
type Repository interface {
	ListBookings(ctx context.Context) ([]models.Booking, error)
	InsertBooking(ctx context.Context, nb models.NewBooking) (*models.Booking, error)
	UpdateBooking(ctx context.Context, id int64, patch models.BookingPatch) error
	DeleteBooking(ctx context.Context, id int64) error
}

// Getter is implemented by stores that can load one row by id.
type Getter interface {
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
}

// ExclusiveInserter is implemented by stores that can check for overlaps and
// insert in one serialized step. It returns models.ErrOverlap on conflict.
type ExclusiveInserter interface {
	InsertBookingExclusive(ctx context.Context, nb models.NewBooking) (*models.Booking, error)
}

// Publisher receives domain events.
type Publisher interface {
	Publish(event events.Event)
}

// Options configures a Service.
type Options struct {
	Roster    models.Roster
	Checklist *checklist.Template
	Location  *time.Location
	// HorizonMonths limits how far ahead the calendar offers days. 0 disables it.
	HorizonMonths int
	// EnforceExclusive re-checks overlaps at insert time.
	EnforceExclusive bool
	Now              func() time.Time
}

// Details are the form fields entered alongside a date selection.
type Details struct {
	GuestName        string `json:"guest_name"`
	GuestCount       int    `json:"guest_count"`
	AllowOtherFamily bool   `json:"allow_other_family"`
	Purpose          string `json:"purpose"`
}

// Snapshot is one full fetch of the collection with its derived index.
type Snapshot struct {
	Bookings []models.Booking
	Index    *availability.Index
}

// View is a booking as shown to a particular viewer.
type View struct {
	models.Booking
	Owned    bool               `json:"owned"`
	CanEdit  bool               `json:"can_edit"`
	Progress checklist.Progress `json:"checklist_progress"`
}

// Service runs the booking workflow.
type Service struct {
	repo   Repository
	bus    Publisher
	logger zerolog.Logger
	opts   Options
	mu     sync.RWMutex
	busy   map[string]struct{}
	busyMu sync.Mutex
}

// NewService wires the workflow. bus may be nil.
func NewService(repo Repository, bus Publisher, opts Options, logger zerolog.Logger) *Service {
	if len(opts.Roster) == 0 {
		opts.Roster = models.DefaultRoster
	}
	if opts.Checklist == nil {
		opts.Checklist = checklist.Default()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		repo:   repo,
		bus:    bus,
		opts:   opts,
		busy:   make(map[string]struct{}),
		logger: logger.With().Str("component", "booking").Logger(),
	}
}

// SetHousehold swaps roster and checklist items, e.g. after a config reload.
func (s *Service) SetHousehold(roster models.Roster, tpl *checklist.Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(roster) > 0 {
		s.opts.Roster = roster
	}
	if tpl != nil {
		s.opts.Checklist = tpl
	}
}

// Roster returns the names a booking can be made under.
func (s *Service) Roster() models.Roster {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(models.Roster(nil), s.opts.Roster...)
}

// Checklist returns the checklist template in use.
func (s *Service) Checklist() *checklist.Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts.Checklist
}

// Today is the current day in the house's time zone.
func (s *Service) Today() interval.Day {
	return interval.Normalize(s.opts.Now(), s.opts.Location)
}

// Location is the house's time zone.
func (s *Service) Location() *time.Location {
	return s.opts.Location
}

func (s *Service) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &s.logger
}

func (s *Service) fail(ctx context.Context, op string, err *Error) *Error {
	metrics.IncWorkflowError(string(err.Kind))
	ev := s.log(ctx).Warn()
	if err.Kind == KindPersistence {
		ev = s.log(ctx).Error()
	}
	ev.Err(err.Err).Str("op", op).Str("kind", string(err.Kind)).Msg(err.Message)
	return err
}

func (s *Service) publish(eventType string, p events.BookingPayload) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.NewBookingEvent(eventType, p))
}

// acquire lets one mutation per viewer run at a time.
func (s *Service) acquire(viewer string) bool {
	s.busyMu.Lock()
	defer s.busyMu.Unlock()
	if _, ok := s.busy[viewer]; ok {
		return false
	}
	s.busy[viewer] = struct{}{}
	return true
}

func (s *Service) release(viewer string) {
	s.busyMu.Lock()
	defer s.busyMu.Unlock()
	delete(s.busy, viewer)
}

func (s *Service) begin(ctx context.Context, op string, viewer *models.Viewer) (func(), *Error) {
	if !viewer.Authenticated() {
		return nil, s.fail(ctx, op, &Error{Kind: KindUnauthenticated, Message: MsgUnauthenticated})
	}
	key := strings.ToLower(viewer.Email)
	if !s.acquire(key) {
		return nil, s.fail(ctx, op, &Error{Kind: KindBusy, Message: MsgBusy})
	}
	return func() { s.release(key) }, nil
}

// Snapshot fetches every booking and rebuilds the availability index.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	bookings, err := s.repo.ListBookings(ctx)
	if err != nil {
		return nil, s.fail(ctx, "snapshot", persistence(err))
	}
	for i := range bookings {
		bookings[i].Normalize()
	}

	today := s.Today()
	var opts []availability.Option
	if s.opts.HorizonMonths > 0 {
		t := today.Time(s.opts.Location).AddDate(0, s.opts.HorizonMonths, 0)
		opts = append(opts, availability.WithHorizon(interval.FromTime(t)))
	}
	ix := availability.Build(bookings, today, opts...)

	conflicts := ix.Conflicts()
	metrics.SetOverlapConflicts(len(conflicts))
	for _, c := range conflicts {
		s.log(ctx).Warn().
			Int64("first_id", c.First.ID).
			Int64("second_id", c.Second.ID).
			Msg("overlapping confirmed bookings")
	}
	return &Snapshot{Bookings: bookings, Index: ix}, nil
}

// Find returns a single booking, by id when the store supports it and from a
// full fetch otherwise.
func (s *Service) Find(ctx context.Context, id int64) (*models.Booking, error) {
	if g, ok := s.repo.(Getter); ok {
		b, err := g.GetBooking(ctx, id)
		if err != nil {
			return nil, s.fail(ctx, "find", s.storeError(err))
		}
		b.Normalize()
		return b, nil
	}
	bookings, err := s.repo.ListBookings(ctx)
	if err != nil {
		return nil, s.fail(ctx, "find", persistence(err))
	}
	for i := range bookings {
		if bookings[i].ID == id {
			b := bookings[i]
			b.Normalize()
			return &b, nil
		}
	}
	return nil, s.fail(ctx, "find", &Error{Kind: KindNotFound, Message: MsgNotFound, Err: models.ErrBookingNotFound})
}

// View decorates b for viewer.
func (s *Service) View(viewer *models.Viewer, b models.Booking) View {
	owned := viewer != nil && b.OwnedBy(viewer.Email)
	return View{
		Booking:  b,
		Owned:    owned,
		CanEdit:  owned && b.IsConfirmed(),
		Progress: s.Checklist().Progress(b.Checklist),
	}
}

// List returns bookings that have not ended yet, filtered and sorted by start.
func (s *Service) List(ctx context.Context, viewer *models.Viewer, f models.BookingFilter) ([]View, error) {
	if !viewer.Authenticated() {
		return nil, s.fail(ctx, "list", &Error{Kind: KindUnauthenticated, Message: MsgUnauthenticated})
	}
	bookings, err := s.repo.ListBookings(ctx)
	if err != nil {
		return nil, s.fail(ctx, "list", persistence(err))
	}
	for i := range bookings {
		bookings[i].Normalize()
	}
	upcoming := models.Upcoming(bookings, s.Today(), f)
	out := make([]View, 0, len(upcoming))
	for _, b := range upcoming {
		out = append(out, s.View(viewer, b))
	}
	return out, nil
}

// Create books the selected range. The caller refreshes its snapshot and
// clears the selection after success.
func (s *Service) Create(ctx context.Context, viewer *models.Viewer, sel selection.Selection, d Details) (*models.Booking, error) {
	done, ferr := s.begin(ctx, "create", viewer)
	if ferr != nil {
		return nil, ferr
	}
	defer done()

	span, ok := sel.Interval()
	if !ok || !span.Valid() {
		return nil, s.fail(ctx, "create", validation("dates", MsgNoSelection))
	}
	// A selection can outlive midnight in the session store.
	if span.Start.Before(s.Today()) {
		return nil, s.fail(ctx, "create", validation("dates", MsgPastDate))
	}
	name := strings.TrimSpace(d.GuestName)
	if !s.Roster().Contains(name) {
		return nil, s.fail(ctx, "create", validation("guest_name", MsgNameRequired))
	}
	if d.GuestCount < MinGuests || d.GuestCount > MaxGuests {
		return nil, s.fail(ctx, "create", validation("guest_count", MsgGuestCount))
	}

	nb := models.NewBooking{
		StartDate:        span.Start,
		EndDate:          span.End,
		GuestName:        name,
		GuestEmail:       viewer.Email,
		GuestCount:       d.GuestCount,
		AllowOtherFamily: d.AllowOtherFamily,
		Status:           models.StatusConfirmed,
		Checklist:        checklist.Checklist{},
	}
	if p := strings.TrimSpace(d.Purpose); p != "" {
		nb.Purpose = &p
	}

	created, err := s.insert(ctx, nb)
	if err != nil {
		if errors.Is(err, models.ErrOverlap) {
			return nil, s.fail(ctx, "create", &Error{Kind: KindConflict, Field: "dates", Message: MsgOverlap, Err: err})
		}
		return nil, s.fail(ctx, "create", persistence(err))
	}
	created.Normalize()

	metrics.IncBookingCreated()
	s.publish(events.BookingCreated, events.BookingPayload{
		BookingID:  created.ID,
		ActorEmail: viewer.Email,
		GuestName:  created.GuestName,
		StartDate:  created.StartDate.String(),
		EndDate:    created.EndDate.String(),
	})
	s.log(ctx).Info().
		Int64("booking_id", created.ID).
		Str("range", created.Interval().String()).
		Str("guest_name", created.GuestName).
		Msg("booking created")
	return created, nil
}

func (s *Service) insert(ctx context.Context, nb models.NewBooking) (*models.Booking, error) {
	if !s.opts.EnforceExclusive {
		return s.repo.InsertBooking(ctx, nb)
	}
	if ex, ok := s.repo.(ExclusiveInserter); ok {
		return ex.InsertBookingExclusive(ctx, nb)
	}
	// Stores without a serialized insert get a fresh check. A concurrent
	// insert between the check and the write is still possible.
	current, err := s.repo.ListBookings(ctx)
	if err != nil {
		return nil, err
	}
	ix := availability.Build(current, s.Today())
	if ix.RangeHasBlockedDay(nb.StartDate, nb.EndDate) {
		return nil, models.ErrOverlap
	}
	return s.repo.InsertBooking(ctx, nb)
}

// ownedConfirmed loads id and checks that viewer may modify it.
func (s *Service) ownedConfirmed(ctx context.Context, op string, viewer *models.Viewer, id int64) (*models.Booking, *Error) {
	b, err := s.Find(ctx, id)
	if err != nil {
		var be *Error
		errors.As(err, &be)
		return nil, be
	}
	if !b.OwnedBy(viewer.Email) {
		return nil, s.fail(ctx, op, &Error{Kind: KindPermission, Message: MsgNotOwner})
	}
	if !b.IsConfirmed() {
		return nil, s.fail(ctx, op, &Error{Kind: KindPermission, Message: MsgNotConfirmed})
	}
	return b, nil
}

// EditName changes guest_name, the only editable field.
func (s *Service) EditName(ctx context.Context, viewer *models.Viewer, id int64, newName string) (*models.Booking, error) {
	done, ferr := s.begin(ctx, "edit_name", viewer)
	if ferr != nil {
		return nil, ferr
	}
	defer done()

	name := strings.TrimSpace(newName)
	if !s.Roster().Contains(name) {
		return nil, s.fail(ctx, "edit_name", validation("guest_name", MsgNameRequired))
	}
	b, berr := s.ownedConfirmed(ctx, "edit_name", viewer, id)
	if berr != nil {
		return nil, berr
	}

	if err := s.repo.UpdateBooking(ctx, id, models.BookingPatch{GuestName: &name}); err != nil {
		return nil, s.fail(ctx, "edit_name", s.storeError(err))
	}
	b.GuestName = name

	metrics.IncBookingRenamed()
	s.publish(events.BookingRenamed, events.BookingPayload{BookingID: id, ActorEmail: viewer.Email, GuestName: name})
	s.log(ctx).Info().Int64("booking_id", id).Str("guest_name", name).Msg("booking renamed")
	return b, nil
}

// Delete hard-deletes a booking. Without confirmed nothing is sent to the store.
func (s *Service) Delete(ctx context.Context, viewer *models.Viewer, id int64, confirmed bool) error {
	done, ferr := s.begin(ctx, "delete", viewer)
	if ferr != nil {
		return ferr
	}
	defer done()

	if !confirmed {
		return &Error{Kind: KindConfirmationRequired, Message: MsgConfirmDelete}
	}
	b, berr := s.ownedConfirmed(ctx, "delete", viewer, id)
	if berr != nil {
		return berr
	}

	if err := s.repo.DeleteBooking(ctx, id); err != nil {
		return s.fail(ctx, "delete", s.storeError(err))
	}

	metrics.IncBookingDeleted()
	s.publish(events.BookingDeleted, events.BookingPayload{
		BookingID:  id,
		ActorEmail: viewer.Email,
		GuestName:  b.GuestName,
		StartDate:  b.StartDate.String(),
		EndDate:    b.EndDate.String(),
	})
	s.log(ctx).Info().Int64("booking_id", id).Msg("booking deleted")
	return nil
}

// ToggleChecklistItem flips one item and persists the whole map. Any
// authenticated viewer may do this.
func (s *Service) ToggleChecklistItem(ctx context.Context, viewer *models.Viewer, id int64, item string) (checklist.Checklist, error) {
	done, ferr := s.begin(ctx, "toggle_checklist", viewer)
	if ferr != nil {
		return nil, ferr
	}
	defer done()

	tpl := s.Checklist()
	if !tpl.Has(item) {
		return nil, s.fail(ctx, "toggle_checklist", validation("item", MsgUnknownItem))
	}
	b, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.IsConfirmed() {
		return nil, s.fail(ctx, "toggle_checklist", &Error{Kind: KindPermission, Message: MsgNotConfirmed})
	}

	next, err := tpl.Toggle(b.Checklist, item)
	if err != nil {
		return nil, s.fail(ctx, "toggle_checklist", validation("item", MsgUnknownItem))
	}
	if err := s.repo.UpdateBooking(ctx, id, models.BookingPatch{Checklist: next}); err != nil {
		return nil, s.fail(ctx, "toggle_checklist", s.storeError(err))
	}

	metrics.IncChecklistToggled(item)
	s.publish(events.ChecklistToggled, events.BookingPayload{
		BookingID:  id,
		ActorEmail: viewer.Email,
		Item:       item,
		Done:       next.Done(item),
	})
	s.log(ctx).Info().Int64("booking_id", id).Str("item", item).Bool("done", next.Done(item)).Msg("checklist toggled")
	return next, nil
}

func (s *Service) storeError(err error) *Error {
	if errors.Is(err, models.ErrBookingNotFound) {
		return &Error{Kind: KindNotFound, Message: MsgNotFound, Err: err}
	}
	return persistence(err)
}
