package booking

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
	"skovkrogen/internal/selection"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) ListBookings(ctx context.Context) ([]models.Booking, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}

func (m *mockRepo) InsertBooking(ctx context.Context, nb models.NewBooking) (*models.Booking, error) {
	args := m.Called(ctx, nb)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockRepo) UpdateBooking(ctx context.Context, id int64, patch models.BookingPatch) error {
	return m.Called(ctx, id, patch).Error(0)
}

func (m *mockRepo) DeleteBooking(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

// memRepo is a minimal store with the same contract as the real ones.
type memRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   []models.Booking
}

func (r *memRepo) ListBookings(_ context.Context) ([]models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Booking(nil), r.rows...), nil
}

func (r *memRepo) InsertBooking(_ context.Context, nb models.NewBooking) (*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	b := models.Booking{
		ID:               r.nextID,
		StartDate:        nb.StartDate,
		EndDate:          nb.EndDate,
		GuestName:        nb.GuestName,
		GuestEmail:       nb.GuestEmail,
		GuestCount:       nb.GuestCount,
		AllowOtherFamily: nb.AllowOtherFamily,
		Purpose:          nb.Purpose,
		Status:           nb.Status,
		Checklist:        nb.Checklist,
		CreatedAt:        time.Now(),
	}
	r.rows = append(r.rows, b)
	return &b, nil
}

func (r *memRepo) UpdateBooking(_ context.Context, id int64, patch models.BookingPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		if r.rows[i].ID == id {
			if patch.GuestName != nil {
				r.rows[i].GuestName = *patch.GuestName
			}
			if patch.Checklist != nil {
				r.rows[i].Checklist = patch.Checklist
			}
			return nil
		}
	}
	return models.ErrBookingNotFound
}

func (r *memRepo) DeleteBooking(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		if r.rows[i].ID == id {
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			return nil
		}
	}
	return models.ErrBookingNotFound
}

func d(s string) interval.Day { return interval.MustParse(s) }

var (
	viewerA = &models.Viewer{ID: "u-a", Email: "a@x.com"}
	viewerB = &models.Viewer{ID: "u-b", Email: "b@x.com"}
)

func newTestService(repo Repository, bus Publisher, today string) *Service {
	now := d(today).Time(time.UTC).Add(10 * time.Hour)
	return NewService(repo, bus, Options{
		Location: time.UTC,
		Now:      func() time.Time { return now },
	}, zerolog.New(io.Discard))
}

func rangeSel(start, end string) selection.Selection {
	return selection.Selection{State: selection.StateRangeComplete, Start: d(start), End: d(end)}
}

func TestCreate_SimpleBooking(t *testing.T) {
	repo := &memRepo{}
	bus := events.NewEventBus()
	var published []events.Event
	bus.Subscribe(events.BookingCreated, func(e events.Event) error {
		published = append(published, e)
		return nil
	})
	svc := newTestService(repo, bus, "2024-07-01")
	ctx := context.Background()

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	m := selection.NewMachine()
	sel, _ := m.Click(selection.Empty(), d("2024-07-10"), snap.Index)
	sel, _ = m.Click(sel, d("2024-07-14"), snap.Index)

	b, err := svc.Create(ctx, viewerA, sel, Details{GuestName: "Kurt", GuestCount: 2})
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, b.Status)
	assert.Nil(t, b.Purpose)
	assert.NotNil(t, b.Checklist)

	snap, err = svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Bookings, 1)
	stored := snap.Bookings[0]
	assert.Equal(t, d("2024-07-10"), stored.StartDate)
	assert.Equal(t, d("2024-07-14"), stored.EndDate)
	assert.Equal(t, "a@x.com", stored.GuestEmail)

	for day := d("2024-07-10"); !day.After(d("2024-07-14")); day = day.AddDays(1) {
		assert.True(t, snap.Index.IsBlocked(day), day.String())
	}
	assert.False(t, snap.Index.IsBlocked(d("2024-07-15")))
	require.Len(t, published, 1)
}

func TestCreate_SingleDayFromAnchor(t *testing.T) {
	repo := &memRepo{}
	svc := newTestService(repo, nil, "2024-07-01")

	sel := selection.Selection{State: selection.StateAnchorSet, Start: d("2024-07-20")}
	b, err := svc.Create(context.Background(), viewerA, sel, Details{GuestName: "Mina", GuestCount: 1, Purpose: "  Fødselsdag "})
	require.NoError(t, err)
	assert.Equal(t, b.StartDate, b.EndDate)
	require.NotNil(t, b.Purpose)
	assert.Equal(t, "Fødselsdag", *b.Purpose)
}

func TestCreate_Validation(t *testing.T) {
	repo := new(mockRepo)
	svc := newTestService(repo, nil, "2024-07-01")
	ctx := context.Background()

	tests := []struct {
		name    string
		viewer  *models.Viewer
		sel     selection.Selection
		details Details
		kind    Kind
		field   string
		msg     string
	}{
		{"no selection", viewerA, selection.Empty(), Details{GuestName: "Kurt", GuestCount: 2}, KindValidation, "dates", MsgNoSelection},
		{"empty name", viewerA, rangeSel("2024-07-10", "2024-07-11"), Details{GuestCount: 2}, KindValidation, "guest_name", MsgNameRequired},
		{"name outside roster", viewerA, rangeSel("2024-07-10", "2024-07-11"), Details{GuestName: "Bob", GuestCount: 2}, KindValidation, "guest_name", MsgNameRequired},
		{"zero guests", viewerA, rangeSel("2024-07-10", "2024-07-11"), Details{GuestName: "Kurt", GuestCount: 0}, KindValidation, "guest_count", MsgGuestCount},
		{"too many guests", viewerA, rangeSel("2024-07-10", "2024-07-11"), Details{GuestName: "Kurt", GuestCount: 21}, KindValidation, "guest_count", MsgGuestCount},
		{"anchor now in the past", viewerA, selection.Selection{State: selection.StateAnchorSet, Start: d("2024-06-30")}, Details{GuestName: "Kurt", GuestCount: 2}, KindValidation, "dates", MsgPastDate},
		{"range starting yesterday", viewerA, rangeSel("2024-06-30", "2024-07-03"), Details{GuestName: "Kurt", GuestCount: 2}, KindValidation, "dates", MsgPastDate},
		{"anonymous", nil, rangeSel("2024-07-10", "2024-07-11"), Details{GuestName: "Kurt", GuestCount: 2}, KindUnauthenticated, "", MsgUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.viewer, tt.sel, tt.details)
			var be *Error
			require.ErrorAs(t, err, &be)
			assert.Equal(t, tt.kind, be.Kind)
			assert.Equal(t, tt.field, be.Field)
			assert.Equal(t, tt.msg, UserMessage(err))
		})
	}
	repo.AssertNotCalled(t, "InsertBooking", mock.Anything, mock.Anything)
}

func TestCreate_GuestCountBounds(t *testing.T) {
	for _, n := range []int{1, 20} {
		svc := newTestService(&memRepo{}, nil, "2024-07-01")
		_, err := svc.Create(context.Background(), viewerA, rangeSel("2024-07-10", "2024-07-11"), Details{GuestName: "Kurt", GuestCount: n})
		assert.NoError(t, err, "guest count %d", n)
	}
}

func TestCreate_PersistenceFailure(t *testing.T) {
	repo := new(mockRepo)
	svc := newTestService(repo, nil, "2024-07-01")
	ctx := context.Background()

	repo.On("InsertBooking", ctx, mock.AnythingOfType("models.NewBooking")).
		Return(nil, errors.New("connection reset")).Once()

	_, err := svc.Create(ctx, viewerA, rangeSel("2024-07-10", "2024-07-14"), Details{GuestName: "Kurt", GuestCount: 2})
	assert.True(t, IsKind(err, KindPersistence))
	assert.Equal(t, MsgGeneric, UserMessage(err))
	repo.AssertNumberOfCalls(t, "InsertBooking", 1)
}

func TestCreate_TodayIsBookable(t *testing.T) {
	svc := newTestService(&memRepo{}, nil, "2024-07-01")
	sel := selection.Selection{State: selection.StateAnchorSet, Start: d("2024-07-01")}
	b, err := svc.Create(context.Background(), viewerA, sel, Details{GuestName: "Kurt", GuestCount: 2})
	require.NoError(t, err)
	assert.Equal(t, d("2024-07-01"), b.StartDate)
}

func TestCreate_StoredDatesAreNormalized(t *testing.T) {
	repo := new(mockRepo)
	svc := newTestService(repo, nil, "2024-07-01")
	ctx := context.Background()

	repo.On("InsertBooking", ctx, mock.MatchedBy(func(nb models.NewBooking) bool {
		return nb.StartDate.String() == "2024-07-10" &&
			nb.EndDate.String() == "2024-07-14" &&
			nb.Status == models.StatusConfirmed &&
			nb.GuestEmail == "a@x.com" &&
			nb.Checklist != nil
	})).Return(&models.Booking{ID: 1, StartDate: d("2024-07-10"), EndDate: d("2024-07-14")}, nil).Once()

	_, err := svc.Create(ctx, viewerA, rangeSel("2024-07-14", "2024-07-10"), Details{GuestName: "Kurt", GuestCount: 2})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

// getterRepo adds single-row loads to memRepo.
type getterRepo struct {
	*memRepo
	gets int
}

func (r *getterRepo) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	r.gets++
	rows, _ := r.ListBookings(ctx)
	for i := range rows {
		if rows[i].ID == id {
			return &rows[i], nil
		}
	}
	return nil, models.ErrBookingNotFound
}

func TestFind_UsesSingleRowGetter(t *testing.T) {
	repo := &getterRepo{memRepo: &memRepo{}}
	id := seed(repo.memRepo, "a@x.com", "2024-07-10", "2024-07-14", models.StatusConfirmed)
	svc := newTestService(repo, nil, "2024-07-01")
	ctx := context.Background()

	b, err := svc.Find(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, b.ID)
	assert.Equal(t, 1, repo.gets)

	_, err = svc.Find(ctx, id+100)
	assert.True(t, IsKind(err, KindNotFound))
	assert.Equal(t, MsgNotFound, UserMessage(err))
}

func seed(repo *memRepo, owner string, start, end string, status models.Status) int64 {
	b, _ := repo.InsertBooking(context.Background(), models.NewBooking{
		StartDate:  d(start),
		EndDate:    d(end),
		GuestName:  "Kurt",
		GuestEmail: owner,
		GuestCount: 2,
		Status:     status,
		Checklist:  checklist.Checklist{},
	})
	return b.ID
}

func TestOwnershipGate(t *testing.T) {
	repo := &memRepo{}
	id := seed(repo, "a@x.com", "2024-07-10", "2024-07-14", models.StatusConfirmed)
	svc := newTestService(repo, nil, "2024-07-01")
	ctx := context.Background()

	t.Run("other viewer cannot edit", func(t *testing.T) {
		_, err := svc.EditName(ctx, viewerB, id, "Beth")
		assert.True(t, IsKind(err, KindPermission))
	})

	t.Run("other viewer cannot delete", func(t *testing.T) {
		err := svc.Delete(ctx, viewerB, id, true)
		assert.True(t, IsKind(err, KindPermission))
		rows, _ := repo.ListBookings(ctx)
		assert.Len(t, rows, 1)
	})

	t.Run("other viewer can toggle checklist", func(t *testing.T) {
		c, err := svc.ToggleChecklistItem(ctx, viewerB, id, "lock_doors")
		require.NoError(t, err)
		assert.True(t, c.Done("lock_doors"))
	})

	t.Run("owner can edit", func(t *testing.T) {
		b, err := svc.EditName(ctx, viewerA, id, "Beth")
		require.NoError(t, err)
		assert.Equal(t, "Beth", b.GuestName)
		rows, _ := repo.ListBookings(ctx)
		assert.Equal(t, "Beth", rows[0].GuestName)
		assert.Equal(t, d("2024-07-10"), rows[0].StartDate)
	})

	t.Run("owner email compared case-insensitively", func(t *testing.T) {
		_, err := svc.EditName(ctx, &models.Viewer{Email: "A@X.com"}, id, "Mina")
		assert.NoError(t, err)
	})
}

func TestEditName_RejectsNameOutsideRoster(t *testing.T) {
	repo := &memRepo{}
	id := seed(repo, "a@x.com", "2024-07-10", "2024-07-14", models.StatusConfirmed)
	svc := newTestService(repo, nil, "2024-07-01")

	_, err := svc.EditName(context.Background(), viewerA, id, "Bob")
	assert.True(t, IsKind(err, KindValidation))
}

func TestNonConfirmedBookingsAreReadOnly(t *testing.T) {
	repo := &memRepo{}
	id := seed(repo, "a@x.com", "2024-07-10", "2024-07-14", models.StatusCancelled)
	svc := newTestService(repo, nil, "2024-07-01")
	ctx := context.Background()

	_, err := svc.EditName(ctx, viewerA, id, "Beth")
	assert.True(t, IsKind(err, KindPermission))
	assert.True(t, IsKind(svc.Delete(ctx, viewerA, id, true), KindPermission))
	_, err = svc.ToggleChecklistItem(ctx, viewerA, id, "lock_doors")
	assert.True(t, IsKind(err, KindPermission))
}

func TestDelete_RequiresConfirmation(t *testing.T) {
	repo := new(mockRepo)
	svc := newTestService(repo, nil, "2024-07-01")

	err := svc.Delete(context.Background(), viewerA, 1, false)
	assert.True(t, IsKind(err, KindConfirmationRequired))
	repo.AssertNotCalled(t, "ListBookings", mock.Anything)
	repo.AssertNotCalled(t, "DeleteBooking", mock.Anything, mock.Anything)
}

func TestDelete_Owner(t *testing.T) {
	repo := &memRepo{}
	id := seed(repo, "a@x.com", "2024-07-10", "2024-07-14", models.StatusConfirmed)
	bus := events.NewEventBus()
	var deleted int
	bus.Subscribe(events.BookingDeleted, func(events.Event) error { deleted++; return nil })
	svc := newTestService(repo, bus, "2024-07-01")

	require.NoError(t, svc.Delete(context.Background(), viewerA, id, true))
	rows, _ := repo.ListBookings(context.Background())
	assert.Empty(t, rows)
	assert.Equal(t, 1, deleted)

	err := svc.Delete(context.Background(), viewerA, id, true)
	assert.True(t, IsKind(err, KindNotFound))
}

func TestToggleChecklist_TwiceRestores(t *testing.T) {
	repo := &memRepo{}
	id := seed(repo, "a@x.com", "2024-07-10", "2024-07-14", models.StatusConfirmed)
	svc := newTestService(repo, nil, "2024-07-01")
	ctx := context.Background()

	first, err := svc.ToggleChecklistItem(ctx, viewerA, id, "turn_off_heat")
	require.NoError(t, err)
	assert.True(t, first.Done("turn_off_heat"))

	second, err := svc.ToggleChecklistItem(ctx, viewerA, id, "turn_off_heat")
	require.NoError(t, err)
	// Absent keys read as false, so equality is per template item rather
	// than map equality: second may hold an explicit false the seed lacked.
	for _, it := range svc.Checklist().Items() {
		assert.Equal(t, checklist.Checklist{}.Done(it.ID), second.Done(it.ID), it.ID)
	}

	_, err = svc.ToggleChecklistItem(ctx, viewerA, id, "feed_cat")
	assert.True(t, IsKind(err, KindValidation))
}

func TestToggleChecklist_PersistsWholeMap(t *testing.T) {
	repo := new(mockRepo)
	svc := newTestService(repo, nil, "2024-07-01")
	ctx := context.Background()

	repo.On("ListBookings", ctx).Return([]models.Booking{{
		ID:         5,
		StartDate:  d("2024-07-10"),
		EndDate:    d("2024-07-12"),
		GuestEmail: "a@x.com",
		Status:     models.StatusConfirmed,
		Checklist:  checklist.Checklist{"lock_doors": true},
	}}, nil).Once()
	repo.On("UpdateBooking", ctx, int64(5), models.BookingPatch{
		Checklist: checklist.Checklist{"lock_doors": true, "empty_trash": true},
	}).Return(nil).Once()

	c, err := svc.ToggleChecklistItem(ctx, viewerB, 5, "empty_trash")
	require.NoError(t, err)
	assert.Equal(t, 2, svc.Checklist().Progress(c).Completed)
	repo.AssertExpectations(t)
}

func TestList_FutureOnlyWithViews(t *testing.T) {
	repo := &memRepo{}
	seed(repo, "a@x.com", "2024-06-01", "2024-06-03", models.StatusConfirmed)
	seed(repo, "b@x.com", "2024-08-01", "2024-08-03", models.StatusConfirmed)
	seed(repo, "a@x.com", "2024-07-10", "2024-07-14", models.StatusConfirmed)
	svc := newTestService(repo, nil, "2024-07-01")

	views, err := svc.List(context.Background(), viewerA, models.BookingFilter{})
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, d("2024-07-10"), views[0].StartDate)
	assert.True(t, views[0].CanEdit)
	assert.False(t, views[1].Owned)
	assert.Equal(t, 6, views[0].Progress.Total)
}

func TestSnapshot_PersistenceFailure(t *testing.T) {
	repo := new(mockRepo)
	svc := newTestService(repo, nil, "2024-07-01")
	ctx := context.Background()
	repo.On("ListBookings", ctx).Return(nil, errors.New("timeout")).Once()

	_, err := svc.Snapshot(ctx)
	assert.True(t, IsKind(err, KindPersistence))
	assert.Equal(t, MsgGeneric, UserMessage(err))
}

func TestSnapshot_Horizon(t *testing.T) {
	now := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	svc := NewService(&memRepo{}, nil, Options{
		Location:      time.UTC,
		HorizonMonths: 60,
		Now:           func() time.Time { return now },
	}, zerolog.New(io.Discard))

	snap, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, d("2029-07-01"), snap.Index.Horizon())
}

// Two sessions that fetched before either inserted both succeed: overlap is
// only checked at selection time.
func TestConcurrentSessionsCanDoubleBook(t *testing.T) {
	repo := &memRepo{}
	svc := newTestService(repo, nil, "2024-07-01")
	ctx := context.Background()
	m := selection.NewMachine()

	snapA, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	snapB, err := svc.Snapshot(ctx)
	require.NoError(t, err)

	selA, _ := m.Click(selection.Empty(), d("2024-07-10"), snapA.Index)
	selA, _ = m.Click(selA, d("2024-07-14"), snapA.Index)
	selB, _ := m.Click(selection.Empty(), d("2024-07-12"), snapB.Index)
	selB, _ = m.Click(selB, d("2024-07-16"), snapB.Index)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = svc.Create(ctx, viewerA, selA, Details{GuestName: "Kurt", GuestCount: 2})
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = svc.Create(ctx, viewerB, selB, Details{GuestName: "Beth", GuestCount: 3})
	}()
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Index.Conflicts(), 1)
}

func TestEnforceExclusive_FallbackCheck(t *testing.T) {
	repo := &memRepo{}
	seed(repo, "b@x.com", "2024-07-12", "2024-07-16", models.StatusConfirmed)
	now := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	svc := NewService(repo, nil, Options{
		Location:         time.UTC,
		EnforceExclusive: true,
		Now:              func() time.Time { return now },
	}, zerolog.New(io.Discard))

	_, err := svc.Create(context.Background(), viewerA, rangeSel("2024-07-10", "2024-07-14"), Details{GuestName: "Kurt", GuestCount: 2})
	assert.True(t, IsKind(err, KindConflict))
	assert.ErrorIs(t, err, models.ErrOverlap)
}

func TestBusyViewerRejected(t *testing.T) {
	svc := newTestService(&memRepo{}, nil, "2024-07-01")
	require.True(t, svc.acquire("a@x.com"))
	defer svc.release("a@x.com")

	_, err := svc.Create(context.Background(), viewerA, rangeSel("2024-07-10", "2024-07-14"), Details{GuestName: "Kurt", GuestCount: 2})
	assert.True(t, IsKind(err, KindBusy))
}
