package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"skovkrogen/internal/booking"
	"skovkrogen/internal/checklist"
	"skovkrogen/internal/export"
	"skovkrogen/internal/interval"
	"skovkrogen/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type editNameRequest struct {
	GuestName string `json:"guest_name"`
}

// ChecklistResponse is returned after a toggle.
type ChecklistResponse struct {
	BookingID int64               `json:"booking_id"`
	Checklist checklist.Checklist `json:"checkout_checklist"`
	Progress  checklist.Progress  `json:"progress"`
}

func bookingID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid booking id")
	}
	return id, nil
}

func (s *HTTPServer) parseFilter(r *http.Request) (models.BookingFilter, error) {
	q := r.URL.Query()
	f := models.BookingFilter{Email: q.Get("email")}

	if v := q.Get("from"); v != "" {
		d, err := interval.Parse(v, s.svc.Location())
		if err != nil {
			return f, fmt.Errorf("invalid from date; expected YYYY-MM-DD")
		}
		f.From = d
	}
	if v := q.Get("to"); v != "" {
		d, err := interval.Parse(v, s.svc.Location())
		if err != nil {
			return f, fmt.Errorf("invalid to date; expected YYYY-MM-DD")
		}
		f.To = d
	}
	if v := q.Get("shared"); v != "" {
		shared, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("invalid shared flag")
		}
		f.SharedOnly = shared
	}
	return f, nil
}

// handleListBookings lists bookings that have not ended yet.
// GET /api/bookings?email=&from=&to=&shared=
func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	f, err := s.parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_request")
		return
	}
	views, err := s.svc.List(r.Context(), viewerFrom(r.Context()), f)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": views})
}

// handleCreateBooking books the viewer's current selection and clears it.
// POST /api/bookings
func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req booking.Details
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "bad_request")
		return
	}

	ctx := r.Context()
	viewer := viewerFrom(ctx)
	key := selectionKey(viewer)
	sel, err := s.selections.Get(ctx, key)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("load selection")
		writeError(w, http.StatusInternalServerError, booking.MsgGeneric, string(booking.KindPersistence))
		return
	}

	created, err := s.svc.Create(ctx, viewer, sel, req)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	if err := s.selections.Clear(ctx, key); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("clear selection after booking")
	}
	writeJSON(w, http.StatusCreated, s.svc.View(viewer, *created))
}

// PATCH /api/bookings/{id}
func (s *HTTPServer) handleEditName(w http.ResponseWriter, r *http.Request) {
	id, err := bookingID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_request")
		return
	}
	var req editNameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "bad_request")
		return
	}

	viewer := viewerFrom(r.Context())
	b, err := s.svc.EditName(r.Context(), viewer, id, req.GuestName)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.View(viewer, *b))
}

// handleDeleteBooking deletes a booking. Without confirm=true the response is
// 428 with the confirmation prompt and nothing is deleted.
// DELETE /api/bookings/{id}?confirm=true
func (s *HTTPServer) handleDeleteBooking(w http.ResponseWriter, r *http.Request) {
	id, err := bookingID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_request")
		return
	}
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))

	if err := s.svc.Delete(r.Context(), viewerFrom(r.Context()), id, confirmed); err != nil {
		writeWorkflowError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/bookings/{id}/checklist/{item}
func (s *HTTPServer) handleToggleChecklist(w http.ResponseWriter, r *http.Request) {
	id, err := bookingID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_request")
		return
	}
	item := chi.URLParam(r, "item")

	next, err := s.svc.ToggleChecklistItem(r.Context(), viewerFrom(r.Context()), id, item)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ChecklistResponse{
		BookingID: id,
		Checklist: next,
		Progress:  s.svc.Checklist().Progress(next),
	})
}

// GET /api/bookings/{id}/calendar.ics
func (s *HTTPServer) handleBookingICS(w http.ResponseWriter, r *http.Request) {
	id, err := bookingID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_request")
		return
	}
	b, err := s.svc.Find(r.Context(), id)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="booking-%d.ics"`, id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(export.ICS(time.Now(), *b)))
}

// GET /api/bookings/{id}/gcal
func (s *HTTPServer) handleGoogleCalendar(w http.ResponseWriter, r *http.Request) {
	id, err := bookingID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_request")
		return
	}
	b, err := s.svc.Find(r.Context(), id)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": export.GoogleCalendarURL(b)})
}

// handleExportWorkbook downloads every booking as an Excel workbook.
// GET /api/bookings/export.xlsx
func (s *HTTPServer) handleExportWorkbook(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Snapshot(r.Context())
	if err != nil {
		writeWorkflowError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteWorkbook(&buf, snap.Bookings, snap.Index.Conflicts(), s.svc.Checklist()); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("write workbook")
		writeError(w, http.StatusInternalServerError, booking.MsgGeneric, "export_failed")
		return
	}

	name := fmt.Sprintf("skovkrogen_%s.xlsx", s.svc.Today().Compact())
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
