package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"skovkrogen/internal/availability"
	"skovkrogen/internal/booking"
	"skovkrogen/internal/checklist"
	"skovkrogen/internal/interval"
	"skovkrogen/internal/metrics"
	"skovkrogen/internal/models"
	"skovkrogen/internal/selection"

	"github.com/rs/zerolog"
)

// CalendarResponse is the response for GET /api/calendar.
type CalendarResponse struct {
	Month   string                   `json:"month"`
	Today   interval.Day             `json:"today"`
	Horizon *interval.Day            `json:"horizon,omitempty"`
	Days    []availability.DayStatus `json:"days"`
}

// SelectionResponse carries the viewer's picker state.
type SelectionResponse struct {
	Selection selection.Selection `json:"selection"`
	Range     *interval.Interval  `json:"range,omitempty"`
	Days      int                 `json:"days"`
}

// ClickResponse is the response for POST /api/selection/click.
type ClickResponse struct {
	SelectionResponse
	Outcome selection.Outcome `json:"outcome"`
	Message string            `json:"message,omitempty"`
}

type clickRequest struct {
	Date string `json:"date"`
}

func selectionResponse(sel selection.Selection) SelectionResponse {
	resp := SelectionResponse{Selection: sel}
	if span, ok := sel.Interval(); ok {
		resp.Range = &span
		resp.Days = span.Len()
	}
	return resp
}

func selectionKey(v *models.Viewer) string {
	return strings.ToLower(v.Email)
}

// GET /api/roster
func (s *HTTPServer) handleRoster(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"names": s.svc.Roster()})
}

// GET /api/checklist/items
func (s *HTTPServer) handleChecklistItems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]checklist.Item{"items": s.svc.Checklist().Items()})
}

func parseMonth(v string, today interval.Day) (int, time.Month, error) {
	if v == "" {
		return today.Year(), today.Month(), nil
	}
	t, err := time.Parse("2006-01", v)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid month format; expected YYYY-MM")
	}
	return t.Year(), t.Month(), nil
}

// handleCalendar lists every day of a month with its availability.
// GET /api/calendar?month=YYYY-MM
func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseMonth(r.URL.Query().Get("month"), s.svc.Today())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_request")
		return
	}

	snap, err := s.svc.Snapshot(r.Context())
	if err != nil {
		writeWorkflowError(w, err)
		return
	}

	resp := CalendarResponse{
		Month: fmt.Sprintf("%04d-%02d", year, int(month)),
		Today: snap.Index.Today(),
		Days:  snap.Index.Month(year, month),
	}
	if h := snap.Index.Horizon(); !h.IsZero() {
		resp.Horizon = &h
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /api/conflicts
func (s *HTTPServer) handleConflicts(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Snapshot(r.Context())
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	conflicts := snap.Index.Conflicts()
	if conflicts == nil {
		conflicts = []availability.Conflict{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conflicts": conflicts})
}

// GET /api/selection
func (s *HTTPServer) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	sel, err := s.selections.Get(r.Context(), selectionKey(viewerFrom(r.Context())))
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("load selection")
		writeError(w, http.StatusInternalServerError, booking.MsgGeneric, string(booking.KindPersistence))
		return
	}
	writeJSON(w, http.StatusOK, selectionResponse(sel))
}

// handleClick feeds one day click into the viewer's selection. Blocked days
// and refused ranges are reported in the outcome with status 200.
// POST /api/selection/click
func (s *HTTPServer) handleClick(w http.ResponseWriter, r *http.Request) {
	var req clickRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "bad_request")
		return
	}
	day, err := interval.Parse(req.Date, s.svc.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD", "bad_request")
		return
	}

	ctx := r.Context()
	key := selectionKey(viewerFrom(ctx))
	sel, err := s.selections.Get(ctx, key)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("load selection")
		writeError(w, http.StatusInternalServerError, booking.MsgGeneric, string(booking.KindPersistence))
		return
	}

	snap, err := s.svc.Snapshot(ctx)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}

	next, out := s.machine.Click(sel, day, snap.Index)
	metrics.IncSelectionClick(string(out.Kind))
	if out.Kind == selection.Accepted {
		if err := s.selections.Put(ctx, key, next); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("save selection")
			writeError(w, http.StatusInternalServerError, booking.MsgGeneric, string(booking.KindPersistence))
			return
		}
	}

	writeJSON(w, http.StatusOK, ClickResponse{
		SelectionResponse: selectionResponse(next),
		Outcome:           out,
		Message:           out.Message(),
	})
}

// DELETE /api/selection
func (s *HTTPServer) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	if err := s.selections.Clear(r.Context(), selectionKey(viewerFrom(r.Context()))); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("clear selection")
		writeError(w, http.StatusInternalServerError, booking.MsgGeneric, string(booking.KindPersistence))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
