// Package google mirrors the booking list into a Google Sheet so the family
// can read it without logging in.
package google

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"skovkrogen/internal/checklist"
	"skovkrogen/internal/interval"
	"skovkrogen/internal/models"

	"github.com/rs/zerolog"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// ValuesAPI is the part of the Sheets API the mirror uses.
type ValuesAPI interface {
	Clear(ctx context.Context, spreadsheetID, rng string) error
	Update(ctx context.Context, spreadsheetID, rng string, values [][]any) error
}

type sheetsValues struct {
	srv *sheets.Service
}

func (s *sheetsValues) Clear(ctx context.Context, spreadsheetID, rng string) error {
	_, err := s.srv.Spreadsheets.Values.Clear(spreadsheetID, rng, &sheets.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

func (s *sheetsValues) Update(ctx context.Context, spreadsheetID, rng string, values [][]any) error {
	vr := &sheets.ValueRange{Values: values}
	_, err := s.srv.Spreadsheets.Values.Update(spreadsheetID, rng, vr).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// NewValuesAPI authenticates with a service-account JSON key file.
func NewValuesAPI(ctx context.Context, credentialsFile string) (ValuesAPI, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	creds, err := googleoauth.CredentialsFromJSON(ctx, data, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	srv, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &sheetsValues{srv: srv}, nil
}

// a1 builds a range like 'Sheet name'!A1.
func a1(sheet, cells string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'!" + cells
}

var headerRow = []any{
	"ID", "Fra", "Til", "Navn", "Email", "Antal personer",
	"Andre familier velkomne", "Formål", "Status", "Tjekliste",
}

// SheetsService writes the booking list and a day-by-day occupancy sheet.
type SheetsService struct {
	api           ValuesAPI
	spreadsheetID string
	sheetName     string
	logger        *zerolog.Logger
	checklist     *checklist.Template
}

func NewSheetsService(api ValuesAPI, spreadsheetID, sheetName string, tpl *checklist.Template, logger *zerolog.Logger) *SheetsService {
	if tpl == nil {
		tpl = checklist.Default()
	}
	return &SheetsService{
		api:           api,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logger,
		checklist:     tpl,
	}
}

// SetChecklist swaps the template used for progress columns.
func (s *SheetsService) SetChecklist(tpl *checklist.Template) {
	if tpl != nil {
		s.checklist = tpl
	}
}

// filterActiveBookings drops cancelled bookings and sorts by start date.
func (s *SheetsService) filterActiveBookings(bookings []models.Booking) []models.Booking {
	active := make([]models.Booking, 0, len(bookings))
	for _, b := range bookings {
		if b.Status == models.StatusCancelled {
			continue
		}
		active = append(active, b)
	}
	sort.SliceStable(active, func(i, j int) bool {
		if c := active[i].StartDate.Compare(active[j].StartDate); c != 0 {
			return c < 0
		}
		return active[i].ID < active[j].ID
	})
	return active
}

func bookingRowValues(b *models.Booking, tpl *checklist.Template) []any {
	shared := "Nej"
	if b.AllowOtherFamily {
		shared = "Ja"
	}
	p := tpl.Progress(b.Checklist)
	return []any{
		b.ID,
		b.StartDate.String(),
		b.EndDate.String(),
		b.GuestName,
		b.GuestEmail,
		b.GuestCount,
		shared,
		b.PurposeText(),
		string(b.Status),
		fmt.Sprintf("%d/%d", p.Completed, p.Total),
	}
}

// SyncBookings rewrites the bookings sheet.
func (s *SheetsService) SyncBookings(ctx context.Context, bookings []models.Booking) error {
	active := s.filterActiveBookings(bookings)

	values := make([][]any, 0, len(active)+1)
	values = append(values, headerRow)
	for i := range active {
		values = append(values, bookingRowValues(&active[i], s.checklist))
	}

	rng := a1(s.sheetName, "A:Z")
	if err := s.api.Clear(ctx, s.spreadsheetID, rng); err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	if err := s.api.Update(ctx, s.spreadsheetID, a1(s.sheetName, "A1"), values); err != nil {
		return fmt.Errorf("update %s: %w", s.sheetName, err)
	}

	if s.logger != nil {
		s.logger.Info().Int("rows", len(active)).Str("sheet", s.sheetName).Msg("Bookings synced to Google Sheets")
	}
	return nil
}

// prepareDateHeaders returns "Dato" followed by dd.MM for every day in
// [start, end], and the number of day columns.
func (s *SheetsService) prepareDateHeaders(start, end interval.Day) ([]any, int) {
	days := interval.Span(start, end).Days()
	headers := make([]any, 0, len(days)+1)
	headers = append(headers, "Dato")
	for _, d := range days {
		headers = append(headers, fmt.Sprintf("%02d.%02d", d.Day(), int(d.Month())))
	}
	return headers, len(days)
}

// formatOccupancyCell names whoever holds day, "" when free.
func (s *SheetsService) formatOccupancyCell(day interval.Day, confirmed []models.Booking) string {
	for i := range confirmed {
		if confirmed[i].Interval().Contains(day) {
			return confirmed[i].GuestName
		}
	}
	return ""
}

// SyncOccupancy writes one row of day headers and one row of names for
// [start, end] to the "<sheet> belægning" sheet.
func (s *SheetsService) SyncOccupancy(ctx context.Context, confirmed []models.Booking, start, end interval.Day) error {
	headers, n := s.prepareDateHeaders(start, end)
	row := make([]any, 0, n+1)
	row = append(row, "Booket af")
	for _, d := range interval.Span(start, end).Days() {
		row = append(row, s.formatOccupancyCell(d, confirmed))
	}

	sheet := s.sheetName + " belægning"
	if err := s.api.Clear(ctx, s.spreadsheetID, a1(sheet, "A:ZZZ")); err != nil {
		return fmt.Errorf("clear %s: %w", sheet, err)
	}
	if err := s.api.Update(ctx, s.spreadsheetID, a1(sheet, "A1"), [][]any{headers, row}); err != nil {
		return fmt.Errorf("update %s: %w", sheet, err)
	}
	return nil
}
