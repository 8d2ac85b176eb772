package export

import (
	"fmt"
	"io"

	"skovkrogen/internal/availability"
	"skovkrogen/internal/checklist"
	"skovkrogen/internal/models"

	"github.com/xuri/excelize/v2"
)

// BookingColumns are the headers of the bookings sheet.
var BookingColumns = []string{
	"ID", "Fra", "Til", "Dage", "Navn", "Email", "Antal personer",
	"Andre familier velkomne", "Formål", "Status", "Tjekliste",
}

// SheetWriter writes rows to an Excel workbook one sheet at a time.
type SheetWriter struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
}

func NewSheetWriter() *SheetWriter {
	return &SheetWriter{file: excelize.NewFile()}
}

// AddSheet starts a new sheet. The first call renames the default sheet.
func (w *SheetWriter) AddSheet(name string) error {
	if len(name) > 31 {
		name = name[:31]
	}

	if w.currentSheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return err
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	w.currentSheet = name
	w.currentRow = 1
	return nil
}

// WriteHeader writes bold column headers to the current sheet.
func (w *SheetWriter) WriteHeader(columns []string) error {
	row := make([]any, len(columns))
	for i, c := range columns {
		row[i] = c
	}
	if err := w.WriteRow(row); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, w.currentRow-1)
		endCell, _ := excelize.CoordinatesToCellName(len(columns), w.currentRow-1)
		_ = w.file.SetCellStyle(w.currentSheet, startCell, endCell, style)
	}
	return nil
}

// WriteRow writes one row to the current sheet.
func (w *SheetWriter) WriteRow(row []any) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}
	cell, err := excelize.CoordinatesToCellName(1, w.currentRow)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(w.currentSheet, cell, &row); err != nil {
		return err
	}
	w.currentRow++
	return nil
}

func (w *SheetWriter) Save(wr io.Writer) error {
	return w.file.Write(wr)
}

func (w *SheetWriter) Close() error {
	return w.file.Close()
}

// BookingRow flattens b for a spreadsheet row.
func BookingRow(b *models.Booking, tpl *checklist.Template) []any {
	shared := "Nej"
	if b.AllowOtherFamily {
		shared = "Ja"
	}
	p := tpl.Progress(b.Checklist)
	return []any{
		b.ID,
		b.StartDate.String(),
		b.EndDate.String(),
		b.Interval().Len(),
		b.GuestName,
		b.GuestEmail,
		b.GuestCount,
		shared,
		b.PurposeText(),
		string(b.Status),
		fmt.Sprintf("%d/%d", p.Completed, p.Total),
	}
}

// WriteWorkbook writes a report with a bookings sheet and, when overlapping
// confirmed bookings exist, a conflicts sheet.
func WriteWorkbook(wr io.Writer, bookings []models.Booking, conflicts []availability.Conflict, tpl *checklist.Template) error {
	w := NewSheetWriter()
	defer w.Close()

	if err := w.AddSheet("Bookinger"); err != nil {
		return err
	}
	if err := w.WriteHeader(BookingColumns); err != nil {
		return err
	}
	for i := range bookings {
		if err := w.WriteRow(BookingRow(&bookings[i], tpl)); err != nil {
			return err
		}
	}

	if len(conflicts) > 0 {
		if err := w.AddSheet("Konflikter"); err != nil {
			return err
		}
		if err := w.WriteHeader([]string{"Booking", "Periode", "Overlapper booking", "Periode"}); err != nil {
			return err
		}
		for _, c := range conflicts {
			row := []any{c.First.ID, c.First.Interval().String(), c.Second.ID, c.Second.Interval().String()}
			if err := w.WriteRow(row); err != nil {
				return err
			}
		}
	}

	return w.Save(wr)
}
