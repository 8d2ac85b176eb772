package bot

import (
	"fmt"
	"time"

	"skovkrogen/internal/availability"
	"skovkrogen/internal/interval"
	"skovkrogen/internal/selection"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var monthNames = [...]string{
	"januar", "februar", "marts", "april", "maj", "juni",
	"juli", "august", "september", "oktober", "november", "december",
}

func monthTitle(year int, month time.Month) string {
	return fmt.Sprintf("%s %d", monthNames[month-1], year)
}

// dayLabel marks booked days with a lock, past or out-of-window days with a
// dot and the current selection with brackets.
func dayLabel(st availability.DayStatus, span interval.Interval, hasSpan bool) string {
	label := fmt.Sprintf("%d", st.Date.Day())
	switch {
	case st.Reason == availability.ReasonBooked:
		return "🔒"
	case !st.Available:
		return "·"
	case hasSpan && span.Contains(st.Date):
		return "[" + label + "]"
	}
	return label
}

// GenerateCalendarKeyboard builds a Monday-first month grid. Every day,
// blocked or not, carries a date: callback so a tap on a booked day can say
// who holds it.
func GenerateCalendarKeyboard(year int, month time.Month, days []availability.DayStatus, sel selection.Selection) tgbotapi.InlineKeyboardMarkup {
	first := interval.Date(year, month, 1)
	offset := int(first.Weekday())
	if offset == 0 {
		offset = 7
	}
	span, hasSpan := sel.Interval()

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, 10)
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData(monthTitle(year, month), "noop"),
	})
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("Ma", "noop"),
		tgbotapi.NewInlineKeyboardButtonData("Ti", "noop"),
		tgbotapi.NewInlineKeyboardButtonData("On", "noop"),
		tgbotapi.NewInlineKeyboardButtonData("To", "noop"),
		tgbotapi.NewInlineKeyboardButtonData("Fr", "noop"),
		tgbotapi.NewInlineKeyboardButtonData("Lø", "noop"),
		tgbotapi.NewInlineKeyboardButtonData("Sø", "noop"),
	})

	i := 0
	for i < len(days) {
		row := make([]tgbotapi.InlineKeyboardButton, 0, 7)
		for col := 1; col <= 7; col++ {
			if len(rows) == 2 && col < offset {
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(" ", "noop"))
				continue
			}
			if i >= len(days) {
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(" ", "noop"))
				continue
			}
			st := days[i]
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(
				dayLabel(st, span, hasSpan),
				"date:"+st.Date.String(),
			))
			i++
		}
		rows = append(rows, row)
	}

	prev := first.AddDays(-1)
	next := interval.Date(year, month+1, 1)
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("◀️", fmt.Sprintf("month:%04d-%02d", prev.Year(), int(prev.Month()))),
		tgbotapi.NewInlineKeyboardButtonData("▶️", fmt.Sprintf("month:%04d-%02d", next.Year(), int(next.Month()))),
	})
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("✖️ Ryd", "sel:clear"),
		tgbotapi.NewInlineKeyboardButtonData("✅ Videre", "sel:next"),
	})

	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// selectionText describes the picker state above the calendar.
func selectionText(sel selection.Selection) string {
	span, ok := sel.Interval()
	if !ok {
		return "Vælg første dag."
	}
	if sel.State == selection.StateAnchorSet {
		return fmt.Sprintf("Valgt: %s. Vælg sidste dag, eller tryk Videre for én dag.", formatDay(span.Start))
	}
	return fmt.Sprintf("Valgt: %s - %s (%d dage).", formatDay(span.Start), formatDay(span.End), span.Len())
}

func formatDay(d interval.Day) string {
	return fmt.Sprintf("%02d.%02d.%d", d.Day(), int(d.Month()), d.Year())
}
