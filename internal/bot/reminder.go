package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"skovkrogen/internal/checklist"
	"skovkrogen/internal/interval"
	"skovkrogen/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// StartReminders sends daily notes at hour in the house's time zone: an
// arrival note for bookings starting tomorrow and the open checkout items
// for bookings ending today.
func (b *Bot) StartReminders(ctx context.Context, hour int) {
	if b == nil || b.svc == nil {
		return
	}

	go func() {
		timer := time.NewTimer(timeUntilNextHour(time.Now().In(b.svc.Location()), hour))
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				b.sendDailyReminders(ctx)
				timer.Reset(timeUntilNextHour(time.Now().In(b.svc.Location()), hour))
			}
		}
	}()
}

// reminder is one message for one booking owner.
type reminder struct {
	Email string
	Text  string
}

// dailyReminders picks the messages due on today.
func dailyReminders(bookings []models.Booking, today interval.Day, tpl *checklist.Template) []reminder {
	tomorrow := today.AddDays(1)
	var out []reminder
	for i := range bookings {
		bk := &bookings[i]
		if !bk.IsConfirmed() {
			continue
		}
		if bk.StartDate == tomorrow {
			out = append(out, reminder{Email: bk.GuestEmail, Text: formatArrivalMessage(bk)})
		}
		if bk.EndDate == today {
			if text, ok := formatCheckoutMessage(bk, tpl); ok {
				out = append(out, reminder{Email: bk.GuestEmail, Text: text})
			}
		}
	}
	return out
}

func (b *Bot) sendDailyReminders(ctx context.Context) {
	snap, err := b.svc.Snapshot(ctx)
	if err != nil {
		b.logger.Error().Err(err).Msg("reminder: load bookings")
		return
	}

	household := b.currentHousehold()
	for _, r := range dailyReminders(snap.Bookings, b.svc.Today(), b.svc.Checklist()) {
		for _, chatID := range household.TelegramIDsFor(r.Email) {
			if _, err := b.tg.Send(tgbotapi.NewMessage(chatID, r.Text)); err != nil {
				b.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("reminder: send failed")
			}
		}
	}
}

func formatArrivalMessage(bk *models.Booking) string {
	return fmt.Sprintf("Påmindelse: I ankommer til sommerhuset i morgen (%s). God tur, %s!",
		formatDay(bk.StartDate), bk.GuestName)
}

// formatCheckoutMessage lists unfinished items. ok is false when the
// checklist is already complete.
func formatCheckoutMessage(bk *models.Booking, tpl *checklist.Template) (string, bool) {
	var open []string
	for _, it := range tpl.Items() {
		if !bk.Checklist.Done(it.ID) {
			open = append(open, "⬜ "+it.Label)
		}
	}
	if len(open) == 0 {
		return "", false
	}
	return fmt.Sprintf("I dag er afrejsedag for booking #%d. Mangler på tjeklisten:\n%s\n\nBrug /mine for at krydse af.",
		bk.ID, strings.Join(open, "\n")), true
}

func timeUntilNextHour(now time.Time, hour int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
