package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"skovkrogen/internal/booking"
	"skovkrogen/internal/checklist"
	"skovkrogen/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleMyBookings(ctx context.Context, chatID int64, viewer *models.Viewer) {
	views, err := b.svc.List(ctx, viewer, models.BookingFilter{})
	if err != nil {
		b.reply(chatID, booking.UserMessage(err))
		return
	}

	sent := 0
	for i := range views {
		v := views[i]
		if !v.Owned {
			continue
		}
		msg := tgbotapi.NewMessage(chatID, formatBooking(&v.Booking)+
			fmt.Sprintf("\nTjekliste: %d/%d", v.Progress.Completed, v.Progress.Total))
		if v.CanEdit {
			id := strconv.FormatInt(v.ID, 10)
			msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
				tgbotapi.NewInlineKeyboardRow(
					tgbotapi.NewInlineKeyboardButtonData("☑️ Tjekliste", "cl:"+id),
					tgbotapi.NewInlineKeyboardButtonData("🗑 Slet", "del:"+id),
				),
			)
		}
		b.send(msg)
		sent++
	}
	if sent == 0 {
		b.reply(chatID, "Du har ingen kommende bookinger.")
	}
}

// handleDeleteRequest asks before anything is sent to the store.
func (b *Bot) handleDeleteRequest(chatID int64, value string) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return
	}
	msg := tgbotapi.NewMessage(chatID, booking.MsgConfirmDelete)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Ja, slet", fmt.Sprintf("delok:%d", id)),
			tgbotapi.NewInlineKeyboardButtonData("Nej", "noop"),
		),
	)
	b.send(msg)
}

func (b *Bot) handleDeleteConfirmed(ctx context.Context, chatID int64, viewer *models.Viewer, value string) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return
	}
	if err := b.svc.Delete(ctx, viewer, id, true); err != nil {
		b.reply(chatID, booking.UserMessage(err))
		return
	}
	b.reply(chatID, "Bookingen er slettet.")
}

func (b *Bot) handleChecklistOpen(ctx context.Context, chatID int64, value string) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return
	}
	bk, err := b.svc.Find(ctx, id)
	if err != nil {
		b.reply(chatID, booking.UserMessage(err))
		return
	}
	tpl := b.svc.Checklist()
	msg := tgbotapi.NewMessage(chatID, checklistText(id, tpl.Progress(bk.Checklist)))
	msg.ReplyMarkup = checklistMarkup(id, tpl, bk.Checklist)
	b.send(msg)
}

// handleChecklistTick toggles one item and redraws the checklist message.
// value is "<id>:<item>".
func (b *Bot) handleChecklistTick(ctx context.Context, chatID int64, messageID int, viewer *models.Viewer, value string) {
	idStr, item, ok := strings.Cut(value, ":")
	if !ok {
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return
	}
	next, err := b.svc.ToggleChecklistItem(ctx, viewer, id, item)
	if err != nil {
		b.reply(chatID, booking.UserMessage(err))
		return
	}
	tpl := b.svc.Checklist()
	b.send(tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, checklistText(id, tpl.Progress(next)), checklistMarkup(id, tpl, next)))
}

func checklistText(id int64, p checklist.Progress) string {
	text := fmt.Sprintf("Tjekliste for booking #%d: %d/%d", id, p.Completed, p.Total)
	if p.Complete {
		text += "\nAlt er klaret. God tur hjem!"
	}
	return text
}

func checklistMarkup(id int64, tpl *checklist.Template, c checklist.Checklist) tgbotapi.InlineKeyboardMarkup {
	items := tpl.Items()
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(items))
	for _, it := range items {
		mark := "⬜ "
		if c.Done(it.ID) {
			mark = "✅ "
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(mark+it.Label, fmt.Sprintf("tick:%d:%s", id, it.ID)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
