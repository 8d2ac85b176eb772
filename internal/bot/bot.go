// Package bot is the Telegram front end: a month calendar driving the same
// selection machine as the web calendar, plus "my bookings" with delete and
// checkout checklist.
package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"skovkrogen/internal/booking"
	"skovkrogen/internal/config"
	"skovkrogen/internal/export"
	"skovkrogen/internal/interval"
	"skovkrogen/internal/metrics"
	"skovkrogen/internal/models"
	"skovkrogen/internal/selection"
	"skovkrogen/internal/supabase"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type telegramClient interface {
	Send(tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	SelfUser() tgbotapi.User
}

type realTelegramClient struct {
	api *tgbotapi.BotAPI
}

func (c *realTelegramClient) Send(msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	return c.api.Send(msg)
}

func (c *realTelegramClient) Request(msg tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return c.api.Request(msg)
}

func (c *realTelegramClient) GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return c.api.GetUpdatesChan(cfg)
}

func (c *realTelegramClient) SelfUser() tgbotapi.User {
	return c.api.Self
}

// TokenIssuer mints short-lived access tokens so store calls made on behalf
// of a Telegram user carry that user's identity.
type TokenIssuer interface {
	Issue(viewer models.Viewer, ttl time.Duration) (string, error)
}

const (
	btnBook = "📅 Book huset"
	btnMine = "📋 Mine bookinger"
	btnHelp = "ℹ️ Hjælp"

	msgNotLinked = "Din Telegram-konto er ikke knyttet til husstanden."
	msgExpired   = "Forløbet er udløbet. Start forfra med /book."
	helpText     = "Kommandoer: /book, /mine, /cancel, /help"
)

var mainMenu = tgbotapi.NewReplyKeyboard(
	tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton(btnBook),
		tgbotapi.NewKeyboardButton(btnMine),
	),
	tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton(btnHelp),
	),
)

// Bot handles Telegram updates for the household.
type Bot struct {
	svc        *booking.Service
	selections selection.Store
	machine    *selection.Machine
	tg         telegramClient
	state      *stateStore
	tokens     TokenIssuer
	logger     *zerolog.Logger

	mu        sync.RWMutex
	household *config.Household
}

func New(
	token string,
	debug bool,
	svc *booking.Service,
	selections selection.Store,
	household *config.Household,
	tokens TokenIssuer,
	logger *zerolog.Logger,
) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	api.Debug = debug
	return newBot(&realTelegramClient{api: api}, svc, selections, household, tokens, logger)
}

// NewWithTelegramClient allows injecting a mocked Telegram client for tests.
func NewWithTelegramClient(
	tg telegramClient,
	svc *booking.Service,
	selections selection.Store,
	household *config.Household,
	tokens TokenIssuer,
	logger *zerolog.Logger,
) (*Bot, error) {
	return newBot(tg, svc, selections, household, tokens, logger)
}

func newBot(
	tg telegramClient,
	svc *booking.Service,
	selections selection.Store,
	household *config.Household,
	tokens TokenIssuer,
	logger *zerolog.Logger,
) (*Bot, error) {
	if tg == nil {
		return nil, fmt.Errorf("telegram client is nil")
	}
	if household == nil {
		return nil, fmt.Errorf("household is nil")
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Bot{
		svc:        svc,
		selections: selections,
		machine:    selection.NewMachine(),
		tg:         tg,
		state:      newStateStore(),
		tokens:     tokens,
		logger:     logger,
		household:  household,
	}, nil
}

// SetHousehold swaps the Telegram mapping after a config reload.
func (b *Bot) SetHousehold(h *config.Household) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.household = h
}

func (b *Bot) currentHousehold() *config.Household {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.household
}

// Start polls updates until ctx is done.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.tg.GetUpdatesChan(u)
	b.logger.Info().Str("username", b.tg.SelfUser().UserName).Msg("Telegram bot authorized")

	for {
		select {
		case <-ctx.Done():
			return
		case update := <-updates:
			l := b.logger.With().Str("request_id", uuid.NewString()).Logger()
			b.handleUpdate(l.WithContext(ctx), &update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update *tgbotapi.Update) {
	l := zerolog.Ctx(ctx)
	if update.CallbackQuery != nil {
		l.Debug().
			Int64("user_id", update.CallbackQuery.From.ID).
			Str("data", update.CallbackQuery.Data).
			Msg("Handling callback query")
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}
	if update.Message != nil {
		l.Debug().
			Int64("user_id", update.Message.From.ID).
			Str("text", update.Message.Text).
			Msg("Handling message")
		b.handleMessage(ctx, update.Message)
	}
}

// viewerFor maps a Telegram account to a household identity.
func (b *Bot) viewerFor(userID int64) (*models.Viewer, bool) {
	email, ok := b.currentHousehold().EmailForTelegram(userID)
	if !ok {
		return nil, false
	}
	return &models.Viewer{ID: "telegram:" + strconv.FormatInt(userID, 10), Email: email}, true
}

func (b *Bot) userContext(ctx context.Context, viewer *models.Viewer) context.Context {
	l := zerolog.Ctx(ctx).With().Str("viewer", viewer.Email).Logger()
	ctx = l.WithContext(ctx)
	if b.tokens == nil {
		return ctx
	}
	token, err := b.tokens.Issue(*viewer, 5*time.Minute)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("issue access token")
		return ctx
	}
	return supabase.WithAccessToken(ctx, token)
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg == nil || msg.From == nil {
		return
	}
	viewer, ok := b.viewerFor(msg.From.ID)
	if !ok {
		b.reply(msg.Chat.ID, msgNotLinked)
		return
	}
	ctx = b.userContext(ctx, viewer)
	chatID := msg.Chat.ID
	userID := msg.From.ID
	text := strings.TrimSpace(msg.Text)

	switch {
	case strings.HasPrefix(text, "/start"):
		b.state.reset(userID)
		b.sendMainMenu(chatID)
		return
	case text == btnBook || strings.HasPrefix(text, "/book"):
		b.startBookingFlow(ctx, chatID, userID, viewer)
		return
	case text == btnMine || strings.HasPrefix(text, "/mine"):
		b.handleMyBookings(ctx, chatID, viewer)
		return
	case text == btnHelp || strings.HasPrefix(text, "/help"):
		b.reply(chatID, helpText)
		return
	case strings.HasPrefix(text, "/cancel"):
		b.cancelFlow(ctx, chatID, userID, viewer)
		return
	}

	st := b.state.get(userID)
	switch st.Step {
	case stepCount:
		n, err := strconv.Atoi(text)
		if err != nil || n < booking.MinGuests || n > booking.MaxGuests {
			b.reply(chatID, booking.MsgGuestCount)
			return
		}
		st.Draft.GuestCount = n
		b.askShared(chatID, st)
	case stepPurpose:
		st.Draft.Purpose = text
		b.sendConfirm(ctx, chatID, viewer, st)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq == nil || cq.From == nil || cq.Message == nil {
		return
	}
	data := cq.Data
	if data == "noop" {
		_ = b.answerCallback(cq.ID, "", false)
		return
	}
	viewer, ok := b.viewerFor(cq.From.ID)
	if !ok {
		_ = b.answerCallback(cq.ID, msgNotLinked, true)
		return
	}
	ctx = b.userContext(ctx, viewer)

	userID := cq.From.ID
	chatID := cq.Message.Chat.ID
	st := b.state.get(userID)

	// Day taps answer with the click outcome themselves.
	if strings.HasPrefix(data, "date:") {
		b.handleDateCallback(ctx, cq, viewer, st, strings.TrimPrefix(data, "date:"))
		return
	}
	_ = b.answerCallback(cq.ID, "", false)

	switch {
	case strings.HasPrefix(data, "month:"):
		b.handleMonthCallback(ctx, chatID, viewer, st, strings.TrimPrefix(data, "month:"))
	case data == "sel:clear":
		if err := b.selections.Clear(ctx, selectionKey(viewer)); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("clear selection")
		}
		b.renderCalendar(ctx, chatID, viewer, st)
	case data == "sel:next":
		b.handleSelectionDone(ctx, chatID, viewer, st)
	case data == "back:calendar":
		st.Step = stepCalendar
		st.CalendarMsg = 0
		b.renderCalendar(ctx, chatID, viewer, st)
	case strings.HasPrefix(data, "name:"):
		b.handleNameCallback(chatID, st, strings.TrimPrefix(data, "name:"))
	case strings.HasPrefix(data, "count:"):
		b.handleCountCallback(chatID, st, strings.TrimPrefix(data, "count:"))
	case strings.HasPrefix(data, "shared:"):
		if st.Step != stepShared {
			b.reply(chatID, msgExpired)
			return
		}
		st.Draft.AllowOtherFamily = data == "shared:yes"
		b.askPurpose(chatID, st)
	case data == "purpose:skip":
		if st.Step != stepPurpose {
			b.reply(chatID, msgExpired)
			return
		}
		st.Draft.Purpose = ""
		b.sendConfirm(ctx, chatID, viewer, st)
	case data == "confirm":
		b.handleConfirmCallback(ctx, chatID, userID, viewer, st)
	case data == "cancel":
		b.cancelFlow(ctx, chatID, userID, viewer)
	case strings.HasPrefix(data, "del:"):
		b.handleDeleteRequest(chatID, strings.TrimPrefix(data, "del:"))
	case strings.HasPrefix(data, "delok:"):
		b.handleDeleteConfirmed(ctx, chatID, viewer, strings.TrimPrefix(data, "delok:"))
	case strings.HasPrefix(data, "cl:"):
		b.handleChecklistOpen(ctx, chatID, strings.TrimPrefix(data, "cl:"))
	case strings.HasPrefix(data, "tick:"):
		b.handleChecklistTick(ctx, chatID, cq.Message.MessageID, viewer, strings.TrimPrefix(data, "tick:"))
	}
}

func (b *Bot) sendMainMenu(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, "Vælg en handling:")
	msg.ReplyMarkup = mainMenu
	b.send(msg)
}

func (b *Bot) reply(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) send(c tgbotapi.Chattable) tgbotapi.Message {
	sent, err := b.tg.Send(c)
	if err != nil {
		b.logger.Warn().Err(err).Msg("telegram send failed")
	}
	return sent
}

func (b *Bot) answerCallback(id, text string, alert bool) error {
	cb := tgbotapi.NewCallback(id, text)
	cb.ShowAlert = alert
	_, err := b.tg.Request(cb)
	return err
}

func selectionKey(v *models.Viewer) string {
	return strings.ToLower(v.Email)
}

func (b *Bot) cancelFlow(ctx context.Context, chatID, userID int64, viewer *models.Viewer) {
	b.state.reset(userID)
	if err := b.selections.Clear(ctx, selectionKey(viewer)); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("clear selection")
	}
	b.reply(chatID, "Afbrudt. /book for at starte forfra.")
	b.sendMainMenu(chatID)
}

func (b *Bot) startBookingFlow(ctx context.Context, chatID, userID int64, viewer *models.Viewer) {
	b.state.reset(userID)
	st := b.state.get(userID)
	st.Step = stepCalendar
	today := b.svc.Today()
	st.Year, st.Month = today.Year(), int(today.Month())
	b.renderCalendar(ctx, chatID, viewer, st)
}

// renderCalendar sends the month grid, or edits the previous one in place.
func (b *Bot) renderCalendar(ctx context.Context, chatID int64, viewer *models.Viewer, st *userState) {
	if st.Year == 0 {
		today := b.svc.Today()
		st.Year, st.Month = today.Year(), int(today.Month())
	}
	snap, err := b.svc.Snapshot(ctx)
	if err != nil {
		b.reply(chatID, booking.UserMessage(err))
		return
	}
	sel, err := b.selections.Get(ctx, selectionKey(viewer))
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("load selection")
		b.reply(chatID, booking.MsgGeneric)
		return
	}

	month := time.Month(st.Month)
	markup := GenerateCalendarKeyboard(st.Year, month, snap.Index.Month(st.Year, month), sel)
	text := selectionText(sel)
	if st.CalendarMsg != 0 {
		b.send(tgbotapi.NewEditMessageTextAndMarkup(chatID, st.CalendarMsg, text, markup))
		return
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = markup
	st.CalendarMsg = b.send(msg).MessageID
}

func (b *Bot) handleMonthCallback(ctx context.Context, chatID int64, viewer *models.Viewer, st *userState, value string) {
	t, err := time.Parse("2006-01", value)
	if err != nil {
		return
	}
	st.Year, st.Month = t.Year(), int(t.Month())
	b.renderCalendar(ctx, chatID, viewer, st)
}

// handleDateCallback runs one click through the selection machine. Blocked
// days and refused ranges are shown as an alert and change nothing.
func (b *Bot) handleDateCallback(ctx context.Context, cq *tgbotapi.CallbackQuery, viewer *models.Viewer, st *userState, value string) {
	chatID := cq.Message.Chat.ID
	day, err := interval.Parse(value, b.svc.Location())
	if err != nil {
		_ = b.answerCallback(cq.ID, "", false)
		return
	}

	snap, err := b.svc.Snapshot(ctx)
	if err != nil {
		_ = b.answerCallback(cq.ID, booking.UserMessage(err), true)
		return
	}
	key := selectionKey(viewer)
	sel, err := b.selections.Get(ctx, key)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("load selection")
		_ = b.answerCallback(cq.ID, booking.MsgGeneric, true)
		return
	}

	next, out := b.machine.Click(sel, day, snap.Index)
	metrics.IncSelectionClick(string(out.Kind))
	if out.Kind != selection.Accepted {
		_ = b.answerCallback(cq.ID, out.Message(), true)
		return
	}
	if err := b.selections.Put(ctx, key, next); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("save selection")
		_ = b.answerCallback(cq.ID, booking.MsgGeneric, true)
		return
	}
	_ = b.answerCallback(cq.ID, "", false)

	st.Step = stepCalendar
	if st.CalendarMsg == 0 {
		st.CalendarMsg = cq.Message.MessageID
	}
	month := time.Month(st.Month)
	if st.Year == 0 {
		st.Year, month = day.Year(), day.Month()
		st.Month = int(month)
	}
	markup := GenerateCalendarKeyboard(st.Year, month, snap.Index.Month(st.Year, month), next)
	b.send(tgbotapi.NewEditMessageTextAndMarkup(chatID, st.CalendarMsg, selectionText(next), markup))
}

func (b *Bot) handleSelectionDone(ctx context.Context, chatID int64, viewer *models.Viewer, st *userState) {
	sel, err := b.selections.Get(ctx, selectionKey(viewer))
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("load selection")
		b.reply(chatID, booking.MsgGeneric)
		return
	}
	if _, ok := sel.Interval(); !ok {
		b.reply(chatID, booking.MsgNoSelection)
		return
	}
	st.Step = stepName
	b.sendRoster(chatID)
}

func (b *Bot) sendRoster(chatID int64) {
	names := b.svc.Roster()
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(names)/2+2)
	var row []tgbotapi.InlineKeyboardButton
	for _, n := range names {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(n, "name:"+n))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Tilbage", "back:calendar"),
	})

	msg := tgbotapi.NewMessage(chatID, "Hvem booker?")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	b.send(msg)
}

func (b *Bot) handleNameCallback(chatID int64, st *userState, name string) {
	if st.Step != stepName {
		b.reply(chatID, msgExpired)
		return
	}
	if !b.svc.Roster().Contains(name) {
		b.reply(chatID, booking.MsgNameRequired)
		return
	}
	st.Draft.GuestName = name
	st.Step = stepCount

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, 3)
	var row []tgbotapi.InlineKeyboardButton
	for n := 1; n <= 12; n++ {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(strconv.Itoa(n), fmt.Sprintf("count:%d", n)))
		if len(row) == 4 {
			rows = append(rows, row)
			row = nil
		}
	}
	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Hvor mange personer? Vælg eller skriv et tal (%d-%d).", booking.MinGuests, booking.MaxGuests))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	b.send(msg)
}

func (b *Bot) handleCountCallback(chatID int64, st *userState, value string) {
	if st.Step != stepCount {
		b.reply(chatID, msgExpired)
		return
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < booking.MinGuests || n > booking.MaxGuests {
		b.reply(chatID, booking.MsgGuestCount)
		return
	}
	st.Draft.GuestCount = n
	b.askShared(chatID, st)
}

func (b *Bot) askShared(chatID int64, st *userState) {
	st.Step = stepShared
	msg := tgbotapi.NewMessage(chatID, "Må andre familier også komme i perioden?")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Ja", "shared:yes"),
			tgbotapi.NewInlineKeyboardButtonData("Nej", "shared:no"),
		),
	)
	b.send(msg)
}

func (b *Bot) askPurpose(chatID int64, st *userState) {
	st.Step = stepPurpose
	msg := tgbotapi.NewMessage(chatID, "Formål med opholdet? Skriv en kort tekst.")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Spring over", "purpose:skip"),
		),
	)
	b.send(msg)
}

func (b *Bot) sendConfirm(ctx context.Context, chatID int64, viewer *models.Viewer, st *userState) {
	sel, err := b.selections.Get(ctx, selectionKey(viewer))
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("load selection")
		b.reply(chatID, booking.MsgGeneric)
		return
	}
	span, ok := sel.Interval()
	if !ok {
		b.reply(chatID, msgExpired)
		return
	}
	st.Step = stepConfirm

	var sb strings.Builder
	sb.WriteString("Bekræft booking:\n")
	fmt.Fprintf(&sb, "Periode: %s - %s (%d dage)\n", formatDay(span.Start), formatDay(span.End), span.Len())
	fmt.Fprintf(&sb, "Navn: %s\n", st.Draft.GuestName)
	fmt.Fprintf(&sb, "Antal personer: %d\n", st.Draft.GuestCount)
	fmt.Fprintf(&sb, "Andre familier velkomne: %s\n", yesNo(st.Draft.AllowOtherFamily))
	if st.Draft.Purpose != "" {
		fmt.Fprintf(&sb, "Formål: %s\n", st.Draft.Purpose)
	}

	msg := tgbotapi.NewMessage(chatID, sb.String())
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Bekræft", "confirm"),
			tgbotapi.NewInlineKeyboardButtonData("✖️ Annullér", "cancel"),
		),
	)
	b.send(msg)
}

func (b *Bot) handleConfirmCallback(ctx context.Context, chatID, userID int64, viewer *models.Viewer, st *userState) {
	if st.Step != stepConfirm {
		b.reply(chatID, msgExpired)
		return
	}
	key := selectionKey(viewer)
	sel, err := b.selections.Get(ctx, key)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("load selection")
		b.reply(chatID, booking.MsgGeneric)
		return
	}

	created, err := b.svc.Create(ctx, viewer, sel, st.Draft)
	if err != nil {
		b.reply(chatID, booking.UserMessage(err))
		if booking.IsKind(err, booking.KindConflict) {
			_ = b.selections.Clear(ctx, key)
			b.startBookingFlow(ctx, chatID, userID, viewer)
		}
		return
	}
	if err := b.selections.Clear(ctx, key); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("clear selection after booking")
	}
	b.state.reset(userID)

	msg := tgbotapi.NewMessage(chatID, "Booking oprettet:\n"+formatBooking(created))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("📅 Google Kalender", export.GoogleCalendarURL(created)),
		),
	)
	b.send(msg)
}

func yesNo(v bool) string {
	if v {
		return "Ja"
	}
	return "Nej"
}

func formatBooking(bk *models.Booking) string {
	var sb strings.Builder
	span := bk.Interval()
	fmt.Fprintf(&sb, "#%d %s\n", bk.ID, bk.GuestName)
	fmt.Fprintf(&sb, "%s - %s (%d dage)\n", formatDay(span.Start), formatDay(span.End), span.Len())
	fmt.Fprintf(&sb, "Antal personer: %d", bk.GuestCount)
	if bk.AllowOtherFamily {
		sb.WriteString("\nAndre familier velkomne")
	}
	if p := bk.PurposeText(); p != "" {
		fmt.Fprintf(&sb, "\nFormål: %s", p)
	}
	return sb.String()
}
