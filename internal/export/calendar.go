// Package export renders bookings for calendars and spreadsheets.
package export

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"skovkrogen/internal/models"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"
)

const (
	gcalBase    = "https://calendar.google.com/calendar/render"
	titlePrefix = "Sommerhus: "
	details     = "Booking af sommerhus."
	productID   = "-//Skovkrogen//Booking//DA"
)

var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://skovkrogen/bookings"))

// Title is the event title used by every calendar export.
func Title(guestName string) string {
	return titlePrefix + guestName
}

// GoogleCalendarURL builds a template link for an all-day event. Google
// expects an exclusive end date, so the day after the last booked day is used.
func GoogleCalendarURL(b *models.Booking) string {
	span := b.Interval()
	return fmt.Sprintf("%s?action=TEMPLATE&text=%s&dates=%s/%s&details=%s",
		gcalBase,
		escape(Title(b.GuestName)),
		span.Start.Compact(),
		span.ExclusiveEnd().Compact(),
		escape(details),
	)
}

// escape percent-encodes s with spaces as %20.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// EventUID is stable per booking so re-imports update the same event.
func EventUID(id int64) string {
	return uuid.NewSHA1(uidNamespace, []byte(strconv.FormatInt(id, 10))).String() + "@skovkrogen"
}

// ICS renders one or more bookings as an iCalendar document with all-day
// events. DTEND is exclusive.
func ICS(stamp time.Time, bookings ...models.Booking) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)

	for i := range bookings {
		b := &bookings[i]
		span := b.Interval()
		ev := cal.AddEvent(EventUID(b.ID))
		ev.SetDtStampTime(stamp.UTC())
		ev.SetSummary(Title(b.GuestName))
		desc := details
		if p := b.PurposeText(); p != "" {
			desc += "\n" + p
		}
		ev.SetDescription(desc)
		ev.SetAllDayStartAt(span.Start.Time(time.UTC))
		ev.SetAllDayEndAt(span.ExclusiveEnd().Time(time.UTC))
		ev.SetOrganizer("mailto:" + b.GuestEmail)
	}
	return cal.Serialize()
}
