package booking

import "errors"

// Kind classifies workflow errors for callers that map them to transports.
type Kind string

const (
	KindValidation           Kind = "validation"
	KindConflict             Kind = "conflict"
	KindPermission           Kind = "permission"
	KindNotFound             Kind = "not_found"
	KindConfirmationRequired Kind = "confirmation_required"
	KindUnauthenticated      Kind = "unauthenticated"
	KindBusy                 Kind = "busy"
	KindPersistence          Kind = "persistence"
)

// User-facing messages.
const (
	MsgGeneric         = "Der skete en fejl. Prøv igen senere."
	MsgNoSelection     = "Vælg venligst en dato først."
	MsgPastDate        = "Datoen er passeret. Vælg en ny dato."
	MsgNameRequired    = "Vælg venligst hvem der booker."
	MsgGuestCount      = "Antal personer skal være mellem 1 og 20."
	MsgUnknownItem     = "Ukendt punkt på tjeklisten."
	MsgNotOwner        = "Du kan kun ændre dine egne bookinger."
	MsgNotConfirmed    = "Bookingen er ikke aktiv."
	MsgNotFound        = "Bookingen findes ikke."
	MsgConfirmDelete   = "Er du sikker på, at du vil slette denne booking?"
	MsgUnauthenticated = "Du skal være logget ind."
	MsgOverlap         = "Perioden overlapper en eksisterende booking."
	MsgBusy            = "Vent venligst, din forrige handling er ikke færdig."
)

// Error is returned by every Service operation. Message is safe to show.
type Error struct {
	Kind    Kind
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the kind of a workflow error, "" for anything else.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

// IsKind checks if err is a workflow error of kind k.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

// UserMessage returns the text to show for err.
func UserMessage(err error) string {
	var be *Error
	if errors.As(err, &be) {
		return be.Message
	}
	return MsgGeneric
}

func validation(field, msg string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: msg}
}

func persistence(err error) *Error {
	return &Error{Kind: KindPersistence, Message: MsgGeneric, Err: err}
}
