// Package selection implements the two-click date range picker.
package selection

import (
	"fmt"

	"skovkrogen/internal/availability"
	"skovkrogen/internal/interval"
	"skovkrogen/internal/models"
)

// State of a viewer's selection.
type State string

const (
	StateEmpty         State = "empty"
	StateAnchorSet     State = "anchor_set"
	StateRangeComplete State = "range_complete"
)

// Selection is the picker value. It is a plain value: transitions return a new one.
type Selection struct {
	State State        `json:"state"`
	Start interval.Day `json:"start"`
	End   interval.Day `json:"end"`
}

// Empty is the cleared selection.
func Empty() Selection {
	return Selection{State: StateEmpty}
}

// Anchor returns the first-clicked day while in AnchorSet.
func (s Selection) Anchor() (interval.Day, bool) {
	if s.State != StateAnchorSet {
		return interval.Day{}, false
	}
	return s.Start, true
}

// Interval is the range a booking would cover. AnchorSet books a single day.
func (s Selection) Interval() (interval.Interval, bool) {
	switch s.State {
	case StateAnchorSet:
		return interval.Single(s.Start), true
	case StateRangeComplete:
		return interval.Span(s.Start, s.End), true
	default:
		return interval.Interval{}, false
	}
}

func (s Selection) normalized() Selection {
	if s.State == "" {
		s.State = StateEmpty
	}
	return s
}

// OutcomeKind classifies what a click did.
type OutcomeKind string

const (
	// Accepted means the selection moved to a new state.
	Accepted OutcomeKind = "accepted"
	// BlockedDay means the clicked day is unavailable. The selection is
	// unchanged and Outcome.Blocking names the booking when there is one.
	BlockedDay OutcomeKind = "blocked_day"
	// Refused means the candidate range crosses a blocked day.
	Refused OutcomeKind = "refused"
)

// Outcome is returned with every click in place of an alert.
type Outcome struct {
	Kind     OutcomeKind         `json:"kind"`
	Day      interval.Day        `json:"day"`
	Reason   availability.Reason `json:"reason,omitempty"`
	Blocking *models.Booking     `json:"blocking,omitempty"`
}

// Message is the Danish text shown to the viewer.
func (o Outcome) Message() string {
	switch o.Kind {
	case BlockedDay:
		if o.Blocking != nil {
			return fmt.Sprintf("Booket af: %s", o.Blocking.GuestName)
		}
		if o.Reason == availability.ReasonOutside {
			return "Datoen ligger uden for bookingvinduet."
		}
		return "Datoen er passeret."
	case Refused:
		return "Perioden indeholder dage, der allerede er booket."
	default:
		return ""
	}
}

// Availability is what the machine needs to know about days.
type Availability interface {
	IsBlocked(day interval.Day) bool
	FindBlocking(day interval.Day) (*models.Booking, bool)
	RangeHasBlockedDay(start, end interval.Day) bool
	BeyondHorizon(day interval.Day) bool
}

// Machine holds the allowed transitions.
type Machine struct {
	transitions map[State][]State
}

// NewMachine creates the machine with its fixed transition table.
func NewMachine() *Machine {
	return &Machine{
		transitions: map[State][]State{
			StateEmpty:         {StateAnchorSet, StateEmpty},
			StateAnchorSet:     {StateRangeComplete, StateEmpty},
			StateRangeComplete: {StateAnchorSet, StateEmpty},
		},
	}
}

// CanTransition checks if transition is allowed.
func (m *Machine) CanTransition(from, to State) bool {
	allowed, ok := m.transitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Clear resets any selection.
func (m *Machine) Clear(_ Selection) Selection {
	return Empty()
}

// Click applies one day click and reports what happened. Blocked days never
// change the selection.
func (m *Machine) Click(sel Selection, day interval.Day, av Availability) (Selection, Outcome) {
	sel = sel.normalized()
	out := Outcome{Day: day}

	if av.IsBlocked(day) || av.BeyondHorizon(day) {
		out.Kind = BlockedDay
		if b, ok := av.FindBlocking(day); ok {
			out.Blocking = b
			out.Reason = availability.ReasonBooked
		} else if av.BeyondHorizon(day) {
			out.Reason = availability.ReasonOutside
		} else {
			out.Reason = availability.ReasonPast
		}
		return sel, out
	}

	var next Selection
	switch sel.State {
	case StateAnchorSet:
		span := interval.Span(sel.Start, day)
		if av.RangeHasBlockedDay(span.Start, span.End) {
			out.Kind = Refused
			return sel, out
		}
		next = Selection{State: StateRangeComplete, Start: span.Start, End: span.End}
	default:
		next = Selection{State: StateAnchorSet, Start: day}
	}

	if !m.CanTransition(sel.State, next.State) {
		out.Kind = Refused
		return sel, out
	}
	out.Kind = Accepted
	return next, out
}
