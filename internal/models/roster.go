package models

import "strings"

// DefaultRoster is the household as it was first set up.
var DefaultRoster = []string{"Kurt", "Beth", "Katrine", "Stefan", "Mina", "Mikkel"}

// Roster is the fixed list of names a booking can be made under.
type Roster []string

// Contains matches names exactly after trimming whitespace.
func (r Roster) Contains(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	for _, n := range r {
		if n == name {
			return true
		}
	}
	return false
}

// Viewer is the authenticated person acting on the calendar.
type Viewer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Authenticated reports whether the viewer carries an identity.
func (v *Viewer) Authenticated() bool {
	return v != nil && v.Email != ""
}
