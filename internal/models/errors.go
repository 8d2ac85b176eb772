package models

import "errors"

// Errors stores return for conditions the workflow reacts to.
var (
	ErrBookingNotFound = errors.New("booking not found")
	ErrOverlap         = errors.New("booking overlaps a confirmed booking")
)
