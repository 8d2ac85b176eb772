// Package interval models whole-day, inclusive date ranges.
package interval

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"time"
)

// DateLayout is the storage format for dates.
const DateLayout = "2006-01-02"

var (
	ErrInvalidDate  = errors.New("invalid date")
	ErrInvertedSpan = errors.New("start date is after end date")
)

// Day is a calendar date without a time of day. The zero value is not a valid date.
type Day struct {
	year  int
	month time.Month
	day   int
}

// Date builds a Day, normalizing overflowing values the way time.Date does.
func Date(year int, month time.Month, day int) Day {
	return FromTime(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// FromTime takes the calendar date of t in t's own location.
func FromTime(t time.Time) Day {
	y, m, d := t.Date()
	return Day{year: y, month: m, day: d}
}

// Normalize truncates t to local midnight in loc.
func Normalize(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.Local
	}
	return FromTime(t.In(loc))
}

// Parse reads a date-only string or an RFC 3339 timestamp.
// Timestamps are normalized in loc.
func Parse(s string, loc *time.Location) (Day, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return FromTime(t), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return Normalize(t, loc), nil
	}
	return Day{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// MustParse is Parse for literals in tests and defaults.
func MustParse(s string) Day {
	d, err := Parse(s, time.UTC)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Day) Year() int { return d.year }
func (d Day) Month() time.Month { return d.month }
func (d Day) Day() int { return d.day }
func (d Day) IsZero() bool { return d == Day{} }
func (d Day) Weekday() time.Weekday { return d.Time(time.UTC).Weekday() }

// Time returns midnight of d in loc.
func (d Day) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, loc)
}

// AddDays moves d by n calendar days.
func (d Day) AddDays(n int) Day {
	return Date(d.year, d.month, d.day+n)
}

// Compare returns -1, 0 or +1.
func (d Day) Compare(o Day) int {
	switch {
	case d.year != o.year:
		return cmpInt(d.year, o.year)
	case d.month != o.month:
		return cmpInt(int(d.month), int(o.month))
	default:
		return cmpInt(d.day, o.day)
	}
}

func (d Day) Before(o Day) bool { return d.Compare(o) < 0 }
func (d Day) After(o Day) bool { return d.Compare(o) > 0 }

func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.year, int(d.month), d.day)
}

// Compact renders d as YYYYMMDD, the calendar link and iCal all-day form.
func (d Day) Compact() string {
	return fmt.Sprintf("%04d%02d%02d", d.year, int(d.month), d.day)
}

func (d Day) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte{}, nil
	}
	return []byte(d.String()), nil
}

func (d *Day) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Day{}
		return nil
	}
	parsed, err := Parse(string(b), time.Local)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value stores d as a date-only string.
func (d Day) Value() (driver.Value, error) {
	return d.String(), nil
}

// Scan accepts the representations SQL drivers hand back for date columns.
func (d *Day) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return d.UnmarshalText([]byte(v))
	case []byte:
		return d.UnmarshalText(v)
	case time.Time:
		*d = FromTime(v)
		return nil
	case nil:
		*d = Day{}
		return nil
	default:
		return fmt.Errorf("%w: cannot scan %T", ErrInvalidDate, src)
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Min returns the earlier of a and b.
func Min(a, b Day) Day {
	if b.Before(a) {
		return b
	}
	return a
}

// Max returns the later of a and b.
func Max(a, b Day) Day {
	if b.After(a) {
		return b
	}
	return a
}

// Interval is a closed range of days, Start <= End.
type Interval struct {
	Start Day
	End   Day
}

// New returns [start, end] or ErrInvertedSpan.
func New(start, end Day) (Interval, error) {
	if start.After(end) {
		return Interval{}, fmt.Errorf("%w: %s > %s", ErrInvertedSpan, start, end)
	}
	return Interval{Start: start, End: end}, nil
}

// Span orders a and b, so click order never matters.
func Span(a, b Day) Interval {
	return Interval{Start: Min(a, b), End: Max(a, b)}
}

// Single is the one-day interval [d, d].
func Single(d Day) Interval {
	return Interval{Start: d, End: d}
}

// Valid reports whether the interval has both ends set and Start <= End.
func (i Interval) Valid() bool {
	return !i.Start.IsZero() && !i.End.IsZero() && !i.Start.After(i.End)
}

// Overlaps uses inclusive boundaries, so sharing a single day counts.
func (i Interval) Overlaps(o Interval) bool {
	return !i.Start.After(o.End) && !o.Start.After(i.End)
}

// Contains reports whether d lies within the interval, boundaries included.
func (i Interval) Contains(d Day) bool {
	return !d.Before(i.Start) && !d.After(i.End)
}

// Len is the number of days covered.
func (i Interval) Len() int {
	if !i.Valid() {
		return 0
	}
	start := i.Start.Time(time.UTC)
	end := i.End.Time(time.UTC)
	return int(end.Sub(start).Hours()/24) + 1
}

// Days lists every day of the interval in order.
func (i Interval) Days() []Day {
	n := i.Len()
	out := make([]Day, 0, n)
	for k := 0; k < n; k++ {
		out = append(out, i.Start.AddDays(k))
	}
	return out
}

// ExclusiveEnd is the day after End, as calendar formats expect.
func (i Interval) ExclusiveEnd() Day {
	return i.End.AddDays(1)
}

func (i Interval) String() string {
	if i.Start == i.End {
		return i.Start.String()
	}
	return i.Start.String() + ".." + i.End.String()
}
