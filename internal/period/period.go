// Package period builds the explicit date ranges the charging tools operate on.
package period

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the accepted day format for command-line dates.
const DateLayout = "2006-01-02"

// ErrInvalidRange is returned for ranges that end before they start.
var ErrInvalidRange = errors.New("invalid date range")

// Range is a half-open interval [From, To). A zero bound is unbounded.
type Range struct {
	From time.Time
	To   time.Time
}

// All returns an unbounded range.
func All() Range {
	return Range{}
}

// Day returns the calendar day containing t in loc.
func Day(t time.Time, loc *time.Location) Range {
	start := startOfDay(t, loc)
	return Range{From: start, To: start.AddDate(0, 0, 1)}
}

// DaysAgo returns the calendar day n days before now in loc.
func DaysAgo(now time.Time, n int, loc *time.Location) (Range, error) {
	if n < 0 {
		return Range{}, fmt.Errorf("%w: days ago must not be negative, got %d", ErrInvalidRange, n)
	}
	return Day(startOfDay(now, loc).AddDate(0, 0, -n), loc), nil
}

// Days returns the inclusive span of calendar days from first to last.
func Days(first, last time.Time, loc *time.Location) (Range, error) {
	from := startOfDay(first, loc)
	to := startOfDay(last, loc).AddDate(0, 0, 1)
	if !from.Before(to) {
		return Range{}, fmt.Errorf("%w: %s is after %s", ErrInvalidRange, first.Format(DateLayout), last.Format(DateLayout))
	}
	return Range{From: from, To: to}, nil
}

// ParseDate parses a YYYY-MM-DD day in loc.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(value), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
	}
	return t, nil
}

// Contains reports whether t falls inside the range.
func (r Range) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

// Clamp narrows the upper bound to before, used to exclude future sessions.
func (r Range) Clamp(before time.Time) Range {
	if r.To.IsZero() || before.Before(r.To) {
		r.To = before
	}
	return r
}

// Empty reports whether the range cannot contain any instant.
func (r Range) Empty() bool {
	return !r.From.IsZero() && !r.To.IsZero() && !r.From.Before(r.To)
}

func (r Range) String() string {
	switch {
	case r.From.IsZero() && r.To.IsZero():
		return "all dates"
	case r.From.IsZero():
		return "before " + r.To.Format("2006-01-02 15:04")
	case r.To.IsZero():
		return "from " + r.From.Format("2006-01-02 15:04")
	}
	if day := startOfDay(r.From, r.From.Location()); r.From.Equal(day) && r.To.Equal(day.AddDate(0, 0, 1)) {
		return r.From.Format(DateLayout)
	}
	return r.From.Format("2006-01-02 15:04") + " to " + r.To.Format("2006-01-02 15:04")
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
