package period

import (
	"flag"
	"fmt"
	"strconv"
	"time"
)

// Selection holds the range flags shared by the card commands. DaysAgo is
// nil when unset.
type Selection struct {
	Date    string
	From    string
	To      string
	DaysAgo *int
}

// Bind registers -date and -days-ago on fs, plus -from and -to when span is
// set.
func (s *Selection) Bind(fs *flag.FlagSet, span bool) {
	fs.StringVar(&s.Date, "date", "", "Single day to process (YYYY-MM-DD)")
	fs.Func("days-ago", "Single day `N` days before today (0 is today)", func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid number %q", v)
		}
		s.DaysAgo = &n
		return nil
	})
	if span {
		fs.StringVar(&s.From, "from", "", "First day to process (YYYY-MM-DD)")
		fs.StringVar(&s.To, "to", "", "Last day to process, inclusive (YYYY-MM-DD)")
	}
}

// Resolve turns the selection into a Range, returning def when nothing was
// selected. At most one of date, from/to and days-ago may be given.
func (s Selection) Resolve(now time.Time, loc *time.Location, def Range) (Range, error) {
	set := 0
	if s.Date != "" {
		set++
	}
	if s.From != "" || s.To != "" {
		set++
	}
	if s.DaysAgo != nil {
		set++
	}
	if set > 1 {
		return Range{}, fmt.Errorf("%w: use only one of -date, -from/-to, -days-ago", ErrInvalidRange)
	}

	switch {
	case s.Date != "":
		d, err := ParseDate(s.Date, loc)
		if err != nil {
			return Range{}, err
		}
		return Day(d, loc), nil

	case s.From != "" && s.To != "":
		from, err := ParseDate(s.From, loc)
		if err != nil {
			return Range{}, err
		}
		to, err := ParseDate(s.To, loc)
		if err != nil {
			return Range{}, err
		}
		return Days(from, to, loc)

	case s.From != "":
		from, err := ParseDate(s.From, loc)
		if err != nil {
			return Range{}, err
		}
		return Range{From: from}, nil

	case s.To != "":
		to, err := ParseDate(s.To, loc)
		if err != nil {
			return Range{}, err
		}
		return Range{To: Day(to, loc).To}, nil

	case s.DaysAgo != nil:
		return DaysAgo(now, *s.DaysAgo, loc)
	}
	return def, nil
}
