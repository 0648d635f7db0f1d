package period

import (
	"flag"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func TestSelectionResolve(t *testing.T) {
	now := time.Date(2026, 10, 18, 14, 0, 0, 0, time.UTC)
	day := func(d int) time.Time { return time.Date(2026, 10, d, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		name string
		sel  Selection
		want Range
	}{
		{"default", Selection{}, All()},
		{"date", Selection{Date: "2026-10-12"}, Range{From: day(12), To: day(13)}},
		{"from and to", Selection{From: "2026-10-01", To: "2026-10-03"}, Range{From: day(1), To: day(4)}},
		{"from only", Selection{From: "2026-10-05"}, Range{From: day(5)}},
		{"to only", Selection{To: "2026-10-05"}, Range{To: day(6)}},
		{"yesterday", Selection{DaysAgo: intPtr(1)}, Range{From: day(17), To: day(18)}},
		{"today", Selection{DaysAgo: intPtr(0)}, Range{From: day(18), To: day(19)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.sel.Resolve(now, time.UTC, All())
			require.NoError(t, err)
			assert.True(t, tt.want.From.Equal(got.From), "from: want %v got %v", tt.want.From, got.From)
			assert.True(t, tt.want.To.Equal(got.To), "to: want %v got %v", tt.want.To, got.To)
		})
	}
}

func TestSelectionResolveErrors(t *testing.T) {
	now := time.Date(2026, 10, 18, 14, 0, 0, 0, time.UTC)

	_, err := Selection{Date: "2026-10-01", DaysAgo: intPtr(2)}.Resolve(now, time.UTC, All())
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = Selection{From: "2026-10-05", To: "2026-10-01"}.Resolve(now, time.UTC, All())
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = Selection{DaysAgo: intPtr(-3)}.Resolve(now, time.UTC, All())
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = Selection{Date: "yesterday"}.Resolve(now, time.UTC, All())
	assert.ErrorContains(t, err, "invalid date")
}

func TestSelectionBind(t *testing.T) {
	var sel Selection
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	sel.Bind(fs, true)

	require.NoError(t, fs.Parse([]string{"-days-ago", "2", "-from", "2026-10-01"}))
	require.NotNil(t, sel.DaysAgo)
	assert.Equal(t, 2, *sel.DaysAgo)
	assert.Equal(t, "2026-10-01", sel.From)

	var single Selection
	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	single.Bind(fs, false)
	assert.Error(t, fs.Parse([]string{"-from", "2026-10-01"}))
	assert.Error(t, fs.Parse([]string{"-days-ago", "two"}))
}
