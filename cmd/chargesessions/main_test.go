package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"session-cards/internal/charging"
	"session-cards/internal/models"
	"session-cards/internal/period"
	"session-cards/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type seeded struct {
	dbPath     string
	cardID     int64
	attendance int64
}

// seed creates a member with a 10-session card (5 used) and one unlinked
// attendance sessionAge before fixedNow.
func seed(t *testing.T, sessionAge time.Duration) seeded {
	t.Helper()
	t.Setenv("CARDS_TIMEZONE", "UTC")
	t.Setenv("CARDS_LOG_FILE", "")

	dbPath := filepath.Join(t.TempDir(), "cards.db")
	db, err := storage.NewDB(dbPath)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	m, err := db.CreateMember(ctx, "anna@example.com", "Anna", "Peeters")
	require.NoError(t, err)
	c, err := db.CreateCard(ctx, models.SessionCard{MemberID: m.ID, CardType: "10 sessions", TotalSessions: 10, SessionsUsed: 5})
	require.NoError(t, err)
	a, err := db.CreateAttendance(ctx, m.ID, nil, fixedNow.Add(-sessionAge), "Kangoo Evening")
	require.NoError(t, err)

	return seeded{dbPath: dbPath, cardID: c.ID, attendance: a.ID}
}

func (s seeded) state(t *testing.T) (*models.SessionCard, *models.SessionAttendance) {
	t.Helper()
	db, err := storage.NewDB(s.dbPath)
	require.NoError(t, err)
	defer db.Close()

	card, err := db.GetCard(context.Background(), s.cardID)
	require.NoError(t, err)
	att, err := db.GetAttendance(context.Background(), s.attendance)
	require.NoError(t, err)
	return card, att
}

func TestRun_LinksAndCharges(t *testing.T) {
	s := seed(t, 18*time.Hour)
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	err := run(context.Background(), []string{"-db", s.dbPath}, stdout, stderr, clock)
	require.NoError(t, err)

	output := stdout.String()
	assert.Contains(t, output, "linked: Anna Peeters - 10 sessions")
	assert.Contains(t, output, "Found 1 past session(s) to charge:")
	assert.Contains(t, output, "Linked 1, charged 1 session(s), skipped 0 session(s), 0 without active card")

	card, att := s.state(t)
	assert.Equal(t, 6, card.SessionsUsed)
	assert.True(t, att.CardSessionUsed)
	require.NotNil(t, att.SessionCardID)
	assert.Equal(t, s.cardID, *att.SessionCardID)
}

func TestRun_DryRunChangesNothing(t *testing.T) {
	s := seed(t, 18*time.Hour)
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	err := run(context.Background(), []string{"-db", s.dbPath, "-dry-run"}, stdout, stderr, clock)
	require.NoError(t, err)

	output := stdout.String()
	assert.Contains(t, output, "[DRY RUN] would link: Anna Peeters")
	assert.Contains(t, output, "[DRY RUN] would charge: Anna Peeters - 10 sessions")
	assert.Contains(t, output, "DRY RUN - would link 1, charge 1 session(s), skip 0 session(s)")

	card, att := s.state(t)
	assert.Equal(t, 5, card.SessionsUsed)
	assert.Nil(t, att.SessionCardID)
	assert.False(t, att.CardSessionUsed)
}

func TestRun_SecondRunIsNoop(t *testing.T) {
	s := seed(t, 18*time.Hour)
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	require.NoError(t, run(context.Background(), []string{"-db", s.dbPath}, stdout, stderr, clock))
	stdout.Reset()
	require.NoError(t, run(context.Background(), []string{"-db", s.dbPath}, stdout, stderr, clock))

	assert.Contains(t, stdout.String(), "No sessions to charge")
	card, _ := s.state(t)
	assert.Equal(t, 6, card.SessionsUsed)
}

func TestRun_JSONOutput(t *testing.T) {
	s := seed(t, 18*time.Hour)
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	err := run(context.Background(), []string{"-db", s.dbPath, "-json"}, stdout, stderr, clock)
	require.NoError(t, err)

	var sum charging.Summary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &sum))
	assert.Equal(t, 1, sum.Linked)
	assert.Equal(t, 1, sum.Charged)
	require.Len(t, sum.Charges, 1)
	assert.Equal(t, charging.Charged, sum.Charges[0].Status)
	assert.Equal(t, 4, sum.Charges[0].Remaining)
}

func TestRun_DaysAgoOutsideRange(t *testing.T) {
	// The session was three days ago; yesterday has nothing to do.
	s := seed(t, 72*time.Hour)
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	err := run(context.Background(), []string{"-db", s.dbPath, "-days-ago", "1"}, stdout, stderr, clock)
	require.NoError(t, err)

	assert.Contains(t, stdout.String(), "No sessions to charge")
	card, att := s.state(t)
	assert.Equal(t, 5, card.SessionsUsed)
	assert.Nil(t, att.SessionCardID)
}

func TestRun_NoLinkOnlyCharges(t *testing.T) {
	s := seed(t, 18*time.Hour)
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	err := run(context.Background(), []string{"-db", s.dbPath, "-no-link"}, stdout, stderr, clock)
	require.NoError(t, err)

	assert.Contains(t, stdout.String(), "No sessions to charge")
	_, att := s.state(t)
	assert.Nil(t, att.SessionCardID)
}

func TestRun_LogFile(t *testing.T) {
	s := seed(t, 18*time.Hour)
	logPath := filepath.Join(t.TempDir(), "logs", "charge.log")
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	err := run(context.Background(), []string{"-db", s.dbPath, "-log-file", logPath}, stdout, stderr, clock)
	require.NoError(t, err)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "linked attendance")
	assert.True(t, strings.HasPrefix(string(data), "chargesessions: "))
	assert.Contains(t, stderr.String(), "charged: attendance")
}

func TestRun_IntervalStopsOnCancel(t *testing.T) {
	s := seed(t, 18*time.Hour)
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// One call validates the flags and each run reads the clock twice, so
	// the fifth call falls inside the second run.
	var calls atomic.Int32
	now := func() time.Time {
		if calls.Add(1) >= 5 {
			cancel()
		}
		return fixedNow
	}

	err := run(ctx, []string{"-db", s.dbPath, "-interval", "1ms"}, stdout, stderr, now)
	require.NoError(t, err)

	assert.Contains(t, stdout.String(), "Linked 1, charged 1 session(s)")
	assert.Contains(t, stderr.String(), "stopping")
	card, _ := s.state(t)
	assert.Equal(t, 6, card.SessionsUsed)
}

func TestRun_ConflictingRangeFlags(t *testing.T) {
	t.Setenv("CARDS_TIMEZONE", "UTC")
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	args := []string{"-date", "2026-10-17", "-days-ago", "1", "-db", filepath.Join(t.TempDir(), "x.db")}
	err := run(context.Background(), args, stdout, stderr, clock)
	require.Error(t, err)
	assert.ErrorIs(t, err, period.ErrInvalidRange)
}

func TestRun_NegativeDaysAgo(t *testing.T) {
	t.Setenv("CARDS_TIMEZONE", "UTC")
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	err := run(context.Background(), []string{"-days-ago", "-2"}, stdout, stderr, clock)
	require.Error(t, err)
	assert.ErrorIs(t, err, period.ErrInvalidRange)
}

func TestRun_InvalidDate(t *testing.T) {
	t.Setenv("CARDS_TIMEZONE", "UTC")
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	err := run(context.Background(), []string{"-date", "17/10/2026"}, stdout, stderr, clock)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid date")
}

func TestRun_UnknownDriver(t *testing.T) {
	t.Setenv("CARDS_TIMEZONE", "UTC")
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	err := run(context.Background(), []string{"-driver", "mysql"}, stdout, stderr, clock)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mysql")
}

func TestRun_InvalidDBPath(t *testing.T) {
	t.Setenv("CARDS_TIMEZONE", "UTC")
	tmpDir := t.TempDir()
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	err := run(context.Background(), []string{"-db", tmpDir}, stdout, stderr, clock)
	require.Error(t, err, "expected error for invalid db path")
	assert.Contains(t, err.Error(), "failed to open database")
}

func TestRun_EnvVarOverride(t *testing.T) {
	s := seed(t, 18*time.Hour)
	t.Setenv("DB_PATH", s.dbPath)
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	err := run(context.Background(), nil, stdout, stderr, clock)
	require.NoError(t, err)

	card, _ := s.state(t)
	assert.Equal(t, 6, card.SessionsUsed)
}

func TestRun_InvalidFlag(t *testing.T) {
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	err := run(context.Background(), []string{"-invalid"}, stdout, stderr, clock)
	require.Error(t, err, "expected error for invalid flag")
	assert.Contains(t, err.Error(), "flag provided but not defined")
}
