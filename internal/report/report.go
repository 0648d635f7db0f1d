// Package report produces the read-only attendance/card diagnostics for a day.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"session-cards/internal/models"
	"session-cards/internal/period"
	"session-cards/internal/storage"
)

// Finding flags an attendance that needs attention.
type Finding string

const (
	NoActiveCard           Finding = "no active card"
	UnlinkedWithActiveCard Finding = "unlinked with active card"
	LinkedToInactiveCard   Finding = "linked to inactive card"
	CardNotChargeable      Finding = "card not chargeable"
	AwaitingCharge         Finding = "awaiting charge"
)

// Store is the read access the report needs.
type Store interface {
	ListAttendances(ctx context.Context, f storage.AttendanceFilter) ([]models.AttendanceDetail, error)
	ActiveCardForMember(ctx context.Context, memberID int64) (*models.SessionCard, error)
}

// Row is one attendance in the report.
type Row struct {
	AttendanceID int64             `json:"attendance_id"`
	SessionDate  time.Time         `json:"session_date"`
	Title        string            `json:"title"`
	Member       string            `json:"member"`
	Email        string            `json:"email"`
	CardID       *int64            `json:"card_id,omitempty"`
	CardLabel    string            `json:"card,omitempty"`
	CardStatus   models.CardStatus `json:"card_status,omitempty"`
	Remaining    int               `json:"remaining"`
	Total        int               `json:"total"`
	Trial        bool              `json:"trial"`
	Charged      bool              `json:"charged"`
	ActiveCardID *int64            `json:"active_card_id,omitempty"`
	Finding      Finding           `json:"finding,omitempty"`
}

// Report lists every attendance in a range with its card state.
type Report struct {
	Range    string          `json:"range"`
	Rows     []Row           `json:"rows"`
	Findings map[Finding]int `json:"findings"`
}

// Build reads attendances in r and classifies each one. now decides which
// linked, uncharged attendances are already due.
func Build(ctx context.Context, store Store, r period.Range, now time.Time) (*Report, error) {
	attendances, err := store.ListAttendances(ctx, storage.AttendanceFilter{Range: r})
	if err != nil {
		return nil, fmt.Errorf("failed to list attendances: %w", err)
	}

	rep := &Report{
		Range:    r.String(),
		Rows:     make([]Row, 0, len(attendances)),
		Findings: make(map[Finding]int),
	}
	active := make(map[int64]*models.SessionCard)

	for _, a := range attendances {
		card, ok := active[a.MemberID]
		if !ok {
			card, err = store.ActiveCardForMember(ctx, a.MemberID)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("failed to look up active card for member %d: %w", a.MemberID, err)
			}
			active[a.MemberID] = card
		}

		row := Row{
			AttendanceID: a.ID,
			SessionDate:  a.SessionDate,
			Title:        a.Title,
			Member:       a.Member.FullName(),
			Email:        a.Member.Email,
			CardID:       a.SessionCardID,
			Charged:      a.CardSessionUsed,
		}
		if card != nil {
			row.ActiveCardID = &card.ID
		}
		if a.Card != nil {
			row.CardLabel = a.Card.Label()
			row.CardStatus = a.Card.Status
			row.Remaining = a.Card.SessionsRemaining()
			row.Total = a.Card.TotalSessions
			row.Trial = a.Card.IsTrial
		}
		row.Finding = classify(a, card, now)
		if row.Finding != "" {
			rep.Findings[row.Finding]++
		}
		rep.Rows = append(rep.Rows, row)
	}
	return rep, nil
}

func classify(a models.AttendanceDetail, active *models.SessionCard, now time.Time) Finding {
	switch {
	case a.Card == nil && active == nil:
		return NoActiveCard
	case a.Card == nil:
		return UnlinkedWithActiveCard
	case a.CardSessionUsed:
		return ""
	case a.Card.Status != models.CardActive && active != nil && active.ID != a.Card.ID:
		return LinkedToInactiveCard
	case !a.Card.Chargeable():
		return CardNotChargeable
	case a.SessionDate.Before(now):
		return AwaitingCharge
	}
	return ""
}

// WriteJSON encodes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText prints an aligned table followed by finding counts. Times are
// shown in loc.
func (r *Report) WriteText(w io.Writer, loc *time.Location) error {
	fmt.Fprintf(w, "Attendances for %s: %d\n\n", r.Range, len(r.Rows))
	if len(r.Rows) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tMEMBER\tTITLE\tCARD\tLEFT\tCHARGED\tFINDING")
	for _, row := range r.Rows {
		card, left := "-", "-"
		if row.CardID != nil {
			card = fmt.Sprintf("#%d %s (%s)", *row.CardID, row.CardLabel, row.CardStatus)
			left = strconv.Itoa(row.Remaining) + "/" + strconv.Itoa(row.Total)
		}
		charged := "no"
		if row.Charged {
			charged = "yes"
		}
		finding := string(row.Finding)
		if row.ActiveCardID != nil && (row.Finding == UnlinkedWithActiveCard || row.Finding == LinkedToInactiveCard) {
			finding += fmt.Sprintf(" (active card #%d)", *row.ActiveCardID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			row.SessionDate.In(loc).Format("15:04"), row.Member, row.Title, card, left, charged, finding)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	for _, f := range []Finding{NoActiveCard, UnlinkedWithActiveCard, LinkedToInactiveCard, CardNotChargeable, AwaitingCharge} {
		if n := r.Findings[f]; n > 0 {
			fmt.Fprintf(w, "%s: %d\n", f, n)
		}
	}
	return nil
}
