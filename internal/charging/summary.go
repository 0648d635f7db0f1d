package charging

import (
	"encoding/json"
	"io"
	"time"

	"session-cards/internal/console"
	"session-cards/internal/models"
)

// LinkStatus is the result of linking one attendance.
type LinkStatus string

const (
	Linked        LinkStatus = "linked"
	WouldLink     LinkStatus = "would link"
	AlreadyLinked LinkStatus = "already linked"
	NoActiveCard  LinkStatus = "no active card"
	LinkFailed    LinkStatus = "failed"
)

// ChargeStatus is the result of charging one attendance.
type ChargeStatus string

const (
	Charged        ChargeStatus = "charged"
	WouldCharge    ChargeStatus = "would charge"
	AlreadyCharged ChargeStatus = "already charged"
	Skipped        ChargeStatus = "skipped"
	ChargeFailed   ChargeStatus = "failed"
)

// LinkEntry reports one attendance from the linking step.
type LinkEntry struct {
	AttendanceID int64      `json:"attendance_id"`
	Member       string     `json:"member"`
	SessionDate  time.Time  `json:"session_date"`
	CardID       int64      `json:"card_id,omitempty"`
	CardLabel    string     `json:"card,omitempty"`
	Status       LinkStatus `json:"status"`
	Error        string     `json:"error,omitempty"`
}

// ChargeEntry reports one attendance from the charging step.
type ChargeEntry struct {
	AttendanceID int64             `json:"attendance_id"`
	Member       string            `json:"member"`
	SessionDate  time.Time         `json:"session_date"`
	CardID       int64             `json:"card_id"`
	CardLabel    string            `json:"card"`
	Trial        bool              `json:"trial"`
	CardStatus   models.CardStatus `json:"card_status,omitempty"`
	Remaining    int               `json:"remaining"`
	Status       ChargeStatus      `json:"status"`
	Error        string            `json:"error,omitempty"`
}

// Summary is everything one run did or, in a dry run, would do.
type Summary struct {
	Range     string        `json:"range"`
	DryRun    bool          `json:"dry_run"`
	StartedAt time.Time     `json:"started_at"`
	Links     []LinkEntry   `json:"links"`
	Charges   []ChargeEntry `json:"charges"`

	Linked      int `json:"linked"`
	NoCard      int `json:"no_active_card"`
	Charged     int `json:"charged"`
	Skipped     int `json:"skipped"`
	AlreadyDone int `json:"already_charged"`
	Failed      int `json:"failed"`
}

func (s *Summary) tally() {
	for _, l := range s.Links {
		switch l.Status {
		case Linked, WouldLink:
			s.Linked++
		case NoActiveCard:
			s.NoCard++
		case LinkFailed:
			s.Failed++
		}
	}
	for _, c := range s.Charges {
		switch c.Status {
		case Charged, WouldCharge:
			s.Charged++
		case Skipped:
			s.Skipped++
		case AlreadyCharged:
			s.AlreadyDone++
		case ChargeFailed:
			s.Failed++
		}
	}
}

// WriteJSON encodes the summary as indented JSON.
func (s *Summary) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// WriteText prints a human-readable account of the run, with session times
// shown in loc.
func (s *Summary) WriteText(p *console.Printer, loc *time.Location) {
	prefix := ""
	if s.DryRun {
		prefix = "[DRY RUN] "
	}

	if len(s.Links) > 0 {
		p.Printf("Linking cards (%s): %d unlinked attendance(s)", s.Range, len(s.Links))
		p.Rule()
		for _, l := range s.Links {
			when := l.SessionDate.In(loc).Format("02-01-2006 15:04")
			switch l.Status {
			case Linked, WouldLink:
				p.Success("%s%s: %s - %s (%s)", prefix, l.Status, l.Member, l.CardLabel, when)
			case NoActiveCard, AlreadyLinked:
				p.Warning("%s: %s (%s)", l.Status, l.Member, when)
			default:
				p.Error("%s: %s (%s): %s", l.Status, l.Member, when, l.Error)
			}
		}
		p.Rule()
	}

	if len(s.Charges) == 0 {
		p.Success("No sessions to charge")
	} else {
		p.Printf("Found %d past session(s) to charge:", len(s.Charges))
		p.Rule()
		for _, c := range s.Charges {
			when := c.SessionDate.In(loc).Format("02-01-2006 15:04")
			switch c.Status {
			case Charged, WouldCharge:
				p.Success("%s%s: %s - %s (%s, %d remaining)", prefix, c.Status, c.Member, c.CardLabel, when, c.Remaining)
			case Skipped, AlreadyCharged:
				p.Warning("%s%s: %s - %s (status: %s, remaining: %d)", prefix, c.Status, c.Member, c.CardLabel, c.CardStatus, c.Remaining)
			default:
				p.Error("%s: %s - %s: %s", c.Status, c.Member, c.CardLabel, c.Error)
			}
		}
		p.Rule()
	}

	if s.DryRun {
		p.Warning("DRY RUN - would link %d, charge %d session(s), skip %d session(s)", s.Linked, s.Charged, s.Skipped)
		return
	}
	line := "Linked %d, charged %d session(s), skipped %d session(s), %d without active card"
	if s.Failed > 0 {
		p.Error(line+", %d failed", s.Linked, s.Charged, s.Skipped, s.NoCard, s.Failed)
		return
	}
	p.Success(line, s.Linked, s.Charged, s.Skipped, s.NoCard)
}
