// Package charging links attendances to session cards and debits those cards.
package charging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"time"

	"session-cards/internal/models"
	"session-cards/internal/period"
	"session-cards/internal/storage"
)

// ErrRecordsFailed is returned when at least one attendance could not be
// processed. The rest of the run still completed.
var ErrRecordsFailed = errors.New("some attendances could not be processed")

// Store is the persistence the workflow needs.
type Store interface {
	ListAttendances(ctx context.Context, f storage.AttendanceFilter) ([]models.AttendanceDetail, error)
	ActiveCardForMember(ctx context.Context, memberID int64) (*models.SessionCard, error)
	LinkCard(ctx context.Context, attendanceID, cardID int64) (bool, error)
	ChargeAttendance(ctx context.Context, attendanceID int64) (storage.ChargeResult, error)
}

// Options selects what a run touches.
type Options struct {
	Range       period.Range
	DryRun      bool
	SkipLinking bool
}

// Service runs the link-then-charge workflow.
type Service struct {
	store  Store
	logger *log.Logger
	now    func() time.Time
}

// NewService creates a Service. A nil logger discards log output and a nil
// clock uses time.Now.
func NewService(store Store, logger *log.Logger, now func() time.Time) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, logger: logger, now: now}
}

// Run links unlinked attendances in the range and charges every linked,
// uncharged attendance that already took place. Listing failures abort the
// run; failures on single records are counted and reported through
// ErrRecordsFailed once every other record has been processed.
func (s *Service) Run(ctx context.Context, opts Options) (*Summary, error) {
	now := s.now()
	sum := &Summary{
		Range:     opts.Range.String(),
		DryRun:    opts.DryRun,
		StartedAt: now,
	}

	var planned []models.AttendanceDetail
	if !opts.SkipLinking {
		links, p, err := s.link(ctx, opts.Range, opts.DryRun)
		if err != nil {
			return nil, err
		}
		sum.Links, planned = links, p
	}

	charges, err := s.charge(ctx, opts.Range.Clamp(now), opts.DryRun, planned)
	if err != nil {
		return nil, err
	}
	sum.Charges = charges
	sum.tally()

	if sum.Failed > 0 {
		return sum, fmt.Errorf("%w: %d failed", ErrRecordsFailed, sum.Failed)
	}
	return sum, nil
}

// link attaches an active card to each unlinked attendance. In a dry run the
// would-be links are returned so the charge step can account for them.
func (s *Service) link(ctx context.Context, r period.Range, dryRun bool) ([]LinkEntry, []models.AttendanceDetail, error) {
	unlinked, err := s.store.ListAttendances(ctx, storage.AttendanceFilter{Range: r, Unlinked: true})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list unlinked attendances: %w", err)
	}

	var entries []LinkEntry
	var planned []models.AttendanceDetail
	for _, a := range unlinked {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		entry := LinkEntry{
			AttendanceID: a.ID,
			Member:       a.Member.FullName(),
			SessionDate:  a.SessionDate,
		}

		card, err := s.store.ActiveCardForMember(ctx, a.MemberID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			entry.Status = NoActiveCard
			s.logger.Printf("no active card: attendance %d of %s", a.ID, entry.Member)
			entries = append(entries, entry)
			continue
		case err != nil:
			entry.Status = LinkFailed
			entry.Error = err.Error()
			s.logger.Printf("link failed: attendance %d of %s: %v", a.ID, entry.Member, err)
			entries = append(entries, entry)
			continue
		}
		entry.CardID = card.ID
		entry.CardLabel = card.Label()

		if dryRun {
			entry.Status = WouldLink
			a.SessionCardID = &card.ID
			a.Card = card
			planned = append(planned, a)
			entries = append(entries, entry)
			continue
		}

		ok, err := s.store.LinkCard(ctx, a.ID, card.ID)
		switch {
		case err != nil:
			entry.Status = LinkFailed
			entry.Error = err.Error()
			s.logger.Printf("link failed: attendance %d of %s: %v", a.ID, entry.Member, err)
		case !ok:
			entry.Status = AlreadyLinked
			s.logger.Printf("attendance %d was linked by someone else, left as is", a.ID)
		default:
			entry.Status = Linked
			s.logger.Printf("linked attendance %d of %s to card %d (%s)", a.ID, entry.Member, card.ID, entry.CardLabel)
		}
		entries = append(entries, entry)
	}
	return entries, planned, nil
}

// charge debits cards for past, linked, uncharged attendances.
func (s *Service) charge(ctx context.Context, r period.Range, dryRun bool, planned []models.AttendanceDetail) ([]ChargeEntry, error) {
	if r.Empty() {
		return nil, nil
	}
	pending, err := s.store.ListAttendances(ctx, storage.AttendanceFilter{Range: r, Uncharged: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list uncharged attendances: %w", err)
	}
	for _, a := range planned {
		if r.Contains(a.SessionDate) {
			pending = append(pending, a)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if !pending[i].SessionDate.Equal(pending[j].SessionDate) {
			return pending[i].SessionDate.Before(pending[j].SessionDate)
		}
		return pending[i].ID < pending[j].ID
	})

	// Dry runs debit copies so that several attendances on one card are
	// reported the way a real run would process them.
	simulated := make(map[int64]*models.SessionCard)

	entries := make([]ChargeEntry, 0, len(pending))
	for _, a := range pending {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !a.Linked() || a.Card == nil {
			continue
		}
		entry := ChargeEntry{
			AttendanceID: a.ID,
			Member:       a.Member.FullName(),
			SessionDate:  a.SessionDate,
			CardID:       a.Card.ID,
			CardLabel:    a.Card.Label(),
			Trial:        a.Card.IsTrial,
		}

		if dryRun {
			card, ok := simulated[a.Card.ID]
			if !ok {
				c := *a.Card
				card = &c
				simulated[c.ID] = card
			}
			if card.Use() {
				entry.Status = WouldCharge
			} else {
				entry.Status = Skipped
			}
			entry.CardStatus = card.Status
			entry.Remaining = card.SessionsRemaining()
			s.logger.Printf("dry run: %s attendance %d of %s on %s", entry.Status, a.ID, entry.Member, entry.CardLabel)
			entries = append(entries, entry)
			continue
		}

		res, err := s.store.ChargeAttendance(ctx, a.ID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			entry.Status = ChargeFailed
			entry.Error = err.Error()
			s.logger.Printf("charge failed: attendance %d of %s: %v", a.ID, entry.Member, err)
			entries = append(entries, entry)
			continue
		}

		switch res.Outcome {
		case storage.Charged:
			entry.Status = Charged
		case storage.AlreadyCharged:
			entry.Status = AlreadyCharged
		default:
			entry.Status = Skipped
		}
		if res.Card != nil {
			entry.CardStatus = res.Card.Status
			entry.Remaining = res.Card.SessionsRemaining()
		}
		s.logger.Printf("%s: attendance %d of %s on card %d (%s, status %s, %d remaining)",
			entry.Status, a.ID, entry.Member, entry.CardID, entry.CardLabel, entry.CardStatus, entry.Remaining)
		entries = append(entries, entry)
	}
	return entries, nil
}
