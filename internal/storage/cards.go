package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"session-cards/internal/models"
)

const cardColumns = "id, member_id, card_type, total_sessions, sessions_used, status, is_trial, purchased_date, expiry_date, notes, created_at, updated_at"

// CreateCard issues a card. Status defaults to active and becomes completed
// when the card is created already used up.
func (db *DB) CreateCard(ctx context.Context, card models.SessionCard) (*models.SessionCard, error) {
	if card.TotalSessions < 1 {
		return nil, fmt.Errorf("%w: total sessions must be at least 1, got %d", ErrInvalidCard, card.TotalSessions)
	}
	if card.SessionsUsed < 0 || card.SessionsUsed > card.TotalSessions {
		return nil, fmt.Errorf("%w: sessions used must be between 0 and %d, got %d", ErrInvalidCard, card.TotalSessions, card.SessionsUsed)
	}
	if strings.TrimSpace(card.CardType) == "" {
		return nil, fmt.Errorf("%w: card type is required", ErrInvalidCard)
	}
	if card.Status == "" {
		card.Status = models.CardActive
	}
	if !card.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidCard, card.Status)
	}
	if card.SessionsUsed == card.TotalSessions {
		card.Status = models.CardCompleted
	}
	if card.Status == models.CardCompleted && card.SessionsUsed < card.TotalSessions {
		return nil, fmt.Errorf("%w: completed card has %d sessions left", ErrInvalidCard, card.TotalSessions-card.SessionsUsed)
	}

	now := time.Now()
	if card.PurchasedDate.IsZero() {
		card.PurchasedDate = now
	}
	var expiry *time.Time
	if card.ExpiryDate != nil {
		if card.ExpiryDate.Before(card.PurchasedDate) {
			return nil, fmt.Errorf("%w: expiry date %s is before purchase date %s", ErrInvalidCard,
				card.ExpiryDate.Format(time.DateOnly), card.PurchasedDate.Format(time.DateOnly))
		}
		t := dbTime(*card.ExpiryDate)
		expiry = &t
	}

	var id int64
	err := db.conn.QueryRowContext(ctx,
		db.rebind(`INSERT INTO session_cards
			(member_id, card_type, total_sessions, sessions_used, status, is_trial, purchased_date, expiry_date, notes, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		card.MemberID, strings.TrimSpace(card.CardType), card.TotalSessions, card.SessionsUsed,
		string(card.Status), card.IsTrial, dbTime(card.PurchasedDate), expiry, strings.TrimSpace(card.Notes), dbTime(now), dbTime(now),
	).Scan(&id)
	if err != nil {
		return nil, err
	}
	return db.GetCard(ctx, id)
}

// GetCard retrieves a card by ID.
func (db *DB) GetCard(ctx context.Context, id int64) (*models.SessionCard, error) {
	return db.getCard(ctx, db.conn, id)
}

func (db *DB) getCard(ctx context.Context, q queryer, id int64) (*models.SessionCard, error) {
	row := q.QueryRowContext(ctx,
		db.rebind("SELECT "+cardColumns+" FROM session_cards WHERE id = ?"),
		id,
	)
	c, err := scanCard(row)
	if err != nil {
		return nil, notFound(err, "session card")
	}
	return c, nil
}

// ActiveCardForMember returns the card used for linking: the most recently
// purchased active card, lowest ID first among equal purchase dates.
func (db *DB) ActiveCardForMember(ctx context.Context, memberID int64) (*models.SessionCard, error) {
	row := db.conn.QueryRowContext(ctx,
		db.rebind(`SELECT `+cardColumns+` FROM session_cards
			WHERE member_id = ? AND status = ?
			ORDER BY purchased_date DESC, id ASC
			LIMIT 1`),
		memberID, string(models.CardActive),
	)
	c, err := scanCard(row)
	if err != nil {
		return nil, notFound(err, "active session card")
	}
	return c, nil
}

// ListCards returns all cards of a member, newest purchase first.
func (db *DB) ListCards(ctx context.Context, memberID int64) ([]models.SessionCard, error) {
	rows, err := db.conn.QueryContext(ctx,
		db.rebind("SELECT "+cardColumns+" FROM session_cards WHERE member_id = ? ORDER BY purchased_date DESC, id ASC"),
		memberID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []models.SessionCard
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, *c)
	}
	return cards, rows.Err()
}

func scanCard(row interface{ Scan(...any) error }) (*models.SessionCard, error) {
	var c models.SessionCard
	var status string
	var expiry sql.NullTime
	if err := row.Scan(
		&c.ID, &c.MemberID, &c.CardType, &c.TotalSessions, &c.SessionsUsed,
		&status, &c.IsTrial, &c.PurchasedDate, &expiry, &c.Notes, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.Status = models.CardStatus(status)
	if expiry.Valid {
		c.ExpiryDate = &expiry.Time
	}
	return &c, nil
}
