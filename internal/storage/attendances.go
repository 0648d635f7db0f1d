package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"session-cards/internal/models"
	"session-cards/internal/period"
)

const attendanceColumns = "id, member_id, session_card_id, card_session_used, session_date, title"

// CreateAttendance records a visit. cardID may be nil for an unlinked attendance.
func (db *DB) CreateAttendance(ctx context.Context, memberID int64, cardID *int64, sessionDate time.Time, title string) (*models.SessionAttendance, error) {
	var id int64
	err := db.conn.QueryRowContext(ctx,
		db.rebind(`INSERT INTO session_attendances (member_id, session_card_id, card_session_used, session_date, title)
			VALUES (?, ?, ?, ?, ?) RETURNING id`),
		memberID, cardID, false, dbTime(sessionDate), strings.TrimSpace(title),
	).Scan(&id)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: attendance of member %d at %s", ErrDuplicate, memberID, sessionDate.Format(time.DateTime))
	}
	if err != nil {
		return nil, err
	}
	return db.GetAttendance(ctx, id)
}

// GetAttendance retrieves an attendance by ID.
func (db *DB) GetAttendance(ctx context.Context, id int64) (*models.SessionAttendance, error) {
	row := db.conn.QueryRowContext(ctx,
		db.rebind("SELECT "+attendanceColumns+" FROM session_attendances WHERE id = ?"),
		id,
	)

	var a models.SessionAttendance
	var cardID sql.NullInt64
	if err := row.Scan(&a.ID, &a.MemberID, &cardID, &a.CardSessionUsed, &a.SessionDate, &a.Title); err != nil {
		return nil, notFound(err, "attendance")
	}
	if cardID.Valid {
		a.SessionCardID = &cardID.Int64
	}
	return &a, nil
}

// AttendanceFilter narrows ListAttendances.
type AttendanceFilter struct {
	Range period.Range
	// Unlinked keeps attendances without a card.
	Unlinked bool
	// Uncharged keeps linked attendances whose card has not been debited.
	Uncharged bool
}

// ListAttendances returns attendances with their member and card, oldest first.
func (db *DB) ListAttendances(ctx context.Context, f AttendanceFilter) ([]models.AttendanceDetail, error) {
	var where []string
	var args []any
	if !f.Range.From.IsZero() {
		where = append(where, "a.session_date >= ?")
		args = append(args, dbTime(f.Range.From))
	}
	if !f.Range.To.IsZero() {
		where = append(where, "a.session_date < ?")
		args = append(args, dbTime(f.Range.To))
	}
	if f.Unlinked {
		where = append(where, "a.session_card_id IS NULL")
	}
	if f.Uncharged {
		where = append(where, "a.session_card_id IS NOT NULL", "a.card_session_used = FALSE")
	}

	query := `SELECT a.id, a.member_id, a.session_card_id, a.card_session_used, a.session_date, a.title,
			m.id, m.email, m.first_name, m.last_name, m.created_at,
			c.id, c.member_id, c.card_type, c.total_sessions, c.sessions_used, c.status, c.is_trial,
			c.purchased_date, c.expiry_date, c.notes, c.created_at, c.updated_at
		FROM session_attendances a
		JOIN members m ON m.id = a.member_id
		LEFT JOIN session_cards c ON c.id = a.session_card_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY a.session_date ASC, a.id ASC"

	rows, err := db.conn.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var details []models.AttendanceDetail
	for rows.Next() {
		var d models.AttendanceDetail
		var linkedID sql.NullInt64
		var (
			cardID, cardMember, total, used sql.NullInt64
			cardType, status, notes         sql.NullString
			trial                           sql.NullBool
			purchased, expiry               sql.NullTime
			created, updated                sql.NullTime
		)
		if err := rows.Scan(
			&d.ID, &d.MemberID, &linkedID, &d.CardSessionUsed, &d.SessionDate, &d.Title,
			&d.Member.ID, &d.Member.Email, &d.Member.FirstName, &d.Member.LastName, &d.Member.CreatedAt,
			&cardID, &cardMember, &cardType, &total, &used, &status, &trial,
			&purchased, &expiry, &notes, &created, &updated,
		); err != nil {
			return nil, err
		}
		if linkedID.Valid {
			d.SessionCardID = &linkedID.Int64
		}
		if cardID.Valid {
			d.Card = &models.SessionCard{
				ID:            cardID.Int64,
				MemberID:      cardMember.Int64,
				CardType:      cardType.String,
				TotalSessions: int(total.Int64),
				SessionsUsed:  int(used.Int64),
				Status:        models.CardStatus(status.String),
				IsTrial:       trial.Bool,
				PurchasedDate: purchased.Time,
				Notes:         notes.String,
				CreatedAt:     created.Time,
				UpdatedAt:     updated.Time,
			}
			if expiry.Valid {
				d.Card.ExpiryDate = &expiry.Time
			}
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

// LinkCard attaches a card to an attendance that has none. It reports false
// when the attendance was already linked by the time the update ran.
func (db *DB) LinkCard(ctx context.Context, attendanceID, cardID int64) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		db.rebind("UPDATE session_attendances SET session_card_id = ? WHERE id = ? AND session_card_id IS NULL"),
		cardID, attendanceID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ChargeOutcome describes what ChargeAttendance did.
type ChargeOutcome string

const (
	// Charged means one session was debited and the attendance flagged.
	Charged ChargeOutcome = "charged"
	// AlreadyCharged means the attendance flag was set before this call.
	AlreadyCharged ChargeOutcome = "already charged"
	// NotChargeable means the linked card is inactive or used up.
	NotChargeable ChargeOutcome = "not chargeable"
	// NoCardLinked means the attendance has no card to debit.
	NoCardLinked ChargeOutcome = "no card linked"
)

// ChargeResult is the outcome plus the card as it stands afterwards.
type ChargeResult struct {
	Outcome ChargeOutcome
	Card    *models.SessionCard
}

// ChargeAttendance debits one session from the attendance's card. The flag is
// flipped with a compare-and-set and the card debit is guarded on status and
// balance, both in one transaction, so concurrent or repeated runs charge an
// attendance at most once.
func (db *DB) ChargeAttendance(ctx context.Context, attendanceID int64) (ChargeResult, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return ChargeResult{}, err
	}
	defer tx.Rollback()

	var cardID sql.NullInt64
	var used bool
	err = tx.QueryRowContext(ctx,
		db.rebind("SELECT session_card_id, card_session_used FROM session_attendances WHERE id = ?"),
		attendanceID,
	).Scan(&cardID, &used)
	if err != nil {
		return ChargeResult{}, notFound(err, "attendance")
	}
	if !cardID.Valid {
		return ChargeResult{Outcome: NoCardLinked}, nil
	}
	if used {
		card, err := db.getCard(ctx, tx, cardID.Int64)
		if err != nil {
			return ChargeResult{}, err
		}
		return ChargeResult{Outcome: AlreadyCharged, Card: card}, nil
	}

	res, err := tx.ExecContext(ctx,
		db.rebind(`UPDATE session_attendances SET card_session_used = TRUE
			WHERE id = ? AND session_card_id = ? AND card_session_used = FALSE`),
		attendanceID, cardID.Int64,
	)
	if err != nil {
		return ChargeResult{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return ChargeResult{}, err
	} else if n == 0 {
		card, err := db.getCard(ctx, tx, cardID.Int64)
		if err != nil {
			return ChargeResult{}, err
		}
		return ChargeResult{Outcome: AlreadyCharged, Card: card}, nil
	}

	res, err = tx.ExecContext(ctx,
		db.rebind(`UPDATE session_cards
			SET sessions_used = sessions_used + 1,
				status = CASE WHEN sessions_used + 1 >= total_sessions THEN ? ELSE status END,
				updated_at = ?
			WHERE id = ? AND status = ? AND sessions_used < total_sessions`),
		string(models.CardCompleted), dbTime(time.Now()), cardID.Int64, string(models.CardActive),
	)
	if err != nil {
		return ChargeResult{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ChargeResult{}, err
	}
	if n == 0 {
		// Undo the flag; the card could not pay for this attendance.
		card, err := db.getCard(ctx, tx, cardID.Int64)
		if err != nil {
			return ChargeResult{}, err
		}
		if err := tx.Rollback(); err != nil {
			return ChargeResult{}, err
		}
		return ChargeResult{Outcome: NotChargeable, Card: card}, nil
	}

	card, err := db.getCard(ctx, tx, cardID.Int64)
	if err != nil {
		return ChargeResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return ChargeResult{}, err
	}
	return ChargeResult{Outcome: Charged, Card: card}, nil
}
