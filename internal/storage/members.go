package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"session-cards/internal/models"
)

const memberColumns = "id, email, first_name, last_name, created_at"

// CreateMember inserts a new member.
func (db *DB) CreateMember(ctx context.Context, email, firstName, lastName string) (*models.Member, error) {
	var id int64
	err := db.conn.QueryRowContext(ctx,
		db.rebind("INSERT INTO members (email, first_name, last_name, created_at) VALUES (?, ?, ?, ?) RETURNING id"),
		strings.ToLower(strings.TrimSpace(email)), strings.TrimSpace(firstName), strings.TrimSpace(lastName), dbTime(time.Now()),
	).Scan(&id)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: member %s", ErrDuplicate, strings.ToLower(strings.TrimSpace(email)))
	}
	if err != nil {
		return nil, err
	}
	return db.GetMemberByID(ctx, id)
}

// GetMemberByID retrieves a member by ID.
func (db *DB) GetMemberByID(ctx context.Context, id int64) (*models.Member, error) {
	row := db.conn.QueryRowContext(ctx,
		db.rebind("SELECT "+memberColumns+" FROM members WHERE id = ?"),
		id,
	)
	m, err := scanMember(row)
	if err != nil {
		return nil, notFound(err, "member")
	}
	return m, nil
}

// GetMemberByEmail retrieves a member by email, case-insensitively.
func (db *DB) GetMemberByEmail(ctx context.Context, email string) (*models.Member, error) {
	row := db.conn.QueryRowContext(ctx,
		db.rebind("SELECT "+memberColumns+" FROM members WHERE email = ?"),
		strings.ToLower(strings.TrimSpace(email)),
	)
	m, err := scanMember(row)
	if err != nil {
		return nil, notFound(err, "member")
	}
	return m, nil
}

func scanMember(row interface{ Scan(...any) error }) (*models.Member, error) {
	var m models.Member
	if err := row.Scan(&m.ID, &m.Email, &m.FirstName, &m.LastName, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}
