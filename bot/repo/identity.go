package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// IdentityRepo manages staff-to-Telegram identity links.
type IdentityRepo struct {
	db *sqlx.DB
}

// NewIdentityRepo wraps a database handle.
func NewIdentityRepo(db *sqlx.DB) *IdentityRepo {
	return &IdentityRepo{db: db}
}

// Has reports whether the staff member is already linked to any Telegram
// account.
func (r *IdentityRepo) Has(ctx context.Context, staffID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM identity_links WHERE staff_id = $1)`, staffID)
	if err != nil {
		return false, fmt.Errorf("identity link exists: %w", err)
	}
	return exists, nil
}

// Create persists the link between a staff record and a Telegram user.
func (r *IdentityRepo) Create(ctx context.Context, staffID, tgUserID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO identity_links (staff_id, tg_user_id, created_at) VALUES ($1, $2, NOW())`,
		staffID, tgUserID)
	if err != nil {
		return fmt.Errorf("identity link create: %w", err)
	}
	return nil
}

// StaffByUser resolves a Telegram user to the linked staff record, or nil
// when the user has not completed authentication.
func (r *IdentityRepo) StaffByUser(ctx context.Context, tgUserID int64) (*Staff, error) {
	var s Staff
	err := r.db.GetContext(ctx, &s,
		`SELECT s.id, s.full_name, s.phone, s.role, s.unit
		   FROM staff s
		   JOIN identity_links l ON l.staff_id = s.id
		  WHERE l.tg_user_id = $1`, tgUserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("staff by tg user: %w", err)
	}
	return &s, nil
}
