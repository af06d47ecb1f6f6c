package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// StaffRepo reads the staff directory.
type StaffRepo struct {
	db *sqlx.DB
}

// NewStaffRepo wraps a database handle.
func NewStaffRepo(db *sqlx.DB) *StaffRepo {
	return &StaffRepo{db: db}
}

// FindByPhone returns every staff member registered under phone. The phone
// must already be normalized to E.164; the directory stores numbers with the
// leading plus.
func (r *StaffRepo) FindByPhone(ctx context.Context, phone string) ([]Staff, error) {
	var out []Staff
	err := r.db.SelectContext(ctx, &out,
		`SELECT id, full_name, phone, role, unit FROM staff WHERE phone = $1`, phone)
	if err != nil {
		return nil, fmt.Errorf("staff by phone: %w", err)
	}
	return out, nil
}

// GetByID returns a single staff member or nil when absent.
func (r *StaffRepo) GetByID(ctx context.Context, id int64) (*Staff, error) {
	var s Staff
	err := r.db.GetContext(ctx, &s,
		`SELECT id, full_name, phone, role, unit FROM staff WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("staff by id: %w", err)
	}
	return &s, nil
}
