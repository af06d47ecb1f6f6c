package repo

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// OrderRepo manages problem orders and their photo records.
type OrderRepo struct {
	db *sqlx.DB
}

// NewOrderRepo wraps a database handle.
func NewOrderRepo(db *sqlx.DB) *OrderRepo {
	return &OrderRepo{db: db}
}

// Flag registers the order as a problem order assigned to the courier.
// Re-flagging an order reassigns it and clears nothing else.
func (r *OrderRepo) Flag(ctx context.Context, orderID string, courierStaffID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO problem_orders (order_id, courier_staff_id) VALUES ($1, $2)
		 ON CONFLICT (order_id) DO UPDATE SET courier_staff_id = EXCLUDED.courier_staff_id`,
		orderID, courierStaffID)
	if err != nil {
		return fmt.Errorf("flag order: %w", err)
	}
	return nil
}

// SaveCourierReply stores the courier's text reply on a problem order.
func (r *OrderRepo) SaveCourierReply(ctx context.Context, orderID, reply string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE problem_orders SET courier_reply = $2, replied_at = NOW() WHERE order_id = $1`,
		orderID, reply)
	if err != nil {
		return fmt.Errorf("save courier reply: %w", err)
	}
	return nil
}

// ReplacePhotos removes existing photo records for the order and inserts the
// new keys with ordinal indexes. Replace-not-append: a repeated submission
// fully supersedes the previous one.
func (r *OrderRepo) ReplacePhotos(ctx context.Context, orderID string, blobKeys []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace photos begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM order_photos WHERE order_id = $1`, orderID); err != nil {
		return fmt.Errorf("replace photos delete: %w", err)
	}
	for i, key := range blobKeys {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO order_photos (order_id, ordinal, blob_key) VALUES ($1, $2, $3)`,
			orderID, i, key); err != nil {
			return fmt.Errorf("replace photos insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace photos commit: %w", err)
	}
	return nil
}

// Photos lists stored photo records for an order in ordinal order.
func (r *OrderRepo) Photos(ctx context.Context, orderID string) ([]OrderPhoto, error) {
	var out []OrderPhoto
	err := r.db.SelectContext(ctx, &out,
		`SELECT order_id, ordinal, blob_key FROM order_photos WHERE order_id = $1 ORDER BY ordinal`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("order photos: %w", err)
	}
	return out, nil
}
