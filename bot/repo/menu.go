package repo

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// MenuRepo serves the read queries behind the role-gated menus: stock
// lookups and courier delivery lists.
type MenuRepo struct {
	db *sqlx.DB
}

// NewMenuRepo wraps a database handle.
func NewMenuRepo(db *sqlx.DB) *MenuRepo {
	return &MenuRepo{db: db}
}

// StockByUnit lists supply positions of one unit ordered by name.
func (r *MenuRepo) StockByUnit(ctx context.Context, unit string) ([]StockItem, error) {
	var out []StockItem
	err := r.db.SelectContext(ctx, &out,
		`SELECT id, unit, name, quantity, measure, updated_at
		   FROM stock_items WHERE unit = $1 ORDER BY name`, unit)
	if err != nil {
		return nil, fmt.Errorf("stock by unit: %w", err)
	}
	return out, nil
}

// OpenDeliveries lists a courier's deliveries that are not finished yet.
func (r *MenuRepo) OpenDeliveries(ctx context.Context, courierStaffID int64) ([]Delivery, error) {
	var out []Delivery
	err := r.db.SelectContext(ctx, &out,
		`SELECT id, order_id, address, status, courier_staff_id
		   FROM deliveries
		  WHERE courier_staff_id = $1 AND status NOT IN ('delivered', 'cancelled')
		  ORDER BY id`, courierStaffID)
	if err != nil {
		return nil, fmt.Errorf("open deliveries: %w", err)
	}
	return out, nil
}
