// Package repo holds the sqlx repositories for business records: the staff
// directory, Telegram identity links, stock, deliveries, and problem-order
// photo intake.
package repo

import (
	"database/sql"
	"time"
)

// Staff is a row of the chain-wide staff directory.
type Staff struct {
	ID       int64  `db:"id"`
	FullName string `db:"full_name"`
	Phone    string `db:"phone"`
	Role     string `db:"role"`
	Unit     string `db:"unit"`
}

// Staff roles used for menu gating.
const (
	RoleManager = "manager"
	RoleKitchen = "kitchen"
	RoleCourier = "courier"
)

// IdentityLink associates a staff record with a Telegram user ID. It is
// created once, when SMS authentication succeeds.
type IdentityLink struct {
	StaffID   int64     `db:"staff_id"`
	TgUserID  int64     `db:"tg_user_id"`
	CreatedAt time.Time `db:"created_at"`
}

// StockItem is a supply position of one unit.
type StockItem struct {
	ID        int64     `db:"id"`
	Unit      string    `db:"unit"`
	Name      string    `db:"name"`
	Quantity  float64   `db:"quantity"`
	Measure   string    `db:"measure"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Delivery is an order assigned to a courier.
type Delivery struct {
	ID             int64  `db:"id"`
	OrderID        string `db:"order_id"`
	Address        string `db:"address"`
	Status         string `db:"status"`
	CourierStaffID int64  `db:"courier_staff_id"`
}

// ProblemOrder is an order flagged for courier follow-up.
type ProblemOrder struct {
	OrderID        string         `db:"order_id"`
	CourierStaffID int64          `db:"courier_staff_id"`
	CourierReply   sql.NullString `db:"courier_reply"`
	RepliedAt      sql.NullTime   `db:"replied_at"`
}

// OrderPhoto is one stored photo of a problem order. Ordinal preserves the
// upload order within a single submission.
type OrderPhoto struct {
	OrderID string `db:"order_id"`
	Ordinal int    `db:"ordinal"`
	BlobKey string `db:"blob_key"`
}
