package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Header status values. Statuses are rows of order_statuses; Open is the one
// every new order starts in.
const (
	OrderStatusOpen int16 = 1
)

// LineStatusActive is the status stamped on freshly inserted line items.
const LineStatusActive int16 = 1

// Order is the header of a branch's goods order. Headers are never deleted;
// archiving happens on their lines.
type Order struct {
	bun.BaseModel `bun:"table:orders,alias:op"`

	ID          int64      `bun:"id,pk,autoincrement" json:"id"`
	BranchID    int64      `bun:"branch_id,notnull" json:"branch_id"`
	OrderTypeID int64      `bun:"order_type_id,notnull" json:"order_type_id"`
	Status      int16      `bun:"status,notnull" json:"status"`
	Deadline    *time.Time `bun:"deadline,type:date" json:"deadline,omitempty"`
	Archived    bool       `bun:"archived,notnull" json:"archived"`
	CreatedAt   time.Time  `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP" json:"created_at"`
	CreatedBy   int64      `bun:"created_by,notnull" json:"created_by"`
	UpdatedAt   *time.Time `bun:"updated_at" json:"updated_at,omitempty"`
	UpdatedBy   *int64     `bun:"updated_by" json:"updated_by,omitempty"`
}

// OrderLineItem is one product line owned by an Order.
type OrderLineItem struct {
	bun.BaseModel `bun:"table:order_line_items,alias:opi"`

	ID           int64           `bun:"id,pk,autoincrement" json:"id"`
	OrderID      int64           `bun:"order_id,notnull" json:"order_id"`
	ProductID    int64           `bun:"product_id,notnull" json:"product_id"`
	Quantity     int             `bun:"quantity,notnull" json:"quantity"`
	UnitPriceUSD decimal.Decimal `bun:"unit_price_usd,type:numeric(14,2),notnull" json:"unit_price_usd"`
	Status       int16           `bun:"status,notnull" json:"status"`
	Archived     bool            `bun:"archived,notnull" json:"archived"`
	CreatedAt    time.Time       `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP" json:"created_at"`
	CreatedBy    int64           `bun:"created_by,notnull" json:"created_by"`
}
