package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// ListRow is one aggregated listing row: a header with the summed quantity
// of its non-archived lines.
type ListRow struct {
	OrderID       int64      `bun:"order_id"`
	Deadline      *time.Time `bun:"deadline"`
	CreatedAt     time.Time  `bun:"created_at"`
	CreatedBy     int64      `bun:"created_by"`
	UpdatedAt     *time.Time `bun:"updated_at"`
	UpdatedBy     *int64     `bun:"updated_by"`
	Status        int16      `bun:"status"`
	BranchName    string     `bun:"branch_name"`
	OrderTypeName string     `bun:"order_type_name"`
	UserName      string     `bun:"user_name"`
	TotalQuantity int64      `bun:"total_quantity"`
	Difference    int64      `bun:"difference"`
}

// HeaderView is an order header joined with its lookup names.
type HeaderView struct {
	OrderID       int64      `bun:"order_id"`
	BranchID      int64      `bun:"branch_id"`
	BranchName    string     `bun:"branch_name"`
	OrderTypeID   int64      `bun:"order_type_id"`
	OrderTypeName string     `bun:"order_type_name"`
	Status        int16      `bun:"status"`
	Deadline      *time.Time `bun:"deadline"`
	Archived      bool       `bun:"archived"`
	CreatedAt     time.Time  `bun:"created_at"`
	CreatedBy     int64      `bun:"created_by"`
	CreatorName   string     `bun:"creator_name"`
	UpdatedAt     *time.Time `bun:"updated_at"`
	UpdatedBy     *int64     `bun:"updated_by"`
}

// LineView is a line item joined with its product.
type LineView struct {
	ItemID       int64           `bun:"item_id"`
	OrderID      int64           `bun:"order_id"`
	ProductID    int64           `bun:"product_id"`
	ProductName  string          `bun:"product_name"`
	ProductModel string          `bun:"product_model"`
	Quantity     int             `bun:"quantity"`
	UnitPriceUSD decimal.Decimal `bun:"unit_price_usd"`
	Status       int16           `bun:"status"`
	Archived     bool            `bun:"archived"`
	CreatedAt    time.Time       `bun:"created_at"`
	CreatedBy    int64           `bun:"created_by"`
}

// LineEditView is a single line with the parent header fields an editor needs.
type LineEditView struct {
	LineView
	OrderTypeID int64  `bun:"order_type_id"`
	BranchName  string `bun:"branch_name"`
	CreatorName string `bun:"creator_name"`
}

// LineEdit is the absolute state one line edit writes: the line's quantity
// and its header's order type.
type LineEdit struct {
	ItemID      int64
	OrderID     int64
	Quantity    int
	OrderTypeID int64
	UserID      int64
}
