package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSummary is one row of an order listing.
type OrderSummary struct {
	OrderID       int64      `json:"order_id"`
	BranchName    string     `json:"branch_name"`
	OrderTypeName string     `json:"order_type_name"`
	CreatedByName string     `json:"created_by_name"`
	Status        int16      `json:"status"`
	TotalQuantity int64      `json:"total_quantity"`
	Deadline      *time.Time `json:"deadline,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CreatedBy     int64      `json:"created_by"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
	UpdatedBy     *int64     `json:"updated_by,omitempty"`
	// Difference is the store-computed calendar-day distance to today.
	Difference int64 `json:"difference"`
	AgeDays    int64 `json:"age_days"`
}

// OrderPage is the filter listing response.
type OrderPage struct {
	Data  []OrderSummary `json:"data"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

// BrowsePage is the always-paginated listing with totals and lookups.
type BrowsePage struct {
	Data       []OrderSummary `json:"data"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalCount int            `json:"total_count"`
	TotalPages int            `json:"total_pages"`
	Lookups    Lookups        `json:"lookups"`
}

type OrderHeader struct {
	OrderID       int64      `json:"order_id"`
	BranchID      int64      `json:"branch_id"`
	BranchName    string     `json:"branch_name"`
	OrderTypeID   int64      `json:"order_type_id"`
	OrderTypeName string     `json:"order_type_name"`
	Status        int16      `json:"status"`
	Deadline      *time.Time `json:"deadline,omitempty"`
	Archived      bool       `json:"archived"`
	CreatedAt     time.Time  `json:"created_at"`
	CreatedBy     int64      `json:"created_by"`
	CreatedByName string     `json:"created_by_name"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
	UpdatedBy     *int64     `json:"updated_by,omitempty"`
	AgeDays       int64      `json:"age_days"`
}

type OrderLine struct {
	ItemID       int64           `json:"item_id"`
	OrderID      int64           `json:"order_id"`
	ProductID    int64           `json:"product_id"`
	ProductName  string          `json:"product_name"`
	ProductModel string          `json:"product_model,omitempty"`
	Quantity     int             `json:"quantity"`
	UnitPriceUSD decimal.Decimal `json:"unit_price_usd"`
	Status       int16           `json:"status"`
	Archived     bool            `json:"archived"`
	CreatedAt    time.Time       `json:"created_at"`
	CreatedBy    int64           `json:"created_by"`
}

// OrderDetail is one order with its active lines and the catalog needed to
// edit them. Lines is empty, never null, when every line is archived.
type OrderDetail struct {
	Order   OrderHeader  `json:"order"`
	Lines   []OrderLine  `json:"lines"`
	Catalog NewOrderForm `json:"catalog"`
}

// LineEditView is one line with its parent header context.
type LineEditView struct {
	Line        OrderLine  `json:"line"`
	OrderTypeID int64      `json:"order_type_id"`
	BranchName  string     `json:"branch_name"`
	CreatorName string     `json:"creator_name"`
	OrderTypes  []NamedRef `json:"order_types"`
}

// LineSkip records why one input line was not persisted.
type LineSkip struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// BatchResult reports the outcome of a best-effort line batch.
type BatchResult struct {
	OrderID   int64      `json:"order_id"`
	Persisted int        `json:"persisted"`
	Skipped   []LineSkip `json:"skipped,omitempty"`
}
