package dto

// NamedRef is a lookup entry rendered in pickers.
type NamedRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type StatusRef struct {
	ID   int16  `json:"id"`
	Name string `json:"name"`
}

type ProductTypeRef struct {
	ID         int64  `json:"id"`
	CategoryID int64  `json:"category_id"`
	Name       string `json:"name"`
}

type ProductRef struct {
	ID          int64  `json:"id"`
	BrandTypeID int64  `json:"brand_type_id"`
	Name        string `json:"name"`
	Model       string `json:"model,omitempty"`
}

// Lookups are the reference lists shown next to the order listing.
type Lookups struct {
	Branches   []NamedRef  `json:"branches"`
	OrderTypes []NamedRef  `json:"order_types"`
	Statuses   []StatusRef `json:"statuses"`
}

// NewOrderForm carries the catalog a new order is composed from.
type NewOrderForm struct {
	Categories   []NamedRef       `json:"categories"`
	ProductTypes []ProductTypeRef `json:"product_types"`
	Brands       []NamedRef       `json:"brands"`
	OrderTypes   []NamedRef       `json:"order_types"`
}

// CategoryCatalog is the browsable content of one product category.
type CategoryCatalog struct {
	CategoryID   int64            `json:"category_id"`
	ProductTypes []ProductTypeRef `json:"product_types"`
	Brands       []NamedRef       `json:"brands"`
	Products     []ProductRef     `json:"products"`
}
