package entity

import "github.com/uptrace/bun"

// Branch is a store location; users belong to one through BranchKey.
type Branch struct {
	bun.BaseModel `bun:"table:branches,alias:b"`

	ID       int64  `bun:"id,pk,autoincrement"`
	Key      string `bun:"key,notnull,unique"`
	Name     string `bun:"name,notnull"`
	IsActive bool   `bun:"is_active,notnull"`
}

// User is a staff member able to submit orders.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        int64  `bun:"id,pk,autoincrement"`
	FullName  string `bun:"full_name,notnull"`
	BranchKey string `bun:"branch_key,notnull"`
}

type OrderType struct {
	bun.BaseModel `bun:"table:order_types,alias:ot"`

	ID       int64  `bun:"id,pk,autoincrement"`
	Name     string `bun:"name,notnull"`
	Archived bool   `bun:"archived,notnull"`
}

type OrderStatus struct {
	bun.BaseModel `bun:"table:order_statuses,alias:os"`

	ID       int16  `bun:"id,pk"`
	Name     string `bun:"name,notnull"`
	Archived bool   `bun:"archived,notnull"`
}

type ProductCategory struct {
	bun.BaseModel `bun:"table:product_categories,alias:pc"`

	ID       int64  `bun:"id,pk,autoincrement"`
	Name     string `bun:"name,notnull"`
	Archived bool   `bun:"archived,notnull"`
}

type ProductType struct {
	bun.BaseModel `bun:"table:product_types,alias:pt"`

	ID         int64  `bun:"id,pk,autoincrement"`
	CategoryID int64  `bun:"category_id,notnull"`
	Name       string `bun:"name,notnull"`
	Archived   bool   `bun:"archived,notnull"`
}

type ProductBrand struct {
	bun.BaseModel `bun:"table:product_brands,alias:pb"`

	ID       int64  `bun:"id,pk,autoincrement"`
	Name     string `bun:"name,notnull"`
	Archived bool   `bun:"archived,notnull"`
}

// ProductBrandType links a brand to the product types it makes.
type ProductBrandType struct {
	bun.BaseModel `bun:"table:product_brand_types,alias:pbt"`

	ID      int64 `bun:"id,pk,autoincrement"`
	BrandID int64 `bun:"brand_id,notnull"`
	TypeID  int64 `bun:"type_id,notnull"`
}

// Product is a catalog entry an order line can reference.
type Product struct {
	bun.BaseModel `bun:"table:products,alias:pn"`

	ID          int64  `bun:"id,pk,autoincrement"`
	BrandTypeID int64  `bun:"brand_type_id,notnull"`
	Name        string `bun:"name,notnull"`
	Model       string `bun:"model"`
	Archived    bool   `bun:"archived,notnull"`
}
