package storage

import "github.com/shopspring/decimal"

// Product is a row in the product table. Prices are populated by the storage
// layer when the product is loaded with its associations.
type Product struct {
	ID          int64
	Description string
	Cost        decimal.NullDecimal
	Image       []byte
	Prices      []ProductStore
}

// Store is a row in the store table.
type Store struct {
	ID          int64
	Description string
}

// ProductStore links a product to a store with a sale price. The pair
// (ProductID, StoreID) is unique. Store is nil when the referenced store row
// could not be joined.
type ProductStore struct {
	ID        int64
	ProductID int64
	StoreID   int64
	SalePrice decimal.Decimal
	Store     *Store
}

// PriceParams holds the fields needed to create a price row.
type PriceParams struct {
	StoreID   int64
	SalePrice decimal.Decimal
}

// CreateProductParams holds the fields needed to create a product together
// with its initial price rows.
type CreateProductParams struct {
	Description string
	Cost        decimal.NullDecimal
	Image       []byte
	Prices      []PriceParams
}

// UpdateProductParams is a partial update: nil fields are left untouched.
type UpdateProductParams struct {
	Description *string
	Cost        *decimal.Decimal
	Image       []byte
}

// ProductFilter is the typed filter translated to SQL by the storage layer.
// Filters are conjunctive; nil fields are ignored.
type ProductFilter struct {
	ID          *int64
	Description *string
	Cost        *decimal.Decimal
	SalePrice   *decimal.Decimal
	SortBy      string
	SortOrder   string
	Offset      uint64
	Limit       uint64
}
