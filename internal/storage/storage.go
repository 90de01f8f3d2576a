// Package storage provides the persistence layer for products, stores and
// their price associations.
package storage

import (
	"context"

	"github.com/shopspring/decimal"
)

// ProductStorage is the storage contract for products and their price rows.
// It abstracts the underlying data store, allowing for different implementations.
type ProductStorage interface {
	// FindByID retrieves a product with its price rows and each row's store.
	// Returns ErrProductNotFound if no product exists with the given ID.
	FindByID(ctx context.Context, id int64) (*Product, error)

	// FindAll retrieves products matching the filter, with their price rows
	// loaded, plus the total number of matching rows before pagination.
	FindAll(ctx context.Context, filter ProductFilter) ([]Product, int64, error)

	// Create inserts a product and its initial price rows in one transaction.
	// Returns a PriceConflictError if any requested store already has a price
	// row for the product; in that case nothing is persisted.
	Create(ctx context.Context, params CreateProductParams) (*Product, error)

	// Update applies the non-nil fields as a partial update.
	// Returns ErrProductNotFound if no product exists with the given ID.
	Update(ctx context.Context, id int64, params UpdateProductParams) error

	// Delete removes a product; its price rows are removed by the
	// ON DELETE CASCADE constraint.
	// Returns ErrProductNotFound if no product exists with the given ID.
	Delete(ctx context.Context, id int64) error

	// FindPrices retrieves the price rows of a product with each row's store
	// left-joined. A row's Store is nil when the store no longer exists.
	FindPrices(ctx context.Context, productID int64) ([]ProductStore, error)

	// FindPrice retrieves a price row by its (product, store) composite key.
	// Returns ErrPriceNotFound if no such row exists.
	FindPrice(ctx context.Context, productID, storeID int64) (*ProductStore, error)

	// CreatePrice inserts a price row for the product.
	// Returns ErrPriceConflict when the (product, store) pair already exists
	// and ErrStoreNotFound when the store id violates the foreign key.
	CreatePrice(ctx context.Context, productID int64, params PriceParams) (*ProductStore, error)

	// UpdatePrice sets the sale price of an existing price row.
	// Returns ErrPriceNotFound if no row exists with the given ID.
	UpdatePrice(ctx context.Context, priceID int64, salePrice decimal.Decimal) error

	// DeletePrice removes a price row by its ID.
	// Returns ErrPriceNotFound if no row exists with the given ID.
	DeletePrice(ctx context.Context, priceID int64) error
}

// StoreStorage is the storage contract for stores.
type StoreStorage interface {
	// FindAll returns all stores. Returns an empty slice if none exist.
	FindAll(ctx context.Context) ([]Store, error)

	// Create inserts a new store and returns it with its generated ID.
	Create(ctx context.Context, description string) (*Store, error)
}
