// Package service provides the implementation of catalog business logic.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	cerrors "github.com/gokai019/catalog/internal/errors"
	"github.com/gokai019/catalog/internal/storage"
	"github.com/shopspring/decimal"
)

// ProductService defines the methods for managing products and their
// per-store sale prices.
type ProductService interface {
	// Create persists a new product with its initial price list.
	// Returns ErrNoPrices when the list is missing or empty,
	// ErrDuplicateStores when it names the same store twice and
	// ErrPriceConflict when a requested store already has a price row.
	Create(ctx context.Context, product ProductCreateDto) (*ProductDto, error)

	// FindAll returns the products matching the filter plus the total number
	// of matching rows before pagination.
	FindAll(ctx context.Context, filter ProductFilterDto) (*ProductPageDto, error)

	// FindByID retrieves a product with its prices and each price's store.
	// Returns ErrProductNotFound if no product exists with the given ID.
	FindByID(ctx context.Context, id int64) (*ProductDto, error)

	// Update applies the defined fields as a partial update and, when a price
	// list is provided, synchronizes the product's price rows against it.
	Update(ctx context.Context, id int64, product ProductUpdateDto) (*ProductDto, error)

	// DeleteByID removes a product; its price rows are removed by cascade.
	// Returns ErrProductNotFound if no product exists with the given ID.
	DeleteByID(ctx context.Context, id int64) error

	// AddPrice creates a price row for the product.
	// Returns ErrProductNotFound for an unknown product and ErrPriceConflict
	// when the store already has a price for it.
	AddPrice(ctx context.Context, id int64, price ProductPriceDto) (*PriceDto, error)

	// RemovePrice deletes the price row identified by (product, store).
	// Returns ErrPriceNotFound if no such row exists.
	RemovePrice(ctx context.Context, productID, storeID int64) error
}

// ProductPriceDto represents one (store, sale price) pair of a product.
type ProductPriceDto struct {
	StoreID   int64   `json:"storeId"   validate:"required,gt=0"`
	SalePrice float64 `json:"salePrice" validate:"required,gt=0"`
}

// ProductCreateDto represents the data transfer object for creating a product.
type ProductCreateDto struct {
	Description string            `json:"description" validate:"required,max=60"`
	Cost        *float64          `json:"cost"        validate:"omitempty,gte=0"`
	Image       []byte            `json:"image"`
	Prices      []ProductPriceDto `json:"prices"      validate:"omitempty,dive"`
}

// ProductUpdateDto is a partial update: nil fields are left untouched.
// A non-nil empty price list is rejected, so prices can never be cleared
// through this path.
type ProductUpdateDto struct {
	Description *string            `json:"description" validate:"omitempty,min=1,max=60"`
	Cost        *float64           `json:"cost"        validate:"omitempty,gte=0"`
	Image       []byte             `json:"image"`
	Prices      *[]ProductPriceDto `json:"prices"      validate:"omitempty,dive"`
}

// ProductFilterDto carries the listing filters; nil fields are ignored.
type ProductFilterDto struct {
	ID          *int64
	Description *string
	Cost        *float64
	SalePrice   *float64
	Page        int64  `validate:"gte=1"`
	Limit       int64  `validate:"gte=1,lte=100"`
	SortBy      string `validate:"oneof=id description cost"`
	SortOrder   string `validate:"oneof=ASC DESC"`
}

// PriceDto represents a price row, optionally with its store attached.
type PriceDto struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"productId"`
	StoreID   int64     `json:"storeId"`
	SalePrice float64   `json:"salePrice"`
	Store     *StoreDto `json:"store,omitempty"`
}

// ProductDto represents the data transfer object for a product.
type ProductDto struct {
	ID          int64      `json:"id"`
	Description string     `json:"description"`
	Cost        *float64   `json:"cost"`
	Image       []byte     `json:"image,omitempty"`
	Prices      []PriceDto `json:"prices"`
}

// ProductPageDto is one page of products plus the pre-pagination total.
type ProductPageDto struct {
	Data  []ProductDto `json:"data"`
	Count int64        `json:"count"`
}

type productService struct {
	repository storage.ProductStorage
	logger     *slog.Logger
}

// NewProductService creates a new ProductService with the provided repository.
func NewProductService(repository storage.ProductStorage, logger *slog.Logger) ProductService {
	return &productService{
		repository: repository,
		logger:     logger.With("component", "product_service"),
	}
}

// Create persists a new product together with its price list. Monetary values
// are rounded half-up to two decimal places before persisting. The product
// row and its price rows are written in a single transaction, so a conflict
// leaves nothing behind.
func (s *productService) Create(ctx context.Context, product ProductCreateDto) (*ProductDto, error) {
	if len(product.Prices) == 0 {
		return nil, cerrors.ErrNoPrices
	}
	if hasDuplicateStores(product.Prices) {
		return nil, cerrors.ErrDuplicateStores
	}

	params := storage.CreateProductParams{
		Description: product.Description,
		Cost:        roundedCost(product.Cost),
		Image:       product.Image,
		Prices:      make([]storage.PriceParams, len(product.Prices)),
	}
	for i, price := range product.Prices {
		params.Prices[i] = storage.PriceParams{
			StoreID:   price.StoreID,
			SalePrice: roundMoney(price.SalePrice),
		}
	}

	created, err := s.repository.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return s.FindByID(ctx, created.ID)
}

// FindAll retrieves a page of products matching the filter.
func (s *productService) FindAll(ctx context.Context, filter ProductFilterDto) (*ProductPageDto, error) {
	products, count, err := s.repository.FindAll(ctx, storage.ProductFilter{
		ID:          filter.ID,
		Description: filter.Description,
		Cost:        toDecimalPtr(filter.Cost),
		SalePrice:   toDecimalPtr(filter.SalePrice),
		SortBy:      filter.SortBy,
		SortOrder:   filter.SortOrder,
		Offset:      uint64((filter.Page - 1) * filter.Limit),
		Limit:       uint64(filter.Limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch products: %w", err)
	}

	productDTOs := make([]ProductDto, len(products))
	for i, product := range products {
		productDTOs[i] = *toProductDto(&product)
	}
	return &ProductPageDto{Data: productDTOs, Count: count}, nil
}

// FindByID retrieves a product by its ID and returns it as a ProductDto.
func (s *productService) FindByID(ctx context.Context, id int64) (*ProductDto, error) {
	product, err := s.repository.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product by ID %d: %w", id, err)
	}
	return toProductDto(product), nil
}

// Update applies the defined scalar fields, synchronizes the price list when
// one is provided and returns the reloaded product.
func (s *productService) Update(ctx context.Context, id int64, product ProductUpdateDto) (*ProductDto, error) {
	if _, err := s.repository.FindByID(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to fetch product by ID %d: %w", id, err)
	}
	if product.Prices != nil && len(*product.Prices) == 0 {
		return nil, cerrors.ErrNoPrices
	}

	err := s.repository.Update(ctx, id, storage.UpdateProductParams{
		Description: product.Description,
		Cost:        toDecimalPtr(product.Cost),
		Image:       product.Image,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update product with ID %d: %w", id, err)
	}

	if product.Prices != nil {
		if err := s.syncPrices(ctx, id, *product.Prices); err != nil {
			return nil, err
		}
	}
	return s.FindByID(ctx, id)
}

// DeleteByID deletes a product by its ID.
func (s *productService) DeleteByID(ctx context.Context, id int64) error {
	if _, err := s.repository.FindByID(ctx, id); err != nil {
		return fmt.Errorf("failed to fetch product by ID %d: %w", id, err)
	}
	if err := s.repository.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete product with ID %d: %w", id, err)
	}
	return nil
}

// AddPrice creates a price row for the product after checking that the store
// does not already have one.
func (s *productService) AddPrice(ctx context.Context, id int64, price ProductPriceDto) (*PriceDto, error) {
	if _, err := s.repository.FindByID(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to fetch product by ID %d: %w", id, err)
	}

	_, err := s.repository.FindPrice(ctx, id, price.StoreID)
	if err == nil {
		return nil, &cerrors.PriceConflictError{StoreIDs: []int64{price.StoreID}}
	}
	if !errors.Is(err, cerrors.ErrPriceNotFound) {
		return nil, fmt.Errorf("failed to check existing price: %w", err)
	}

	created, err := s.repository.CreatePrice(ctx, id, storage.PriceParams{
		StoreID:   price.StoreID,
		SalePrice: decimal.NewFromFloat(price.SalePrice),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add price for product %d: %w", id, err)
	}
	return toPriceDto(created), nil
}

// RemovePrice deletes the price row identified by (product, store).
func (s *productService) RemovePrice(ctx context.Context, productID, storeID int64) error {
	price, err := s.repository.FindPrice(ctx, productID, storeID)
	if err != nil {
		return fmt.Errorf("failed to fetch price for product %d and store %d: %w", productID, storeID, err)
	}
	if err := s.repository.DeletePrice(ctx, price.ID); err != nil {
		return fmt.Errorf("failed to delete price for product %d and store %d: %w", productID, storeID, err)
	}
	return nil
}

// syncPrices diffs the product's existing price rows against the requested
// list: rows whose store is absent from the list are deleted, matching rows
// get their sale price updated in place and the remainder are added through
// the add-price path, which re-checks for conflicts. A row whose store no
// longer exists is deleted with a warning.
func (s *productService) syncPrices(ctx context.Context, id int64, prices []ProductPriceDto) error {
	if len(prices) == 0 {
		return cerrors.ErrNoPrices
	}

	existing, err := s.repository.FindPrices(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch prices for product %d: %w", id, err)
	}

	requested := make(map[int64]struct{}, len(prices))
	for _, price := range prices {
		requested[price.StoreID] = struct{}{}
	}

	existingByStore := make(map[int64]storage.ProductStore, len(existing))
	for _, row := range existing {
		if row.Store == nil {
			s.logger.WarnContext(ctx, "Price row has no store associated, removing it", "price_id", row.ID)
			if err := s.repository.DeletePrice(ctx, row.ID); err != nil {
				return fmt.Errorf("failed to delete price %d: %w", row.ID, err)
			}
			continue
		}
		if _, keep := requested[row.Store.ID]; !keep {
			if err := s.repository.DeletePrice(ctx, row.ID); err != nil {
				return fmt.Errorf("failed to delete price %d: %w", row.ID, err)
			}
			continue
		}
		existingByStore[row.Store.ID] = row
	}

	for _, price := range prices {
		if row, ok := existingByStore[price.StoreID]; ok {
			if err := s.repository.UpdatePrice(ctx, row.ID, decimal.NewFromFloat(price.SalePrice)); err != nil {
				return fmt.Errorf("failed to update price %d: %w", row.ID, err)
			}
			continue
		}
		if _, err := s.AddPrice(ctx, id, price); err != nil {
			return err
		}
	}
	return nil
}

// hasDuplicateStores reports whether the price list names a store twice.
func hasDuplicateStores(prices []ProductPriceDto) bool {
	seen := make(map[int64]struct{}, len(prices))
	for _, price := range prices {
		if _, ok := seen[price.StoreID]; ok {
			return true
		}
		seen[price.StoreID] = struct{}{}
	}
	return false
}

// roundMoney rounds a monetary amount half-up to two decimal places.
func roundMoney(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value).Round(2)
}

func roundedCost(cost *float64) decimal.NullDecimal {
	if cost == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: roundMoney(*cost), Valid: true}
}

func toDecimalPtr(value *float64) *decimal.Decimal {
	if value == nil {
		return nil
	}
	d := decimal.NewFromFloat(*value)
	return &d
}

// toProductDto converts a storage.Product to a ProductDto.
func toProductDto(product *storage.Product) *ProductDto {
	dto := &ProductDto{
		ID:          product.ID,
		Description: product.Description,
		Image:       product.Image,
		Prices:      make([]PriceDto, len(product.Prices)),
	}
	if product.Cost.Valid {
		cost := product.Cost.Decimal.InexactFloat64()
		dto.Cost = &cost
	}
	for i, price := range product.Prices {
		dto.Prices[i] = *toPriceDto(&price)
	}
	return dto
}

// toPriceDto converts a storage.ProductStore to a PriceDto.
func toPriceDto(price *storage.ProductStore) *PriceDto {
	dto := &PriceDto{
		ID:        price.ID,
		ProductID: price.ProductID,
		StoreID:   price.StoreID,
		SalePrice: price.SalePrice.InexactFloat64(),
	}
	if price.Store != nil {
		dto.Store = &StoreDto{ID: price.Store.ID, Description: price.Store.Description}
	}
	return dto
}
