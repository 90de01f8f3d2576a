package storage

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	cerrors "github.com/gokai019/catalog/internal/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// dbtx is the subset of pgxpool.Pool and pgx.Tx used by the storage layer.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgProductStorage implements ProductStorage using PostgreSQL as the data store.
type PgProductStorage struct {
	db *pgxpool.Pool
	sb sq.StatementBuilderType
}

var _ ProductStorage = (*PgProductStorage)(nil)

// NewPgProductStorage creates a new ProductStorage backed by a PostgreSQL connection pool.
func NewPgProductStorage(db *pgxpool.Pool) *PgProductStorage {
	return &PgProductStorage{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// FindByID retrieves a product with its price rows and each row's store.
// Returns ErrProductNotFound if no product exists with the given ID.
func (p *PgProductStorage) FindByID(ctx context.Context, id int64) (*Product, error) {
	product, err := p.findProduct(ctx, p.db, id)
	if err != nil {
		return nil, err
	}
	prices, err := p.findPrices(ctx, p.db, id)
	if err != nil {
		return nil, err
	}
	product.Prices = prices
	return product, nil
}

// FindAll retrieves products matching the filter plus the total count of
// matching rows before pagination. The filter is translated to parameterized
// SQL; sort column and direction are restricted to known values.
func (p *PgProductStorage) FindAll(ctx context.Context, filter ProductFilter) ([]Product, int64, error) {
	conds := filterConditions(filter)

	countQuery := p.sb.Select("COUNT(*)").From("product")
	for _, cond := range conds {
		countQuery = countQuery.Where(cond)
	}
	countSQL, countArgs, err := countQuery.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build count query: %w", err)
	}
	var count int64
	if err := p.db.QueryRow(ctx, countSQL, countArgs...).Scan(&count); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	dataQuery := p.sb.Select("id", "description", "cost", "image").
		From("product").
		OrderBy(sortColumn(filter.SortBy) + " " + sortDirection(filter.SortOrder)).
		Offset(filter.Offset).
		Limit(filter.Limit)
	for _, cond := range conds {
		dataQuery = dataQuery.Where(cond)
	}
	dataSQL, dataArgs, err := dataQuery.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := p.db.Query(ctx, dataSQL, dataArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find products: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0)
	for rows.Next() {
		var product Product
		if err := rows.Scan(&product.ID, &product.Description, &product.Cost, &product.Image); err != nil {
			return nil, 0, fmt.Errorf("failed to scan product row: %w", err)
		}
		product.Prices = []ProductStore{}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read product rows: %w", err)
	}

	if err := p.loadPrices(ctx, products); err != nil {
		return nil, 0, err
	}
	return products, count, nil
}

// Create inserts a product and its initial price rows in one transaction.
// The existing-prices check mirrors the add-prices routine even though a
// freshly inserted product cannot have conflicting rows; on any conflict the
// transaction rolls back and nothing is persisted.
func (p *PgProductStorage) Create(ctx context.Context, params CreateProductParams) (*Product, error) {
	var created *Product
	txErr := p.withTransaction(ctx, func(tx pgx.Tx) error {
		var product Product
		err := tx.QueryRow(ctx,
			`INSERT INTO product (description, cost, image)
			 VALUES ($1, $2, $3)
			 RETURNING id, description, cost, image`,
			params.Description, params.Cost, params.Image,
		).Scan(&product.ID, &product.Description, &product.Cost, &product.Image)
		if err != nil {
			return fmt.Errorf("failed to create product: %w", err)
		}

		if len(params.Prices) > 0 {
			storeIDs := make([]int64, len(params.Prices))
			for i, price := range params.Prices {
				storeIDs[i] = price.StoreID
			}
			conflicting, err := p.findConflictingStores(ctx, tx, product.ID, storeIDs)
			if err != nil {
				return err
			}
			if len(conflicting) > 0 {
				return &cerrors.PriceConflictError{StoreIDs: conflicting}
			}
			for _, price := range params.Prices {
				if _, err := p.insertPrice(ctx, tx, product.ID, price); err != nil {
					return err
				}
			}
		}
		created = &product
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return created, nil
}

// Update applies the non-nil fields as a partial update.
// Returns ErrProductNotFound if no product exists with the given ID.
func (p *PgProductStorage) Update(ctx context.Context, id int64, params UpdateProductParams) error {
	query := p.sb.Update("product")
	changed := false
	if params.Description != nil {
		query = query.Set("description", *params.Description)
		changed = true
	}
	if params.Cost != nil {
		query = query.Set("cost", *params.Cost)
		changed = true
	}
	if params.Image != nil {
		query = query.Set("image", params.Image)
		changed = true
	}
	if !changed {
		return nil
	}

	updateSQL, args, err := query.Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}
	tag, err := p.db.Exec(ctx, updateSQL, args...)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cerrors.ErrProductNotFound
	}
	return nil
}

// Delete removes a product by its unique identifier. Price rows are removed
// by the ON DELETE CASCADE constraint on product_store.
func (p *PgProductStorage) Delete(ctx context.Context, id int64) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM product WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cerrors.ErrProductNotFound
	}
	return nil
}

// FindPrices retrieves the price rows of a product with each row's store.
func (p *PgProductStorage) FindPrices(ctx context.Context, productID int64) ([]ProductStore, error) {
	return p.findPrices(ctx, p.db, productID)
}

// FindPrice retrieves a price row by its (product, store) composite key.
// Returns ErrPriceNotFound if no such row exists.
func (p *PgProductStorage) FindPrice(ctx context.Context, productID, storeID int64) (*ProductStore, error) {
	var price ProductStore
	err := p.db.QueryRow(ctx,
		`SELECT id, product_id, store_id, sale_price
		 FROM product_store
		 WHERE product_id = $1 AND store_id = $2`,
		productID, storeID,
	).Scan(&price.ID, &price.ProductID, &price.StoreID, &price.SalePrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cerrors.ErrPriceNotFound
		}
		return nil, fmt.Errorf("failed to find price: %w", err)
	}
	return &price, nil
}

// CreatePrice inserts a price row for the product.
func (p *PgProductStorage) CreatePrice(ctx context.Context, productID int64, params PriceParams) (*ProductStore, error) {
	return p.insertPrice(ctx, p.db, productID, params)
}

// UpdatePrice sets the sale price of an existing price row.
func (p *PgProductStorage) UpdatePrice(ctx context.Context, priceID int64, salePrice decimal.Decimal) error {
	tag, err := p.db.Exec(ctx,
		`UPDATE product_store SET sale_price = $1 WHERE id = $2`, salePrice, priceID)
	if err != nil {
		return fmt.Errorf("failed to update price: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cerrors.ErrPriceNotFound
	}
	return nil
}

// DeletePrice removes a price row by its ID.
func (p *PgProductStorage) DeletePrice(ctx context.Context, priceID int64) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM product_store WHERE id = $1`, priceID)
	if err != nil {
		return fmt.Errorf("failed to delete price: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cerrors.ErrPriceNotFound
	}
	return nil
}

func (p *PgProductStorage) findProduct(ctx context.Context, q dbtx, id int64) (*Product, error) {
	var product Product
	err := q.QueryRow(ctx,
		`SELECT id, description, cost, image FROM product WHERE id = $1`, id,
	).Scan(&product.ID, &product.Description, &product.Cost, &product.Image)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cerrors.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}
	return &product, nil
}

// findPrices loads the price rows of one product. The store is left-joined:
// a row whose store vanished comes back with Store == nil.
func (p *PgProductStorage) findPrices(ctx context.Context, q dbtx, productID int64) ([]ProductStore, error) {
	rows, err := q.Query(ctx,
		`SELECT ps.id, ps.product_id, ps.store_id, ps.sale_price, s.id, s.description
		 FROM product_store ps
		 LEFT JOIN store s ON s.id = ps.store_id
		 WHERE ps.product_id = $1
		 ORDER BY ps.id`,
		productID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find prices: %w", err)
	}
	defer rows.Close()
	return scanPrices(rows)
}

// loadPrices populates the Prices slice of each product in one query.
func (p *PgProductStorage) loadPrices(ctx context.Context, products []Product) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]int64, len(products))
	byID := make(map[int64]*Product, len(products))
	for i := range products {
		ids[i] = products[i].ID
		byID[products[i].ID] = &products[i]
	}

	rows, err := p.db.Query(ctx,
		`SELECT ps.id, ps.product_id, ps.store_id, ps.sale_price, s.id, s.description
		 FROM product_store ps
		 LEFT JOIN store s ON s.id = ps.store_id
		 WHERE ps.product_id = ANY($1)
		 ORDER BY ps.id`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("failed to find prices: %w", err)
	}
	defer rows.Close()

	prices, err := scanPrices(rows)
	if err != nil {
		return err
	}
	for _, price := range prices {
		product := byID[price.ProductID]
		product.Prices = append(product.Prices, price)
	}
	return nil
}

// findConflictingStores returns the subset of storeIDs that already have a
// price row for the product.
func (p *PgProductStorage) findConflictingStores(ctx context.Context, q dbtx, productID int64, storeIDs []int64) ([]int64, error) {
	rows, err := q.Query(ctx,
		`SELECT store_id FROM product_store
		 WHERE product_id = $1 AND store_id = ANY($2)
		 ORDER BY store_id`,
		productID, storeIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find existing prices: %w", err)
	}
	defer rows.Close()

	var conflicting []int64
	for rows.Next() {
		var storeID int64
		if err := rows.Scan(&storeID); err != nil {
			return nil, fmt.Errorf("failed to scan store id: %w", err)
		}
		conflicting = append(conflicting, storeID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read store ids: %w", err)
	}
	return conflicting, nil
}

func (p *PgProductStorage) insertPrice(ctx context.Context, q dbtx, productID int64, params PriceParams) (*ProductStore, error) {
	var price ProductStore
	err := q.QueryRow(ctx,
		`INSERT INTO product_store (product_id, store_id, sale_price)
		 VALUES ($1, $2, $3)
		 RETURNING id, product_id, store_id, sale_price`,
		productID, params.StoreID, params.SalePrice,
	).Scan(&price.ID, &price.ProductID, &price.StoreID, &price.SalePrice)
	if err != nil {
		return nil, translatePriceError(err)
	}
	return &price, nil
}

func (p *PgProductStorage) withTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("failed to rollback transaction: %w", rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func scanPrices(rows pgx.Rows) ([]ProductStore, error) {
	prices := make([]ProductStore, 0)
	for rows.Next() {
		var price ProductStore
		var storeID *int64
		var storeDescription *string
		err := rows.Scan(&price.ID, &price.ProductID, &price.StoreID, &price.SalePrice, &storeID, &storeDescription)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price row: %w", err)
		}
		if storeID != nil {
			price.Store = &Store{ID: *storeID, Description: *storeDescription}
		}
		prices = append(prices, price)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read price rows: %w", err)
	}
	return prices, nil
}

// translatePriceError maps constraint violations on product_store to domain errors.
func translatePriceError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return cerrors.ErrPriceConflict
		case "23503":
			if pgErr.ConstraintName == "fk_product_store_product" {
				return cerrors.ErrProductNotFound
			}
			return cerrors.ErrStoreNotFound
		}
	}
	return fmt.Errorf("failed to create price: %w", err)
}

// sortColumn restricts ordering to known product columns.
func sortColumn(column string) string {
	switch column {
	case "description", "cost":
		return column
	default:
		return "id"
	}
}

// sortDirection restricts ordering direction to ASC or DESC.
func sortDirection(direction string) string {
	if direction == "DESC" {
		return "DESC"
	}
	return "ASC"
}

// filterConditions translates the typed filter into conjunctive SQL conditions.
func filterConditions(filter ProductFilter) []sq.Sqlizer {
	conds := make([]sq.Sqlizer, 0, 4)
	if filter.ID != nil {
		conds = append(conds, sq.Eq{"id": *filter.ID})
	}
	if filter.Description != nil {
		conds = append(conds, sq.ILike{"description": "%" + *filter.Description + "%"})
	}
	if filter.Cost != nil {
		conds = append(conds, sq.Eq{"cost": *filter.Cost})
	}
	if filter.SalePrice != nil {
		conds = append(conds, sq.Expr(
			"id IN (SELECT ps.product_id FROM product_store ps WHERE ps.sale_price = ?)",
			*filter.SalePrice,
		))
	}
	return conds
}
