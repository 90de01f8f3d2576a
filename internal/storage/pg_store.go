package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStoreStorage implements StoreStorage using PostgreSQL as the data store.
type PgStoreStorage struct {
	db *pgxpool.Pool
}

var _ StoreStorage = (*PgStoreStorage)(nil)

// NewPgStoreStorage creates a new StoreStorage backed by a PostgreSQL connection pool.
func NewPgStoreStorage(db *pgxpool.Pool) *PgStoreStorage {
	return &PgStoreStorage{db: db}
}

// FindAll retrieves all stores. It returns an empty slice if no stores exist.
func (s *PgStoreStorage) FindAll(ctx context.Context) ([]Store, error) {
	rows, err := s.db.Query(ctx, `SELECT id, description FROM store ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to find stores: %w", err)
	}
	defer rows.Close()

	stores := make([]Store, 0)
	for rows.Next() {
		var store Store
		if err := rows.Scan(&store.ID, &store.Description); err != nil {
			return nil, fmt.Errorf("failed to scan store row: %w", err)
		}
		stores = append(stores, store)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read store rows: %w", err)
	}
	return stores, nil
}

// Create inserts a new store and returns it with its generated ID.
func (s *PgStoreStorage) Create(ctx context.Context, description string) (*Store, error) {
	var store Store
	err := s.db.QueryRow(ctx,
		`INSERT INTO store (description) VALUES ($1) RETURNING id, description`,
		description,
	).Scan(&store.ID, &store.Description)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	return &store, nil
}
