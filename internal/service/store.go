package service

import (
	"context"
	"fmt"

	"github.com/gokai019/catalog/internal/storage"
)

// StoreService defines the methods for managing stores.
type StoreService interface {
	// FindAll returns all stores. Returns an empty slice if none exist.
	FindAll(ctx context.Context) ([]StoreDto, error)

	// Create persists a new store and returns it with its generated ID.
	Create(ctx context.Context, store StoreCreateDto) (*StoreDto, error)
}

// StoreCreateDto represents the data transfer object for creating a store.
type StoreCreateDto struct {
	Description string `json:"description" validate:"required,min=1,max=100"`
}

// StoreDto represents the data transfer object for a store.
type StoreDto struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
}

type storeService struct {
	repository storage.StoreStorage
}

// NewStoreService creates a new StoreService with the provided repository.
func NewStoreService(repository storage.StoreStorage) StoreService {
	return &storeService{repository: repository}
}

func (s *storeService) FindAll(ctx context.Context) ([]StoreDto, error) {
	stores, err := s.repository.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stores: %w", err)
	}
	storeDTOs := make([]StoreDto, len(stores))
	for i, store := range stores {
		storeDTOs[i] = StoreDto{ID: store.ID, Description: store.Description}
	}
	return storeDTOs, nil
}

func (s *storeService) Create(ctx context.Context, store StoreCreateDto) (*StoreDto, error) {
	created, err := s.repository.Create(ctx, store.Description)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	return &StoreDto{ID: created.ID, Description: created.Description}, nil
}
