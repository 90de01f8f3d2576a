// Package errors provides custom error types for catalog operations.
package errors

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrStoreNotFound   = errors.New("store not found")
	ErrPriceNotFound   = errors.New("price not found")
	ErrPriceConflict   = errors.New("price conflict")

	// ErrDuplicateStores is returned when a request carries two prices for
	// the same store.
	ErrDuplicateStores = errors.New("duplicate store prices in request")

	// ErrNoPrices is returned when a price list is provided but empty.
	ErrNoPrices = errors.New("at least one price must be provided")
)

// PriceConflictError reports the stores that already have a price row for the
// product. It matches ErrPriceConflict under errors.Is.
type PriceConflictError struct {
	StoreIDs []int64
}

func (e *PriceConflictError) Error() string {
	return fmt.Sprintf("prices already exist for stores: %s", e.StoreList())
}

// StoreList renders the conflicting store ids as a comma separated list.
func (e *PriceConflictError) StoreList() string {
	ids := make([]string, len(e.StoreIDs))
	for i, id := range e.StoreIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(ids, ", ")
}

func (e *PriceConflictError) Is(target error) bool {
	return target == ErrPriceConflict
}
