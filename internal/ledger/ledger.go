// Package ledger holds product inventory and dispenses card keys.
//
// Dispense is the only path that lowers stock or removes card keys. It is a
// single atomic step: either one key leaves the head of the pool and stock
// drops by one, or nothing changes.
package ledger

import (
	"context"
	"errors"

	"github.com/fairyhunter13/points-exchange/internal/model"
)

// ErrNotFound is returned by Product when the id is unknown.
var ErrNotFound = errors.New("product not found")

// Ledger is the transactional inventory store.
type Ledger interface {
	// Dispense pops the head card key of an active product with stock. A
	// precondition failure yields an unavailable outcome and a nil error;
	// errors are reserved for storage failures and lock timeouts.
	Dispense(ctx context.Context, productID string) (model.Outcome, error)
	// Product returns the catalog view of a product.
	Product(ctx context.Context, id string) (model.Product, error)
	// Put creates or replaces a product. It belongs to the admin boundary.
	Put(ctx context.Context, p model.Product) error
	// Ping checks the backing store.
	Ping(ctx context.Context) error
}

// check applies the dispense preconditions to a locked product row.
func check(p model.Product) (string, bool) {
	switch {
	case p.Status != model.StatusActive:
		return model.ReasonInactive, false
	case p.Stock <= 0:
		return model.ReasonOutOfStock, false
	case len(p.CardKeys) == 0:
		return model.ReasonNoCardKeys, false
	}
	return "", true
}
