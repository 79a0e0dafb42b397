package port

import (
	"context"
	"errors"

	"github.com/rl1809/storefront-cart/internal/core/domain"
)

var ErrVariantNotFound = errors.New("product variant not found")

type DatabaseRepository interface {
	// CreateOrder persists an order together with its line items
	CreateOrder(ctx context.Context, order domain.Order) error

	// GetOrder retrieves an order by ID, nil if it does not exist
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
}

// CatalogLookup resolves the display and pricing attributes of a product in
// a given size.
type CatalogLookup interface {
	// LookupVariant returns ErrVariantNotFound if the pair is not sold
	LookupVariant(ctx context.Context, productID, size string) (*domain.Variant, error)
}
