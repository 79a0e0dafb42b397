package port

import (
	"context"

	"github.com/rl1809/storefront-cart/internal/core/domain"
)

type CacheRepository interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency frees a key claimed by SetIdempotency
	ReleaseIdempotency(ctx context.Context, key string) error
}

// CartPersistence keeps a session's cart across restarts. Implementations
// store the items as given; deduplication happens when the cart is rebuilt.
type CartPersistence interface {
	// LoadCart returns the stored items, or nil if the session has none
	LoadCart(ctx context.Context, sessionID string) ([]domain.LineItem, error)

	// SaveCart overwrites the stored items and refreshes the expiry
	SaveCart(ctx context.Context, sessionID string, items []domain.LineItem) error

	DeleteCart(ctx context.Context, sessionID string) error
}

