package repository

import (
	"context"
	"errors"

	"github.com/shopmesh/shopmesh/internal/cart/domain"
)

var (
	ErrCartNotFound = errors.New("cart not found")
	ErrItemNotFound = errors.New("item not found in cart")
)

// CartRepository defines the cart storage operations the service layer
// needs. UpsertItem and RemoveDetail are transactional: header and
// detail writes inside them either all land or none do.
type CartRepository interface {
	GetHeaderByUserID(ctx context.Context, userID string) (*domain.CartHeader, error)
	GetDetails(ctx context.Context, headerID int64) ([]domain.CartDetail, error)

	// UpsertItem applies a single-line quantity delta: it creates the
	// header on first use, creates the detail for a new product, or adds
	// the delta to an existing detail's quantity. Returns the persisted
	// header and detail.
	UpsertItem(ctx context.Context, userID string, productID int64, quantity int) (*domain.CartHeader, *domain.CartDetail, error)

	// RemoveDetail deletes one detail line; when it was the last line
	// under its header the header is deleted too.
	RemoveDetail(ctx context.Context, detailID int64) error

	// SetCouponCode updates the coupon code on a user's header. An empty
	// code clears it.
	SetCouponCode(ctx context.Context, userID, couponCode string) error

	Close() error
}
