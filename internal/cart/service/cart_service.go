package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shopmesh/shopmesh/internal/cart/client"
	"github.com/shopmesh/shopmesh/internal/cart/domain"
	"github.com/shopmesh/shopmesh/internal/cart/repository"
)

// ErrSnapshotMissing means a cart detail references a product the
// catalog no longer returns. That is a consistency fault between the
// cart store and the catalog, surfaced instead of dereferenced.
var ErrSnapshotMissing = errors.New("cart detail references a product missing from the catalog")

type CartService struct {
	repo     repository.CartRepository
	products client.ProductClient
	coupons  client.CouponClient
}

func NewCartService(repo repository.CartRepository, products client.ProductClient, coupons client.CouponClient) *CartService {
	return &CartService{
		repo:     repo,
		products: products,
		coupons:  coupons,
	}
}

// GetCart composes the full cart view: header, details, live product
// snapshots, derived total, and the coupon discount when one applies.
// Product data is fetched fresh on every read; nothing composed here is
// ever cached or persisted.
func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.CartView, error) {
	header, err := s.repo.GetHeaderByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	details, err := s.repo.GetDetails(ctx, header.ID)
	if err != nil {
		return nil, err
	}

	view := &domain.CartView{
		Header: *header,
		Items:  make([]domain.CartLine, 0, len(details)),
	}
	if len(details) == 0 {
		return view, nil
	}

	snapshots, err := s.products.GetProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch product snapshots: %w", err)
	}

	byID := make(map[int64]domain.ProductSnapshot, len(snapshots))
	for _, p := range snapshots {
		byID[p.ID] = p
	}

	for _, d := range details {
		snapshot, ok := byID[d.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %d: %w", d.ProductID, ErrSnapshotMissing)
		}
		view.Items = append(view.Items, domain.CartLine{Detail: d, Product: snapshot})
		view.Total += float64(d.Quantity) * snapshot.Price
	}

	s.applyDiscount(ctx, view)

	return view, nil
}

// applyDiscount fetches coupon terms and subtracts the discount when the
// computed total exceeds the coupon's minimum. Discount application is
// best-effort: a coupon service failure or an unknown code leaves the
// cart readable with no discount.
func (s *CartService) applyDiscount(ctx context.Context, view *domain.CartView) {
	code := view.Header.CouponCode
	if code == "" {
		return
	}

	terms, err := s.coupons.GetCoupon(ctx, code)
	if err != nil {
		if !errors.Is(err, client.ErrCouponNotFound) {
			log.Printf("coupon lookup for %q failed, skipping discount: %v", code, err)
		}
		return
	}

	if view.Total > terms.MinAmount {
		view.Discount = terms.DiscountAmount
		view.Total -= terms.DiscountAmount
	}
}

// UpsertItem merges a single-line quantity delta into the user's cart.
// The request always carries exactly one line; the delta is added to any
// existing quantity for the same product.
func (s *CartService) UpsertItem(ctx context.Context, userID string, productID int64, quantity int) (*domain.CartHeader, *domain.CartDetail, error) {
	return s.repo.UpsertItem(ctx, userID, productID, quantity)
}

// RemoveItem deletes one detail line; the store drops the header along
// with its last line.
func (s *CartService) RemoveItem(ctx context.Context, detailID int64) error {
	return s.repo.RemoveDetail(ctx, detailID)
}

// ApplyCoupon sets the coupon code on the user's header. The code is not
// validated here; the discount branch on the next read decides whether
// it applies.
func (s *CartService) ApplyCoupon(ctx context.Context, userID, couponCode string) error {
	return s.repo.SetCouponCode(ctx, userID, couponCode)
}

// RemoveCoupon clears any coupon code from the user's header.
func (s *CartService) RemoveCoupon(ctx context.Context, userID string) error {
	return s.repo.SetCouponCode(ctx, userID, "")
}
