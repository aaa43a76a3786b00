package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shopmesh/shopmesh/internal/api"
	"github.com/shopmesh/shopmesh/internal/cart/client"
	"github.com/shopmesh/shopmesh/internal/cart/domain"
	"github.com/shopmesh/shopmesh/internal/cart/repository"
	"github.com/shopmesh/shopmesh/internal/cart/service"
)

// CartService is the surface this handler needs from the service layer.
type CartService interface {
	GetCart(ctx context.Context, userID string) (*domain.CartView, error)
	UpsertItem(ctx context.Context, userID string, productID int64, quantity int) (*domain.CartHeader, *domain.CartDetail, error)
	RemoveItem(ctx context.Context, detailID int64) error
	ApplyCoupon(ctx context.Context, userID, couponCode string) error
	RemoveCoupon(ctx context.Context, userID string) error
}

type CartHandler struct {
	service CartService
	timeout time.Duration
}

func NewCartHandler(service CartService, timeout time.Duration) *CartHandler {
	return &CartHandler{
		service: service,
		timeout: timeout,
	}
}

func (h *CartHandler) Routes(r chi.Router) {
	r.Get("/api/cart/{userID}", h.GetCart)
	r.Post("/api/cart/upsert", h.Upsert)
	r.Post("/api/cart/remove", h.Remove)
	r.Post("/api/cart/applyCoupon", h.ApplyCoupon)
	r.Post("/api/cart/removeCoupon", h.RemoveCoupon)
}

type upsertRequest struct {
	UserID    string `json:"userId"`
	ProductID int64  `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type removeRequest struct {
	CartDetailID int64 `json:"cartDetailId"`
}

type couponRequest struct {
	UserID     string `json:"userId"`
	CouponCode string `json:"couponCode"`
}

type headerDTO struct {
	ID         int64   `json:"id"`
	UserID     string  `json:"userId"`
	CouponCode string  `json:"couponCode,omitempty"`
	Discount   float64 `json:"discount"`
	CartTotal  float64 `json:"cartTotal"`
}

type detailDTO struct {
	ID           int64        `json:"id"`
	CartHeaderID int64        `json:"cartHeaderId"`
	ProductID    int64        `json:"productId"`
	Quantity     int          `json:"quantity"`
	Product      *snapshotDTO `json:"product,omitempty"`
}

type snapshotDTO struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	ImageURL    string  `json:"imageUrl"`
}

type cartViewDTO struct {
	CartHeader  headerDTO   `json:"cartHeader"`
	CartDetails []detailDTO `json:"cartDetails"`
}

func convertView(view *domain.CartView) cartViewDTO {
	dto := cartViewDTO{
		CartHeader: headerDTO{
			ID:         view.Header.ID,
			UserID:     view.Header.UserID,
			CouponCode: view.Header.CouponCode,
			Discount:   view.Discount,
			CartTotal:  view.Total,
		},
		CartDetails: make([]detailDTO, len(view.Items)),
	}
	for i, line := range view.Items {
		dto.CartDetails[i] = detailDTO{
			ID:           line.Detail.ID,
			CartHeaderID: line.Detail.CartHeaderID,
			ProductID:    line.Detail.ProductID,
			Quantity:     line.Detail.Quantity,
			Product: &snapshotDTO{
				ID:          line.Product.ID,
				Name:        line.Product.Name,
				Description: line.Product.Description,
				Price:       line.Product.Price,
				ImageURL:    line.Product.ImageURL,
			},
		}
	}
	return dto
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := chi.URLParam(r, "userID")
	if userID == "" {
		api.Fail(w, http.StatusBadRequest, "user id is required")
		return
	}

	view, err := h.service.GetCart(ctx, userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	api.Success(w, http.StatusOK, convertView(view))
}

func (h *CartHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req upsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		api.Fail(w, http.StatusBadRequest, "userId is required")
		return
	}
	if req.ProductID <= 0 {
		api.Fail(w, http.StatusBadRequest, "productId must be positive")
		return
	}
	if req.Quantity <= 0 || req.Quantity > 99 {
		api.Fail(w, http.StatusBadRequest, "quantity must be between 1 and 99")
		return
	}

	header, detail, err := h.service.UpsertItem(ctx, req.UserID, req.ProductID, req.Quantity)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	api.Success(w, http.StatusOK, cartViewDTO{
		CartHeader: headerDTO{
			ID:         header.ID,
			UserID:     header.UserID,
			CouponCode: header.CouponCode,
		},
		CartDetails: []detailDTO{{
			ID:           detail.ID,
			CartHeaderID: detail.CartHeaderID,
			ProductID:    detail.ProductID,
			Quantity:     detail.Quantity,
		}},
	})
}

func (h *CartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req removeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.CartDetailID <= 0 {
		api.Fail(w, http.StatusBadRequest, "cartDetailId must be positive")
		return
	}

	if err := h.service.RemoveItem(ctx, req.CartDetailID); err != nil {
		respondServiceError(w, err)
		return
	}

	api.Success(w, http.StatusOK, true)
}

func (h *CartHandler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req couponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		api.Fail(w, http.StatusBadRequest, "userId is required")
		return
	}

	if err := h.service.ApplyCoupon(ctx, req.UserID, req.CouponCode); err != nil {
		respondServiceError(w, err)
		return
	}

	api.Success(w, http.StatusOK, true)
}

func (h *CartHandler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req couponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		api.Fail(w, http.StatusBadRequest, "userId is required")
		return
	}

	if err := h.service.RemoveCoupon(ctx, req.UserID); err != nil {
		respondServiceError(w, err)
		return
	}

	api.Success(w, http.StatusOK, true)
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrCartNotFound):
		api.Fail(w, http.StatusNotFound, "cart not found")
	case errors.Is(err, repository.ErrItemNotFound):
		api.Fail(w, http.StatusNotFound, "cart item not found")
	case errors.Is(err, service.ErrSnapshotMissing):
		api.Fail(w, http.StatusInternalServerError, "cart contents are out of sync with the catalog")
	case errors.Is(err, client.ErrUpstream):
		api.Fail(w, http.StatusBadGateway, "product service unavailable")
	default:
		api.Fail(w, http.StatusInternalServerError, "internal server error")
	}
}
