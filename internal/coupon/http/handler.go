package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shopmesh/shopmesh/internal/api"
	authclient "github.com/shopmesh/shopmesh/internal/auth/client"
	"github.com/shopmesh/shopmesh/internal/coupon/domain"
	"github.com/shopmesh/shopmesh/internal/coupon/repository"
)

// AdminRole gates coupon mutations.
const AdminRole = "Admin"

type CouponHandler struct {
	repo    repository.CouponRepository
	timeout time.Duration
}

func NewCouponHandler(repo repository.CouponRepository, timeout time.Duration) *CouponHandler {
	return &CouponHandler{
		repo:    repo,
		timeout: timeout,
	}
}

// Routes mounts the coupon endpoints. Reads are public so the cart
// service can resolve discount terms; mutations require the Admin role.
func (h *CouponHandler) Routes(r chi.Router, introspector authclient.Introspector) {
	r.Route("/api/coupon", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.GetByID)
		r.Get("/code/{code}", h.GetByCode)

		r.Group(func(r chi.Router) {
			r.Use(authclient.RequireRole(introspector, AdminRole))
			r.Post("/", h.Create)
			r.Put("/", h.Update)
			r.Delete("/{id}", h.Delete)
		})
	})
}

type CouponDTO struct {
	ID             int64   `json:"id"`
	Code           string  `json:"couponCode"`
	DiscountAmount float64 `json:"discountAmount"`
	MinAmount      float64 `json:"minAmount"`
}

func convertCoupon(c *domain.Coupon) CouponDTO {
	return CouponDTO{
		ID:             c.ID,
		Code:           c.Code,
		DiscountAmount: c.DiscountAmount,
		MinAmount:      c.MinAmount,
	}
}

func (h *CouponHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	coupons, err := h.repo.GetAll(ctx)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "failed to list coupons")
		return
	}

	dtos := make([]CouponDTO, len(coupons))
	for i, c := range coupons {
		dtos[i] = convertCoupon(c)
	}

	api.Success(w, http.StatusOK, dtos)
}

func (h *CouponHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		api.Fail(w, http.StatusBadRequest, "id must be a positive integer")
		return
	}

	coupon, err := h.repo.GetByID(ctx, id)
	if err != nil {
		respondRepoError(w, err)
		return
	}

	api.Success(w, http.StatusOK, convertCoupon(coupon))
}

func (h *CouponHandler) GetByCode(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	code := chi.URLParam(r, "code")
	if code == "" {
		api.Fail(w, http.StatusBadRequest, "code is required")
		return
	}

	coupon, err := h.repo.GetByCode(ctx, code)
	if err != nil {
		respondRepoError(w, err)
		return
	}

	api.Success(w, http.StatusOK, convertCoupon(coupon))
}

func (h *CouponHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	dto, ok := decodeCoupon(w, r)
	if !ok {
		return
	}

	coupon := &domain.Coupon{
		Code:           dto.Code,
		DiscountAmount: dto.DiscountAmount,
		MinAmount:      dto.MinAmount,
	}
	if err := h.repo.Create(ctx, coupon); err != nil {
		respondRepoError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, convertCoupon(coupon))
}

func (h *CouponHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	dto, ok := decodeCoupon(w, r)
	if !ok {
		return
	}
	if dto.ID <= 0 {
		api.Fail(w, http.StatusBadRequest, "id must be positive")
		return
	}

	coupon := &domain.Coupon{
		ID:             dto.ID,
		Code:           dto.Code,
		DiscountAmount: dto.DiscountAmount,
		MinAmount:      dto.MinAmount,
	}
	if err := h.repo.Update(ctx, coupon); err != nil {
		respondRepoError(w, err)
		return
	}

	api.Success(w, http.StatusOK, convertCoupon(coupon))
}

func (h *CouponHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		api.Fail(w, http.StatusBadRequest, "id must be a positive integer")
		return
	}

	if err := h.repo.Delete(ctx, id); err != nil {
		respondRepoError(w, err)
		return
	}

	api.Success(w, http.StatusOK, true)
}

func decodeCoupon(w http.ResponseWriter, r *http.Request) (CouponDTO, bool) {
	var dto CouponDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid JSON body")
		return dto, false
	}
	if dto.Code == "" {
		api.Fail(w, http.StatusBadRequest, "couponCode is required")
		return dto, false
	}
	if dto.DiscountAmount <= 0 {
		api.Fail(w, http.StatusBadRequest, "discountAmount must be positive")
		return dto, false
	}
	if dto.MinAmount < 0 {
		api.Fail(w, http.StatusBadRequest, "minAmount must not be negative")
		return dto, false
	}
	return dto, true
}

func respondRepoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrCouponNotFound):
		api.Fail(w, http.StatusNotFound, "coupon not found")
	case errors.Is(err, repository.ErrDuplicateCoupon):
		api.Fail(w, http.StatusConflict, "coupon code already exists")
	default:
		api.Fail(w, http.StatusInternalServerError, "internal server error")
	}
}
