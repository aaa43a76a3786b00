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
	"github.com/shopmesh/shopmesh/internal/product/domain"
	"github.com/shopmesh/shopmesh/internal/product/repository"
)

// AdminRole gates catalog mutations.
const AdminRole = "Admin"

type ProductHandler struct {
	repo    repository.ProductRepository
	timeout time.Duration
}

func NewProductHandler(repo repository.ProductRepository, timeout time.Duration) *ProductHandler {
	return &ProductHandler{
		repo:    repo,
		timeout: timeout,
	}
}

// Routes mounts the catalog endpoints. Reads are public; mutations
// require the Admin role via token introspection against auth-service.
func (h *ProductHandler) Routes(r chi.Router, introspector authclient.Introspector) {
	r.Route("/api/product", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.GetByID)
		r.Get("/name/{name}", h.GetByName)

		r.Group(func(r chi.Router) {
			r.Use(authclient.RequireRole(introspector, AdminRole))
			r.Post("/", h.Create)
			r.Put("/", h.Update)
			r.Delete("/{id}", h.Delete)
		})
	})
}

type ProductDTO struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	ImageURL    string  `json:"imageUrl"`
}

func convertProduct(p *domain.Product) ProductDTO {
	return ProductDTO{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		ImageURL:    p.ImageURL,
	}
}

func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	products, err := h.repo.GetAll(ctx)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "failed to list products")
		return
	}

	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = convertProduct(p)
	}

	api.Success(w, http.StatusOK, dtos)
}

func (h *ProductHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		api.Fail(w, http.StatusBadRequest, "id must be a positive integer")
		return
	}

	product, err := h.repo.GetByID(ctx, id)
	if err != nil {
		respondRepoError(w, err)
		return
	}

	api.Success(w, http.StatusOK, convertProduct(product))
}

func (h *ProductHandler) GetByName(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	name := chi.URLParam(r, "name")
	if name == "" {
		api.Fail(w, http.StatusBadRequest, "name is required")
		return
	}

	product, err := h.repo.GetByName(ctx, name)
	if err != nil {
		respondRepoError(w, err)
		return
	}

	api.Success(w, http.StatusOK, convertProduct(product))
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	dto, ok := decodeProduct(w, r)
	if !ok {
		return
	}

	product := &domain.Product{
		Name:        dto.Name,
		Description: dto.Description,
		Price:       dto.Price,
		ImageURL:    dto.ImageURL,
	}
	if err := h.repo.Create(ctx, product); err != nil {
		api.Fail(w, http.StatusInternalServerError, "failed to create product")
		return
	}

	api.Success(w, http.StatusCreated, convertProduct(product))
}

func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	dto, ok := decodeProduct(w, r)
	if !ok {
		return
	}
	if dto.ID <= 0 {
		api.Fail(w, http.StatusBadRequest, "id must be positive")
		return
	}

	product := &domain.Product{
		ID:          dto.ID,
		Name:        dto.Name,
		Description: dto.Description,
		Price:       dto.Price,
		ImageURL:    dto.ImageURL,
	}
	if err := h.repo.Update(ctx, product); err != nil {
		respondRepoError(w, err)
		return
	}

	api.Success(w, http.StatusOK, convertProduct(product))
}

func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

func decodeProduct(w http.ResponseWriter, r *http.Request) (ProductDTO, bool) {
	var dto ProductDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid JSON body")
		return dto, false
	}
	if dto.Name == "" {
		api.Fail(w, http.StatusBadRequest, "name is required")
		return dto, false
	}
	if dto.Price < 0 {
		api.Fail(w, http.StatusBadRequest, "price must not be negative")
		return dto, false
	}
	return dto, true
}

func respondRepoError(w http.ResponseWriter, err error) {
	if errors.Is(err, repository.ErrProductNotFound) {
		api.Fail(w, http.StatusNotFound, "product not found")
		return
	}
	api.Fail(w, http.StatusInternalServerError, "internal server error")
}
