// Package client holds the HTTP clients the cart service uses to reach
// its upstream collaborators (product catalog, coupon service). Both are
// read-only dependencies guarded by circuit breakers.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"

	"github.com/shopmesh/shopmesh/internal/cart/domain"
)

// ErrUpstream marks any failure to reach or get a usable answer from an
// upstream service. Handlers map it to a 502.
var ErrUpstream = errors.New("upstream service error")

// envelope mirrors the uniform response shape all services return.
type envelope struct {
	IsSuccess bool            `json:"isSuccess"`
	Message   string          `json:"message"`
	Result    json.RawMessage `json:"result"`
}

// ProductClient fetches live product snapshots for cart reads.
type ProductClient interface {
	GetProducts(ctx context.Context) ([]domain.ProductSnapshot, error)
}

type productDTO struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	ImageURL    string  `json:"imageUrl"`
}

type HTTPProductClient struct {
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker[[]domain.ProductSnapshot]
	sfg     singleflight.Group // collapses concurrent catalog fetches
}

func NewHTTPProductClient(baseURL string, timeout time.Duration) *HTTPProductClient {
	return &HTTPProductClient{
		baseURL: baseURL,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		cb: gobreaker.NewCircuitBreaker[[]domain.ProductSnapshot](gobreaker.Settings{
			Name:    "product-service",
			Timeout: 10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

func (c *HTTPProductClient) GetProducts(ctx context.Context) ([]domain.ProductSnapshot, error) {
	v, err, _ := c.sfg.Do("products", func() (interface{}, error) {
		return c.cb.Execute(func() ([]domain.ProductSnapshot, error) {
			return c.fetchProducts(ctx)
		})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("get products: %v: %w", err, ErrUpstream)
		}
		return nil, err
	}
	return v.([]domain.ProductSnapshot), nil
}

func (c *HTTPProductClient) fetchProducts(ctx context.Context) ([]domain.ProductSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/product", nil)
	if err != nil {
		return nil, fmt.Errorf("build products request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get products: %v: %w", err, ErrUpstream)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get products: status %d: %w", resp.StatusCode, ErrUpstream)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode products response: %v: %w", err, ErrUpstream)
	}
	if !env.IsSuccess {
		return nil, fmt.Errorf("get products: %s: %w", env.Message, ErrUpstream)
	}

	var dtos []productDTO
	if err := json.Unmarshal(env.Result, &dtos); err != nil {
		return nil, fmt.Errorf("unmarshal products: %v: %w", err, ErrUpstream)
	}

	snapshots := make([]domain.ProductSnapshot, len(dtos))
	for i, p := range dtos {
		snapshots[i] = domain.ProductSnapshot{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
			ImageURL:    p.ImageURL,
		}
	}

	return snapshots, nil
}
