package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/shopmesh/shopmesh/internal/cart/domain"
)

// ErrCouponNotFound is returned when the coupon service has no coupon
// for the requested code. Callers treat it as "no discount", never as a
// read failure.
var ErrCouponNotFound = errors.New("coupon not found")

// CouponClient fetches discount terms by coupon code.
type CouponClient interface {
	GetCoupon(ctx context.Context, code string) (*domain.CouponTerms, error)
}

type couponDTO struct {
	ID             int64   `json:"id"`
	Code           string  `json:"couponCode"`
	DiscountAmount float64 `json:"discountAmount"`
	MinAmount      float64 `json:"minAmount"`
}

type HTTPCouponClient struct {
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker[*domain.CouponTerms]
}

func NewHTTPCouponClient(baseURL string, timeout time.Duration) *HTTPCouponClient {
	return &HTTPCouponClient{
		baseURL: baseURL,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		cb: gobreaker.NewCircuitBreaker[*domain.CouponTerms](gobreaker.Settings{
			Name:    "coupon-service",
			Timeout: 10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// an unknown code is a valid answer, not an upstream failure
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrCouponNotFound)
			},
		}),
	}
}

func (c *HTTPCouponClient) GetCoupon(ctx context.Context, code string) (*domain.CouponTerms, error) {
	terms, err := c.cb.Execute(func() (*domain.CouponTerms, error) {
		return c.fetchCoupon(ctx, code)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("get coupon: %v: %w", err, ErrUpstream)
		}
		return nil, err
	}
	return terms, nil
}

func (c *HTTPCouponClient) fetchCoupon(ctx context.Context, code string) (*domain.CouponTerms, error) {
	endpoint := c.baseURL + "/api/coupon/code/" + url.PathEscape(code)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build coupon request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get coupon: %v: %w", err, ErrUpstream)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrCouponNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get coupon: status %d: %w", resp.StatusCode, ErrUpstream)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode coupon response: %v: %w", err, ErrUpstream)
	}
	if !env.IsSuccess {
		return nil, ErrCouponNotFound
	}

	var dto couponDTO
	if err := json.Unmarshal(env.Result, &dto); err != nil {
		return nil, fmt.Errorf("unmarshal coupon: %v: %w", err, ErrUpstream)
	}

	return &domain.CouponTerms{
		Code:           dto.Code,
		MinAmount:      dto.MinAmount,
		DiscountAmount: dto.DiscountAmount,
	}, nil
}
