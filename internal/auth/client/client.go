// Package client is the HTTP client other services use to validate
// bearer tokens against the auth service.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/shopmesh/shopmesh/internal/api"
)

var ErrTokenInvalid = errors.New("token invalid or expired")

// Identity is the result of a successful token introspection.
type Identity struct {
	UserID string   `json:"userId"`
	Email  string   `json:"email"`
	Roles  []string `json:"roles"`
}

// Introspector validates a bearer token and returns the identity behind
// it. Implemented by Client; consumers mock it in tests.
type Introspector interface {
	Introspect(ctx context.Context, token string) (*Identity, error)
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *Client) Introspect(ctx context.Context, token string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/introspect", nil)
	if err != nil {
		return nil, fmt.Errorf("build introspect request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("introspect token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrTokenInvalid
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("introspect token: status %d", resp.StatusCode)
	}

	var env struct {
		IsSuccess bool            `json:"isSuccess"`
		Result    json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode introspect response: %w", err)
	}
	if !env.IsSuccess {
		return nil, ErrTokenInvalid
	}

	var identity Identity
	if err := json.Unmarshal(env.Result, &identity); err != nil {
		return nil, fmt.Errorf("unmarshal identity: %w", err)
	}

	return &identity, nil
}

type contextKey string

const identityKey contextKey = "identity"

// IdentityFromContext returns the identity stored by RequireRole, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	if id, ok := ctx.Value(identityKey).(*Identity); ok {
		return id
	}
	return nil
}

// RequireRole guards a route group: the request must carry a bearer
// token that introspects successfully and maps to the given role.
func RequireRole(introspector Introspector, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authz, "Bearer ")
			if !ok || token == "" {
				api.Fail(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			identity, err := introspector.Introspect(r.Context(), token)
			if err != nil {
				if errors.Is(err, ErrTokenInvalid) {
					api.Fail(w, http.StatusUnauthorized, "token invalid or expired")
					return
				}
				api.Fail(w, http.StatusServiceUnavailable, "auth service unavailable")
				return
			}

			if !hasRole(identity, role) {
				api.Fail(w, http.StatusForbidden, "insufficient role")
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func hasRole(identity *Identity, role string) bool {
	for _, r := range identity.Roles {
		if r == role {
			return true
		}
	}
	return false
}
