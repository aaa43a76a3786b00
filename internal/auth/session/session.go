package session

import (
	"context"
	"errors"

	"github.com/shopmesh/shopmesh/internal/auth/domain"
)

var ErrSessionNotFound = errors.New("session not found")

// Store keeps server side session state behind opaque bearer tokens.
type Store interface {
	Set(ctx context.Context, token string, sess *domain.Session) error
	Get(ctx context.Context, token string) (*domain.Session, error)
	Delete(ctx context.Context, token string) error
}
