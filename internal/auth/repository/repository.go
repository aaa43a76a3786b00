package repository

import (
	"context"
	"errors"

	"github.com/shopmesh/shopmesh/internal/auth/domain"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already registered")
)

// UserRepository is what the auth service needs from user storage.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	AddRole(ctx context.Context, userID, role string) error
	Close() error
}
