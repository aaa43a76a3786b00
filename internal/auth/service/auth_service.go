package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/shopmesh/shopmesh/internal/auth/domain"
	"github.com/shopmesh/shopmesh/internal/auth/events"
	"github.com/shopmesh/shopmesh/internal/auth/repository"
	"github.com/shopmesh/shopmesh/internal/auth/session"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

// DefaultRole is granted to every new account. Further roles are
// assigned explicitly through AssignRole.
const DefaultRole = "Customer"

// EventPublisher emits account lifecycle events. Publishing is best
// effort and never fails the originating request.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, event events.UserRegistered) error
}

type AuthService struct {
	repo      repository.UserRepository
	sessions  session.Store
	publisher EventPublisher
}

func NewAuthService(repo repository.UserRepository, sessions session.Store, publisher EventPublisher) *AuthService {
	return &AuthService{
		repo:      repo,
		sessions:  sessions,
		publisher: publisher,
	}
}

func (s *AuthService) Register(ctx context.Context, email, name, phoneNumber, password string) (*domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PhoneNumber:  phoneNumber,
		PasswordHash: string(hash),
		Roles:        []string{DefaultRole},
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	if s.publisher != nil {
		event := events.UserRegistered{
			UserID:       user.ID,
			Email:        user.Email,
			Name:         user.Name,
			RegisteredAt: time.Now().UTC(),
		}
		if err := s.publisher.PublishUserRegistered(ctx, event); err != nil {
			log.Printf("failed to publish registration event for user %s: %v", user.ID, err)
		}
	}

	return user, nil
}

// Login verifies the credentials and opens a session, returning the
// bearer token the caller presents on subsequent requests. An unknown
// email and a wrong password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, string, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token := uuid.NewString()
	sess := &domain.Session{
		UserID: user.ID,
		Email:  user.Email,
		Roles:  user.Roles,
	}
	if err := s.sessions.Set(ctx, token, sess); err != nil {
		return nil, "", fmt.Errorf("failed to store session: %w", err)
	}

	return user, token, nil
}

func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, token)
}

// AssignRole grants a role to the account registered under email.
// Open sessions keep their old role set until the next login.
func (s *AuthService) AssignRole(ctx context.Context, email, role string) error {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return err
	}

	return s.repo.AddRole(ctx, user.ID, role)
}

func (s *AuthService) Introspect(ctx context.Context, token string) (*domain.Session, error) {
	return s.sessions.Get(ctx, token)
}
