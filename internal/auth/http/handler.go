package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shopmesh/shopmesh/internal/api"
	authclient "github.com/shopmesh/shopmesh/internal/auth/client"
	"github.com/shopmesh/shopmesh/internal/auth/domain"
	"github.com/shopmesh/shopmesh/internal/auth/repository"
	"github.com/shopmesh/shopmesh/internal/auth/service"
	"github.com/shopmesh/shopmesh/internal/auth/session"
)

// AdminRole gates role assignment.
const AdminRole = "Admin"

// AuthService is what the handler needs from the auth layer.
type AuthService interface {
	Register(ctx context.Context, email, name, phoneNumber, password string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*domain.User, string, error)
	Logout(ctx context.Context, token string) error
	AssignRole(ctx context.Context, email, role string) error
	Introspect(ctx context.Context, token string) (*domain.Session, error)
}

type AuthHandler struct {
	service AuthService
	timeout time.Duration
}

func NewAuthHandler(svc AuthService, timeout time.Duration) *AuthHandler {
	return &AuthHandler{
		service: svc,
		timeout: timeout,
	}
}

// Routes mounts the auth endpoints. Role assignment is gated on the
// Admin role through the service's own introspection.
func (h *AuthHandler) Routes(r chi.Router) {
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.Post("/introspect", h.Introspect)

		r.Group(func(r chi.Router) {
			r.Use(authclient.RequireRole(localIntrospector{h.service}, AdminRole))
			r.Post("/assignRole", h.AssignRole)
		})
	})
}

// localIntrospector resolves tokens in process instead of calling the
// auth service over HTTP, since this handler is the auth service.
type localIntrospector struct {
	service AuthService
}

func (l localIntrospector) Introspect(ctx context.Context, token string) (*authclient.Identity, error) {
	sess, err := l.service.Introspect(ctx, token)
	if errors.Is(err, session.ErrSessionNotFound) {
		return nil, authclient.ErrTokenInvalid
	}
	if err != nil {
		return nil, err
	}
	return &authclient.Identity{
		UserID: sess.UserID,
		Email:  sess.Email,
		Roles:  sess.Roles,
	}, nil
}

type registerRequest struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber"`
	Password    string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type assignRoleRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type userDTO struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	PhoneNumber string   `json:"phoneNumber"`
	Roles       []string `json:"roles"`
}

type loginResponse struct {
	User  userDTO `json:"user"`
	Token string  `json:"token"`
}

func convertUser(u *domain.User) userDTO {
	return userDTO{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		PhoneNumber: u.PhoneNumber,
		Roles:       u.Roles,
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		api.Fail(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	if len(req.Password) < 6 {
		api.Fail(w, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}

	user, err := h.service.Register(ctx, req.Email, req.Name, req.PhoneNumber, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			api.Fail(w, http.StatusConflict, "email already registered")
			return
		}
		api.Fail(w, http.StatusInternalServerError, "registration failed")
		return
	}

	api.Success(w, http.StatusCreated, convertUser(user))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		api.Fail(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, token, err := h.service.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			api.Fail(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		api.Fail(w, http.StatusInternalServerError, "login failed")
		return
	}

	api.Success(w, http.StatusOK, loginResponse{
		User:  convertUser(user),
		Token: token,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	token, ok := bearerToken(r)
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	if err := h.service.Logout(ctx, token); err != nil {
		api.Fail(w, http.StatusInternalServerError, "logout failed")
		return
	}

	api.Success(w, http.StatusOK, true)
}

func (h *AuthHandler) AssignRole(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req assignRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Role == "" {
		api.Fail(w, http.StatusBadRequest, "email and role are required")
		return
	}

	if err := h.service.AssignRole(ctx, req.Email, req.Role); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			api.Fail(w, http.StatusNotFound, "user not found")
			return
		}
		api.Fail(w, http.StatusInternalServerError, "role assignment failed")
		return
	}

	api.Success(w, http.StatusOK, true)
}

func (h *AuthHandler) Introspect(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	token, ok := bearerToken(r)
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	sess, err := h.service.Introspect(ctx, token)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			api.Fail(w, http.StatusUnauthorized, "token invalid or expired")
			return
		}
		api.Fail(w, http.StatusInternalServerError, "introspection failed")
		return
	}

	api.Success(w, http.StatusOK, sess)
}

func bearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(authz, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}
