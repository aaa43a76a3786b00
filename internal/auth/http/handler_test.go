package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopmesh/shopmesh/internal/api"
	"github.com/shopmesh/shopmesh/internal/auth/domain"
	"github.com/shopmesh/shopmesh/internal/auth/repository"
	"github.com/shopmesh/shopmesh/internal/auth/service"
	"github.com/shopmesh/shopmesh/internal/auth/session"
)

type serviceMock struct {
	user     *domain.User
	token    string
	sessions map[string]*domain.Session

	registerErr error
	loginErr    error
	assignErr   error

	loggedOut    string
	assignedRole string
}

func (m *serviceMock) Register(_ context.Context, email, name, phoneNumber, _ string) (*domain.User, error) {
	if m.registerErr != nil {
		return nil, m.registerErr
	}
	return &domain.User{ID: "uid-1", Email: email, Name: name, PhoneNumber: phoneNumber, Roles: []string{"Customer"}}, nil
}

func (m *serviceMock) Login(_ context.Context, email, _ string) (*domain.User, string, error) {
	if m.loginErr != nil {
		return nil, "", m.loginErr
	}
	return &domain.User{ID: "uid-1", Email: email, Roles: []string{"Customer"}}, m.token, nil
}

func (m *serviceMock) Logout(_ context.Context, token string) error {
	m.loggedOut = token
	return nil
}

func (m *serviceMock) AssignRole(_ context.Context, _, role string) error {
	if m.assignErr != nil {
		return m.assignErr
	}
	m.assignedRole = role
	return nil
}

func (m *serviceMock) Introspect(_ context.Context, token string) (*domain.Session, error) {
	sess, ok := m.sessions[token]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return sess, nil
}

func newRouter(svc AuthService) chi.Router {
	r := chi.NewRouter()
	NewAuthHandler(svc, 5*time.Second).Routes(r)
	return r
}

func decodeEnvelope(t *testing.T, recorder *httptest.ResponseRecorder) api.Response {
	t.Helper()
	var resp api.Response
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&resp))
	return resp
}

func postJSON(t *testing.T, router chi.Router, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("POST", path, bytes.NewReader(payload))
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	router.ServeHTTP(recorder, request)
	return recorder
}

func TestRegister(t *testing.T) {
	svc := &serviceMock{}
	recorder := postJSON(t, newRouter(svc), "/api/auth/register",
		registerRequest{Email: "jane@example.com", Name: "Jane", Password: "hunter2"}, "")

	assert.Equal(t, http.StatusCreated, recorder.Code)

	resp := decodeEnvelope(t, recorder)
	assert.True(t, resp.IsSuccess)
	result := resp.Result.(map[string]any)
	assert.Equal(t, "uid-1", result["id"])
	assert.Equal(t, "jane@example.com", result["email"])
}

func TestRegister_Validation(t *testing.T) {
	cases := []struct {
		name string
		req  registerRequest
	}{
		{"missing email", registerRequest{Password: "hunter2"}},
		{"malformed email", registerRequest{Email: "not-an-email", Password: "hunter2"}},
		{"short password", registerRequest{Email: "jane@example.com", Password: "abc"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recorder := postJSON(t, newRouter(&serviceMock{}), "/api/auth/register", tc.req, "")
			assert.Equal(t, http.StatusBadRequest, recorder.Code)
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc := &serviceMock{registerErr: repository.ErrDuplicateEmail}
	recorder := postJSON(t, newRouter(svc), "/api/auth/register",
		registerRequest{Email: "jane@example.com", Password: "hunter2"}, "")

	assert.Equal(t, http.StatusConflict, recorder.Code)
	resp := decodeEnvelope(t, recorder)
	assert.False(t, resp.IsSuccess)
}

func TestLogin(t *testing.T) {
	svc := &serviceMock{token: "tok-abc"}
	recorder := postJSON(t, newRouter(svc), "/api/auth/login",
		loginRequest{Email: "jane@example.com", Password: "hunter2"}, "")

	assert.Equal(t, http.StatusOK, recorder.Code)

	resp := decodeEnvelope(t, recorder)
	result := resp.Result.(map[string]any)
	assert.Equal(t, "tok-abc", result["token"])
	assert.Equal(t, "uid-1", result["user"].(map[string]any)["id"])
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc := &serviceMock{loginErr: service.ErrInvalidCredentials}
	recorder := postJSON(t, newRouter(svc), "/api/auth/login",
		loginRequest{Email: "jane@example.com", Password: "wrong"}, "")

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestLogout(t *testing.T) {
	svc := &serviceMock{}
	recorder := postJSON(t, newRouter(svc), "/api/auth/logout", nil, "tok-abc")

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "tok-abc", svc.loggedOut)
}

func TestIntrospect(t *testing.T) {
	svc := &serviceMock{sessions: map[string]*domain.Session{
		"tok-abc": {UserID: "uid-1", Email: "jane@example.com", Roles: []string{"Customer"}},
	}}

	recorder := postJSON(t, newRouter(svc), "/api/auth/introspect", nil, "tok-abc")

	assert.Equal(t, http.StatusOK, recorder.Code)
	resp := decodeEnvelope(t, recorder)
	result := resp.Result.(map[string]any)
	assert.Equal(t, "uid-1", result["userId"])
	assert.Equal(t, []any{"Customer"}, result["roles"])
}

func TestIntrospect_UnknownToken(t *testing.T) {
	svc := &serviceMock{sessions: map[string]*domain.Session{}}

	recorder := postJSON(t, newRouter(svc), "/api/auth/introspect", nil, "nope")
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestIntrospect_MissingToken(t *testing.T) {
	recorder := postJSON(t, newRouter(&serviceMock{}), "/api/auth/introspect", nil, "")
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestAssignRole_RequiresAdmin(t *testing.T) {
	svc := &serviceMock{sessions: map[string]*domain.Session{
		"customer-tok": {UserID: "uid-2", Roles: []string{"Customer"}},
	}}
	router := newRouter(svc)

	// no token
	recorder := postJSON(t, router, "/api/auth/assignRole",
		assignRoleRequest{Email: "jane@example.com", Role: "Admin"}, "")
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	// non-admin token
	recorder = postJSON(t, router, "/api/auth/assignRole",
		assignRoleRequest{Email: "jane@example.com", Role: "Admin"}, "customer-tok")
	assert.Equal(t, http.StatusForbidden, recorder.Code)

	assert.Empty(t, svc.assignedRole)
}

func TestAssignRole_Success(t *testing.T) {
	svc := &serviceMock{sessions: map[string]*domain.Session{
		"admin-tok": {UserID: "uid-1", Roles: []string{"Admin"}},
	}}

	recorder := postJSON(t, newRouter(svc), "/api/auth/assignRole",
		assignRoleRequest{Email: "jane@example.com", Role: "Admin"}, "admin-tok")

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "Admin", svc.assignedRole)
}

func TestAssignRole_UnknownUser(t *testing.T) {
	svc := &serviceMock{
		sessions:  map[string]*domain.Session{"admin-tok": {UserID: "uid-1", Roles: []string{"Admin"}}},
		assignErr: repository.ErrUserNotFound,
	}

	recorder := postJSON(t, newRouter(svc), "/api/auth/assignRole",
		assignRoleRequest{Email: "nobody@example.com", Role: "Admin"}, "admin-tok")

	assert.Equal(t, http.StatusNotFound, recorder.Code)
}
