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
	authclient "github.com/shopmesh/shopmesh/internal/auth/client"
	"github.com/shopmesh/shopmesh/internal/product/domain"
	"github.com/shopmesh/shopmesh/internal/product/repository"
)

type repoMock struct {
	products []*domain.Product
	err      error

	created *domain.Product
	updated *domain.Product
	deleted int64
}

func (m *repoMock) GetAll(context.Context) ([]*domain.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.products, nil
}

func (m *repoMock) GetByID(_ context.Context, id int64) (*domain.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, p := range m.products {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, repository.ErrProductNotFound
}

func (m *repoMock) GetByName(_ context.Context, name string) (*domain.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, p := range m.products {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, repository.ErrProductNotFound
}

func (m *repoMock) Create(_ context.Context, p *domain.Product) error {
	if m.err != nil {
		return m.err
	}
	p.ID = 99
	m.created = p
	return nil
}

func (m *repoMock) Update(_ context.Context, p *domain.Product) error {
	if m.err != nil {
		return m.err
	}
	m.updated = p
	return nil
}

func (m *repoMock) Delete(_ context.Context, id int64) error {
	if m.err != nil {
		return m.err
	}
	m.deleted = id
	return nil
}

func (m *repoMock) Close() error { return nil }

type introspectorMock struct {
	identity *authclient.Identity
	err      error
}

func (m *introspectorMock) Introspect(context.Context, string) (*authclient.Identity, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.identity, nil
}

func adminIntrospector() *introspectorMock {
	return &introspectorMock{identity: &authclient.Identity{UserID: "u1", Roles: []string{"Admin"}}}
}

func newRouter(repo *repoMock, introspector authclient.Introspector) chi.Router {
	r := chi.NewRouter()
	NewProductHandler(repo, 5*time.Second).Routes(r, introspector)
	return r
}

func decodeEnvelope(t *testing.T, recorder *httptest.ResponseRecorder) api.Response {
	t.Helper()
	var resp api.Response
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&resp))
	return resp
}

func TestList(t *testing.T) {
	repo := &repoMock{products: []*domain.Product{
		{ID: 1, Name: "Samosa", Price: 15},
		{ID: 2, Name: "Chai", Price: 4.5},
	}}

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("GET", "/api/product", nil)
	newRouter(repo, adminIntrospector()).ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusOK, recorder.Code)

	resp := decodeEnvelope(t, recorder)
	assert.True(t, resp.IsSuccess)
	assert.Len(t, resp.Result.([]any), 2)
}

func TestGetByID_NotFound(t *testing.T) {
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("GET", "/api/product/7", nil)
	newRouter(&repoMock{}, adminIntrospector()).ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusNotFound, recorder.Code)
	resp := decodeEnvelope(t, recorder)
	assert.False(t, resp.IsSuccess)
}

func TestGetByName(t *testing.T) {
	repo := &repoMock{products: []*domain.Product{{ID: 1, Name: "Samosa", Price: 15}}}

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("GET", "/api/product/name/Samosa", nil)
	newRouter(repo, adminIntrospector()).ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestCreate_RequiresAdmin(t *testing.T) {
	repo := &repoMock{}
	body, _ := json.Marshal(ProductDTO{Name: "Lassi", Price: 5.5})

	// no token
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("POST", "/api/product", bytes.NewReader(body))
	newRouter(repo, adminIntrospector()).ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	// non-admin token
	recorder = httptest.NewRecorder()
	request = httptest.NewRequest("POST", "/api/product", bytes.NewReader(body))
	request.Header.Set("Authorization", "Bearer tok")
	customer := &introspectorMock{identity: &authclient.Identity{UserID: "u2", Roles: []string{"Customer"}}}
	newRouter(repo, customer).ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusForbidden, recorder.Code)

	assert.Nil(t, repo.created)
}

func TestCreate_Success(t *testing.T) {
	repo := &repoMock{}
	body, _ := json.Marshal(ProductDTO{Name: "Lassi", Price: 5.5})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("POST", "/api/product", bytes.NewReader(body))
	request.Header.Set("Authorization", "Bearer tok")
	newRouter(repo, adminIntrospector()).ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusCreated, recorder.Code)
	require.NotNil(t, repo.created)
	assert.Equal(t, "Lassi", repo.created.Name)

	resp := decodeEnvelope(t, recorder)
	assert.True(t, resp.IsSuccess)
	assert.Equal(t, 99.0, resp.Result.(map[string]any)["id"])
}

func TestCreate_Validation(t *testing.T) {
	repo := &repoMock{}
	body, _ := json.Marshal(ProductDTO{Name: "", Price: 5.5})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("POST", "/api/product", bytes.NewReader(body))
	request.Header.Set("Authorization", "Bearer tok")
	newRouter(repo, adminIntrospector()).ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Nil(t, repo.created)
}

func TestUpdate_Success(t *testing.T) {
	repo := &repoMock{}
	body, _ := json.Marshal(ProductDTO{ID: 3, Name: "Chai", Price: 5})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("PUT", "/api/product", bytes.NewReader(body))
	request.Header.Set("Authorization", "Bearer tok")
	newRouter(repo, adminIntrospector()).ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusOK, recorder.Code)
	require.NotNil(t, repo.updated)
	assert.Equal(t, int64(3), repo.updated.ID)
}

func TestDelete_Success(t *testing.T) {
	repo := &repoMock{}

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("DELETE", "/api/product/4", nil)
	request.Header.Set("Authorization", "Bearer tok")
	newRouter(repo, adminIntrospector()).ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, int64(4), repo.deleted)
}
