package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/teamauresta/agent-harbor/internal/api/handlers"
	"github.com/teamauresta/agent-harbor/internal/config"
	"github.com/teamauresta/agent-harbor/internal/domain"
	"github.com/teamauresta/agent-harbor/internal/jobs"
	"github.com/teamauresta/agent-harbor/internal/pagination"
	"github.com/teamauresta/agent-harbor/internal/service"
)

type MockKnowledgeService struct {
	mock.Mock
}

func (m *MockKnowledgeService) Upsert(ctx context.Context, clientID string, in domain.ChunkInput) (string, error) {
	args := m.Called(ctx, clientID, in)
	return args.String(0), args.Error(1)
}

func (m *MockKnowledgeService) UpsertBatch(ctx context.Context, clientID string, inputs []domain.ChunkInput) (int, error) {
	args := m.Called(ctx, clientID, inputs)
	return args.Int(0), args.Error(1)
}

func (m *MockKnowledgeService) ReplaceClient(ctx context.Context, clientID string, inputs []domain.ChunkInput) (int, error) {
	args := m.Called(ctx, clientID, inputs)
	return args.Int(0), args.Error(1)
}

func (m *MockKnowledgeService) Search(ctx context.Context, input service.SearchInput) ([]*domain.SearchResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.SearchResult), args.Error(1)
}

func (m *MockKnowledgeService) ListChunks(ctx context.Context, clientID, cursor string, limit int) (pagination.PageResult[*domain.KnowledgeChunk], error) {
	args := m.Called(ctx, clientID, cursor, limit)
	return args.Get(0).(pagination.PageResult[*domain.KnowledgeChunk]), args.Error(1)
}

func (m *MockKnowledgeService) DeleteClient(ctx context.Context, clientID string) (int64, error) {
	args := m.Called(ctx, clientID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockKnowledgeService) Stats(ctx context.Context, clientID string) ([]domain.SourceCount, error) {
	args := m.Called(ctx, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SourceCount), args.Error(1)
}

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(ctx context.Context, job jobs.TurnJob) {}

func testPersonas(t *testing.T) *config.PersonaRegistry {
	t.Helper()
	dir := t.TempDir()
	persona := "client_id: acme\nsystem_prompt: You are a support agent.\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "acme.yaml"), []byte(persona), 0o644))
	reg, err := config.LoadPersonas(dir)
	require.NoError(t, err)
	return reg
}

func setupRouter(t *testing.T) (http.Handler, *MockKnowledgeService) {
	t.Helper()
	knowledgeSvc := new(MockKnowledgeService)

	cfg := RouterConfig{
		AdminToken:       "admin-secret",
		WebhookHandler:   handlers.NewWebhookHandler(context.Background(), testPersonas(t), nopDispatcher{}, nil),
		KnowledgeHandler: handlers.NewKnowledgeHandler(knowledgeSvc),
	}

	return NewRouter(cfg), knowledgeSvc
}

func TestRouter_HealthEndpoint(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "ok", data["status"])
}

func TestRouter_WebhookIsOpen(t *testing.T) {
	router, _ := setupRouter(t)

	body := `{"event": "message_created", "message_type": "incoming", "content": "hi",
		"conversation": {"id": 1}, "account": {"id": 1}}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/acme", strings.NewReader(body))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_AdminRoutes_RequireAuth(t *testing.T) {
	router, _ := setupRouter(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/admin/knowledge/acme/chunks"},
		{http.MethodPost, "/admin/knowledge/acme/chunks/batch"},
		{http.MethodPost, "/admin/knowledge/acme/search"},
		{http.MethodGet, "/admin/knowledge/acme/stats"},
		{http.MethodDelete, "/admin/knowledge/acme/"},
	}

	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			req := httptest.NewRequest(route.method, route.path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestRouter_AdminRoutes_WithValidAuth(t *testing.T) {
	router, knowledgeSvc := setupRouter(t)

	knowledgeSvc.On("Stats", mock.Anything, "acme").Return([]domain.SourceCount{
		{ClientID: "acme", SourceType: domain.SourceTypeProduct, Count: 3},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/knowledge/acme/stats", nil)
	req.Header.Set("Authorization", "Bearer admin-secret")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	knowledgeSvc.AssertExpectations(t)
}

func TestRouter_RequestIDHeader(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
