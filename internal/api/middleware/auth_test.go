package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func authedHandler(t *testing.T, token string) http.Handler {
	t.Helper()
	return AdminAuth(token)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAdminAuth_ValidToken(t *testing.T) {
	handler := authedHandler(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/admin/knowledge/stats", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminAuth_InvalidToken(t *testing.T) {
	handler := authedHandler(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/admin/knowledge/stats", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminAuth_MissingHeader(t *testing.T) {
	handler := authedHandler(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/admin/knowledge/stats", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminAuth_WrongScheme(t *testing.T) {
	handler := authedHandler(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/admin/knowledge/stats", nil)
	req.Header.Set("Authorization", "Basic secret")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminAuth_EmptyConfiguredTokenDisablesRoutes(t *testing.T) {
	handler := authedHandler(t, "")

	req := httptest.NewRequest(http.MethodGet, "/admin/knowledge/stats", nil)
	req.Header.Set("Authorization", "Bearer anything")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
