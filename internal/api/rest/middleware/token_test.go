package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danilovkiri/dk-go-settler/internal/config"
	"github.com/danilovkiri/dk-go-settler/internal/models/modelclaims"
	"github.com/danilovkiri/dk-go-settler/internal/service/secretary/v1/secretary"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*TokenHandler, *secretary.Secretary) {
	t.Helper()
	cfg := &config.SecretConfig{SecretKey: "jds__63h3_7ds"}
	sec, err := secretary.NewSecretaryService(cfg)
	require.NoError(t, err)
	handler, err := NewTokenHandler(sec, cfg)
	require.NoError(t, err)
	return handler, sec
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestTokenHandleMissingToken(t *testing.T) {
	handler, _ := newTestHandler(t)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/member/balance", nil)
	handler.TokenHandle(okHandler()).ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTokenHandleValidToken(t *testing.T) {
	handler, sec := newTestHandler(t)
	token, err := sec.GetTokenForUser("user1", modelclaims.RoleMember)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/member/balance", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	handler.TokenHandle(okHandler()).ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminHandleRejectsMember(t *testing.T) {
	handler, sec := newTestHandler(t)
	token, err := sec.GetTokenForUser("user1", modelclaims.RoleMember)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/admin/withdrawals/pending", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	handler.AdminHandle(okHandler()).ServeHTTP(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminHandleAcceptsAdmin(t *testing.T) {
	handler, sec := newTestHandler(t)
	token, err := sec.GetTokenForUser("admin1", modelclaims.RoleAdmin)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/admin/withdrawals/pending", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	handler.AdminHandle(okHandler()).ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}
