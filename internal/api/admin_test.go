package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loretree/loretree/internal/config"
	"github.com/loretree/loretree/internal/guard"
	"github.com/loretree/loretree/pkg/llmclient"
	"github.com/loretree/loretree/pkg/testhelper"
)

type stubModelLister struct {
	models []llmclient.Model
	calls  int
}

func (s *stubModelLister) ListModels(ctx context.Context) ([]llmclient.Model, error) {
	s.calls++
	return s.models, nil
}

func newTestRouter(t *testing.T, lister ModelLister) *Router {
	t.Helper()
	cfg := &config.Config{
		AdminAPIToken:       "secret",
		ExecutionTTLSeconds: 3600,
	}
	logger := zap.NewNop()
	g := guard.NewGuard(testhelper.NewMemoryExecutionStore(), cfg, logger)
	return NewRouter(cfg, nil, nil, g, nil, lister, logger)
}

func TestAdminModelsRequiresToken(t *testing.T) {
	router := newTestRouter(t, &stubModelLister{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/models", nil)
	router.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminModelsReturnsCatalog(t *testing.T) {
	lister := &stubModelLister{
		models: []llmclient.Model{{ID: "claude-sonnet-4-5", DisplayName: "Claude Sonnet 4.5"}},
	}
	router := newTestRouter(t, lister)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/models", nil)
	req.Header.Set("X-Admin-Token", "secret")
	router.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "claude-sonnet-4-5")
	assert.Equal(t, 1, lister.calls)
}

func TestAdminExecutionLookup(t *testing.T) {
	router := newTestRouter(t, &stubModelLister{})
	ctx := context.Background()

	acquired, err := router.guard.TryAcquire(ctx, "evt-1")
	require.NoError(t, err)
	require.True(t, acquired)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/executions/evt-1", nil)
	req.Header.Set("X-Admin-Token", "secret")
	router.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"event_id":"evt-1"`)
	assert.Contains(t, rec.Body.String(), `"status":"received"`)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/admin/executions/evt-unknown", nil)
	req.Header.Set("X-Admin-Token", "secret")
	router.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
