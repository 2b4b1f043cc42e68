package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"promo-server/internal/mocks"
	"promo-server/internal/models"
	"promo-server/internal/repository"
)

type stubPatterns struct {
	result []string
}

func (s stubPatterns) DiscoverWinningPatterns(context.Context, int) []string {
	return s.result
}

// newTestRouter skips the prometheus middleware so tests can build fresh
// routers without colliding in the default registry.
func newTestRouter(s *Server) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	s.registerRoutes(router)
	return router
}

func TestListPendingBatches(t *testing.T) {
	repo := mocks.NewMockBatchRepository(t)
	repo.On("ListPending", mock.Anything).Return([]models.ProductionBatch{
		{ID: "b-1", Status: models.BatchStatusPending, CreatedAt: time.Now()},
		{ID: "b-2", Status: models.BatchStatusPending, CreatedAt: time.Now()},
	}, nil)

	router := newTestRouter(NewServer(repo, stubPatterns{}, zap.NewNop()))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/batches/pending", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Batches []models.ProductionBatch `json:"batches"`
		Count   int                      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "b-1", body.Batches[0].ID)
}

func TestListPendingReturnsEmptyArray(t *testing.T) {
	repo := mocks.NewMockBatchRepository(t)
	repo.On("ListPending", mock.Anything).Return(nil, nil)

	router := newTestRouter(NewServer(repo, stubPatterns{}, zap.NewNop()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/batches/pending", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"batches":[]`)
}

func TestUpdateStatus(t *testing.T) {
	t.Run("accepts completed", func(t *testing.T) {
		repo := mocks.NewMockBatchRepository(t)
		repo.On("UpdateStatus", mock.Anything, "b-1", models.BatchStatusCompleted).Return(nil)

		router := newTestRouter(NewServer(repo, stubPatterns{}, zap.NewNop()))

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/batches/b-1/status",
			strings.NewReader(`{"status":"completed"}`))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		repo.AssertExpectations(t)
	})

	t.Run("rejects pending", func(t *testing.T) {
		repo := mocks.NewMockBatchRepository(t)
		router := newTestRouter(NewServer(repo, stubPatterns{}, zap.NewNop()))

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/batches/b-1/status",
			strings.NewReader(`{"status":"pending"}`))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown batch is 404", func(t *testing.T) {
		repo := mocks.NewMockBatchRepository(t)
		repo.On("UpdateStatus", mock.Anything, "missing", models.BatchStatusFailed).
			Return(repository.ErrBatchNotFound)

		router := newTestRouter(NewServer(repo, stubPatterns{}, zap.NewNop()))

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/batches/missing/status",
			strings.NewReader(`{"status":"failed"}`))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestPatternsEndpoint(t *testing.T) {
	repo := mocks.NewMockBatchRepository(t)
	router := newTestRouter(NewServer(repo, stubPatterns{result: []string{"grounded claims win"}}, zap.NewNop()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/patterns", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "grounded claims win")
}

func TestHealth(t *testing.T) {
	repo := mocks.NewMockBatchRepository(t)
	router := newTestRouter(NewServer(repo, stubPatterns{}, zap.NewNop()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
