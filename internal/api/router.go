// Package api exposes the human-review surface: pending batches, status
// updates and recurring-pattern lookups.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"promo-server/internal/models"
	"promo-server/internal/repository"
)

// PatternSource answers recurring-pattern queries. Satisfied by
// graph.Persister.
type PatternSource interface {
	DiscoverWinningPatterns(ctx context.Context, minBatchCount int) []string
}

// Server is the review API.
type Server struct {
	batches  repository.BatchRepository
	patterns PatternSource
	logger   *zap.Logger
}

// NewServer creates the review API over the batch store and pattern source.
func NewServer(batches repository.BatchRepository, patterns PatternSource, logger *zap.Logger) *Server {
	return &Server{batches: batches, patterns: patterns, logger: logger.Named("ReviewAPI")}
}

// Router builds the gin engine with logging, CORS and prometheus middleware.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggingMiddleware(s.logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}))

	prom := ginprometheus.NewPrometheus("review_api")
	prom.Use(router)

	s.registerRoutes(router)
	return router
}

func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/health", s.handleHealth)

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/batches/pending", s.handleListPending)
		apiGroup.POST("/batches/:id/status", s.handleUpdateStatus)
		apiGroup.GET("/patterns", s.handlePatterns)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleListPending(c *gin.Context) {
	batches, err := s.batches.ListPending(c.Request.Context())
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list pending batches"})
		return
	}
	if batches == nil {
		batches = []models.ProductionBatch{}
	}
	c.JSON(http.StatusOK, gin.H{"batches": batches, "count": len(batches)})
}

// statusUpdateRequest is the reviewer's verdict on a pending batch.
type statusUpdateRequest struct {
	Status string `json:"status" binding:"required"`
}

func (s *Server) handleUpdateStatus(c *gin.Context) {
	batchID := c.Param("id")

	var req statusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}

	status := models.BatchStatus(req.Status)
	if status != models.BatchStatusCompleted && status != models.BatchStatusFailed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be completed or failed"})
		return
	}

	if err := s.batches.UpdateStatus(c.Request.Context(), batchID, status); err != nil {
		if errors.Is(err, repository.ErrBatchNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
			return
		}
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update batch status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"batch_id": batchID, "status": req.Status})
}

func (s *Server) handlePatterns(c *gin.Context) {
	patterns := s.patterns.DiscoverWinningPatterns(c.Request.Context(), 2)
	c.JSON(http.StatusOK, gin.H{"patterns": patterns})
}
