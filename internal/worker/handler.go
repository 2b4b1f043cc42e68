// Package worker consumes production tasks from the queue and runs the
// pipeline for each one.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"promo-server/internal/models"
	"promo-server/internal/orchestrator"
	"promo-server/internal/repository"
)

// Pipeline is the orchestrator surface the handler drives.
type Pipeline interface {
	ProduceBatch(ctx context.Context, req orchestrator.Request) *models.ProductionBatch
}

// TaskHandler turns one queue message into one pipeline run.
type TaskHandler struct {
	pipeline            Pipeline
	propensity          repository.PropensitySink
	propensityIncrement float64
	logger              *zap.Logger
}

// NewTaskHandler creates the handler. propensity may be nil when the sink is
// not configured.
func NewTaskHandler(pipeline Pipeline, propensity repository.PropensitySink, propensityIncrement float64, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		pipeline:            pipeline,
		propensity:          propensity,
		propensityIncrement: propensityIncrement,
		logger:              logger.Named("TaskHandler"),
	}
}

// Handle processes one raw message. It returns an error only when the
// message itself is unusable (the consumer routes those to the DLQ); a batch
// that fails inside the pipeline is a processed message.
func (h *TaskHandler) Handle(ctx context.Context, body []byte) error {
	metricsTaskReceived()

	var payload models.ProductionTaskPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		metricsTaskFailed("decode")
		return fmt.Errorf("failed to decode task payload: %w", err)
	}
	if payload.RawText == "" {
		metricsTaskFailed("empty_raw_text")
		return fmt.Errorf("task %s has no raw text", payload.TaskID)
	}

	logger := h.logger.With(
		zap.String("task_id", payload.TaskID),
		zap.String("lead_id", payload.LeadID))
	logger.Info("Processing production task", zap.String("duration_tag", payload.DurationTag))

	started := time.Now()
	batch := h.pipeline.ProduceBatch(ctx, orchestrator.Request{
		BatchID:     payload.TaskID,
		LeadID:      payload.LeadID,
		RawText:     payload.RawText,
		DurationTag: payload.DurationTag,
	})
	metricsBatchFinalized(string(batch.Status), time.Since(started))

	// Completed batches nudge the lead's propensity counter. Best-effort.
	if batch.Status == models.BatchStatusCompleted && batch.LeadID != "" && h.propensity != nil {
		if _, err := h.propensity.Increment(ctx, batch.LeadID, h.propensityIncrement); err != nil {
			logger.Warn("Failed to increment lead propensity", zap.Error(err))
		}
	}

	logger.Info("Production task processed",
		zap.String("batch_id", batch.ID),
		zap.String("status", string(batch.Status)),
		zap.Duration("duration", time.Since(started)))
	return nil
}
