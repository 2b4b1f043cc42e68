// Package repository persists production batches and lead-propensity
// counters.
package repository

import (
	"context"
	"errors"

	"promo-server/internal/models"
)

// ErrBatchNotFound is returned when a batch id does not exist in the store.
var ErrBatchNotFound = errors.New("production batch not found")

// BatchRepository is the durable store for production batches.
type BatchRepository interface {
	// Upsert writes the batch, replacing any previous row with the same id.
	Upsert(ctx context.Context, batch *models.ProductionBatch) error
	// ListPending returns batches held for pilot review, newest first.
	ListPending(ctx context.Context) ([]models.ProductionBatch, error)
	// UpdateStatus transitions a batch to the given status. Returns
	// ErrBatchNotFound when the id is unknown.
	UpdateStatus(ctx context.Context, batchID string, status models.BatchStatus) error
}

// PropensitySink accumulates per-lead engagement propensity.
type PropensitySink interface {
	// Increment adds delta to the lead's propensity counter and returns the
	// new value.
	Increment(ctx context.Context, leadID string, delta float64) (float64, error)
}
