package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"promo-server/internal/models"
)

// postgresBatchRepository implements BatchRepository for PostgreSQL. The
// structured parts of the batch (storyboard, results, audit, blackboard) are
// stored as JSONB so the schema survives storyboard shape changes.
type postgresBatchRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

var _ BatchRepository = (*postgresBatchRepository)(nil)

// NewPostgresBatchRepository creates the PostgreSQL-backed batch store.
func NewPostgresBatchRepository(db *pgxpool.Pool, logger *zap.Logger) BatchRepository {
	return &postgresBatchRepository{db: db, logger: logger.Named("BatchRepository")}
}

// batchRow is the scan target for production_batches.
type batchRow struct {
	ID            string      `db:"id"`
	LeadID        string      `db:"lead_id"`
	RawText       string      `db:"raw_text"`
	DurationTag   string      `db:"duration_tag"`
	Status        string      `db:"status"`
	Synthesis     []byte      `db:"synthesis"`
	SceneResults  []byte      `db:"scene_results"`
	AvatarVideoID string      `db:"avatar_video_id"`
	Audit         []byte      `db:"audit"`
	Blackboard    []byte      `db:"blackboard"`
	CreatedAt     time.Time   `db:"created_at"`
	CompletedAt   *time.Time  `db:"completed_at"`
}

// Upsert writes the batch with last-write-wins semantics on the id.
func (r *postgresBatchRepository) Upsert(ctx context.Context, batch *models.ProductionBatch) error {
	query := `
        INSERT INTO production_batches
        (id, lead_id, raw_text, duration_tag, status, synthesis, scene_results,
         avatar_video_id, audit, blackboard, created_at, completed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        ON CONFLICT (id) DO UPDATE SET
            lead_id = EXCLUDED.lead_id,
            raw_text = EXCLUDED.raw_text,
            duration_tag = EXCLUDED.duration_tag,
            status = EXCLUDED.status,
            synthesis = EXCLUDED.synthesis,
            scene_results = EXCLUDED.scene_results,
            avatar_video_id = EXCLUDED.avatar_video_id,
            audit = EXCLUDED.audit,
            blackboard = EXCLUDED.blackboard,
            completed_at = EXCLUDED.completed_at;
    `

	synthesis, err := marshalNullable(batch.Synthesis)
	if err != nil {
		return fmt.Errorf("failed to encode synthesis for batch %s: %w", batch.ID, err)
	}
	audit, err := marshalNullable(batch.Audit)
	if err != nil {
		return fmt.Errorf("failed to encode audit report for batch %s: %w", batch.ID, err)
	}
	sceneResults, err := json.Marshal(batch.SceneResults)
	if err != nil {
		return fmt.Errorf("failed to encode scene results for batch %s: %w", batch.ID, err)
	}
	blackboard, err := json.Marshal(batch.Blackboard)
	if err != nil {
		return fmt.Errorf("failed to encode blackboard for batch %s: %w", batch.ID, err)
	}

	var completedAt *time.Time
	if !batch.CompletedAt.IsZero() {
		completedAt = &batch.CompletedAt
	}

	_, err = r.db.Exec(ctx, query,
		batch.ID,
		batch.LeadID,
		batch.RawText,
		batch.DurationTag,
		string(batch.Status),
		synthesis,
		sceneResults,
		batch.AvatarVideoID,
		audit,
		blackboard,
		batch.CreatedAt,
		completedAt,
	)
	if err != nil {
		r.logger.Error("Failed to upsert batch", zap.String("batch_id", batch.ID), zap.Error(err))
		return fmt.Errorf("failed to upsert batch %s: %w", batch.ID, err)
	}

	r.logger.Debug("Batch upserted",
		zap.String("batch_id", batch.ID),
		zap.String("status", string(batch.Status)))
	return nil
}

// ListPending returns batches awaiting pilot review, newest first.
func (r *postgresBatchRepository) ListPending(ctx context.Context) ([]models.ProductionBatch, error) {
	query := `
        SELECT id, lead_id, raw_text, duration_tag, status, synthesis,
               scene_results, avatar_video_id, audit, blackboard,
               created_at, completed_at
        FROM production_batches
        WHERE status = $1
        ORDER BY created_at DESC;
    `

	var rows []batchRow
	if err := pgxscan.Select(ctx, r.db, &rows, query, string(models.BatchStatusPending)); err != nil {
		return nil, fmt.Errorf("failed to list pending batches: %w", err)
	}

	batches := make([]models.ProductionBatch, 0, len(rows))
	for _, row := range rows {
		batch, err := row.toModel()
		if err != nil {
			r.logger.Warn("Skipping undecodable batch row", zap.String("batch_id", row.ID), zap.Error(err))
			continue
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

// UpdateStatus transitions the batch, stamping completed_at on terminal moves.
func (r *postgresBatchRepository) UpdateStatus(ctx context.Context, batchID string, status models.BatchStatus) error {
	query := `
        UPDATE production_batches
        SET status = $1, completed_at = NOW()
        WHERE id = $2;
    `
	tag, err := r.db.Exec(ctx, query, string(status), batchID)
	if err != nil {
		return fmt.Errorf("failed to update status of batch %s: %w", batchID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	}

	r.logger.Info("Batch status updated",
		zap.String("batch_id", batchID),
		zap.String("status", string(status)))
	return nil
}

func (row batchRow) toModel() (models.ProductionBatch, error) {
	batch := models.ProductionBatch{
		ID:            row.ID,
		LeadID:        row.LeadID,
		RawText:       row.RawText,
		DurationTag:   row.DurationTag,
		Status:        models.BatchStatus(row.Status),
		AvatarVideoID: row.AvatarVideoID,
		CreatedAt:     row.CreatedAt,
	}
	if row.CompletedAt != nil {
		batch.CompletedAt = *row.CompletedAt
	}

	if len(row.Synthesis) > 0 {
		var synthesis models.SynthesisResult
		if err := json.Unmarshal(row.Synthesis, &synthesis); err != nil {
			return models.ProductionBatch{}, fmt.Errorf("failed to decode synthesis: %w", err)
		}
		batch.Synthesis = &synthesis
	}
	if len(row.SceneResults) > 0 {
		if err := json.Unmarshal(row.SceneResults, &batch.SceneResults); err != nil {
			return models.ProductionBatch{}, fmt.Errorf("failed to decode scene results: %w", err)
		}
	}
	if len(row.Audit) > 0 {
		var audit models.AuditReport
		if err := json.Unmarshal(row.Audit, &audit); err != nil {
			return models.ProductionBatch{}, fmt.Errorf("failed to decode audit report: %w", err)
		}
		batch.Audit = &audit
	}
	if len(row.Blackboard) > 0 {
		if err := json.Unmarshal(row.Blackboard, &batch.Blackboard); err != nil {
			return models.ProductionBatch{}, fmt.Errorf("failed to decode blackboard: %w", err)
		}
	}
	return batch, nil
}

// marshalNullable keeps NULL in the column when the value is absent.
func marshalNullable(v any) ([]byte, error) {
	switch typed := v.(type) {
	case *models.SynthesisResult:
		if typed == nil {
			return nil, nil
		}
	case *models.AuditReport:
		if typed == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
