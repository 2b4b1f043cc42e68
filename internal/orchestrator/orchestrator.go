// Package orchestrator drives the batch production pipeline: synthesis,
// concurrent per-scene asset production, the consolidated avatar-video step,
// audit, notification, knowledge-graph persistence and durable storage.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"promo-server/internal/blackboard"
	"promo-server/internal/graph"
	"promo-server/internal/models"
	"promo-server/internal/perf"
	"promo-server/internal/repository"
	"promo-server/internal/service"
)

// Auditor scores one batch's content. Satisfied by audit.Auditor.
type Auditor interface {
	Evaluate(targetID string, synthesis *models.SynthesisResult, results []models.SceneResult, avatarVideoID string) models.AuditReport
}

// Request describes one production run. BatchID is assigned when empty.
type Request struct {
	BatchID     string
	LeadID      string
	RawText     string
	DurationTag string
}

// Orchestrator owns phase sequencing and the final gating decision. All
// collaborators are injected; none are optional except perf.
type Orchestrator struct {
	synthesis service.SynthesisClient
	images    service.ImageClient
	videos    service.VideoClient
	avatars   service.AvatarVideoClient
	auditor   Auditor
	notifier  service.Notifier
	graph     *graph.Persister
	batches   repository.BatchRepository
	perf      *perf.Registry
	logger    *zap.Logger
	now       func() time.Time
}

// New wires the pipeline. perfRegistry may be nil; performance history is
// analytics only and never feeds the gating decision.
func New(
	synthesis service.SynthesisClient,
	images service.ImageClient,
	videos service.VideoClient,
	avatars service.AvatarVideoClient,
	auditor Auditor,
	notifier service.Notifier,
	graphPersister *graph.Persister,
	batches repository.BatchRepository,
	perfRegistry *perf.Registry,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		synthesis: synthesis,
		images:    images,
		videos:    videos,
		avatars:   avatars,
		auditor:   auditor,
		notifier:  notifier,
		graph:     graphPersister,
		batches:   batches,
		perf:      perfRegistry,
		logger:    logger.Named("Orchestrator"),
		now:       time.Now,
	}
}

// ProduceBatch runs the full pipeline and always returns a finalized batch.
// It never returns an error and never panics past this boundary: unexpected
// failures become a batch with status failed and a fatal inference.
func (o *Orchestrator) ProduceBatch(ctx context.Context, req Request) (batch *models.ProductionBatch) {
	if req.BatchID == "" {
		req.BatchID = uuid.NewString()
	}

	bb := blackboard.New()
	batch = &models.ProductionBatch{
		ID:          req.BatchID,
		LeadID:      req.LeadID,
		RawText:     req.RawText,
		DurationTag: req.DurationTag,
		CreatedAt:   o.now(),
	}
	logger := o.logger.With(zap.String("batch_id", batch.ID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Pipeline panicked, finalizing batch as failed", zap.Any("panic", r))
			bb.AddInference(fmt.Sprintf("Fatal pipeline error: %v", r))
			batch.SceneResults = []models.SceneResult{}
			batch.Audit = nil
			o.finalize(ctx, logger, batch, bb, models.BatchStatusFailed)
		}
	}()

	// Phase 1: init.
	bb.AddInference(fmt.Sprintf("Production run started (duration tag %q)", req.DurationTag))
	logger.Info("Production run started", zap.String("duration_tag", req.DurationTag))

	// Phase 2: synthesis. An empty storyboard is fatal to the run.
	synthesis, usage, err := o.synthesis.Synthesize(ctx, req.RawText, req.DurationTag, service.SynthesisOptions{})
	if err != nil || synthesis == nil || len(synthesis.Storyboard) == 0 {
		if err != nil {
			bb.AddInference(fmt.Sprintf("Synthesis failed: %v", err))
		} else {
			bb.AddInference("Synthesis failed: storyboard is empty")
		}
		logger.Warn("Synthesis failed, batch finalized as failed", zap.Error(err))
		batch.SceneResults = []models.SceneResult{}
		o.finalize(ctx, logger, batch, bb, models.BatchStatusFailed)
		return batch
	}
	batch.Synthesis = synthesis
	bb.AddDecision(fmt.Sprintf("Storyboard synthesized: %d scenes, template %q, pillar %q",
		len(synthesis.Storyboard), synthesis.TemplateUsed, synthesis.Pillar))
	bb.SetAgentMessage("synthesis", fmt.Sprintf("detected mindset: %s", synthesis.DetectedMindset))
	logger.Info("Synthesis complete",
		zap.Int("scenes", len(synthesis.Storyboard)),
		zap.Int("total_tokens", usage.TotalTokens))

	// Phase 3: settle-all asset fan-out.
	batch.SceneResults = o.produceSceneAssets(ctx, logger, bb, synthesis.Storyboard)

	// Phase 4: consolidated avatar video. Never fails the batch.
	if videoID, ok := o.consolidateAvatarVideo(ctx, logger, bb, synthesis.Storyboard); ok {
		batch.AvatarVideoID = videoID
	}

	// Phase 5: audit.
	report := o.auditor.Evaluate(batch.ID, synthesis, batch.SceneResults, batch.AvatarVideoID)
	batch.Audit = &report
	bb.AddDecision(fmt.Sprintf("Audit complete: score %.2f, approved=%t, review=%t",
		report.Score, report.IsApproved, report.PilotReviewRequired))
	if o.perf != nil && synthesis.TemplateUsed != "" {
		o.perf.Record(perf.Entry{
			BatchID:    batch.ID,
			Template:   synthesis.TemplateUsed,
			Score:      report.Score,
			RecordedAt: o.now(),
		})
	}

	// Phase 6: notify, best-effort.
	status := models.BatchStatusCompleted
	if report.PilotReviewRequired {
		status = models.BatchStatusPending
	}
	payload := models.ReviewNotificationPayload{
		BatchID:             batch.ID,
		LeadID:              batch.LeadID,
		Status:              string(status),
		Score:               report.Score,
		IsApproved:          report.IsApproved,
		PilotReviewRequired: report.PilotReviewRequired,
		Findings:            report.Findings,
		InferenceCount:      len(bb.Inferences()),
		DecisionCount:       len(bb.Decisions()),
	}
	if !o.notifier.Dispatch(ctx, payload) {
		logger.Warn("Review notification failed, continuing")
	}

	// Phase 7: knowledge graph, never fails the run.
	o.graph.PersistBatch(ctx, batch.ID, bb)

	// Phase 8: finalize and store.
	o.finalize(ctx, logger, batch, bb, status)
	logger.Info("Production run finished",
		zap.String("status", string(batch.Status)),
		zap.Float64("score", report.Score))
	return batch
}

// produceSceneAssets fans out one task per scene and joins them all. Every
// scene yields exactly one SceneResult; a failed scene keeps its slot with
// empty URLs so result count always equals scene count.
func (o *Orchestrator) produceSceneAssets(ctx context.Context, logger *zap.Logger, bb *blackboard.Blackboard, storyboard []models.Scene) []models.SceneResult {
	results := make([]models.SceneResult, len(storyboard))

	var wg sync.WaitGroup
	for i, scene := range storyboard {
		wg.Add(1)
		go func(i int, scene models.Scene) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					bb.AddInference(fmt.Sprintf("Asset failure in Scene %d: %v", scene.Number, r))
					results[i] = models.SceneResult{Scene: scene}
				}
			}()
			results[i] = o.produceOneScene(ctx, bb, scene)
		}(i, scene)
	}
	wg.Wait()

	produced := 0
	for _, r := range results {
		if r.HasAssets() {
			produced++
		}
	}
	logger.Info("Scene asset fan-out settled",
		zap.Int("scenes", len(storyboard)),
		zap.Int("with_assets", produced))
	return results
}

// produceOneScene runs the image and video-simulation calls for one scene
// concurrently and independently: either call failing records its own
// asset-failure inference without suppressing the other call's result.
func (o *Orchestrator) produceOneScene(ctx context.Context, bb *blackboard.Blackboard, scene models.Scene) models.SceneResult {
	result := models.SceneResult{Scene: scene}

	var wg sync.WaitGroup
	if scene.ImagePrompt != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					bb.AddInference(fmt.Sprintf("Asset failure in Scene %d: %v", scene.Number, r))
				}
			}()
			url, err := o.images.GenerateImage(ctx, scene.ImagePrompt)
			if err != nil {
				bb.AddInference(fmt.Sprintf("Asset failure in Scene %d: %v", scene.Number, err))
				return
			}
			result.ImageURL = url
		}()
	}

	if scene.VideoPrompt != "" && scene.AssetType == models.AssetTypeVideo {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					bb.AddInference(fmt.Sprintf("Asset failure in Scene %d: %v", scene.Number, r))
				}
			}()
			url, err := o.videos.SimulateVideo(ctx, scene.VideoPrompt)
			if err != nil {
				bb.AddInference(fmt.Sprintf("Asset failure in Scene %d: %v", scene.Number, err))
				return
			}
			result.VideoURL = url
		}()
	}
	wg.Wait()

	return result
}

// consolidateAvatarVideo is the compensating step: one call covering every
// avatar-targeting scene. On failure the blackboard gets a compensation note
// and the run proceeds without a video id.
func (o *Orchestrator) consolidateAvatarVideo(ctx context.Context, logger *zap.Logger, bb *blackboard.Blackboard, storyboard []models.Scene) (string, bool) {
	var avatarScenes []models.AvatarScene
	for _, scene := range storyboard {
		if scene.AssetType != models.AssetTypeAvatarVideo || scene.AvatarID == "" || scene.VoiceID == "" {
			continue
		}
		avatarScenes = append(avatarScenes, models.AvatarScene{
			AvatarID:   scene.AvatarID,
			VoiceID:    scene.VoiceID,
			Text:       scene.Script,
			Background: scene.Background,
		})
	}
	if len(avatarScenes) == 0 {
		logger.Debug("No avatar-video scenes in storyboard, skipping consolidated call")
		return "", false
	}

	videoID, err := o.avatars.GenerateAvatarVideo(ctx, avatarScenes)
	if err != nil {
		bb.AddInference(fmt.Sprintf("Falling back to static assets: consolidated avatar video failed: %v", err))
		logger.Warn("Consolidated avatar video failed, falling back to static assets",
			zap.Int("avatar_scenes", len(avatarScenes)), zap.Error(err))
		return "", false
	}

	bb.AddDecision(fmt.Sprintf("Consolidated avatar video generated: %s", videoID))
	return videoID, true
}

// finalize stamps the terminal state and persists the batch. Store failures
// and panics are contained here; the finalized batch is still returned to
// the caller, and the top-level recover can call finalize again without the
// store re-panicking past the public boundary.
func (o *Orchestrator) finalize(ctx context.Context, logger *zap.Logger, batch *models.ProductionBatch, bb *blackboard.Blackboard, status models.BatchStatus) {
	batch.Status = status
	batch.Blackboard = bb.Snapshot()
	batch.CompletedAt = o.now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Batch store panicked while persisting finalized batch", zap.Any("panic", r))
		}
	}()
	if err := o.batches.Upsert(ctx, batch); err != nil {
		logger.Error("Failed to persist finalized batch", zap.Error(err))
	}
}
