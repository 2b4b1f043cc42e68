package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"promo-server/internal/audit"
	"promo-server/internal/graph"
	"promo-server/internal/mocks"
	"promo-server/internal/models"
	"promo-server/internal/perf"
	"promo-server/internal/service"
)

// stubAuditor returns a fixed score with flags derived the same way the real
// auditor derives them.
type stubAuditor struct {
	score float64
	panic bool
}

func (a stubAuditor) Evaluate(targetID string, _ *models.SynthesisResult, _ []models.SceneResult, _ string) models.AuditReport {
	if a.panic {
		panic("auditor exploded")
	}
	return models.AuditReport{
		Timestamp:           time.Now().UTC(),
		TargetID:            targetID,
		Score:               a.score,
		Findings:            []string{"informational finding"},
		IsApproved:          audit.IsApproved(a.score),
		PilotReviewRequired: audit.PilotReviewRequired(a.score),
	}
}

type graphStub struct {
	mergeCalls int
	batchID    string
	inferences []string
}

func (g *graphStub) MergeBatchRelationships(_ context.Context, batchID string, inferences, _ []string) error {
	g.mergeCalls++
	g.batchID = batchID
	g.inferences = inferences
	return nil
}

func (g *graphStub) QueryRecurringPatterns(context.Context, int) ([]string, error) {
	return nil, nil
}

func (g *graphStub) Close(context.Context) error { return nil }

type pipelineFixture struct {
	synthesis *mocks.MockSynthesisClient
	images    *mocks.MockImageClient
	videos    *mocks.MockVideoClient
	avatars   *mocks.MockAvatarVideoClient
	notifier  *mocks.MockNotifier
	batches   *mocks.MockBatchRepository
	graph     *graphStub
	perf      *perf.Registry
}

func newFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	return &pipelineFixture{
		synthesis: mocks.NewMockSynthesisClient(t),
		images:    mocks.NewMockImageClient(t),
		videos:    mocks.NewMockVideoClient(t),
		avatars:   mocks.NewMockAvatarVideoClient(t),
		notifier:  mocks.NewMockNotifier(t),
		batches:   mocks.NewMockBatchRepository(t),
		graph:     &graphStub{},
		perf:      perf.NewRegistry(10),
	}
}

func (f *pipelineFixture) orchestrator(auditor Auditor) *Orchestrator {
	return New(f.synthesis, f.images, f.videos, f.avatars, auditor, f.notifier,
		graph.NewPersisterWithStore(f.graph, zap.NewNop()), f.batches, f.perf, zap.NewNop())
}

func threeSceneStoryboard() *models.SynthesisResult {
	return &models.SynthesisResult{
		Storyboard: []models.Scene{
			{Number: 1, Script: "Opening hook", AssetType: models.AssetTypeImage, ImagePrompt: "sunrise over city"},
			{Number: 2, Script: "Proof point", AssetType: models.AssetTypeImage, ImagePrompt: "happy customer"},
			{Number: 3, Script: "Call to action", AssetType: models.AssetTypeImage, ImagePrompt: "product close-up"},
		},
		Pillar:          "trust",
		DetectedMindset: "pragmatic",
		TemplateUsed:    "testimonial-v2",
		RefinedContent:  "A grounded message about long-term stability.",
	}
}

func TestProduceBatchCompletesOnHighScore(t *testing.T) {
	f := newFixture(t)
	f.synthesis.On("Synthesize", mock.Anything, "raw text", "15s", mock.Anything).
		Return(threeSceneStoryboard(), service.UsageInfo{TotalTokens: 120}, nil)
	f.images.On("GenerateImage", mock.Anything, mock.Anything).Return("http://assets/img.png", nil)
	f.notifier.On("Dispatch", mock.Anything, mock.Anything).Return(true)
	f.batches.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	batch := f.orchestrator(stubAuditor{score: 0.95}).ProduceBatch(context.Background(), Request{
		RawText:     "raw text",
		DurationTag: "15s",
	})

	require.NotNil(t, batch)
	assert.Equal(t, models.BatchStatusCompleted, batch.Status)
	assert.NotEmpty(t, batch.ID)
	assert.Len(t, batch.SceneResults, 3)
	for _, r := range batch.SceneResults {
		assert.True(t, r.HasAssets())
	}
	assert.False(t, batch.CompletedAt.IsZero())
	assert.Equal(t, 1, f.graph.mergeCalls)
	assert.Equal(t, batch.ID, f.graph.batchID)
	f.batches.AssertNumberOfCalls(t, "Upsert", 1)

	// Template performance is recorded for analytics.
	assert.Equal(t, 1, f.perf.Len())
}

func TestProduceBatchPendingInReviewBand(t *testing.T) {
	f := newFixture(t)
	f.synthesis.On("Synthesize", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(threeSceneStoryboard(), service.UsageInfo{}, nil)
	f.images.On("GenerateImage", mock.Anything, mock.Anything).Return("http://assets/img.png", nil)
	f.notifier.On("Dispatch", mock.Anything, mock.Anything).Return(true)
	f.batches.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	batch := f.orchestrator(stubAuditor{score: 0.80}).ProduceBatch(context.Background(), Request{
		RawText:     "raw",
		DurationTag: "15s",
	})

	assert.Equal(t, models.BatchStatusPending, batch.Status)
	require.NotNil(t, batch.Audit)
	assert.True(t, batch.Audit.PilotReviewRequired)
}

func TestProduceBatchLowScoreStillCompletes(t *testing.T) {
	// A score at or below the approval threshold is unapproved but not held
	// for review; the batch finalizes as completed.
	f := newFixture(t)
	f.synthesis.On("Synthesize", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(threeSceneStoryboard(), service.UsageInfo{}, nil)
	f.images.On("GenerateImage", mock.Anything, mock.Anything).Return("http://assets/img.png", nil)
	f.notifier.On("Dispatch", mock.Anything, mock.Anything).Return(true)
	f.batches.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	batch := f.orchestrator(stubAuditor{score: 0.50}).ProduceBatch(context.Background(), Request{
		RawText:     "raw",
		DurationTag: "15s",
	})

	assert.Equal(t, models.BatchStatusCompleted, batch.Status)
	require.NotNil(t, batch.Audit)
	assert.False(t, batch.Audit.IsApproved)
	assert.False(t, batch.Audit.PilotReviewRequired)
}

func TestProduceBatchSynthesisFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.synthesis.On("Synthesize", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, service.UsageInfo{}, errors.New("model unavailable"))
	f.batches.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	batch := f.orchestrator(stubAuditor{score: 1}).ProduceBatch(context.Background(), Request{
		RawText:     "raw",
		DurationTag: "15s",
	})

	assert.Equal(t, models.BatchStatusFailed, batch.Status)
	assert.Empty(t, batch.SceneResults)
	assert.Nil(t, batch.Audit)
	f.notifier.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
	f.images.AssertNotCalled(t, "GenerateImage", mock.Anything, mock.Anything)
	f.batches.AssertNumberOfCalls(t, "Upsert", 1)
}

func TestProduceBatchEmptyStoryboardIsFatal(t *testing.T) {
	f := newFixture(t)
	f.synthesis.On("Synthesize", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&models.SynthesisResult{}, service.UsageInfo{}, nil)
	f.batches.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	batch := f.orchestrator(stubAuditor{score: 1}).ProduceBatch(context.Background(), Request{
		RawText:     "raw",
		DurationTag: "15s",
	})

	assert.Equal(t, models.BatchStatusFailed, batch.Status)
	assert.Contains(t, batch.Blackboard.Inferences, "Synthesis failed: storyboard is empty")
}

func TestProduceBatchSettlesAllScenesOnPartialFailure(t *testing.T) {
	f := newFixture(t)
	f.synthesis.On("Synthesize", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(threeSceneStoryboard(), service.UsageInfo{}, nil)
	f.images.On("GenerateImage", mock.Anything, "sunrise over city").Return("http://assets/1.png", nil)
	f.images.On("GenerateImage", mock.Anything, "happy customer").Return("", errors.New("provider 503"))
	f.images.On("GenerateImage", mock.Anything, "product close-up").Return("http://assets/3.png", nil)
	f.notifier.On("Dispatch", mock.Anything, mock.Anything).Return(true)
	f.batches.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	batch := f.orchestrator(stubAuditor{score: 0.95}).ProduceBatch(context.Background(), Request{
		RawText:     "raw",
		DurationTag: "15s",
	})

	require.Len(t, batch.SceneResults, 3)
	assert.True(t, batch.SceneResults[0].HasAssets())
	assert.False(t, batch.SceneResults[1].HasAssets())
	assert.True(t, batch.SceneResults[2].HasAssets())

	failures := 0
	for _, inf := range batch.Blackboard.Inferences {
		if strings.HasPrefix(inf, "Asset failure in Scene 2:") {
			failures++
		}
	}
	assert.Equal(t, 1, failures)
	assert.Equal(t, models.BatchStatusCompleted, batch.Status)
}

func TestProduceBatchAvatarSagaFallsBack(t *testing.T) {
	storyboard := threeSceneStoryboard()
	storyboard.Storyboard[2] = models.Scene{
		Number:    3,
		Script:    "Personal closing message",
		AssetType: models.AssetTypeAvatarVideo,
		AvatarID:  "avatar-7",
		VoiceID:   "voice-2",
	}

	f := newFixture(t)
	f.synthesis.On("Synthesize", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(storyboard, service.UsageInfo{}, nil)
	f.images.On("GenerateImage", mock.Anything, mock.Anything).Return("http://assets/img.png", nil)
	f.avatars.On("GenerateAvatarVideo", mock.Anything, mock.Anything).
		Return("", errors.New("render farm down"))
	f.notifier.On("Dispatch", mock.Anything, mock.Anything).Return(true)
	f.batches.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	batch := f.orchestrator(stubAuditor{score: 0.95}).ProduceBatch(context.Background(), Request{
		RawText:     "raw",
		DurationTag: "15s",
	})

	// The saga step degrades the batch but never aborts it.
	assert.Empty(t, batch.AvatarVideoID)
	assert.Equal(t, models.BatchStatusCompleted, batch.Status)

	foundNote := false
	for _, inf := range batch.Blackboard.Inferences {
		if strings.HasPrefix(inf, "Falling back to static assets") {
			foundNote = true
		}
	}
	assert.True(t, foundNote, "compensation note must be on the blackboard")
	f.batches.AssertNumberOfCalls(t, "Upsert", 1)
}

func TestProduceBatchAvatarSagaSuccess(t *testing.T) {
	storyboard := threeSceneStoryboard()
	storyboard.Storyboard[0] = models.Scene{
		Number:    1,
		Script:    "Welcome",
		AssetType: models.AssetTypeAvatarVideo,
		AvatarID:  "avatar-1",
		VoiceID:   "voice-1",
	}

	f := newFixture(t)
	f.synthesis.On("Synthesize", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(storyboard, service.UsageInfo{}, nil)
	f.images.On("GenerateImage", mock.Anything, mock.Anything).Return("http://assets/img.png", nil)
	f.avatars.On("GenerateAvatarVideo", mock.Anything, mock.MatchedBy(func(scenes []models.AvatarScene) bool {
		return len(scenes) == 1 && scenes[0].AvatarID == "avatar-1" && scenes[0].Text == "Welcome"
	})).Return("vid-123", nil)
	f.notifier.On("Dispatch", mock.Anything, mock.Anything).Return(true)
	f.batches.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	batch := f.orchestrator(stubAuditor{score: 0.95}).ProduceBatch(context.Background(), Request{
		RawText:     "raw",
		DurationTag: "15s",
	})

	assert.Equal(t, "vid-123", batch.AvatarVideoID)
}

func TestProduceBatchNotifyFailureIsNonFatal(t *testing.T) {
	f := newFixture(t)
	f.synthesis.On("Synthesize", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(threeSceneStoryboard(), service.UsageInfo{}, nil)
	f.images.On("GenerateImage", mock.Anything, mock.Anything).Return("http://assets/img.png", nil)
	f.notifier.On("Dispatch", mock.Anything, mock.Anything).Return(false)
	f.batches.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	batch := f.orchestrator(stubAuditor{score: 0.95}).ProduceBatch(context.Background(), Request{
		RawText:     "raw",
		DurationTag: "15s",
	})

	assert.Equal(t, models.BatchStatusCompleted, batch.Status)
}

func TestProduceBatchRecoversFromPanic(t *testing.T) {
	f := newFixture(t)
	f.synthesis.On("Synthesize", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(threeSceneStoryboard(), service.UsageInfo{}, nil)
	f.images.On("GenerateImage", mock.Anything, mock.Anything).Return("http://assets/img.png", nil)
	f.batches.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	var batch *models.ProductionBatch
	assert.NotPanics(t, func() {
		batch = f.orchestrator(stubAuditor{panic: true}).ProduceBatch(context.Background(), Request{
			RawText:     "raw",
			DurationTag: "15s",
		})
	})

	require.NotNil(t, batch)
	assert.Equal(t, models.BatchStatusFailed, batch.Status)
	assert.Empty(t, batch.SceneResults)
	assert.Nil(t, batch.Audit)

	fatal := false
	for _, inf := range batch.Blackboard.Inferences {
		if strings.HasPrefix(inf, "Fatal pipeline error:") {
			fatal = true
		}
	}
	assert.True(t, fatal)
	f.batches.AssertNumberOfCalls(t, "Upsert", 1)
}

func TestProduceBatchStorePanicStaysInsideBoundary(t *testing.T) {
	// A store driver that panics instead of erroring must not raise past
	// ProduceBatch, even though the recovery path persists a second time.
	f := newFixture(t)
	f.synthesis.On("Synthesize", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(threeSceneStoryboard(), service.UsageInfo{}, nil)
	f.images.On("GenerateImage", mock.Anything, mock.Anything).Return("http://assets/img.png", nil)
	f.notifier.On("Dispatch", mock.Anything, mock.Anything).Return(true)
	f.batches.On("Upsert", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { panic("driver exploded") }).
		Return(nil)

	var batch *models.ProductionBatch
	assert.NotPanics(t, func() {
		batch = f.orchestrator(stubAuditor{score: 0.95}).ProduceBatch(context.Background(), Request{
			RawText:     "raw",
			DurationTag: "15s",
		})
	})

	require.NotNil(t, batch)
	assert.Equal(t, models.BatchStatusCompleted, batch.Status)
}

func TestProduceBatchKeepsCallerAssignedID(t *testing.T) {
	// Task ids arrive from the queue as arbitrary strings; they flow through
	// to the store unchanged, so the store must accept non-UUID ids.
	f := newFixture(t)
	f.synthesis.On("Synthesize", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(threeSceneStoryboard(), service.UsageInfo{}, nil)
	f.images.On("GenerateImage", mock.Anything, mock.Anything).Return("http://assets/img.png", nil)
	f.notifier.On("Dispatch", mock.Anything, mock.Anything).Return(true)

	var stored *models.ProductionBatch
	f.batches.On("Upsert", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			stored = args.Get(1).(*models.ProductionBatch)
		}).
		Return(nil)

	batch := f.orchestrator(stubAuditor{score: 0.95}).ProduceBatch(context.Background(), Request{
		BatchID:     "legacy-task-0042",
		RawText:     "raw",
		DurationTag: "15s",
	})

	assert.Equal(t, "legacy-task-0042", batch.ID)
	require.NotNil(t, stored)
	assert.Equal(t, "legacy-task-0042", stored.ID)
}

func TestProduceBatchVideoSurvivesImageFailure(t *testing.T) {
	// The per-scene image and video calls are independent: an image failure
	// does not cost the scene a video its provider could still produce.
	storyboard := threeSceneStoryboard()
	storyboard.Storyboard[1] = models.Scene{
		Number:      2,
		Script:      "Motion proof point",
		AssetType:   models.AssetTypeVideo,
		ImagePrompt: "broken still",
		VideoPrompt: "smooth dolly shot",
	}

	f := newFixture(t)
	f.synthesis.On("Synthesize", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(storyboard, service.UsageInfo{}, nil)
	f.images.On("GenerateImage", mock.Anything, "broken still").Return("", errors.New("render error"))
	f.images.On("GenerateImage", mock.Anything, mock.Anything).Return("http://assets/img.png", nil)
	f.videos.On("SimulateVideo", mock.Anything, "smooth dolly shot").Return("http://assets/clip.mp4", nil)
	f.notifier.On("Dispatch", mock.Anything, mock.Anything).Return(true)
	f.batches.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	batch := f.orchestrator(stubAuditor{score: 0.95}).ProduceBatch(context.Background(), Request{
		RawText:     "raw",
		DurationTag: "15s",
	})

	require.Len(t, batch.SceneResults, 3)
	assert.Empty(t, batch.SceneResults[1].ImageURL)
	assert.Equal(t, "http://assets/clip.mp4", batch.SceneResults[1].VideoURL)

	failures := 0
	for _, inf := range batch.Blackboard.Inferences {
		if strings.HasPrefix(inf, "Asset failure in Scene 2:") {
			failures++
		}
	}
	assert.Equal(t, 1, failures)
}

func TestProduceBatchStoreFailureStillReturnsBatch(t *testing.T) {
	f := newFixture(t)
	f.synthesis.On("Synthesize", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(threeSceneStoryboard(), service.UsageInfo{}, nil)
	f.images.On("GenerateImage", mock.Anything, mock.Anything).Return("http://assets/img.png", nil)
	f.notifier.On("Dispatch", mock.Anything, mock.Anything).Return(true)
	f.batches.On("Upsert", mock.Anything, mock.Anything).Return(errors.New("db down"))

	batch := f.orchestrator(stubAuditor{score: 0.95}).ProduceBatch(context.Background(), Request{
		RawText:     "raw",
		DurationTag: "15s",
	})

	require.NotNil(t, batch)
	assert.Equal(t, models.BatchStatusCompleted, batch.Status)
}
