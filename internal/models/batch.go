package models

import "time"

// BatchStatus is the terminal state of a production batch.
type BatchStatus string

const (
	// BatchStatusPending means the batch is held for human pilot review.
	BatchStatusPending BatchStatus = "pending"
	// BatchStatusCompleted means the batch finished the pipeline and was not
	// routed to review.
	BatchStatusCompleted BatchStatus = "completed"
	// BatchStatusFailed means synthesis failed or an unexpected error escaped
	// the pipeline phases.
	BatchStatusFailed BatchStatus = "failed"
)

// AssetType identifies what kind of asset a scene targets.
type AssetType string

const (
	AssetTypeImage       AssetType = "image"
	AssetTypeVideo       AssetType = "video"
	AssetTypeAvatarVideo AssetType = "avatar_video"
)

// Scene is a single storyboard unit produced by synthesis. Immutable after
// creation.
type Scene struct {
	Number      int       `json:"number"`
	Script      string    `json:"script"`
	AssetType   AssetType `json:"asset_type"`
	ImagePrompt string    `json:"image_prompt"`
	VideoPrompt string    `json:"video_prompt"`
	AvatarID    string    `json:"avatar_id,omitempty"`
	VoiceID     string    `json:"voice_id,omitempty"`
	Background  string    `json:"background,omitempty"`
}

// SceneResult pairs a scene with the asset URLs produced for it. A scene whose
// generation failed still yields a result with empty URLs, so the result count
// always matches the storyboard length.
type SceneResult struct {
	Scene    Scene  `json:"scene"`
	ImageURL string `json:"image_url,omitempty"`
	VideoURL string `json:"video_url,omitempty"`
}

// HasAssets reports whether at least one asset was produced for the scene.
func (r SceneResult) HasAssets() bool {
	return r.ImageURL != "" || r.VideoURL != ""
}

// SynthesisResult is the structured storyboard returned by the synthesis
// collaborator.
type SynthesisResult struct {
	Storyboard      []Scene `json:"storyboard"`
	Pillar          string  `json:"pillar"`
	DetectedMindset string  `json:"detected_mindset"`
	TemplateUsed    string  `json:"template_used"`
	RefinedContent  string  `json:"refined_content"`
}

// AuditThresholds for the gating decision. A score above the approval
// threshold is auto-approved; a score strictly between the two thresholds is
// held for pilot review.
const (
	AuditApprovalThreshold = 0.75
	AuditReviewThreshold   = 0.9
)

// AuditReport is the immutable result of scoring one batch.
type AuditReport struct {
	Timestamp           time.Time `json:"timestamp"`
	TargetID            string    `json:"target_id"`
	Score               float64   `json:"score"`
	Findings            []string  `json:"findings"`
	IsApproved          bool      `json:"is_approved"`
	PilotReviewRequired bool      `json:"pilot_review_required"`
}

// BlackboardSnapshot is the read-only form of the coordination log persisted
// with the batch.
type BlackboardSnapshot struct {
	Inferences    []string          `json:"inferences"`
	Decisions     []string          `json:"decisions"`
	AgentMessages map[string]string `json:"agent_messages"`
}

// AvatarScene is the per-scene payload for the consolidated avatar-video call.
type AvatarScene struct {
	AvatarID   string `json:"avatar_id"`
	VoiceID    string `json:"voice_id"`
	Text       string `json:"text"`
	Background string `json:"background,omitempty"`
}

// ProductionBatch is the top-level unit of work. It is created at
// orchestration start, finalized exactly once and never mutated after being
// returned to the caller.
type ProductionBatch struct {
	ID            string             `json:"id"`
	LeadID        string             `json:"lead_id,omitempty"`
	RawText       string             `json:"raw_text"`
	DurationTag   string             `json:"duration_tag"`
	Status        BatchStatus        `json:"status"`
	Synthesis     *SynthesisResult   `json:"synthesis,omitempty"`
	SceneResults  []SceneResult      `json:"scene_results"`
	AvatarVideoID string             `json:"avatar_video_id,omitempty"`
	Audit         *AuditReport       `json:"audit,omitempty"`
	Blackboard    BlackboardSnapshot `json:"blackboard"`
	CreatedAt     time.Time          `json:"created_at"`
	CompletedAt   time.Time          `json:"completed_at"`
}
