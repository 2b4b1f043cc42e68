package models

// ProductionTaskPayload is the message consumed from the production task
// queue. One payload drives exactly one pipeline run.
type ProductionTaskPayload struct {
	TaskID      string `json:"task_id"`
	LeadID      string `json:"lead_id,omitempty"`
	RawText     string `json:"raw_text"`
	DurationTag string `json:"duration_tag"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// ReviewNotificationPayload is published to the review queue after audit so a
// reviewing surface can pick the batch up. It carries no gating logic of its
// own; the flags are copied from the audit report.
type ReviewNotificationPayload struct {
	BatchID             string   `json:"batch_id"`
	LeadID              string   `json:"lead_id,omitempty"`
	Status              string   `json:"status"`
	Score               float64  `json:"score"`
	IsApproved          bool     `json:"is_approved"`
	PilotReviewRequired bool     `json:"pilot_review_required"`
	Findings            []string `json:"findings"`
	InferenceCount      int      `json:"inference_count"`
	DecisionCount       int      `json:"decision_count"`
}
