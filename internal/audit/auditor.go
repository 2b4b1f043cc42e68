// Package audit implements the deterministic scoring rubric applied to every
// production batch before gating.
package audit

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"promo-server/internal/models"
)

// Penalty weights per rule category.
const (
	clichePenalty         = 0.15
	claimInflationPenalty = 0.10
	anchoringPenalty      = 0.10
	protectedTraitPenalty = 0.20
)

// bannedCliches are scored per occurrence, unbounded multiplicity.
var bannedCliches = []string{
	"game changer",
	"think outside the box",
	"best kept secret",
	"once in a lifetime",
	"unlock your potential",
	"take it to the next level",
	"secret sauce",
}

// inflationTerms are superlative/absolute claims scored per occurrence.
var inflationTerms = []string{
	"guaranteed",
	"100%",
	"overnight",
	"instantly",
	"risk-free",
	"foolproof",
	"never fails",
	"always works",
	"the best",
	"#1",
}

// anchorKeywords ground the content in a demographic mindset; missing all of
// them costs a single penalty.
var anchorKeywords = []string{"stability", "risk", "efficiency"}

// protectedTraits combined with targeting phrases ("for their X", "based on
// X") are the most heavily penalized category.
var protectedTraits = []string{
	"age",
	"race",
	"gender",
	"religion",
	"ethnicity",
	"disability",
	"nationality",
	"marital status",
}

// Auditor produces one AuditReport per batch. Pure evaluation, no external
// calls, no retries.
type Auditor struct {
	logger *zap.Logger
}

// NewAuditor creates the scoring engine.
func NewAuditor(logger *zap.Logger) *Auditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{logger: logger.Named("Auditor")}
}

// Evaluate scores the batch content. The score starts at 1.0, each violation
// subtracts its category penalty, and the final value is clamped to [0,1].
func (a *Auditor) Evaluate(targetID string, synthesis *models.SynthesisResult, results []models.SceneResult, avatarVideoID string) models.AuditReport {
	content := serializeContent(synthesis, results, avatarVideoID)
	lower := strings.ToLower(content)

	score := 1.0
	var findings []string

	for _, phrase := range bannedCliches {
		if n := strings.Count(lower, phrase); n > 0 {
			score -= clichePenalty * float64(n)
			findings = append(findings, fmt.Sprintf("cliche detected (%dx): %q", n, phrase))
		}
	}

	for _, term := range inflationTerms {
		if n := strings.Count(lower, strings.ToLower(term)); n > 0 {
			score -= claimInflationPenalty * float64(n)
			findings = append(findings, fmt.Sprintf("claim inflation (%dx): %q", n, term))
		}
	}

	anchored := false
	for _, kw := range anchorKeywords {
		if strings.Contains(lower, kw) {
			anchored = true
			break
		}
	}
	if !anchored {
		score -= anchoringPenalty
		findings = append(findings, fmt.Sprintf(
			"no demographic anchoring: none of %s present", strings.Join(anchorKeywords, "/")))
	}

	for _, trait := range protectedTraits {
		for _, pattern := range []string{"for their " + trait, "based on " + trait} {
			if n := strings.Count(lower, pattern); n > 0 {
				score -= protectedTraitPenalty * float64(n)
				findings = append(findings, fmt.Sprintf("protected-trait targeting (%dx): %q", n, pattern))
			}
		}
	}

	// Informational, never penalizing.
	findings = append(findings, "source grounding: content derived from provided lead context only (informational)")

	score = clamp(score)
	report := models.AuditReport{
		Timestamp:           time.Now().UTC(),
		TargetID:            targetID,
		Score:               score,
		Findings:            findings,
		IsApproved:          IsApproved(score),
		PilotReviewRequired: PilotReviewRequired(score),
	}

	a.logger.Info("Batch audited",
		zap.String("target_id", targetID),
		zap.Float64("score", score),
		zap.Bool("approved", report.IsApproved),
		zap.Bool("pilot_review", report.PilotReviewRequired),
		zap.Int("findings", len(findings)))

	return report
}

// IsApproved reports whether the score clears the approval threshold.
func IsApproved(score float64) bool {
	return score > models.AuditApprovalThreshold
}

// PilotReviewRequired reports whether the score falls in the human-review
// band. Scores at or below the approval threshold are outside the band; see
// the implementer note in DESIGN.md for that gap.
func PilotReviewRequired(score float64) bool {
	return score > models.AuditApprovalThreshold && score < models.AuditReviewThreshold
}

func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// serializeContent flattens the batch into a single searchable text.
func serializeContent(synthesis *models.SynthesisResult, results []models.SceneResult, avatarVideoID string) string {
	var sb strings.Builder
	if synthesis != nil {
		sb.WriteString(synthesis.Pillar)
		sb.WriteString("\n")
		sb.WriteString(synthesis.DetectedMindset)
		sb.WriteString("\n")
		sb.WriteString(synthesis.TemplateUsed)
		sb.WriteString("\n")
		sb.WriteString(synthesis.RefinedContent)
		sb.WriteString("\n")
		for _, scene := range synthesis.Storyboard {
			sb.WriteString(scene.Script)
			sb.WriteString("\n")
			sb.WriteString(scene.ImagePrompt)
			sb.WriteString("\n")
			sb.WriteString(scene.VideoPrompt)
			sb.WriteString("\n")
		}
	}
	for _, res := range results {
		sb.WriteString(res.ImageURL)
		sb.WriteString("\n")
		sb.WriteString(res.VideoURL)
		sb.WriteString("\n")
	}
	sb.WriteString(avatarVideoID)
	return sb.String()
}
