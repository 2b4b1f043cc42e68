package audit_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promo-server/internal/audit"
	"promo-server/internal/models"
)

func synthesisWith(content string) *models.SynthesisResult {
	return &models.SynthesisResult{
		RefinedContent: content,
		Storyboard: []models.Scene{
			{Number: 1, Script: "A calm walkthrough of the portfolio.", AssetType: models.AssetTypeImage},
		},
	}
}

func TestGatingThresholds(t *testing.T) {
	cases := []struct {
		score    float64
		approved bool
		review   bool
	}{
		{0.95, true, false},
		{0.90, true, false},
		{0.89, true, true},
		{0.80, true, true},
		{0.76, true, true},
		{0.75, false, false},
		{0.50, false, false},
		{0.0, false, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.approved, audit.IsApproved(tc.score), "approved for %v", tc.score)
		assert.Equal(t, tc.review, audit.PilotReviewRequired(tc.score), "review for %v", tc.score)
	}
}

func TestCleanContentScoresHigh(t *testing.T) {
	a := audit.NewAuditor(nil)
	report := a.Evaluate("batch-1",
		synthesisWith("A measured plan focused on stability and efficiency for long-term savers."),
		nil, "")

	assert.InDelta(t, 1.0, report.Score, 1e-9)
	assert.True(t, report.IsApproved)
	assert.False(t, report.PilotReviewRequired)
	// The informational grounding finding is always present.
	require.NotEmpty(t, report.Findings)
	assert.Contains(t, report.Findings[len(report.Findings)-1], "source grounding")
}

func TestClaimInflationScenario(t *testing.T) {
	a := audit.NewAuditor(nil)
	clean := a.Evaluate("batch-2",
		synthesisWith("Steady growth with managed risk."), nil, "")
	inflated := a.Evaluate("batch-2",
		synthesisWith("Steady growth with managed risk. 100% guaranteed overnight results."), nil, "")

	assert.GreaterOrEqual(t, clean.Score-inflated.Score, 0.20)

	found := false
	for _, f := range inflated.Findings {
		if strings.Contains(f, "claim inflation") {
			found = true
		}
	}
	assert.True(t, found, "expected a claim inflation finding, got %v", inflated.Findings)
}

func TestClicheCountsEveryOccurrence(t *testing.T) {
	a := audit.NewAuditor(nil)
	one := a.Evaluate("b", synthesisWith("This fund is a game changer for risk management."), nil, "")
	two := a.Evaluate("b", synthesisWith("A game changer today, a game changer tomorrow, for risk management."), nil, "")

	assert.InDelta(t, 0.15, one.Score-two.Score, 1e-9)
}

func TestMissingDemographicAnchorPenalizedOnce(t *testing.T) {
	a := audit.NewAuditor(nil)
	report := a.Evaluate("b", synthesisWith("A pleasant video about sunsets."), nil, "")

	assert.InDelta(t, 0.90, report.Score, 1e-9)
	found := false
	for _, f := range report.Findings {
		if strings.Contains(f, "anchoring") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestProtectedTraitTargeting(t *testing.T) {
	a := audit.NewAuditor(nil)
	report := a.Evaluate("b",
		synthesisWith("Picked for their age and targeted based on religion, with efficiency in mind."), nil, "")

	// Two distinct targeting patterns at 0.20 each.
	assert.InDelta(t, 0.60, report.Score, 1e-9)
}

func TestScoreClampedToZero(t *testing.T) {
	a := audit.NewAuditor(nil)
	content := strings.Repeat("game changer guaranteed 100% overnight instantly ", 5)
	report := a.Evaluate("b", synthesisWith(content), nil, "")

	assert.Equal(t, 0.0, report.Score)
	assert.False(t, report.IsApproved)
	assert.False(t, report.PilotReviewRequired)
}

func TestSceneResultsAndVideoIDAreSearched(t *testing.T) {
	a := audit.NewAuditor(nil)
	results := []models.SceneResult{
		{Scene: models.Scene{Number: 1}, ImageURL: "https://cdn.example/guaranteed-win.jpg"},
	}
	report := a.Evaluate("b", synthesisWith("Stability first."), results, "")

	assert.InDelta(t, 0.90, report.Score, 1e-9)
}
