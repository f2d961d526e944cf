package calibration

import (
	"testing"

	"github.com/proctor-cat/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result(a, b, c, r2 float64, n int, converged bool) models.CalibrationResult {
	return models.CalibrationResult{
		Params:      models.IRTParams{Discrimination: a, Difficulty: b, Guessing: c},
		PseudoR2:    r2,
		SampleSize:  n,
		Convergence: converged,
	}
}

func TestValidateItemQuality_Flags(t *testing.T) {
	tests := []struct {
		name string
		in   models.CalibrationResult
		want []string
	}{
		{"healthy", result(1.2, 0.5, 0.2, 0.3, 200, true), []string{}},
		{"low discrimination", result(0.4, 0, 0.1, 0.3, 200, true), []string{models.FlagLowDiscrimination}},
		{"high discrimination", result(3.5, 0, 0.1, 0.3, 200, true), []string{models.FlagHighDiscrimination}},
		{"extreme difficulty", result(1, -3.2, 0.1, 0.3, 200, true), []string{models.FlagExtremeDifficulty}},
		{"high guessing", result(1, 0, 0.33, 0.3, 200, true), []string{models.FlagHighGuessing}},
		{"poor fit and thin", result(1, 0, 0.1, 0.02, 5, false), []string{models.FlagPoorFit, models.FlagInsufficientData}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := ValidateItemQuality("q1", tt.in)
			assert.Equal(t, tt.want, report.QualityFlags)
			assert.Len(t, report.Recommendations, len(tt.want))
			for _, r := range report.Recommendations {
				assert.NotEmpty(t, r)
			}
		})
	}
}

func TestValidateItemQuality_Score(t *testing.T) {
	// 70*0.3 + 20*min(1, 25/50) + 10*(1 - 0/6)
	report := ValidateItemQuality("q1", result(1, 0, 0.1, 0.3, 25, true))
	assert.InDelta(t, 21+10+10, report.QualityScore, 1e-9)

	// Two flags: 70*0.02 + 20*(5/50) + 10*(1 - 2/6)
	report = ValidateItemQuality("q1", result(1, 0, 0.1, 0.02, 5, false))
	assert.InDelta(t, 1.4+2+10*(4.0/6), report.QualityScore, 1e-9)

	report = ValidateItemQuality("q1", result(0.2, 3.9, 0.34, -2, 0, false))
	assert.Equal(t, 0.0, report.QualityScore, "clamped at zero")
}

func TestDetectMisfittingItems(t *testing.T) {
	results := map[string]models.CalibrationResult{
		"good":     result(1.2, 0, 0.1, 0.4, 200, true),
		"medium":   result(1.2, 0, 0.1, 0.08, 200, true),
		"high-a":   result(1.2, 0, 0.1, 0.01, 200, true),
		"high-b":   result(0.3, 3.5, 0.1, 0.02, 8, true),
		"diverged": result(1.0, 0, 0.1, 0.5, 200, false),
	}

	got := DetectMisfittingItems(results, DefaultMisfitThreshold)

	require.Len(t, got, 4)
	ids := make([]string, len(got))
	for i, m := range got {
		ids[i] = m.ItemID
	}
	assert.Equal(t, []string{"high-b", "high-a", "medium", "diverged"}, ids)
	assert.Equal(t, models.PriorityHigh, got[0].Priority)
	assert.Equal(t, models.PriorityHigh, got[1].Priority)
	assert.Equal(t, models.PriorityMedium, got[2].Priority)
	assert.Equal(t, models.PriorityMedium, got[3].Priority)
	assert.False(t, got[3].Convergence)
	assert.Equal(t, "high-b", got[0].Quality.ItemID)
}

func TestDetectMisfittingItems_Empty(t *testing.T) {
	got := DetectMisfittingItems(nil, DefaultMisfitThreshold)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
