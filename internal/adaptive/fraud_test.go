package adaptive

import (
	"math/rand"
	"testing"
	"time"

	"github.com/proctor-cat/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func allCorrect(n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = true
	}
	return out
}

func TestDetectFraud_IdenticalTimings(t *testing.T) {
	e := newTestEngine()
	meta := models.SessionMetadata{SessionID: "s1", QuestionsAnswered: 25}

	res := e.DetectFraud(meta, repeat(45.0, 25), allCorrect(25), nil)
	require.True(t, res.Ok())

	a := res.Value
	assert.True(t, a.HasFlag(models.FlagTimingConsistency))
	assert.True(t, a.HasFlag(models.FlagStatisticalOutlier))
	assert.True(t, a.HasFlag(models.FlagSystematicPattern))
	assert.InDelta(t, 0.8, a.FraudScore, 1e-9)
	assert.Equal(t, models.RiskHigh, a.RiskLevel)
	assert.Equal(t, 45.0, a.Analysis.AvgResponseTime)
	assert.Zero(t, a.Analysis.ResponseTimeStd)
	assert.True(t, a.Analysis.PatternDetected)
}

func TestDetectFraud_HonestSessionIsLowRisk(t *testing.T) {
	e := newTestEngine()
	times := []float64{34, 51, 22, 47, 63, 29, 40, 55, 38, 44, 27, 58}
	correct := []bool{true, false, true, true, false, true, false, false, true, true, false, true}
	difficulties := []models.Difficulty{
		"easy", "hard", "easy", "medium", "hard", "easy",
		"medium", "hard", "easy", "medium", "hard", "medium",
	}
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(9 * time.Minute)
	meta := models.SessionMetadata{SessionID: "s2", StartedAt: &start, CompletedAt: &end, QuestionsAnswered: 12, UserAgent: "Mozilla/5.0"}

	res := e.DetectFraud(meta, times, correct, difficulties)
	require.True(t, res.Ok())
	assert.Empty(t, res.Value.Flags)
	assert.Zero(t, res.Value.FraudScore)
	assert.Equal(t, models.RiskLow, res.Value.RiskLevel)
}

func TestDetectFraud_RapidClicking(t *testing.T) {
	e := newTestEngine()
	times := []float64{0.3, 0.2, 0.4, 0.1, 12, 15, 9}
	correct := []bool{true, false, true, false, true, true, false}

	res := e.DetectFraud(models.SessionMetadata{SessionID: "s3"}, times, correct, nil)
	a := res.Value
	assert.True(t, a.HasFlag(models.FlagFastResponses))
	assert.True(t, a.HasFlag(models.FlagRapidClicking))
	assert.InDelta(t, 4.0/7.0, a.Analysis.FastResponseRatio, 1e-9)
	assert.GreaterOrEqual(t, a.FraudScore, 0.7)
}

func TestDetectFraud_AlternatingPattern(t *testing.T) {
	e := newTestEngine()
	correct := []bool{true, false, true, false, true, false}

	res := e.DetectFraud(models.SessionMetadata{SessionID: "s4"}, nil, correct, nil)
	assert.True(t, res.Value.HasFlag(models.FlagSystematicPattern))
	assert.InDelta(t, 0.3, res.Value.FraudScore, 1e-9)
	assert.Equal(t, models.RiskLow, res.Value.RiskLevel)
}

func TestDetectFraud_DifficultyInconsistency(t *testing.T) {
	e := newTestEngine()
	// Wrong on every easy item and right on every hard one.
	correct := []bool{false, true, false, true, false, true}
	difficulties := []models.Difficulty{"easy", "hard", "easy", "hard", "easy", "hard"}

	res := e.DetectFraud(models.SessionMetadata{SessionID: "s5"}, nil, correct, difficulties)
	assert.True(t, res.Value.HasFlag(models.FlagDifficultyInconsistent))

	// Mismatched lengths are neutral.
	res = e.DetectFraud(models.SessionMetadata{SessionID: "s5"}, nil, correct, difficulties[:4])
	assert.False(t, res.Value.HasFlag(models.FlagDifficultyInconsistent))
}

func TestDetectFraud_SessionBehaviour(t *testing.T) {
	e := newTestEngine()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(40 * time.Second)
	meta := models.SessionMetadata{
		SessionID:         "s6",
		StartedAt:         &start,
		CompletedAt:       &end,
		QuestionsAnswered: 10,
		UserAgent:         "Googlebot/2.1",
	}

	res := e.DetectFraud(meta, nil, nil, nil)
	assert.True(t, res.Value.HasFlag(models.FlagRapidCompletion))
	assert.True(t, res.Value.HasFlag(models.FlagSuspiciousUserAgent))
	assert.InDelta(t, 0.2, res.Value.FraudScore, 1e-9)
}

func TestDetectFraud_EmptyInput(t *testing.T) {
	e := newTestEngine()
	res := e.DetectFraud(models.SessionMetadata{SessionID: "empty"}, nil, nil, nil)
	require.True(t, res.Ok())
	assert.Zero(t, res.Value.FraudScore)
	assert.Equal(t, models.RiskLow, res.Value.RiskLevel)
	assert.NotNil(t, res.Value.Flags)
}

func TestDetectFraud_ScoreBoundsAndRiskConsistency(t *testing.T) {
	e := newTestEngine()
	rng := rand.New(rand.NewSource(42))
	levels := []models.Difficulty{"easy", "medium", "hard"}

	for i := 0; i < 500; i++ {
		n := rng.Intn(40)
		times := make([]float64, n)
		correct := make([]bool, n)
		difficulties := make([]models.Difficulty, n)
		for j := 0; j < n; j++ {
			times[j] = rng.ExpFloat64() * 20
			correct[j] = rng.Intn(2) == 0
			difficulties[j] = levels[rng.Intn(3)]
		}
		meta := models.SessionMetadata{SessionID: "fuzz", QuestionsAnswered: n}
		if rng.Intn(4) == 0 {
			meta.UserAgent = "crawler"
		}

		a := e.DetectFraud(meta, times, correct, difficulties).Value
		require.GreaterOrEqual(t, a.FraudScore, 0.0)
		require.LessOrEqual(t, a.FraudScore, 1.0)
		require.Equal(t, models.ClassifyRisk(a.FraudScore), a.RiskLevel)
	}
}

func TestClassifyRisk(t *testing.T) {
	tests := []struct {
		score float64
		want  models.RiskLevel
	}{
		{0, models.RiskLow},
		{0.4, models.RiskLow},
		{0.41, models.RiskMedium},
		{0.7, models.RiskMedium},
		{0.71, models.RiskHigh},
		{1, models.RiskHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, models.ClassifyRisk(tt.score), "score %v", tt.score)
	}
}
