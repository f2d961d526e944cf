package calibration

import (
	"context"
	"math/rand"
	"testing"

	"github.com/proctor-cat/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalibrateAll_NoSessions(t *testing.T) {
	summary := newTestEngine().CalibrateAll(context.Background(), nil)

	assert.Equal(t, models.RunError, summary.Status)
	assert.NotEmpty(t, summary.Message)
	assert.NotNil(t, summary.CalibratedItems)
	assert.Empty(t, summary.CalibratedItems)
	assert.NotEmpty(t, summary.RunID)
}

func TestCalibrateAll_SessionsWithoutAbility(t *testing.T) {
	sessions := []models.SessionLog{{
		SessionID: "s1",
		Answers:   map[string]models.SessionAnswer{"q1": {Correct: true}},
	}}
	summary := newTestEngine().CalibrateAll(context.Background(), sessions)

	assert.Equal(t, models.RunError, summary.Status)
	assert.Empty(t, summary.CalibratedItems)
}

func TestCalibrateAll_CalibratesEveryItem(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	bank := map[string]models.IRTParams{
		"q1": {Discrimination: 1.0, Difficulty: -1.0, Guessing: 0.2},
		"q2": {Discrimination: 1.5, Difficulty: 0.0, Guessing: 0.1},
		"q3": {Discrimination: 0.8, Difficulty: 1.0, Guessing: 0.2},
	}
	sessions := simulateSessions(rng, bank, 300)
	// One rarely served item stays below the minimum sample.
	for i := 0; i < 5; i++ {
		sessions[i].Answers["q4"] = models.SessionAnswer{Correct: true, ThetaAtAnswer: ptr(0)}
	}

	summary := newTestEngine().CalibrateAll(context.Background(), sessions)

	require.Equal(t, models.RunCompleted, summary.Status, summary.Message)
	assert.Equal(t, 4, summary.TotalQuestions)
	require.Len(t, summary.CalibratedItems, 4)
	assert.Equal(t, models.MethodDefault, summary.CalibratedItems["q4"].CalibrationMethod)

	converged := 0
	for id, r := range summary.CalibratedItems {
		assert.Equal(t, id, r.ItemID)
		assertInBounds(t, r.Params)
		if r.Convergence {
			converged++
			assert.Equal(t, models.MethodMLE3PL, r.CalibrationMethod)
		}
	}
	assert.Equal(t, converged, summary.SuccessfulCalibrations)
	assert.InDelta(t, float64(converged)/4, summary.SuccessRate, 1e-12)
	assert.InDelta(t, (3*300+5)/4.0, summary.AvgSampleSize, 1e-9)
	assert.Equal(t, models.MLTrained, summary.ML.Status)
	assert.False(t, summary.FinishedAt.Before(summary.StartedAt))
}

func TestCalibrateAll_CancelledAppliesNothing(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	sessions := simulateSessions(rng, map[string]models.IRTParams{
		"q1": {Discrimination: 1, Difficulty: 0, Guessing: 0.1},
	}, 40)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary := newTestEngine().CalibrateAll(ctx, sessions)

	assert.Equal(t, models.RunError, summary.Status)
	assert.Empty(t, summary.CalibratedItems)
	assert.Zero(t, summary.TotalQuestions)
}
