package calibration

import (
	"math/rand"
	"testing"

	"github.com/proctor-cat/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simulatedFeatures(seed int64, candidates int) ([][]float64, []bool) {
	rng := rand.New(rand.NewSource(seed))
	bank := map[string]models.IRTParams{
		"q1": {Discrimination: 1.8, Difficulty: -0.5, Guessing: 0.1},
		"q2": {Discrimination: 1.5, Difficulty: 0.5, Guessing: 0.1},
	}
	e := newTestEngine()
	table := e.LoadHistoricalData(simulateSessions(rng, bank, candidates))
	return BuildFeatures(table.Rows)
}

func TestTrainMLModels_PredictiveData(t *testing.T) {
	x, y := simulatedFeatures(11, 200)
	require.Len(t, x, 400)

	diag := newTestEngine().TrainMLModels(x, y)

	require.Equal(t, models.MLTrained, diag.Status, diag.Error)
	assert.Greater(t, diag.RandomForestAUC, 0.6)
	assert.Greater(t, diag.GradientBoostingAUC, 0.6)
	assert.LessOrEqual(t, diag.RandomForestAUC, 1.0)
	assert.LessOrEqual(t, diag.GradientBoostingAUC, 1.0)
}

func TestTrainMLModels_Deterministic(t *testing.T) {
	x, y := simulatedFeatures(5, 80)
	e := newTestEngine()

	first := e.TrainMLModels(x, y)
	second := e.TrainMLModels(x, y)

	assert.Equal(t, first, second)
}

func TestTrainMLModels_NoData(t *testing.T) {
	diag := newTestEngine().TrainMLModels(nil, nil)
	assert.Equal(t, models.MLNoData, diag.Status)
}

func TestTrainMLModels_Errors(t *testing.T) {
	tests := []struct {
		name string
		x    [][]float64
		y    []bool
	}{
		{"length mismatch", [][]float64{{1}, {2}}, []bool{true}},
		{"single class", [][]float64{{1}, {2}, {3}}, []bool{true, true, true}},
		{"minority too small", [][]float64{{1}, {2}, {3}}, []bool{true, true, false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diag := newTestEngine().TrainMLModels(tt.x, tt.y)
			assert.Equal(t, models.MLError, diag.Status)
			assert.NotEmpty(t, diag.Error)
		})
	}
}

func TestStratifiedFolds_KeepsBalance(t *testing.T) {
	labels := make([]bool, 100)
	for i := 0; i < 30; i++ {
		labels[i] = true
	}

	folds, err := stratifiedFolds(labels, 5, 1)
	require.NoError(t, err)
	require.Len(t, folds, 5)

	seen := map[int]bool{}
	for _, fold := range folds {
		assert.Len(t, fold, 20)
		pos := 0
		for _, i := range fold {
			assert.False(t, seen[i], "index %d in two folds", i)
			seen[i] = true
			if labels[i] {
				pos++
			}
		}
		assert.Equal(t, 6, pos)
	}
	assert.Len(t, seen, 100)
}

func TestRocAUC(t *testing.T) {
	tests := []struct {
		name    string
		scores  []float64
		classes []bool
		want    float64
	}{
		{"perfect", []float64{0.1, 0.2, 0.8, 0.9}, []bool{false, false, true, true}, 1},
		{"inverted", []float64{0.1, 0.2, 0.8, 0.9}, []bool{true, true, false, false}, 0},
		{"all tied", []float64{0.5, 0.5, 0.5, 0.5}, []bool{true, false, true, false}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, rocAUC(tt.scores, tt.classes), 1e-9)
		})
	}
}

func TestGradientBoosting_SeparatesClasses(t *testing.T) {
	x := make([][]float64, 40)
	y := make([]bool, 40)
	for i := range x {
		x[i] = []float64{float64(i)}
		y[i] = i >= 20
	}
	g := newGradientBoosting(DefaultConfig().Boosting, 1)
	require.NoError(t, g.Fit(x, y))

	assert.Less(t, g.Score([]float64{2}), 0.5)
	assert.Greater(t, g.Score([]float64{37}), 0.5)
}

func TestRandomForest_SeparatesClasses(t *testing.T) {
	x := make([][]float64, 40)
	y := make([]bool, 40)
	for i := range x {
		x[i] = []float64{float64(i)}
		y[i] = i >= 20
	}
	f := newRandomForest(DefaultConfig().Forest, 1)
	require.NoError(t, f.Fit(x, y))

	assert.Less(t, f.Score([]float64{2}), 0.5)
	assert.Greater(t, f.Score([]float64{37}), 0.5)
}
