package calibration

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/proctor-cat/backend/internal/irt"
	"github.com/proctor-cat/backend/internal/models"
)

func newTestEngine(opts ...Option) *Engine {
	return New(DefaultConfig(), nil, opts...)
}

func ptr(v float64) *float64 { return &v }

// simulateRows draws n candidates uniformly over [-3, 3] and their responses
// to one item with the given parameters.
func simulateRows(rng *rand.Rand, itemID string, p models.IRTParams, n int) []ResponseRow {
	rows := make([]ResponseRow, n)
	for i := range rows {
		theta := -3 + 6*rng.Float64()
		rows[i] = ResponseRow{ResponseRecord: models.ResponseRecord{
			SessionID:      fmt.Sprintf("s%d", i),
			QuestionID:     itemID,
			CandidateTheta: theta,
			IsCorrect:      rng.Float64() < irt.ICC(theta, p),
			ResponseTime:   30,
		}}
	}
	return rows
}

// simulateSessions builds session documents where every candidate answers
// every item in bank, with per-answer theta equal to the true ability.
func simulateSessions(rng *rand.Rand, bank map[string]models.IRTParams, candidates int) []models.SessionLog {
	ids := make([]string, 0, len(bank))
	for id := range bank {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	sessions := make([]models.SessionLog, candidates)
	for i := range sessions {
		theta := rng.NormFloat64()
		s := models.SessionLog{
			SessionID:     fmt.Sprintf("session-%d", i),
			AdaptiveScore: ptr(theta),
			Answers:       map[string]models.SessionAnswer{},
			TimingData:    map[string]models.SessionTiming{},
		}
		for _, id := range ids {
			p := bank[id]
			correct := rng.Float64() < irt.ICC(theta, p)
			s.Answers[id] = models.SessionAnswer{Correct: correct, ThetaAtAnswer: ptr(theta)}
			rt := 20 + 40*rng.Float64()
			if !correct {
				rt += 15
			}
			s.TimingData[id] = models.SessionTiming{TimeTaken: ptr(rt)}
		}
		sessions[i] = s
	}
	return sessions
}

type failingOptimizer struct{}

func (failingOptimizer) Minimize(Objective, []float64, []float64, []float64, int) (OptimizeResult, error) {
	return OptimizeResult{}, errors.New("abnormal termination in line search")
}

type panickingOptimizer struct{}

func (panickingOptimizer) Minimize(Objective, []float64, []float64, []float64, int) (OptimizeResult, error) {
	panic("optimizer exploded")
}
