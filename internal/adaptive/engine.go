// Package adaptive is the computerized adaptive testing engine: ability
// estimation, maximum-information item selection with content balancing,
// termination rules and behavioural fraud scoring.
//
// The engine holds only fixed configuration. All per-session state is owned by
// the caller and passed in on every call, so one Engine may be shared by any
// number of goroutines.
package adaptive

import (
	"time"

	"github.com/proctor-cat/backend/internal/logger"
)

type Config struct {
	MinQuestions int
	MaxQuestions int
	// TargetSE stops the test once the ability estimate is this precise.
	TargetSE float64
	// CoverageSE is the looser precision accepted once every topic quota is met.
	CoverageSE float64
	TimeLimit  time.Duration
	// ErrorFallbackQuestions is the length past which a failed termination
	// check stops the test instead of continuing.
	ErrorFallbackQuestions int

	// NewtonDamping scales each Newton-Raphson step on theta.
	NewtonDamping float64
	MaxNewtonStep float64
	// BayesianNudge is the step used when the second derivative is unusable.
	BayesianNudge float64

	// QuotaBoost multiplies the information of items whose topic quota is
	// still open.
	QuotaBoost float64

	Fraud FraudConfig
}

type FraudConfig struct {
	FastResponseSeconds   float64
	FastResponseRatio     float64
	RapidClickSeconds     float64
	RapidClickCount       int
	ConsistencyStdSeconds float64
	MinTimingResponses    int
	MinPatternResponses   int
	AlternatingRatio      float64
	RunRatio              float64
	MinDifficultyItems    int
	ConsistencyFloor      float64
	MinOutlierResponses   int
	OutlierZ              float64
	OutlierRatio          float64
	RapidSessionSeconds   float64
}

func DefaultConfig() Config {
	return Config{
		MinQuestions:           10,
		MaxQuestions:           50,
		TargetSE:               0.3,
		CoverageSE:             0.5,
		TimeLimit:              2 * time.Hour,
		ErrorFallbackQuestions: 20,
		NewtonDamping:          0.5,
		MaxNewtonStep:          2.0,
		BayesianNudge:          0.3,
		QuotaBoost:             1.5,
		Fraud: FraudConfig{
			FastResponseSeconds:   2.0,
			FastResponseRatio:     0.2,
			RapidClickSeconds:     0.5,
			RapidClickCount:       3,
			ConsistencyStdSeconds: 1.0,
			MinTimingResponses:    5,
			MinPatternResponses:   4,
			AlternatingRatio:      0.8,
			RunRatio:              0.6,
			MinDifficultyItems:    5,
			ConsistencyFloor:      0.3,
			MinOutlierResponses:   10,
			OutlierZ:              2.5,
			OutlierRatio:          0.7,
			RapidSessionSeconds:   5.0,
		},
	}
}

type Engine struct {
	cfg Config
	log *logger.Logger
}

func New(cfg Config, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{cfg: cfg, log: log.Component("adaptive")}
}

func (e *Engine) Config() Config {
	return e.cfg
}
