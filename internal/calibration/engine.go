// Package calibration fits 3PL item parameters from historical response logs
// by maximum likelihood, runs tree-ensemble diagnostics over the same data and
// reviews the fitted items for quality problems.
//
// The Engine keeps no state between runs; results are returned to the caller,
// which decides whether to write them back into the item bank.
package calibration

import (
	"github.com/proctor-cat/backend/internal/logger"
)

const DefaultMisfitThreshold = 0.1

type Config struct {
	// MinResponses is the smallest per-item sample that is optimised; smaller
	// samples get default parameters.
	MinResponses  int
	MaxIterations int

	InitialDiscrimination float64
	InitialGuessing       float64

	// MissingResponseTime is used when a session carries no timing for an
	// answer.
	MissingResponseTime float64

	Folds    int
	Seed     int64
	Forest   ForestConfig
	Boosting BoostingConfig
}

type ForestConfig struct {
	Trees    int
	MaxDepth int
	MinLeaf  int
}

type BoostingConfig struct {
	Rounds       int
	MaxDepth     int
	MinLeaf      int
	LearningRate float64
}

func DefaultConfig() Config {
	return Config{
		MinResponses:          10,
		MaxIterations:         100,
		InitialDiscrimination: 1.0,
		InitialGuessing:       0.1,
		MissingResponseTime:   30.0,
		Folds:                 5,
		Seed:                  42,
		Forest:                ForestConfig{Trees: 50, MaxDepth: 8, MinLeaf: 5},
		Boosting:              BoostingConfig{Rounds: 50, MaxDepth: 3, MinLeaf: 5, LearningRate: 0.1},
	}
}

type Engine struct {
	cfg       Config
	log       *logger.Logger
	optimizer Optimizer
}

type Option func(*Engine)

// WithOptimizer replaces the bounded L-BFGS optimizer.
func WithOptimizer(o Optimizer) Option {
	return func(e *Engine) { e.optimizer = o }
}

func New(cfg Config, log *logger.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	e := &Engine{
		cfg:       cfg,
		log:       log.Component("calibration"),
		optimizer: BoxLBFGS{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}
