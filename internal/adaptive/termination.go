package adaptive

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/proctor-cat/backend/internal/models"
	"github.com/proctor-cat/backend/internal/outcome"
)

var errInvalidTerminationInput = errors.New("invalid termination input")

// ShouldTerminate evaluates the stopping rules in order; the first match wins.
// If the rules cannot be evaluated the test stops once ErrorFallbackQuestions
// have been asked, so a bad input can never trap a candidate.
func (e *Engine) ShouldTerminate(se float64, asked int, elapsed time.Duration, targets, counts map[models.Topic]int) (res outcome.Result[models.TerminationDecision]) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("termination check panicked", "panic", fmt.Sprint(r), "asked", asked)
			res = outcome.Degraded(e.errorFallback(asked), outcome.ReasonRecoveredPanic)
		}
	}()

	decision, err := e.evaluateRules(se, asked, elapsed, targets, counts)
	if err != nil {
		e.log.Warn("termination rules not evaluable, using fallback", "asked", asked, "se", se, "error", err)
		return outcome.Degraded(e.errorFallback(asked), outcome.ReasonErrorFallback)
	}
	return outcome.Ok(decision)
}

func (e *Engine) evaluateRules(se float64, asked int, elapsed time.Duration, targets, counts map[models.Topic]int) (models.TerminationDecision, error) {
	if asked < 0 {
		return models.TerminationDecision{}, fmt.Errorf("asked=%d: %w", asked, errInvalidTerminationInput)
	}
	if asked < e.cfg.MinQuestions {
		return models.TerminationDecision{Stop: false, Reason: models.ReasonMinimumNotReached}, nil
	}
	if asked >= e.cfg.MaxQuestions {
		return models.TerminationDecision{Stop: true, Reason: models.ReasonMaximumReached}, nil
	}
	if math.IsNaN(se) || se < 0 {
		return models.TerminationDecision{}, fmt.Errorf("se=%v: %w", se, errInvalidTerminationInput)
	}
	if se <= e.cfg.TargetSE {
		return models.TerminationDecision{Stop: true, Reason: models.ReasonPrecisionAchieved}, nil
	}
	if quotasMet(targets, counts) && se <= e.cfg.CoverageSE {
		return models.TerminationDecision{Stop: true, Reason: models.ReasonContentCoverageComplete}, nil
	}
	if elapsed > e.cfg.TimeLimit {
		return models.TerminationDecision{Stop: true, Reason: models.ReasonTimeLimitExceeded}, nil
	}
	return models.TerminationDecision{Stop: false, Reason: models.ReasonContinueTesting}, nil
}

func (e *Engine) errorFallback(asked int) models.TerminationDecision {
	return models.TerminationDecision{
		Stop:   asked >= e.cfg.ErrorFallbackQuestions,
		Reason: models.ReasonErrorFallback,
	}
}
