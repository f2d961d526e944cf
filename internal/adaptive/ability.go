package adaptive

import (
	"fmt"
	"math"

	"github.com/proctor-cat/backend/internal/irt"
	"github.com/proctor-cat/backend/internal/models"
	"github.com/proctor-cat/backend/internal/outcome"
)

const (
	minInformation  = 0.01
	minCurvature    = 0.001
	fallbackSEDecay = 0.9
	fallbackInfo    = 0.5
)

// UpdateAbility folds one scored response into the ability estimate using a
// damped Newton-Raphson step on the log-likelihood. The returned standard
// error never exceeds the incoming one. Any numeric failure returns the
// conservative fallback (theta unchanged, SE shrunk by 10%, +0.5 information)
// tagged as degraded.
func (e *Engine) UpdateAbility(est models.AbilityEstimate, item models.IRTParams, correct bool) (res outcome.Result[models.AbilityEstimate]) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("ability update panicked, using fallback", "panic", fmt.Sprint(r))
			res = outcome.Degraded(e.fallbackEstimate(est), outcome.ReasonRecoveredPanic)
		}
	}()

	next, err := e.newtonUpdate(est, item, correct)
	if err != nil {
		e.log.Warn("ability update degenerate, using fallback",
			"theta", est.Theta, "se", est.StandardError, "error", err)
		return outcome.Degraded(e.fallbackEstimate(est), outcome.ReasonNumericDegeneracy)
	}
	return outcome.Ok(next)
}

func (e *Engine) newtonUpdate(est models.AbilityEstimate, item models.IRTParams, correct bool) (models.AbilityEstimate, error) {
	if !finite(est.Theta) || !finite(est.StandardError) || !finite(est.InformationSum) {
		return est, fmt.Errorf("non-finite estimate: %w", irt.ErrNumeric)
	}
	if !finite(item.Discrimination) || !finite(item.Difficulty) || !finite(item.Guessing) {
		return est, fmt.Errorf("non-finite item parameters: %w", irt.ErrNumeric)
	}

	theta := est.Theta
	a := item.Discrimination

	info, err := irt.FisherInformation(theta, item)
	if err != nil {
		return est, fmt.Errorf("fisher information: %w", err)
	}
	infoSum := est.InformationSum + info
	se := math.Min(1.0/math.Sqrt(math.Max(minInformation, infoSum)), est.StandardError)

	p, err := irt.Probability(theta, item)
	if err != nil {
		return est, fmt.Errorf("probability: %w", err)
	}

	var first float64
	expected := 0.0
	if correct {
		first = a * (1 - p) / p
		expected = 1.0
	} else {
		first = -a * p / (1 - p)
	}
	second := -a * a * p * (1 - p)

	if math.Abs(second) > minCurvature {
		step := clamp(-first/second, -e.cfg.MaxNewtonStep, e.cfg.MaxNewtonStep)
		theta += e.cfg.NewtonDamping * step
	} else {
		theta += e.cfg.BayesianNudge * (expected - p)
	}

	if !finite(theta) || !finite(se) {
		return est, fmt.Errorf("non-finite update: %w", irt.ErrNumeric)
	}

	return models.AbilityEstimate{
		Theta:          clamp(theta, models.MinTheta, models.MaxTheta),
		StandardError:  se,
		InformationSum: infoSum,
	}, nil
}

func (e *Engine) fallbackEstimate(est models.AbilityEstimate) models.AbilityEstimate {
	out := models.AbilityEstimate{
		Theta:          est.Theta,
		StandardError:  est.StandardError * fallbackSEDecay,
		InformationSum: est.InformationSum + fallbackInfo,
	}
	if !finite(out.Theta) {
		out.Theta = 0
	}
	switch {
	case !finite(est.StandardError):
		out.StandardError = fallbackSEDecay
	case est.StandardError <= 0:
		out.StandardError = est.StandardError
	}
	if !finite(out.InformationSum) {
		out.InformationSum = fallbackInfo
	}
	out.Theta = clamp(out.Theta, models.MinTheta, models.MaxTheta)
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
