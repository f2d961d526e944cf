package calibration

import (
	"fmt"
	"math"
	"time"

	"github.com/proctor-cat/backend/internal/irt"
	"github.com/proctor-cat/backend/internal/models"
	"gonum.org/v1/gonum/stat"
)

const nParams = 3

var (
	lowerBounds = []float64{models.MinDiscrimination, models.MinDifficulty, models.MinGuessing}
	upperBounds = []float64{models.MaxDiscrimination, models.MaxDifficulty, models.MaxGuessing}

	defaultParams = models.IRTParams{
		Discrimination: models.DefaultDiscrimination,
		Difficulty:     models.DefaultDifficulty,
		Guessing:       0,
	}
)

// CalibrateItemMLE fits one item's 3PL parameters by maximising the
// likelihood of its responses. It always returns usable parameters: samples
// below MinResponses and unexpected failures get the neutral defaults
// (method DEFAULT), and an optimizer failure gets a closed-form estimate
// (method FALLBACK).
func (e *Engine) CalibrateItemMLE(itemID string, rows []ResponseRow) (res models.CalibrationResult) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("item calibration panicked, using defaults", "item_id", itemID, "panic", fmt.Sprint(r))
			res = defaultResult(itemID, len(rows))
		}
	}()

	n := len(rows)
	if n < e.cfg.MinResponses {
		e.log.Debug("insufficient responses for calibration", "item_id", itemID, "responses", n)
		return defaultResult(itemID, n)
	}

	thetas := make([]float64, n)
	ys := make([]float64, n)
	for i, r := range rows {
		thetas[i] = r.CandidateTheta
		ys[i] = boolFloat(r.IsCorrect)
	}
	meanTheta := stat.Mean(thetas, nil)
	successRate := stat.Mean(ys, nil)

	nll := func(x []float64) float64 {
		return negLogLikelihood(models.IRTParams{Discrimination: x[0], Difficulty: x[1], Guessing: x[2]}, thetas, ys)
	}

	x0 := []float64{
		e.cfg.InitialDiscrimination,
		clamp(meanTheta-irt.Logit(clamp(successRate, 0.01, 0.99)), models.MinDifficulty, models.MaxDifficulty),
		e.cfg.InitialGuessing,
	}

	opt, err := e.optimizer.Minimize(nll, x0, lowerBounds, upperBounds, e.cfg.MaxIterations)
	if err == nil && (len(opt.X) != nParams || !allFinite(opt.X)) {
		err = fmt.Errorf("optimizer returned %v: %w", opt.X, ErrNotConverged)
	}
	if err != nil {
		e.log.Warn("MLE did not converge, using closed-form estimate", "item_id", itemID, "responses", n, "error", err)
		return e.fallbackResult(itemID, thetas, ys)
	}

	params := models.IRTParams{Discrimination: opt.X[0], Difficulty: opt.X[1], Guessing: opt.X[2]}.Clamp()
	res = fitStatistics(itemID, params, thetas, ys)
	res.Convergence = true
	res.CalibrationMethod = models.MethodMLE3PL
	return res
}

// fallbackResult is the closed-form estimate used when optimisation fails.
func (e *Engine) fallbackResult(itemID string, thetas, ys []float64) models.CalibrationResult {
	meanTheta, stdTheta := stat.MeanStdDev(thetas, nil)
	successRate := stat.Mean(ys, nil)

	b := meanTheta
	if successRate > 0.01 && successRate < 0.99 {
		b = meanTheta - irt.Logit(successRate)
	}
	if !finite(stdTheta) {
		stdTheta = 0
	}
	a := clamp(1/math.Max(0.1, stdTheta), 0.5, 3.0)
	c := 0.0
	if successRate > 0.5 {
		c = clamp((successRate-0.5)*0.4, 0, 0.2)
	}

	params := models.IRTParams{Discrimination: a, Difficulty: b, Guessing: c}.Clamp()
	res := fitStatistics(itemID, params, thetas, ys)
	res.Convergence = false
	res.CalibrationMethod = models.MethodFallback
	return res
}

func defaultResult(itemID string, n int) models.CalibrationResult {
	return models.CalibrationResult{
		ItemID:            itemID,
		Params:            defaultParams,
		SampleSize:        n,
		Convergence:       false,
		CalibrationMethod: models.MethodDefault,
		CalibratedAt:      time.Now().UTC(),
	}
}

// fitStatistics fills the likelihood-based fit measures for the given
// parameters. Pseudo-R² is McFadden's, against an intercept-only Bernoulli
// model at the observed success rate.
func fitStatistics(itemID string, p models.IRTParams, thetas, ys []float64) models.CalibrationResult {
	n := float64(len(ys))
	ll := -negLogLikelihood(p, thetas, ys)

	sr := clamp(stat.Mean(ys, nil), irt.MinProbability, irt.MaxProbability)
	llNull := n * (sr*math.Log(sr) + (1-sr)*math.Log(1-sr))
	pseudoR2 := 0.0
	if llNull != 0 {
		pseudoR2 = 1 - ll/llNull
	}

	return models.CalibrationResult{
		ItemID:        itemID,
		Params:        p,
		SampleSize:    len(ys),
		LogLikelihood: ll,
		AIC:           2*nParams - 2*ll,
		BIC:           nParams*math.Log(n) - 2*ll,
		PseudoR2:      pseudoR2,
		CalibratedAt:  time.Now().UTC(),
	}
}

func negLogLikelihood(p models.IRTParams, thetas, ys []float64) float64 {
	total := 0.0
	for i, theta := range thetas {
		prob := irt.ICC(theta, p)
		total += ys[i]*math.Log(prob) + (1-ys[i])*math.Log(1-prob)
	}
	return -total
}

func allFinite(x []float64) bool {
	for _, v := range x {
		if !finite(v) {
			return false
		}
	}
	return true
}
