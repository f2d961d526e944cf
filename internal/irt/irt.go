// Package irt implements the three-parameter logistic (3PL) item response
// model shared by the adaptive and calibration engines.
package irt

import (
	"errors"
	"math"

	"github.com/proctor-cat/backend/internal/models"
)

// D rescales the logistic curve to approximate the normal ogive.
const D = 1.7

const (
	MinProbability = 0.001
	MaxProbability = 0.999

	// NeutralProbability is returned when the curve cannot be evaluated.
	NeutralProbability = 0.5
)

var ErrNumeric = errors.New("irt: non-finite result")

// Probability returns P(correct | theta) under the 3PL model, clamped to
// [0.001, 0.999]. Non-finite inputs yield ErrNumeric.
func Probability(theta float64, p models.IRTParams) (float64, error) {
	z := D * p.Discrimination * (theta - p.Difficulty)
	logistic := sigmoid(z)
	prob := p.Guessing + (1-p.Guessing)*logistic
	if !finite(prob) {
		return NeutralProbability, ErrNumeric
	}
	return clamp(prob, MinProbability, MaxProbability), nil
}

// ICC is Probability with the neutral 0.5 fallback applied.
func ICC(theta float64, p models.IRTParams) float64 {
	prob, _ := Probability(theta, p)
	return prob
}

// Derivative returns dP/dtheta.
func Derivative(theta float64, p models.IRTParams) float64 {
	z := D * p.Discrimination * (theta - p.Difficulty)
	s := sigmoid(z)
	// exp(z)/(1+exp(z))^2 == s*(1-s)
	return (1 - p.Guessing) * D * p.Discrimination * s * (1 - s)
}

// FisherInformation returns I(theta) = P'(theta)^2 / (P (1-P)). A degenerate
// P(1-P) or a non-finite intermediate yields ErrNumeric.
func FisherInformation(theta float64, p models.IRTParams) (float64, error) {
	prob, err := Probability(theta, p)
	if err != nil {
		return 0, err
	}
	denom := prob * (1 - prob)
	if denom <= 0 {
		return 0, ErrNumeric
	}
	dp := Derivative(theta, p)
	info := dp * dp / denom
	if !finite(info) {
		return 0, ErrNumeric
	}
	return info, nil
}

// Information is FisherInformation with the 0.0 fallback applied.
func Information(theta float64, p models.IRTParams) float64 {
	info, _ := FisherInformation(theta, p)
	return info
}

// sigmoid is evaluated in the form that cannot overflow for either sign of z.
func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// Logit is the inverse logistic function.
func Logit(p float64) float64 {
	return math.Log(p / (1 - p))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
