package calibration

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

var ErrNotConverged = errors.New("optimizer did not converge")

// Objective is a scalar function to minimise.
type Objective func(x []float64) float64

type OptimizeResult struct {
	X          []float64
	F          float64
	Iterations int
}

// Optimizer minimises an objective inside the box [lower, upper]. It returns
// an error when the search fails or does not converge within maxIter.
type Optimizer interface {
	Minimize(f Objective, x0, lower, upper []float64, maxIter int) (OptimizeResult, error)
}

// BoxLBFGS runs gonum's L-BFGS on an unconstrained reparameterisation
// x = lower + (upper-lower)*sigmoid(u), so every iterate stays inside the box.
// Gradients are central finite differences.
type BoxLBFGS struct{}

const (
	boxEdge       = 1e-6
	stationaryTol = 1e-4
)

func (BoxLBFGS) Minimize(f Objective, x0, lower, upper []float64, maxIter int) (OptimizeResult, error) {
	n := len(x0)
	if len(lower) != n || len(upper) != n {
		return OptimizeResult{}, fmt.Errorf("bounds have %d/%d entries for %d parameters", len(lower), len(upper), n)
	}

	toBox := func(u []float64) []float64 {
		x := make([]float64, n)
		for i := range u {
			x[i] = lower[i] + (upper[i]-lower[i])*logistic(u[i])
		}
		return x
	}

	u0 := make([]float64, n)
	for i := range x0 {
		t := (x0[i] - lower[i]) / (upper[i] - lower[i])
		t = clamp(t, boxEdge, 1-boxEdge)
		u0[i] = math.Log(t / (1 - t))
	}

	fn := func(u []float64) float64 { return f(toBox(u)) }
	problem := optimize.Problem{
		Func: fn,
		Grad: func(grad, u []float64) {
			fd.Gradient(grad, fn, u, &fd.Settings{Formula: fd.Central})
		},
	}
	settings := &optimize.Settings{
		MajorIterations:   maxIter,
		GradientThreshold: 1e-6,
		Converger:         &optimize.FunctionConverge{Absolute: 1e-9, Iterations: 20},
	}

	result, err := optimize.Minimize(problem, u0, settings, &optimize.LBFGS{})
	if result == nil {
		if err == nil {
			err = ErrNotConverged
		}
		return OptimizeResult{}, err
	}
	out := OptimizeResult{X: toBox(result.X), F: result.F, Iterations: result.Stats.MajorIterations}
	if err == nil && converged(result.Status) {
		return out, nil
	}
	// Finite-difference noise can stall the line search at the optimum.
	// Accept the point when it is stationary anyway.
	grad := make([]float64, n)
	problem.Grad(grad, result.X)
	if finite(result.F) && floats.Norm(grad, 2) <= stationaryTol*(1+math.Abs(result.F)) {
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("%s: %w", result.Status, err)
	}
	return out, fmt.Errorf("%s: %w", result.Status, ErrNotConverged)
}

func converged(s optimize.Status) bool {
	switch s {
	case optimize.Success, optimize.FunctionThreshold, optimize.FunctionConvergence,
		optimize.GradientThreshold, optimize.StepConvergence, optimize.MethodConverge:
		return true
	}
	return false
}

func logistic(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	ez := math.Exp(z)
	return ez / (1 + ez)
}
