// Package outcome distinguishes values that were computed normally from values
// an engine fell back to after a numeric or runtime failure.
package outcome

const (
	ReasonNumericDegeneracy = "numeric_degeneracy"
	ReasonRecoveredPanic    = "recovered_panic"
	ReasonNoCandidates      = "no_candidates"
	ReasonErrorFallback     = "error_fallback"
	ReasonAnalysisError     = "analysis_error"
)

// Result carries a value and whether it is a degraded fallback.
type Result[T any] struct {
	Value    T
	Degraded bool
	Reason   string
}

func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

func Degraded[T any](v T, reason string) Result[T] {
	return Result[T]{Value: v, Degraded: true, Reason: reason}
}

// Ok reports whether the value was computed without falling back.
func (r Result[T]) Ok() bool {
	return !r.Degraded
}
