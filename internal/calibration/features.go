package calibration

import "math"

// FeatureNames lists the columns produced by BuildFeatures, in order.
var FeatureNames = []string{
	"theta", "theta_sq", "theta_cu",
	"response_time", "log_response_time", "time_z",
	"q_success_mean", "q_success_std",
	"q_theta_mean", "q_theta_std",
	"q_time_mean", "q_time_std",
}

// BuildFeatures turns response rows into the design matrix and correctness
// labels used by the diagnostic models. The time z-score is relative to the
// question's own timing distribution and is zero when that has no spread.
func BuildFeatures(rows []ResponseRow) ([][]float64, []bool) {
	x := make([][]float64, len(rows))
	y := make([]bool, len(rows))
	for i, r := range rows {
		theta := r.CandidateTheta
		z := 0.0
		if r.QuestionTimeStd > 0 {
			z = (r.ResponseTime - r.QuestionTimeMean) / r.QuestionTimeStd
		}
		x[i] = []float64{
			theta, theta * theta, math.Pow(theta, 3),
			r.ResponseTime, r.LogResponseTime, z,
			r.QuestionSuccessMean, r.QuestionSuccessStd,
			r.QuestionThetaMean, r.QuestionThetaStd,
			r.QuestionTimeMean, r.QuestionTimeStd,
		}
		y[i] = r.IsCorrect
	}
	return x, y
}
