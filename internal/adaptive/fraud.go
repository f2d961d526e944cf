package adaptive

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/proctor-cat/backend/internal/models"
	"github.com/proctor-cat/backend/internal/outcome"
	"gonum.org/v1/gonum/stat"
)

const (
	weightFastResponses   = 0.3
	weightRapidClicking   = 0.4
	weightConsistency     = 0.2
	weightPattern         = 0.3
	weightDifficulty      = 0.2
	weightOutlier         = 0.3
	weightSessionBehavior = 0.1

	// outlierFlagScore is the outlier-analysis score above which a session is
	// flagged; perfectly uniform timings score perfectConsistencyScore.
	outlierFlagScore        = 0.7
	perfectConsistencyScore = 0.8
	neutralScore            = 0.5
)

var botUserAgentMarkers = []string{"bot", "crawler"}

// DetectFraud combines independent timing, response-pattern,
// difficulty-consistency, outlier and session-behaviour heuristics into one
// additive score capped at 1.0. Arrays shorter than a heuristic's minimum are
// treated as neutral rather than rejected.
func (e *Engine) DetectFraud(session models.SessionMetadata, times []float64, correct []bool, difficulties []models.Difficulty) (res outcome.Result[models.FraudAssessment]) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("fraud analysis panicked", "session_id", session.SessionID, "panic", fmt.Sprint(r))
			res = outcome.Degraded(models.FraudAssessment{
				SessionID: session.SessionID,
				RiskLevel: models.RiskUnknown,
				Flags:     []string{models.FlagAnalysisError},
				ScannedAt: time.Now().UTC(),
			}, outcome.ReasonAnalysisError)
		}
	}()

	fc := e.cfg.Fraud
	score := 0.0
	flags := []string{}
	raise := func(flag string, weight float64) {
		flags = append(flags, flag)
		score += weight
	}

	times = finiteOnly(times)
	analysis := models.FraudAnalysis{}
	if len(times) > 0 {
		mean, std := meanPopStd(times)
		analysis.AvgResponseTime = mean
		analysis.ResponseTimeStd = std
		analysis.FastResponseRatio = float64(countBelow(times, fc.FastResponseSeconds)) / float64(len(times))
	}

	// Timing.
	if len(times) >= fc.MinTimingResponses {
		if analysis.FastResponseRatio > fc.FastResponseRatio {
			raise(models.FlagFastResponses, weightFastResponses)
		}
		if countBelow(times, fc.RapidClickSeconds) > fc.RapidClickCount {
			raise(models.FlagRapidClicking, weightRapidClicking)
		}
		if len(times) > fc.MinTimingResponses && analysis.ResponseTimeStd < fc.ConsistencyStdSeconds {
			raise(models.FlagTimingConsistency, weightConsistency)
		}
	}

	// Response pattern.
	if len(correct) >= fc.MinPatternResponses {
		alternating, runRatio := responsePattern(correct)
		if alternating > fc.AlternatingRatio || runRatio > fc.RunRatio {
			analysis.PatternDetected = true
			raise(models.FlagSystematicPattern, weightPattern)
		}
	}

	// Difficulty consistency.
	if e.difficultyConsistency(correct, difficulties) < fc.ConsistencyFloor {
		raise(models.FlagDifficultyInconsistent, weightDifficulty)
	}

	// Statistical outliers.
	if e.outlierScore(times) > outlierFlagScore {
		raise(models.FlagStatisticalOutlier, weightOutlier)
	}

	// Session behaviour.
	if d := session.Duration(); d > 0 && session.QuestionsAnswered > 0 {
		if d.Seconds()/float64(session.QuestionsAnswered) < fc.RapidSessionSeconds {
			raise(models.FlagRapidCompletion, weightSessionBehavior)
		}
	}
	ua := strings.ToLower(session.UserAgent)
	for _, marker := range botUserAgentMarkers {
		if strings.Contains(ua, marker) {
			raise(models.FlagSuspiciousUserAgent, weightSessionBehavior)
			break
		}
	}

	score = math.Min(1.0, score)
	assessment := models.FraudAssessment{
		SessionID:  session.SessionID,
		FraudScore: score,
		RiskLevel:  models.ClassifyRisk(score),
		Flags:      flags,
		Analysis:   analysis,
		ScannedAt:  time.Now().UTC(),
	}
	if len(flags) > 0 {
		e.log.Info("fraud flags raised", "session_id", session.SessionID, "score", score, "flags", flags)
	}
	return outcome.Ok(assessment)
}

// responsePattern returns the fraction of adjacent answers that differ and
// the longest run of identical answers relative to the total.
func responsePattern(correct []bool) (alternating, runRatio float64) {
	changes := 0
	longest, run := 1, 1
	for i := 1; i < len(correct); i++ {
		if correct[i] != correct[i-1] {
			changes++
			run = 1
			continue
		}
		run++
		if run > longest {
			longest = run
		}
	}
	alternating = float64(changes) / float64(len(correct)-1)
	runRatio = float64(longest) / float64(len(correct))
	return alternating, runRatio
}

// difficultyConsistency scores how well correctness tracks difficulty: full
// credit for correct-on-easy or incorrect-on-hard, half credit on medium.
// Mismatched or short inputs score neutral.
func (e *Engine) difficultyConsistency(correct []bool, difficulties []models.Difficulty) float64 {
	if len(correct) != len(difficulties) || len(correct) < e.cfg.Fraud.MinDifficultyItems {
		return neutralScore
	}
	total := 0.0
	for i, c := range correct {
		switch difficulties[i] {
		case models.DifficultyEasy:
			if c {
				total += 1.0
			}
		case models.DifficultyHard:
			if !c {
				total += 1.0
			}
		default:
			total += 0.5
		}
	}
	return total / float64(len(correct))
}

// outlierScore is the fraction of response times more than OutlierZ standard
// deviations from the session mean. Perfectly uniform timings are themselves
// suspicious and score perfectConsistencyScore.
func (e *Engine) outlierScore(times []float64) float64 {
	if len(times) < e.cfg.Fraud.MinOutlierResponses {
		return 0
	}
	mean, std := meanPopStd(times)
	if std == 0 {
		return perfectConsistencyScore
	}
	outliers := 0
	for _, t := range times {
		if math.Abs((t-mean)/std) > e.cfg.Fraud.OutlierZ {
			outliers++
		}
	}
	ratio := float64(outliers) / float64(len(times))
	if ratio > e.cfg.Fraud.OutlierRatio {
		return ratio
	}
	return 0
}

func meanPopStd(x []float64) (mean, std float64) {
	mean, variance := stat.PopMeanVariance(x, nil)
	return mean, math.Sqrt(variance)
}

func countBelow(x []float64, limit float64) int {
	n := 0
	for _, v := range x {
		if v < limit {
			n++
		}
	}
	return n
}

func finiteOnly(x []float64) []float64 {
	out := make([]float64, 0, len(x))
	for _, v := range x {
		if finite(v) {
			out = append(out, v)
		}
	}
	return out
}
