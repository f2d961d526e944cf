package models

import (
	"fmt"
	"time"
)

type RiskLevel string

const (
	RiskLow     RiskLevel = "low"
	RiskMedium  RiskLevel = "medium"
	RiskHigh    RiskLevel = "high"
	RiskUnknown RiskLevel = "unknown"
)

// Thresholds are exclusive: a score of exactly 0.7 is medium.
const (
	HighRiskThreshold   = 0.7
	MediumRiskThreshold = 0.4
)

// ClassifyRisk maps a fraud score onto a risk level.
func ClassifyRisk(score float64) RiskLevel {
	if score > HighRiskThreshold {
		return RiskHigh
	}
	if score > MediumRiskThreshold {
		return RiskMedium
	}
	return RiskLow
}

const (
	FlagFastResponses          = "fast_responses"
	FlagRapidClicking          = "rapid_clicking"
	FlagTimingConsistency      = "suspicious_timing_consistency"
	FlagSystematicPattern      = "systematic_response_pattern"
	FlagDifficultyInconsistent = "difficulty_inconsistency"
	FlagStatisticalOutlier     = "statistical_outlier"
	FlagRapidCompletion        = "rapid_session_completion"
	FlagSuspiciousUserAgent    = "suspicious_user_agent"
	FlagAnalysisError          = "analysis_error"
)

// SessionMetadata is the session-level context for a fraud scan.
type SessionMetadata struct {
	SessionID         string     `json:"session_id"`
	UserAgent         string     `json:"user_agent"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	QuestionsAnswered int        `json:"questions_answered"`
}

// Duration returns the wall-clock length of the session, or zero when either
// end is unknown.
func (m SessionMetadata) Duration() time.Duration {
	if m.StartedAt == nil || m.CompletedAt == nil {
		return 0
	}
	return m.CompletedAt.Sub(*m.StartedAt)
}

type FraudScanRequest struct {
	Session       SessionMetadata `json:"session_metadata"`
	ResponseTimes []float64       `json:"response_times"`
	Correctness   []bool          `json:"correctness"`
	Difficulties  []Difficulty    `json:"difficulties"`
}

func (r FraudScanRequest) Validate() error {
	if r.Session.SessionID == "" {
		return fmt.Errorf("session_metadata.session_id: %w", ErrMissingField)
	}
	for i, t := range r.ResponseTimes {
		if t < 0 {
			return fmt.Errorf("response_times[%d] is negative: %w", i, ErrOutOfRange)
		}
	}
	return nil
}

type FraudAnalysis struct {
	AvgResponseTime   float64 `json:"avg_response_time"`
	ResponseTimeStd   float64 `json:"response_time_std"`
	FastResponseRatio float64 `json:"fast_response_ratio"`
	PatternDetected   bool    `json:"pattern_detected"`
}

type FraudAssessment struct {
	ID         string        `json:"id"`
	SessionID  string        `json:"session_id"`
	FraudScore float64       `json:"fraud_score"`
	RiskLevel  RiskLevel     `json:"risk_level"`
	Flags      []string      `json:"flags"`
	Analysis   FraudAnalysis `json:"analysis"`
	ScannedAt  time.Time     `json:"scanned_at"`
}

// HasFlag reports whether the assessment raised the given flag.
func (a FraudAssessment) HasFlag(flag string) bool {
	for _, f := range a.Flags {
		if f == flag {
			return true
		}
	}
	return false
}
