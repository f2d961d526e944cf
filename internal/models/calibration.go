package models

import "time"

// ── Calibration Input ───────────────────────────────────

// SessionAnswer is one answer inside a historical session document.
// ThetaAtAnswer is the ability estimate in force when the answer was given;
// it is nil for sessions recorded before per-answer theta was stored.
type SessionAnswer struct {
	Correct       bool     `json:"correct"`
	ThetaAtAnswer *float64 `json:"theta_at_answer,omitempty"`
}

type SessionTiming struct {
	TimeTaken *float64 `json:"time_taken,omitempty"`
}

// SessionLog is a completed session as handed to the calibration engine.
type SessionLog struct {
	SessionID     string                   `json:"session_id"`
	AdaptiveScore *float64                 `json:"adaptive_score,omitempty"`
	Answers       map[string]SessionAnswer `json:"answers"`
	TimingData    map[string]SessionTiming `json:"timing_data"`
}

// ResponseRecord is one candidate's answer to one item.
type ResponseRecord struct {
	SessionID       string  `json:"session_id"`
	QuestionID      string  `json:"question_id"`
	CandidateTheta  float64 `json:"candidate_theta"`
	IsCorrect       bool    `json:"is_correct"`
	ResponseTime    float64 `json:"response_time"`
	LogResponseTime float64 `json:"log_response_time"`
}

// ── Calibration Output ──────────────────────────────────

type CalibrationResult struct {
	ItemID            string            `json:"item_id"`
	Params            IRTParams         `json:"params"`
	SampleSize        int               `json:"sample_size"`
	PseudoR2          float64           `json:"pseudo_r2"`
	LogLikelihood     float64           `json:"log_likelihood"`
	AIC               float64           `json:"aic"`
	BIC               float64           `json:"bic"`
	Convergence       bool              `json:"convergence"`
	CalibrationMethod CalibrationMethod `json:"calibration_method"`
	CalibratedAt      time.Time         `json:"calibrated_at"`
}

type MLStatus string

const (
	MLNoData  MLStatus = "no_data"
	MLTrained MLStatus = "trained"
	MLError   MLStatus = "error"
)

// MLDiagnostics reports how predictable correctness is from ability and timing.
type MLDiagnostics struct {
	RandomForestAUC     float64  `json:"rf_auc"`
	GradientBoostingAUC float64  `json:"gb_auc"`
	Status              MLStatus `json:"status"`
	Error               string   `json:"error,omitempty"`
}

type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunError     RunStatus = "error"
)

type CalibrationSummary struct {
	RunID                  string                       `json:"run_id"`
	Status                 RunStatus                    `json:"status"`
	Message                string                       `json:"message,omitempty"`
	TotalQuestions         int                          `json:"total_questions"`
	SuccessfulCalibrations int                          `json:"successful_calibrations"`
	SuccessRate            float64                      `json:"success_rate"`
	AvgPseudoR2            float64                      `json:"avg_pseudo_r2"`
	AvgSampleSize          float64                      `json:"avg_sample_size"`
	ML                     MLDiagnostics                `json:"ml_diagnostics"`
	CalibratedItems        map[string]CalibrationResult `json:"calibrated_items"`
	StartedAt              time.Time                    `json:"started_at"`
	FinishedAt             time.Time                    `json:"finished_at"`
}

// ── Quality Review ──────────────────────────────────────

const (
	FlagLowDiscrimination  = "low_discrimination"
	FlagHighDiscrimination = "high_discrimination"
	FlagExtremeDifficulty  = "extreme_difficulty"
	FlagHighGuessing       = "high_guessing"
	FlagPoorFit            = "poor_fit"
	FlagInsufficientData   = "insufficient_data"
)

type QualityReport struct {
	ItemID          string    `json:"item_id"`
	QualityFlags    []string  `json:"quality_flags"`
	QualityScore    float64   `json:"quality_score"`
	Recommendations []string  `json:"recommendations"`
	Params          IRTParams `json:"params"`
	PseudoR2        float64   `json:"pseudo_r2"`
	SampleSize      int       `json:"sample_size"`
}

type ReviewPriority string

const (
	PriorityHigh   ReviewPriority = "high"
	PriorityMedium ReviewPriority = "medium"
)

type MisfitItem struct {
	ItemID      string         `json:"item_id"`
	PseudoR2    float64        `json:"pseudo_r2"`
	Convergence bool           `json:"convergence"`
	Priority    ReviewPriority `json:"priority"`
	Quality     QualityReport  `json:"quality"`
}
