package models

import (
	"fmt"
	"math"
	"strings"
)

const (
	MinTheta = -4.0
	MaxTheta = 4.0
)

// AbilityEstimate is the per-candidate, per-dimension ability state. The caller
// owns it and threads it through every engine call.
type AbilityEstimate struct {
	Theta          float64 `json:"theta"`
	StandardError  float64 `json:"standard_error"`
	InformationSum float64 `json:"information_sum"`
}

// NewAbilityEstimate returns the session-start estimate.
func NewAbilityEstimate() AbilityEstimate {
	return AbilityEstimate{Theta: 0, StandardError: 1.0, InformationSum: 0}
}

type TerminationReason string

const (
	ReasonMinimumNotReached       TerminationReason = "minimum_not_reached"
	ReasonMaximumReached          TerminationReason = "maximum_reached"
	ReasonPrecisionAchieved       TerminationReason = "precision_achieved"
	ReasonContentCoverageComplete TerminationReason = "content_coverage_complete"
	ReasonTimeLimitExceeded       TerminationReason = "time_limit_exceeded"
	ReasonContinueTesting         TerminationReason = "continue_testing"
	ReasonErrorFallback           TerminationReason = "error_fallback"
)

type TerminationDecision struct {
	Stop   bool              `json:"should_terminate"`
	Reason TerminationReason `json:"termination_reason"`
}

// ── API Request/Response Types ────────────────────────────

// AnswerEvent is sent by the delivery service once per answered question.
type AnswerEvent struct {
	SessionID           string        `json:"session_id"`
	QuestionID          string        `json:"question_id"`
	ItemParams          IRTParams     `json:"item_params"`
	IsCorrect           bool          `json:"is_correct"`
	ResponseTimeSeconds float64       `json:"response_time_seconds"`
	CurrentTheta        float64       `json:"current_theta"`
	CurrentSE           float64       `json:"current_se"`
	CurrentInfoSum      float64       `json:"current_info_sum"`
	Topic               Topic         `json:"topic"`
	AskedQuestionIDs    []string      `json:"asked_question_ids"`
	TopicRequirements   map[Topic]int `json:"topic_requirements"`
	TopicCounts         map[Topic]int `json:"topic_counts"`
	ElapsedSeconds      float64       `json:"elapsed_seconds"`
}

// Validate checks the event once at the boundary so the engines can assume
// well-formed input.
func (e AnswerEvent) Validate() error {
	if strings.TrimSpace(e.SessionID) == "" {
		return fmt.Errorf("session_id: %w", ErrMissingField)
	}
	if strings.TrimSpace(e.QuestionID) == "" {
		return fmt.Errorf("question_id: %w", ErrMissingField)
	}
	for name, v := range map[string]float64{
		"current_theta":         e.CurrentTheta,
		"current_se":            e.CurrentSE,
		"current_info_sum":      e.CurrentInfoSum,
		"response_time_seconds": e.ResponseTimeSeconds,
		"elapsed_seconds":       e.ElapsedSeconds,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s: %w", name, ErrNonFinite)
		}
	}
	if e.CurrentSE <= 0 {
		return fmt.Errorf("current_se must be positive: %w", ErrOutOfRange)
	}
	if e.CurrentInfoSum < 0 {
		return fmt.Errorf("current_info_sum must not be negative: %w", ErrOutOfRange)
	}
	if e.ResponseTimeSeconds <= 0 {
		return fmt.Errorf("response_time_seconds must be positive: %w", ErrOutOfRange)
	}
	return nil
}

// Estimate returns the ability state carried by the event.
func (e AnswerEvent) Estimate() AbilityEstimate {
	return AbilityEstimate{
		Theta:          e.CurrentTheta,
		StandardError:  e.CurrentSE,
		InformationSum: e.CurrentInfoSum,
	}
}

// AnswerOutcome is returned to the delivery service for each answer event.
type AnswerOutcome struct {
	NewTheta          float64           `json:"new_theta"`
	NewSE             float64           `json:"new_se"`
	NewInfoSum        float64           `json:"new_info_sum"`
	NextItem          *Item             `json:"next_item"`
	ShouldTerminate   bool              `json:"should_terminate"`
	TerminationReason TerminationReason `json:"termination_reason"`
	Degraded          []string          `json:"degraded,omitempty"`
}
