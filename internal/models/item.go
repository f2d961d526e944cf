package models

import "time"

type Topic string

const (
	TopicNumerical Topic = "numerical"
	TopicLogical   Topic = "logical"
	TopicVerbal    Topic = "verbal"
	TopicSpatial   Topic = "spatial"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Value maps the author-facing difficulty level onto the theta scale.
// Unknown levels are treated as medium.
func (d Difficulty) Value() float64 {
	switch d {
	case DifficultyEasy:
		return -1.0
	case DifficultyHard:
		return 1.0
	default:
		return 0.0
	}
}

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionOpenResponse   QuestionType = "open_response"
)

type CalibrationMethod string

const (
	MethodMLE3PL   CalibrationMethod = "MLE_3PL"
	MethodFallback CalibrationMethod = "FALLBACK"
	MethodDefault  CalibrationMethod = "DEFAULT"
)

// ── IRT parameter bounds ───────────────────────────────

const (
	MinDiscrimination = 0.1
	MaxDiscrimination = 4.0
	MinDifficulty     = -4.0
	MaxDifficulty     = 4.0
	MinGuessing       = 0.0
	MaxGuessing       = 0.35

	DefaultDiscrimination = 1.0
	DefaultDifficulty     = 0.0
	// Multiple-choice items default to a one-in-four guessing floor.
	DefaultMultipleChoiceGuessing = 0.25
)

// IRTParams are the 3PL parameters of a single item.
type IRTParams struct {
	Discrimination float64 `json:"discrimination"`
	Difficulty     float64 `json:"difficulty"`
	Guessing       float64 `json:"guessing"`
}

// Clamp returns the parameters forced into their documented bounds.
func (p IRTParams) Clamp() IRTParams {
	return IRTParams{
		Discrimination: clamp(p.Discrimination, MinDiscrimination, MaxDiscrimination),
		Difficulty:     clamp(p.Difficulty, MinDifficulty, MaxDifficulty),
		Guessing:       clamp(p.Guessing, MinGuessing, MaxGuessing),
	}
}

// ── Core Structs ───────────────────────────────────────

// Item is a question in the bank. The IRT fields are nil until the item has
// been calibrated or explicitly parameterised by its author.
type Item struct {
	ID              string       `json:"id"`
	Topic           Topic        `json:"topic"`
	DifficultyLevel Difficulty   `json:"difficulty_level"`
	QuestionType    QuestionType `json:"question_type"`

	Discrimination *float64 `json:"discrimination,omitempty"`
	Difficulty     *float64 `json:"difficulty,omitempty"`
	Guessing       *float64 `json:"guessing,omitempty"`

	TimesServed  int `json:"times_served"`
	TimesCorrect int `json:"times_correct"`

	Calibration *CalibrationMetadata `json:"calibration,omitempty"`
}

// CalibrationMetadata is the fit information written back by a calibration run.
type CalibrationMetadata struct {
	SampleSize        int               `json:"sample_size"`
	PseudoR2          float64           `json:"pseudo_r2"`
	LogLikelihood     float64           `json:"log_likelihood"`
	AIC               float64           `json:"aic"`
	BIC               float64           `json:"bic"`
	Convergence       bool              `json:"convergence"`
	CalibrationMethod CalibrationMethod `json:"calibration_method"`
	CalibratedAt      time.Time         `json:"calibrated_at"`
}

// SuccessRate is the observed proportion correct, or -1 when the item has
// never been served.
func (i Item) SuccessRate() float64 {
	if i.TimesServed <= 0 {
		return -1
	}
	return float64(i.TimesCorrect) / float64(i.TimesServed)
}

// ApplyCalibration writes a calibration result onto the item.
func (i *Item) ApplyCalibration(r CalibrationResult) {
	p := r.Params.Clamp()
	i.Discrimination = &p.Discrimination
	i.Difficulty = &p.Difficulty
	i.Guessing = &p.Guessing
	i.Calibration = &CalibrationMetadata{
		SampleSize:        r.SampleSize,
		PseudoR2:          r.PseudoR2,
		LogLikelihood:     r.LogLikelihood,
		AIC:               r.AIC,
		BIC:               r.BIC,
		Convergence:       r.Convergence,
		CalibrationMethod: r.CalibrationMethod,
		CalibratedAt:      r.CalibratedAt,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
