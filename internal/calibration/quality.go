package calibration

import (
	"math"
	"sort"

	"github.com/proctor-cat/backend/internal/models"
)

const (
	lowDiscrimination  = 0.5
	highDiscrimination = 3.0
	extremeDifficulty  = 3.0
	highGuessing       = 0.3
	poorFit            = 0.1
	minQualitySample   = 10
	fullQualitySample  = 50
	highPriorityPseudo = 0.05
	qualityFlagCount   = 6
)

var recommendations = map[string]string{
	models.FlagLowDiscrimination:  "Item barely separates candidates of different ability; revise or retire it.",
	models.FlagHighDiscrimination: "Discrimination is implausibly high; check the answer key and sample size.",
	models.FlagExtremeDifficulty:  "Difficulty is at the edge of the scale; confirm the item is not trivial or unanswerable.",
	models.FlagHighGuessing:       "Guessing is high; review distractors for obvious eliminations.",
	models.FlagPoorFit:            "The 3PL model fits poorly; look for ambiguity or multiple defensible answers.",
	models.FlagInsufficientData:   "Too few responses for a stable estimate; keep serving before relying on these parameters.",
}

// ValidateItemQuality runs static checks over a calibration result and
// blends fit, sample size and flag count into a 0-100 score.
func ValidateItemQuality(itemID string, r models.CalibrationResult) models.QualityReport {
	p := r.Params
	var flags []string
	if p.Discrimination < lowDiscrimination {
		flags = append(flags, models.FlagLowDiscrimination)
	}
	if p.Discrimination > highDiscrimination {
		flags = append(flags, models.FlagHighDiscrimination)
	}
	if math.Abs(p.Difficulty) > extremeDifficulty {
		flags = append(flags, models.FlagExtremeDifficulty)
	}
	if p.Guessing > highGuessing {
		flags = append(flags, models.FlagHighGuessing)
	}
	if r.PseudoR2 < poorFit {
		flags = append(flags, models.FlagPoorFit)
	}
	if r.SampleSize < minQualitySample {
		flags = append(flags, models.FlagInsufficientData)
	}

	recs := make([]string, 0, len(flags))
	for _, f := range flags {
		recs = append(recs, recommendations[f])
	}

	score := 70*r.PseudoR2 +
		20*math.Min(1, float64(r.SampleSize)/fullQualitySample) +
		10*(1-float64(len(flags))/qualityFlagCount)

	return models.QualityReport{
		ItemID:          itemID,
		QualityFlags:    append([]string{}, flags...),
		QualityScore:    clamp(score, 0, 100),
		Recommendations: recs,
		Params:          p,
		PseudoR2:        r.PseudoR2,
		SampleSize:      r.SampleSize,
	}
}

// DetectMisfittingItems returns the items that fit below threshold or did
// not converge, worst first: high priority before medium, then by ascending
// quality score.
func DetectMisfittingItems(results map[string]models.CalibrationResult, threshold float64) []models.MisfitItem {
	if !finite(threshold) {
		threshold = DefaultMisfitThreshold
	}
	out := make([]models.MisfitItem, 0)
	for id, r := range results {
		if r.PseudoR2 >= threshold && r.Convergence {
			continue
		}
		priority := models.PriorityMedium
		if r.PseudoR2 < highPriorityPseudo {
			priority = models.PriorityHigh
		}
		out = append(out, models.MisfitItem{
			ItemID:      id,
			PseudoR2:    r.PseudoR2,
			Convergence: r.Convergence,
			Priority:    priority,
			Quality:     ValidateItemQuality(id, r),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		pi, pj := out[i].Priority == models.PriorityHigh, out[j].Priority == models.PriorityHigh
		if pi != pj {
			return pi
		}
		if out[i].Quality.QualityScore != out[j].Quality.QualityScore {
			return out[i].Quality.QualityScore < out[j].Quality.QualityScore
		}
		return out[i].ItemID < out[j].ItemID
	})
	return out
}
