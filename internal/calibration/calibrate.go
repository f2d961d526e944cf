package calibration

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/proctor-cat/backend/internal/models"
)

// CalibrateAll loads the historical sessions, trains the ML diagnostics and
// calibrates every item independently. The summary either carries a result
// for every item or, when there is no data or ctx ends first, none at all.
func (e *Engine) CalibrateAll(ctx context.Context, sessions []models.SessionLog) models.CalibrationSummary {
	summary := models.CalibrationSummary{
		RunID:           uuid.NewString(),
		Status:          models.RunRunning,
		CalibratedItems: map[string]models.CalibrationResult{},
		StartedAt:       time.Now().UTC(),
	}
	log := e.log.With("run_id", summary.RunID)

	table := e.LoadHistoricalData(sessions)
	if table.Empty() {
		return failed(summary, "no historical data available for calibration")
	}

	features, labels := BuildFeatures(table.Rows)
	summary.ML = e.TrainMLModels(features, labels)

	results := make(map[string]models.CalibrationResult)
	byItem := table.ByItem()
	for _, id := range table.ItemIDs() {
		if err := ctx.Err(); err != nil {
			log.Warn("calibration cancelled", "error", err, "calibrated", len(results))
			return failed(summary, "calibration cancelled: "+err.Error())
		}
		results[id] = e.CalibrateItemMLE(id, byItem[id])
	}

	var converged int
	var r2Sum, nSum float64
	for _, r := range results {
		nSum += float64(r.SampleSize)
		if r.Convergence {
			converged++
			r2Sum += r.PseudoR2
		}
	}
	summary.CalibratedItems = results
	summary.TotalQuestions = len(results)
	summary.SuccessfulCalibrations = converged
	if len(results) > 0 {
		summary.SuccessRate = float64(converged) / float64(len(results))
		summary.AvgSampleSize = nSum / float64(len(results))
	}
	if converged > 0 {
		summary.AvgPseudoR2 = r2Sum / float64(converged)
	}
	summary.Status = models.RunCompleted
	summary.FinishedAt = time.Now().UTC()

	log.Info("calibration completed",
		"items", summary.TotalQuestions,
		"converged", converged,
		"avg_pseudo_r2", summary.AvgPseudoR2,
		"ml_status", summary.ML.Status,
	)
	return summary
}

func failed(s models.CalibrationSummary, msg string) models.CalibrationSummary {
	s.Status = models.RunError
	s.Message = msg
	s.CalibratedItems = map[string]models.CalibrationResult{}
	s.FinishedAt = time.Now().UTC()
	return s
}
