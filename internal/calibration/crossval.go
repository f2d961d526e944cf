package calibration

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/proctor-cat/backend/internal/models"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrNoData      = errors.New("no training data")
	ErrSingleClass = errors.New("labels contain a single class")
)

// TrainMLModels cross-validates a random forest and a gradient-boosted
// ensemble on the response features and reports their mean ROC-AUC. The
// scores are a diagnostic only; they never feed back into item parameters.
func (e *Engine) TrainMLModels(features [][]float64, labels []bool) (diag models.MLDiagnostics) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("ML diagnostics panicked", "panic", fmt.Sprint(r))
			diag = models.MLDiagnostics{Status: models.MLError, Error: fmt.Sprint(r)}
		}
	}()

	if len(features) == 0 || len(labels) == 0 {
		return models.MLDiagnostics{Status: models.MLNoData}
	}
	if len(features) != len(labels) {
		err := fmt.Errorf("%d feature rows for %d labels: %w", len(features), len(labels), models.ErrLengthMismatch)
		e.log.Warn("ML diagnostics skipped", "error", err)
		return models.MLDiagnostics{Status: models.MLError, Error: err.Error()}
	}

	folds, err := stratifiedFolds(labels, e.cfg.Folds, e.cfg.Seed)
	if err != nil {
		e.log.Warn("ML diagnostics skipped", "error", err)
		return models.MLDiagnostics{Status: models.MLError, Error: err.Error()}
	}

	rfAUC, err := crossValidatedAUC(features, labels, folds, func(fold int) Classifier {
		return newRandomForest(e.cfg.Forest, e.cfg.Seed+int64(fold))
	})
	if err != nil {
		e.log.Warn("random forest cross-validation failed", "error", err)
		return models.MLDiagnostics{Status: models.MLError, Error: err.Error()}
	}
	gbAUC, err := crossValidatedAUC(features, labels, folds, func(fold int) Classifier {
		return newGradientBoosting(e.cfg.Boosting, e.cfg.Seed+int64(fold))
	})
	if err != nil {
		e.log.Warn("gradient boosting cross-validation failed", "error", err)
		return models.MLDiagnostics{Status: models.MLError, Error: err.Error()}
	}

	e.log.Info("ML diagnostics trained", "rows", len(labels), "folds", len(folds), "rf_auc", rfAUC, "gb_auc", gbAUC)
	return models.MLDiagnostics{RandomForestAUC: rfAUC, GradientBoostingAUC: gbAUC, Status: models.MLTrained}
}

// stratifiedFolds deals each class's shuffled indices round-robin into k
// folds so every fold keeps the overall class balance. k shrinks to the
// minority class size when that is smaller.
func stratifiedFolds(labels []bool, k int, seed int64) ([][]int, error) {
	var pos, neg []int
	for i, y := range labels {
		if y {
			pos = append(pos, i)
		} else {
			neg = append(neg, i)
		}
	}
	minority := min(len(pos), len(neg))
	if minority == 0 {
		return nil, ErrSingleClass
	}
	k = min(k, minority)
	if k < 2 {
		return nil, fmt.Errorf("minority class has %d rows, need at least 2 for cross-validation: %w", minority, ErrNoData)
	}

	rng := rand.New(rand.NewSource(seed))
	folds := make([][]int, k)
	for _, class := range [][]int{pos, neg} {
		rng.Shuffle(len(class), func(i, j int) { class[i], class[j] = class[j], class[i] })
		for n, idx := range class {
			folds[n%k] = append(folds[n%k], idx)
		}
	}
	return folds, nil
}

func crossValidatedAUC(x [][]float64, y []bool, folds [][]int, model func(fold int) Classifier) (float64, error) {
	held := make([]bool, len(y))
	total := 0.0
	for f, test := range folds {
		for i := range held {
			held[i] = false
		}
		for _, i := range test {
			held[i] = true
		}
		var trainX [][]float64
		var trainY []bool
		for i := range x {
			if !held[i] {
				trainX = append(trainX, x[i])
				trainY = append(trainY, y[i])
			}
		}

		clf := model(f)
		if err := clf.Fit(trainX, trainY); err != nil {
			return 0, fmt.Errorf("fold %d: %w", f, err)
		}
		scores := make([]float64, len(test))
		classes := make([]bool, len(test))
		for n, i := range test {
			scores[n] = clf.Score(x[i])
			classes[n] = y[i]
		}
		total += rocAUC(scores, classes)
	}
	return total / float64(len(folds)), nil
}

// rocAUC is the area under the ROC curve of scores against classes. Both
// classes must be present.
func rocAUC(scores []float64, classes []bool) float64 {
	stat.SortWeightedLabeled(scores, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, scores, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}
