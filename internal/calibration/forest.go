package calibration

import (
	"math"
	"math/rand"
)

// Classifier scores rows with the estimated probability of a correct answer.
type Classifier interface {
	Fit(x [][]float64, y []bool) error
	Score(row []float64) float64
}

// randomForest averages bootstrap-trained trees that each consider
// sqrt(features) columns per split.
type randomForest struct {
	cfg   ForestConfig
	rng   *rand.Rand
	trees []*regressionTree
}

func newRandomForest(cfg ForestConfig, seed int64) *randomForest {
	return &randomForest{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

func (f *randomForest) Fit(x [][]float64, y []bool) error {
	if len(x) == 0 {
		return ErrNoData
	}
	target := labelsToFloats(y)
	maxFeatures := int(math.Max(1, math.Round(math.Sqrt(float64(len(x[0]))))))
	p := treeParams{maxDepth: f.cfg.MaxDepth, minLeaf: f.cfg.MinLeaf, maxFeatures: maxFeatures}

	f.trees = make([]*regressionTree, 0, f.cfg.Trees)
	for t := 0; t < f.cfg.Trees; t++ {
		sample := make([]int, len(x))
		for i := range sample {
			sample[i] = f.rng.Intn(len(x))
		}
		f.trees = append(f.trees, fitTree(x, target, sample, p, f.rng))
	}
	return nil
}

func (f *randomForest) Score(row []float64) float64 {
	if len(f.trees) == 0 {
		return 0.5
	}
	s := 0.0
	for _, t := range f.trees {
		s += t.predict(row)
	}
	return s / float64(len(f.trees))
}

func labelsToFloats(y []bool) []float64 {
	out := make([]float64, len(y))
	for i, v := range y {
		out[i] = boolFloat(v)
	}
	return out
}
