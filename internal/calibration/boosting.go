package calibration

import (
	"math"
	"math/rand"
)

// gradientBoosting fits shallow trees to the residuals of a logistic loss.
// Leaf values take one Newton step on the log-odds.
type gradientBoosting struct {
	cfg   BoostingConfig
	rng   *rand.Rand
	base  float64
	trees []*regressionTree
}

func newGradientBoosting(cfg BoostingConfig, seed int64) *gradientBoosting {
	return &gradientBoosting{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

func (g *gradientBoosting) Fit(x [][]float64, y []bool) error {
	if len(x) == 0 {
		return ErrNoData
	}
	labels := labelsToFloats(y)
	prior := clamp(meanAt(labels, allIndices(len(labels))), 1e-6, 1-1e-6)
	g.base = math.Log(prior / (1 - prior))

	raw := make([]float64, len(x))
	for i := range raw {
		raw[i] = g.base
	}
	residual := make([]float64, len(x))
	prob := make([]float64, len(x))
	idx := allIndices(len(x))

	g.trees = make([]*regressionTree, 0, g.cfg.Rounds)
	for r := 0; r < g.cfg.Rounds; r++ {
		for i := range raw {
			prob[i] = logistic(raw[i])
			residual[i] = labels[i] - prob[i]
		}
		p := treeParams{
			maxDepth: g.cfg.MaxDepth,
			minLeaf:  g.cfg.MinLeaf,
			leafValue: func(leaf []int) float64 {
				var num, den float64
				for _, i := range leaf {
					num += residual[i]
					den += prob[i] * (1 - prob[i])
				}
				if den < 1e-12 {
					return 0
				}
				return clamp(num/den, -4, 4)
			},
		}
		tree := fitTree(x, residual, idx, p, g.rng)
		for i := range raw {
			raw[i] += g.cfg.LearningRate * tree.predict(x[i])
		}
		g.trees = append(g.trees, tree)
	}
	return nil
}

func (g *gradientBoosting) Score(row []float64) float64 {
	raw := g.base
	for _, t := range g.trees {
		raw += g.cfg.LearningRate * t.predict(row)
	}
	return logistic(raw)
}

func allIndices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
