package calibration

import (
	"math/rand"
	"sort"
)

// regressionTree is a CART tree fitted to real-valued targets by variance
// reduction. Classification models fit it to 0/1 labels or to gradients.
type regressionTree struct {
	root *treeNode
}

type treeNode struct {
	feature   int
	threshold float64
	value     float64
	left      *treeNode
	right     *treeNode
}

func (n *treeNode) leaf() bool { return n.left == nil }

type treeParams struct {
	maxDepth int
	minLeaf  int
	// maxFeatures is the number of candidate columns per split; zero uses all.
	maxFeatures int
	// leafValue computes a leaf's output from the sample indices it holds.
	// Nil uses the target mean.
	leafValue func(idx []int) float64
}

func fitTree(x [][]float64, target []float64, idx []int, p treeParams, rng *rand.Rand) *regressionTree {
	if p.minLeaf < 1 {
		p.minLeaf = 1
	}
	if p.leafValue == nil {
		p.leafValue = func(idx []int) float64 { return meanAt(target, idx) }
	}
	return &regressionTree{root: grow(x, target, idx, 0, p, rng)}
}

func (t *regressionTree) predict(row []float64) float64 {
	n := t.root
	for !n.leaf() {
		if row[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

func grow(x [][]float64, target []float64, idx []int, depth int, p treeParams, rng *rand.Rand) *treeNode {
	node := &treeNode{value: p.leafValue(idx)}
	if depth >= p.maxDepth || len(idx) < 2*p.minLeaf {
		return node
	}
	feature, threshold, ok := bestSplit(x, target, idx, p, rng)
	if !ok {
		return node
	}

	var left, right []int
	for _, i := range idx {
		if x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	node.feature = feature
	node.threshold = threshold
	node.left = grow(x, target, left, depth+1, p, rng)
	node.right = grow(x, target, right, depth+1, p, rng)
	return node
}

// bestSplit scans candidate features for the threshold with the lowest
// summed squared error, honouring the minimum leaf size.
func bestSplit(x [][]float64, target []float64, idx []int, p treeParams, rng *rand.Rand) (int, float64, bool) {
	nFeatures := len(x[idx[0]])
	features := make([]int, nFeatures)
	for f := range features {
		features[f] = f
	}
	if p.maxFeatures > 0 && p.maxFeatures < nFeatures {
		rng.Shuffle(len(features), func(i, j int) { features[i], features[j] = features[j], features[i] })
		features = features[:p.maxFeatures]
	}

	var total, totalSq float64
	for _, i := range idx {
		total += target[i]
		totalSq += target[i] * target[i]
	}
	n := float64(len(idx))
	bestScore := totalSq - total*total/n
	bestFeature, bestThreshold, found := -1, 0.0, false

	sorted := make([]int, len(idx))
	for _, f := range features {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, b int) bool { return x[sorted[a]][f] < x[sorted[b]][f] })

		var leftSum, leftSq float64
		for k := 0; k < len(sorted)-1; k++ {
			v := target[sorted[k]]
			leftSum += v
			leftSq += v * v
			nl := float64(k + 1)
			if k+1 < p.minLeaf || len(sorted)-k-1 < p.minLeaf {
				continue
			}
			cur, next := x[sorted[k]][f], x[sorted[k+1]][f]
			if cur == next {
				continue
			}
			nr := n - nl
			rightSum, rightSq := total-leftSum, totalSq-leftSq
			score := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
			if score < bestScore-1e-12 {
				bestScore = score
				bestFeature = f
				bestThreshold = (cur + next) / 2
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}

func meanAt(v []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	s := 0.0
	for _, i := range idx {
		s += v[i]
	}
	return s / float64(len(idx))
}
