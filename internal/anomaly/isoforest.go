package anomaly

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

const (
	forestTrees     = 200
	forestSubsample = 256

	// forestSeed fixes the ensemble so repeated scoring runs over the same
	// graph produce the same flags.
	forestSeed = 7151
)

// IsolationForest is the default Detector: an ensemble of randomly built
// isolation trees. Points isolated in fewer splits than the population sit
// closer to the root and receive lower raw scores.
type IsolationForest struct {
	contamination float64

	scores []float64
	flags  []bool
}

func NewIsolationForest(contamination float64) *IsolationForest {
	return &IsolationForest{contamination: contamination}
}

type isoNode struct {
	feature int
	split   float64
	left    *isoNode
	right   *isoNode
	size    int // external nodes only
}

func (n *isoNode) external() bool { return n.left == nil }

// Fit builds the forest and computes scores and flags for every row.
func (f *IsolationForest) Fit(matrix [][]float64) error {
	n := len(matrix)
	if n == 0 {
		f.scores, f.flags = nil, nil
		return nil
	}
	width := len(matrix[0])
	for _, row := range matrix {
		if len(row) != width {
			return errors.New("feature matrix rows have unequal width")
		}
	}

	rng := rand.New(rand.NewSource(forestSeed))
	psi := forestSubsample
	if psi > n {
		psi = n
	}
	maxDepth := int(math.Ceil(math.Log2(float64(psi)))) + 1

	trees := make([]*isoNode, forestTrees)
	for i := range trees {
		sample := rng.Perm(n)[:psi]
		trees[i] = buildTree(rng, matrix, sample, 0, maxDepth, width)
	}

	// Average path length per point, normalized to the standard anomaly
	// score s = 2^(-E[h]/c(psi)), then negated so that lower means more
	// anomalous.
	norm := avgPathLength(psi)
	f.scores = make([]float64, n)
	for i, row := range matrix {
		var total float64
		for _, tree := range trees {
			total += pathLength(tree, row, 0)
		}
		mean := total / float64(forestTrees)
		f.scores[i] = -math.Pow(2, -mean/norm)
	}

	f.flags = classify(f.scores, f.contamination)
	return nil
}

func (f *IsolationForest) Scores() []float64 { return f.scores }

func (f *IsolationForest) Anomalies() []bool { return f.flags }

func buildTree(rng *rand.Rand, matrix [][]float64, indices []int, depth, maxDepth, width int) *isoNode {
	if len(indices) <= 1 || depth >= maxDepth {
		return &isoNode{size: len(indices)}
	}

	// Try features in random order until one has spread; a column that is
	// constant over these points cannot separate them.
	for _, feature := range rng.Perm(width) {
		lo, hi := matrix[indices[0]][feature], matrix[indices[0]][feature]
		for _, idx := range indices[1:] {
			v := matrix[idx][feature]
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if hi <= lo {
			continue
		}

		split := lo + rng.Float64()*(hi-lo)
		var left, right []int
		for _, idx := range indices {
			if matrix[idx][feature] < split {
				left = append(left, idx)
			} else {
				right = append(right, idx)
			}
		}
		if len(left) == 0 || len(right) == 0 {
			continue
		}
		return &isoNode{
			feature: feature,
			split:   split,
			left:    buildTree(rng, matrix, left, depth+1, maxDepth, width),
			right:   buildTree(rng, matrix, right, depth+1, maxDepth, width),
		}
	}

	return &isoNode{size: len(indices)}
}

func pathLength(node *isoNode, row []float64, depth int) float64 {
	if node.external() {
		return float64(depth) + avgPathLength(node.size)
	}
	if row[node.feature] < node.split {
		return pathLength(node.left, row, depth+1)
	}
	return pathLength(node.right, row, depth+1)
}

const eulerMascheroni = 0.5772156649

// avgPathLength is the expected path length of an unsuccessful BST search
// over n points, used to normalize depths across subsample sizes.
func avgPathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		h := math.Log(float64(n-1)) + eulerMascheroni
		return 2*h - 2*float64(n-1)/float64(n)
	}
}

// classify flags the rows whose score falls strictly below the contamination
// quantile. The strict comparison means a population of identical scores
// produces no anomalies at all.
func classify(scores []float64, contamination float64) []bool {
	n := len(scores)
	flags := make([]bool, n)
	if n == 0 {
		return flags
	}

	sorted := make([]float64, n)
	copy(sorted, scores)
	sort.Float64s(sorted)

	k := int(contamination * float64(n))
	if k >= n {
		k = n - 1
	}
	threshold := sorted[k]

	for i, s := range scores {
		flags[i] = s < threshold
	}
	return flags
}
