package ml

import (
	"fmt"
	"math/rand"
	"sort"
)

const minSplitGain = 1e-12

// treeNode is one node of a flattened binary tree. Leaves have Feature -1.
type treeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

// tree is a regression tree fitted on first and second order gradients.
// With grad=-y, hess=1 and no regularisation every leaf holds the mean label
// of its rows, which is what the forest uses; the boosted ensemble feeds it
// logistic-loss gradients instead.
type tree struct {
	Nodes []treeNode `json:"nodes"`
}

type treeConfig struct {
	maxDepth        int // 0 means unlimited
	minSamplesSplit int
	minSamplesLeaf  int
	minChildWeight  float64
	lambda          float64
	maxFeatures     int // 0 means every feature
}

type treeBuilder struct {
	X    [][]float64
	grad []float64
	hess []float64
	cfg  treeConfig
	rng  *rand.Rand
	gain []float64
	t    *tree
}

// growTree fits a tree on the given rows (duplicates allowed) and adds every
// split's gain to gain[feature].
func growTree(X [][]float64, grad, hess []float64, rows []int, cfg treeConfig, rng *rand.Rand, gain []float64) *tree {
	b := &treeBuilder{X: X, grad: grad, hess: hess, cfg: cfg, rng: rng, gain: gain, t: &tree{}}
	b.build(rows, 0)
	return b.t
}

func (b *treeBuilder) build(rows []int, depth int) int {
	var G, H float64
	for _, r := range rows {
		G += b.grad[r]
		H += b.hess[r]
	}

	id := len(b.t.Nodes)
	b.t.Nodes = append(b.t.Nodes, treeNode{Feature: -1, Value: leafValue(G, H, b.cfg.lambda)})

	if len(rows) < b.cfg.minSamplesSplit || (b.cfg.maxDepth > 0 && depth >= b.cfg.maxDepth) {
		return id
	}

	best, ok := b.bestSplit(rows, G, H)
	if !ok {
		return id
	}

	left := make([]int, 0, best.nLeft)
	right := make([]int, 0, len(rows)-best.nLeft)
	for _, r := range rows {
		if b.X[r][best.feature] <= best.threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	b.gain[best.feature] += best.gain
	l := b.build(left, depth+1)
	r := b.build(right, depth+1)

	n := &b.t.Nodes[id]
	n.Feature = best.feature
	n.Threshold = best.threshold
	n.Left = l
	n.Right = r
	return id
}

type candidateSplit struct {
	feature   int
	threshold float64
	gain      float64
	nLeft     int
}

func (b *treeBuilder) bestSplit(rows []int, G, H float64) (candidateSplit, bool) {
	lambda := b.cfg.lambda
	parent := score(G, H, lambda)

	var best candidateSplit
	found := false

	order := make([]int, len(rows))
	for _, f := range b.featureCandidates() {
		copy(order, rows)
		sort.SliceStable(order, func(i, j int) bool {
			return b.X[order[i]][f] < b.X[order[j]][f]
		})

		var GL, HL float64
		for i := 0; i < len(order)-1; i++ {
			r := order[i]
			GL += b.grad[r]
			HL += b.hess[r]

			cur, next := b.X[r][f], b.X[order[i+1]][f]
			if cur == next {
				continue
			}
			nLeft := i + 1
			if nLeft < b.cfg.minSamplesLeaf || len(order)-nLeft < b.cfg.minSamplesLeaf {
				continue
			}
			GR, HR := G-GL, H-HL
			if HL < b.cfg.minChildWeight || HR < b.cfg.minChildWeight {
				continue
			}

			g := 0.5 * (score(GL, HL, lambda) + score(GR, HR, lambda) - parent)
			if g > minSplitGain && (!found || g > best.gain) {
				best = candidateSplit{feature: f, threshold: cur + (next-cur)/2, gain: g, nLeft: nLeft}
				found = true
			}
		}
	}
	return best, found
}

// featureCandidates draws the features considered at one node, in ascending
// order so equal gains resolve the same way for a given seed.
func (b *treeBuilder) featureCandidates() []int {
	p := len(b.gain)
	k := b.cfg.maxFeatures
	if k <= 0 || k >= p {
		all := make([]int, p)
		for i := range all {
			all[i] = i
		}
		return all
	}
	picked := b.rng.Perm(p)[:k]
	sort.Ints(picked)
	return picked
}

func score(G, H, lambda float64) float64 {
	if H+lambda == 0 {
		return 0
	}
	return G * G / (H + lambda)
}

func leafValue(G, H, lambda float64) float64 {
	if H+lambda == 0 {
		return 0
	}
	return -G / (H + lambda)
}

func (t *tree) predict(row []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

func (t *tree) scaleLeaves(f float64) {
	for i := range t.Nodes {
		if t.Nodes[i].Feature < 0 {
			t.Nodes[i].Value *= f
		}
	}
}

// validate rejects trees that would index out of range or loop when walked.
func (t *tree) validate(width int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("empty tree")
	}
	for i, n := range t.Nodes {
		if n.Feature < 0 {
			continue
		}
		if n.Feature >= width {
			return fmt.Errorf("node %d: feature %d out of range", i, n.Feature)
		}
		if n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d: invalid children %d/%d", i, n.Left, n.Right)
		}
	}
	return nil
}
