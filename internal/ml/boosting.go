package ml

import (
	"io"
	"math"
	"math/rand"
	"sort"

	"pump-predictor/internal/common"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
)

const (
	probClamp = 1e-6
	minHess   = 1e-16
)

// GradientBoosting fits trees sequentially on logistic-loss gradients.
type GradientBoosting struct {
	params GradientBoostingParams
	names  []string

	width      int
	baseScore  float64
	trees      []*tree
	importance []float64
}

// NewGradientBoosting validates params and binds the feature names.
func NewGradientBoosting(params GradientBoostingParams, featureNames []string) (*GradientBoosting, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &GradientBoosting{params: params, names: append([]string(nil), featureNames...)}, nil
}

// Params returns the hyperparameters.
func (gb *GradientBoosting) Params() GradientBoostingParams { return gb.params }

// Trained reports whether the ensemble holds a model.
func (gb *GradientBoosting) Trained() bool { return len(gb.trees) > 0 }

// Train runs NEstimators boosting rounds starting from the log-odds of the
// positive rate.
func (gb *GradientBoosting) Train(X [][]float64, y []int) error {
	const op = "ml.GradientBoosting.Train"
	width, err := validateTrainInput(op, X, y, len(gb.names))
	if err != nil {
		return err
	}
	names := gb.names
	if len(names) == 0 {
		names = defaultFeatureNames(width)
	}

	n := len(X)
	var positives float64
	for _, label := range y {
		positives += float64(label)
	}
	p0 := math.Min(math.Max(positives/float64(n), probClamp), 1-probClamp)
	base := math.Log(p0 / (1 - p0))

	margin := make([]float64, n)
	for i := range margin {
		margin[i] = base
	}
	grad := make([]float64, n)
	hess := make([]float64, n)

	cfg := treeConfig{
		maxDepth:        gb.params.MaxDepth,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		minChildWeight:  gb.params.MinChildWeight,
		lambda:          gb.params.Lambda,
	}

	rng := rand.New(rand.NewSource(gb.params.Seed))
	gain := make([]float64, width)
	trees := make([]*tree, 0, gb.params.NEstimators)

	for round := 0; round < gb.params.NEstimators; round++ {
		for i := range margin {
			p := logistic(margin[i])
			grad[i] = p - float64(y[i])
			hess[i] = math.Max(p*(1-p), minHess)
		}

		t := growTree(X, grad, hess, gb.sampleRows(n, rng), cfg, rng, gain)
		t.scaleLeaves(gb.params.LearningRate)
		trees = append(trees, t)

		for i, row := range X {
			margin[i] += t.predict(row)
		}
	}

	if total := floats.Sum(gain); total > 0 {
		floats.Scale(1/total, gain)
	}

	gb.width = width
	gb.names = names
	gb.baseScore = base
	gb.trees = trees
	gb.importance = gain

	log.Debug().
		Int("rounds", len(trees)).
		Int("rows", n).
		Float64("base_score", base).
		Msg("Gradient boosting trained")
	return nil
}

func (gb *GradientBoosting) sampleRows(n int, rng *rand.Rand) []int {
	if gb.params.Subsample >= 1 {
		rows := make([]int, n)
		for i := range rows {
			rows[i] = i
		}
		return rows
	}
	k := max(1, int(math.Ceil(gb.params.Subsample*float64(n))))
	rows := rng.Perm(n)[:k]
	sort.Ints(rows)
	return rows
}

// PredictProba returns the positive-class probability of each row.
func (gb *GradientBoosting) PredictProba(X [][]float64) ([]float64, error) {
	const op = "ml.GradientBoosting.Predict"
	if !gb.Trained() {
		return nil, common.NotTrainedError(op)
	}
	if err := validatePredictInput(op, X, gb.width); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		m := gb.baseScore
		for _, t := range gb.trees {
			m += t.predict(row)
		}
		out[i] = logistic(m)
	}
	return out, nil
}

// Predict labels rows positive when their probability exceeds 0.5.
func (gb *GradientBoosting) Predict(X [][]float64) ([]int, error) {
	proba, err := gb.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return labelsFromProba(proba), nil
}

// FeatureImportance returns each feature's share of the total split gain.
func (gb *GradientBoosting) FeatureImportance() (map[string]float64, error) {
	if !gb.Trained() {
		return nil, common.NotTrainedError("ml.GradientBoosting.FeatureImportance")
	}
	return importanceMap(gb.names, gb.importance), nil
}

type boostingState struct {
	Width      int       `json:"width"`
	BaseScore  float64   `json:"base_score"`
	Trees      []*tree   `json:"trees"`
	Importance []float64 `json:"importance"`
}

// Save writes the ensemble as a versioned JSON envelope.
func (gb *GradientBoosting) Save(w io.Writer) error {
	if !gb.Trained() {
		return common.NotTrainedError("ml.GradientBoosting.Save")
	}
	return writeEnvelope(w, common.BackendGradientBoosting, gb.params, gb.names, boostingState{
		Width:      gb.width,
		BaseScore:  gb.baseScore,
		Trees:      gb.trees,
		Importance: gb.importance,
	})
}

// Load replaces the ensemble with a saved one.
func (gb *GradientBoosting) Load(r io.Reader) error {
	const op = "ml.GradientBoosting.Load"
	var params GradientBoostingParams
	var state boostingState
	names, err := readEnvelope(r, op, common.BackendGradientBoosting, &params, &state)
	if err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return common.PersistenceError(op, err)
	}
	if err := checkState(state.Width, names, state.Importance, state.Trees); err != nil {
		return common.PersistenceError(op, err)
	}

	gb.params = params
	gb.names = names
	gb.width = state.Width
	gb.baseScore = state.BaseScore
	gb.trees = state.Trees
	gb.importance = state.Importance
	return nil
}
