package ml

import (
	"io"
	"math"
	"math/rand"
	"runtime"
	"sync"

	"pump-predictor/internal/common"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
)

// RandomForest averages the leaf probabilities of bagged trees.
type RandomForest struct {
	params RandomForestParams
	names  []string

	width      int
	trees      []*tree
	importance []float64
}

// NewRandomForest validates params and binds the feature names. With nil
// names, generic ones are assigned on the first Train.
func NewRandomForest(params RandomForestParams, featureNames []string) (*RandomForest, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &RandomForest{params: params, names: append([]string(nil), featureNames...)}, nil
}

// Params returns the hyperparameters.
func (rf *RandomForest) Params() RandomForestParams { return rf.params }

// Trained reports whether the forest holds a model.
func (rf *RandomForest) Trained() bool { return len(rf.trees) > 0 }

// Train fits NEstimators trees on a bounded worker pool. Tree i draws from
// its own source seeded with Seed+i and writes to slot i, so the result does
// not depend on scheduling.
func (rf *RandomForest) Train(X [][]float64, y []int) error {
	const op = "ml.RandomForest.Train"
	width, err := validateTrainInput(op, X, y, len(rf.names))
	if err != nil {
		return err
	}
	names := rf.names
	if len(names) == 0 {
		names = defaultFeatureNames(width)
	}

	n := len(X)
	grad := make([]float64, n)
	hess := make([]float64, n)
	for i, label := range y {
		grad[i] = -float64(label)
		hess[i] = 1
	}

	cfg := treeConfig{
		maxDepth:        rf.params.MaxDepth,
		minSamplesSplit: rf.params.MinSamplesSplit,
		minSamplesLeaf:  rf.params.MinSamplesLeaf,
		maxFeatures:     rf.maxFeatures(width),
	}

	nTrees := rf.params.NEstimators
	trees := make([]*tree, nTrees)
	gains := make([][]float64, nTrees)

	workers := rf.params.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > nTrees {
		workers = nTrees
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				rng := rand.New(rand.NewSource(rf.params.Seed + int64(idx)))
				rows := make([]int, n)
				for j := range rows {
					if rf.params.Bootstrap {
						rows[j] = rng.Intn(n)
					} else {
						rows[j] = j
					}
				}
				gains[idx] = make([]float64, width)
				trees[idx] = growTree(X, grad, hess, rows, cfg, rng, gains[idx])
			}
		}()
	}
	for i := 0; i < nTrees; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	rf.width = width
	rf.names = names
	rf.trees = trees
	rf.importance = meanGainShare(gains, width)

	log.Debug().
		Int("trees", nTrees).
		Int("rows", n).
		Int("features", width).
		Int("workers", workers).
		Msg("Random forest trained")
	return nil
}

func (rf *RandomForest) maxFeatures(width int) int {
	if rf.params.MaxFeatures > 0 {
		return min(rf.params.MaxFeatures, width)
	}
	return max(1, int(math.Sqrt(float64(width))))
}

// meanGainShare averages each tree's normalised gain vector. Trees without
// splits contribute nothing; the result sums to 1 unless no tree split.
func meanGainShare(gains [][]float64, width int) []float64 {
	out := make([]float64, width)
	for _, g := range gains {
		total := floats.Sum(g)
		if total <= 0 {
			continue
		}
		floats.AddScaled(out, 1/total, g)
	}
	if total := floats.Sum(out); total > 0 {
		floats.Scale(1/total, out)
	}
	return out
}

// PredictProba returns the mean positive-class probability over the trees.
func (rf *RandomForest) PredictProba(X [][]float64) ([]float64, error) {
	const op = "ml.RandomForest.Predict"
	if !rf.Trained() {
		return nil, common.NotTrainedError(op)
	}
	if err := validatePredictInput(op, X, rf.width); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		var sum float64
		for _, t := range rf.trees {
			sum += t.predict(row)
		}
		out[i] = sum / float64(len(rf.trees))
	}
	return out, nil
}

// Predict labels rows positive when their probability exceeds 0.5.
func (rf *RandomForest) Predict(X [][]float64) ([]int, error) {
	proba, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return labelsFromProba(proba), nil
}

// FeatureImportance returns each feature's mean share of split gain.
func (rf *RandomForest) FeatureImportance() (map[string]float64, error) {
	if !rf.Trained() {
		return nil, common.NotTrainedError("ml.RandomForest.FeatureImportance")
	}
	return importanceMap(rf.names, rf.importance), nil
}

type forestState struct {
	Width      int       `json:"width"`
	Trees      []*tree   `json:"trees"`
	Importance []float64 `json:"importance"`
}

// Save writes the forest as a versioned JSON envelope.
func (rf *RandomForest) Save(w io.Writer) error {
	if !rf.Trained() {
		return common.NotTrainedError("ml.RandomForest.Save")
	}
	return writeEnvelope(w, common.BackendRandomForest, rf.params, rf.names,
		forestState{Width: rf.width, Trees: rf.trees, Importance: rf.importance})
}

// Load replaces the forest with a saved one.
func (rf *RandomForest) Load(r io.Reader) error {
	const op = "ml.RandomForest.Load"
	var params RandomForestParams
	var state forestState
	names, err := readEnvelope(r, op, common.BackendRandomForest, &params, &state)
	if err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return common.PersistenceError(op, err)
	}
	if err := checkState(state.Width, names, state.Importance, state.Trees); err != nil {
		return common.PersistenceError(op, err)
	}

	rf.params = params
	rf.names = names
	rf.width = state.Width
	rf.trees = state.Trees
	rf.importance = state.Importance
	return nil
}
