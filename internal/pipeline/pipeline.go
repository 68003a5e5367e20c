// Package pipeline runs one training pass end to end: partition the table,
// fit the feature transformer, train every configured backend, pick a winner
// and hand back everything needed to persist or report on it.
package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"pump-predictor/internal/cfg"
	"pump-predictor/internal/common"
	"pump-predictor/internal/dataset"
	"pump-predictor/internal/features"
	"pump-predictor/internal/ml"
	"pump-predictor/internal/split"
	"pump-predictor/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Config is the slice of Settings a training run needs.
type Config struct {
	TestFraction float64
	Seed         int64
	FitScope     string
	Metric       string
	Backends     []string
	Features     features.Options
	Params       map[string]any
}

// NewConfig derives a run config from loaded settings.
func NewConfig(s *cfg.Settings) Config {
	c := Config{
		TestFraction: s.TestFraction,
		Seed:         s.Seed,
		FitScope:     s.FitScope,
		Metric:       s.Metric,
		Backends:     append([]string{}, s.Backends...),
		Features:     s.Features,
		Params:       make(map[string]any, len(s.Backends)),
	}
	for _, b := range s.Backends {
		c.Params[b] = s.BackendParams(b)
	}
	return c
}

// DefaultConfig is NewConfig over cfg.Defaults.
func DefaultConfig() Config {
	s := cfg.Defaults()
	return NewConfig(&s)
}

// Result is the outcome of Run.
type Result struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Rows       int
	FitScope   string

	Transformer *features.Transformer
	Selection   *ml.Selection

	// Source row ids of each side of the split.
	TrainIndex []int
	TestIndex  []int
}

// Winner returns the selected candidate.
func (r *Result) Winner() ml.Candidate {
	return r.Selection.Winner
}

// Run trains and compares the configured backends on table. Transformer
// statistics come from the training rows only unless FitScope is "full".
func Run(table *dataset.Table, c Config, obs ml.Observer) (*Result, error) {
	const op = "pipeline.Run"
	if obs == nil {
		obs = ml.NopObserver{}
	}
	started := time.Now().UTC()

	if err := table.Validate(); err != nil {
		return nil, err
	}
	tr, err := features.New(c.Features)
	if err != nil {
		return nil, err
	}
	obs.DataLoaded(table.Len(), len(tr.FeatureNames()))

	train, test, err := split.Partition(table.Len(), c.TestFraction, c.Seed)
	if err != nil {
		return nil, err
	}

	var fitRows []int
	switch c.FitScope {
	case "", common.FitScopeTrain:
		fitRows = train
	case common.FitScopeFull:
		fitRows = nil
	default:
		return nil, common.ConfigError(op, "fit_scope", c.FitScope, "must be %q or %q", common.FitScopeTrain, common.FitScopeFull)
	}
	X, y, err := tr.FitTransform(table, fitRows)
	if err != nil {
		return nil, err
	}
	s, err := split.ByIndex(X, y, train, test)
	if err != nil {
		return nil, err
	}

	candidates, err := buildCandidates(c, tr.FeatureNames())
	if err != nil {
		return nil, err
	}

	log.Info().
		Int("rows", table.Len()).
		Int("train", len(train)).
		Int("test", len(test)).
		Strs("backends", c.Backends).
		Msg("Training candidates")

	sel, err := ml.Select(candidates, s, c.Metric, obs)
	if err != nil {
		return nil, err
	}

	scope := c.FitScope
	if scope == "" {
		scope = common.FitScopeTrain
	}
	return &Result{
		RunID:       uuid.NewString(),
		StartedAt:   started,
		FinishedAt:  time.Now().UTC(),
		Rows:        table.Len(),
		FitScope:    scope,
		Transformer: tr,
		Selection:   sel,
		TrainIndex:  s.TrainIndex,
		TestIndex:   s.TestIndex,
	}, nil
}

func buildCandidates(c Config, names []string) ([]ml.Candidate, error) {
	if len(c.Backends) == 0 {
		return nil, common.ConfigError("pipeline.Run", "backends", nil, "at least one backend must be listed")
	}
	out := make([]ml.Candidate, 0, len(c.Backends))
	for _, kind := range c.Backends {
		b, err := ml.NewBackend(kind, c.Params[kind], names)
		if err != nil {
			return nil, err
		}
		out = append(out, ml.Candidate{Name: kind, Backend: b})
	}
	return out, nil
}

// Persist stores the winner and its transformer as a new active version and
// records the run. source names where the data came from.
func (r *Result) Persist(store *storage.Store, source string) (storage.ModelVersion, storage.RunRecord, error) {
	const op = "pipeline.Persist"
	winner := r.Winner()

	var model bytes.Buffer
	if err := winner.Backend.Save(&model); err != nil {
		return storage.ModelVersion{}, storage.RunRecord{}, err
	}
	transformer, err := json.Marshal(r.Transformer)
	if err != nil {
		return storage.ModelVersion{}, storage.RunRecord{}, common.PersistenceError(op, err)
	}

	v, err := store.SaveVersion(storage.ModelVersion{
		Backend:  winner.Name,
		RunID:    r.RunID,
		Metric:   r.Selection.Metric,
		Metrics:  r.Selection.WinnerMetrics,
		Features: r.Transformer.FeatureNames(),
	}, model.Bytes(), transformer)
	if err != nil {
		return storage.ModelVersion{}, storage.RunRecord{}, err
	}

	run, err := store.StoreRun(r.Record(source, v.ID))
	if err != nil {
		return v, storage.RunRecord{}, err
	}
	if err := store.Activate(v.ID); err != nil {
		return v, run, err
	}
	v.IsActive = true
	return v, run, nil
}

// Record summarises the run for storage.
func (r *Result) Record(source, versionID string) storage.RunRecord {
	rec := storage.RunRecord{
		ID:         r.RunID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		DataSource: source,
		Rows:       r.Rows,
		TrainRows:  len(r.TrainIndex),
		TestRows:   len(r.TestIndex),
		FitScope:   r.FitScope,
		Metric:     r.Selection.Metric,
		Winner:     r.Winner().Name,
		VersionID:  versionID,
		Metrics:    make(map[string]map[string]float64, len(r.Selection.All)),
	}
	for name, m := range r.Selection.All {
		rec.Metrics[name] = m
	}
	if len(r.Selection.Failures) > 0 {
		rec.Failures = make(map[string]string, len(r.Selection.Failures))
		for name, err := range r.Selection.Failures {
			rec.Failures[name] = err.Error()
		}
	}
	return rec
}

// Model is a stored version ready to score new readings.
type Model struct {
	Version     storage.ModelVersion
	Transformer *features.Transformer
	Backend     ml.Backend
}

// LoadModel restores a version from store; an empty id means the active one.
func LoadModel(store *storage.Store, id string) (*Model, error) {
	var (
		v   storage.ModelVersion
		err error
	)
	if id == "" {
		v, err = store.Current()
	} else {
		v, err = store.Version(id)
	}
	if err != nil {
		return nil, err
	}

	blob, err := store.ModelBlob(v.ID)
	if err != nil {
		return nil, err
	}
	backend, err := ml.Open(blob)
	if err != nil {
		return nil, err
	}

	raw, err := store.TransformerBlob(v.ID)
	if err != nil {
		return nil, err
	}
	tr := &features.Transformer{}
	if err := json.Unmarshal(raw, tr); err != nil {
		return nil, err
	}
	return &Model{Version: v, Transformer: tr, Backend: backend}, nil
}

// Score transforms table and returns the positive-class probability and label
// of every row. Labels in table, if any, are ignored.
func (m *Model) Score(table *dataset.Table) ([]float64, []int, error) {
	X, err := m.Transformer.TransformFeatures(table)
	if err != nil {
		return nil, nil, err
	}
	labels, err := m.Backend.Predict(X)
	if err != nil {
		return nil, nil, err
	}
	pp, ok := m.Backend.(ml.ProbabilityPredictor)
	if !ok {
		return nil, nil, fmt.Errorf("backend %s has no probability output", m.Version.Backend)
	}
	proba, err := pp.PredictProba(X)
	if err != nil {
		return nil, nil, err
	}
	return proba, labels, nil
}
