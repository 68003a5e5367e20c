package ml

import (
	"bytes"
	"fmt"

	"pump-predictor/internal/common"

	"gopkg.in/yaml.v3"
)

// RandomForestParams configures the bagged tree ensemble.
type RandomForestParams struct {
	NEstimators     int   `yaml:"n_estimators" json:"n_estimators"`           // trees, default 100
	MaxDepth        int   `yaml:"max_depth" json:"max_depth"`                 // 0 => unlimited, default 10
	MinSamplesSplit int   `yaml:"min_samples_split" json:"min_samples_split"` // default 5
	MinSamplesLeaf  int   `yaml:"min_samples_leaf" json:"min_samples_leaf"`   // default 1
	MaxFeatures     int   `yaml:"max_features" json:"max_features"`           // 0 => sqrt(p)
	Bootstrap       bool  `yaml:"bootstrap" json:"bootstrap"`                 // default true
	Seed            int64 `yaml:"random_state" json:"random_state"`           // default 42
	Workers         int   `yaml:"workers" json:"workers"`                     // 0 => GOMAXPROCS
}

// DefaultRandomForestParams mirrors the production configuration.
func DefaultRandomForestParams() RandomForestParams {
	return RandomForestParams{
		NEstimators:     100,
		MaxDepth:        10,
		MinSamplesSplit: 5,
		MinSamplesLeaf:  1,
		MaxFeatures:     0,
		Bootstrap:       true,
		Seed:            common.DefaultSeed,
	}
}

// Validate checks parameter ranges.
func (p RandomForestParams) Validate() error {
	const op = "ml.RandomForestParams"
	if p.NEstimators < 1 || p.NEstimators > common.MaxEstimators {
		return common.ConfigError(op, "n_estimators", p.NEstimators, "must be between 1 and %d", common.MaxEstimators)
	}
	if p.MaxDepth < 0 || p.MaxDepth > common.MaxTreeDepth {
		return common.ConfigError(op, "max_depth", p.MaxDepth, "must be between 0 and %d", common.MaxTreeDepth)
	}
	if p.MinSamplesSplit < 2 {
		return common.ConfigError(op, "min_samples_split", p.MinSamplesSplit, "must be at least 2")
	}
	if p.MinSamplesLeaf < 1 {
		return common.ConfigError(op, "min_samples_leaf", p.MinSamplesLeaf, "must be at least 1")
	}
	if p.MaxFeatures < 0 {
		return common.ConfigError(op, "max_features", p.MaxFeatures, "must not be negative")
	}
	if p.Workers < 0 {
		return common.ConfigError(op, "workers", p.Workers, "must not be negative")
	}
	return nil
}

// GradientBoostingParams configures the boosted tree ensemble.
type GradientBoostingParams struct {
	NEstimators    int     `yaml:"n_estimators" json:"n_estimators"`         // boosting rounds, default 100
	MaxDepth       int     `yaml:"max_depth" json:"max_depth"`               // default 6
	LearningRate   float64 `yaml:"learning_rate" json:"learning_rate"`       // shrinkage, default 0.1
	Lambda         float64 `yaml:"reg_lambda" json:"reg_lambda"`             // L2 on leaf weights, default 1
	MinChildWeight float64 `yaml:"min_child_weight" json:"min_child_weight"` // min hessian per child, default 1
	Subsample      float64 `yaml:"subsample" json:"subsample"`               // row fraction per round, default 1
	Seed           int64   `yaml:"random_state" json:"random_state"`         // default 42
}

// DefaultGradientBoostingParams mirrors the production configuration.
func DefaultGradientBoostingParams() GradientBoostingParams {
	return GradientBoostingParams{
		NEstimators:    100,
		MaxDepth:       6,
		LearningRate:   0.1,
		Lambda:         1,
		MinChildWeight: 1,
		Subsample:      1,
		Seed:           common.DefaultSeed,
	}
}

// Validate checks parameter ranges.
func (p GradientBoostingParams) Validate() error {
	const op = "ml.GradientBoostingParams"
	if p.NEstimators < 1 || p.NEstimators > common.MaxEstimators {
		return common.ConfigError(op, "n_estimators", p.NEstimators, "must be between 1 and %d", common.MaxEstimators)
	}
	if p.MaxDepth < 1 || p.MaxDepth > common.MaxTreeDepth {
		return common.ConfigError(op, "max_depth", p.MaxDepth, "must be between 1 and %d", common.MaxTreeDepth)
	}
	if p.LearningRate <= common.MinLearningRate || p.LearningRate > common.MaxLearningRate {
		return common.ConfigError(op, "learning_rate", p.LearningRate, "must be in (0,1]")
	}
	if p.Lambda < 0 {
		return common.ConfigError(op, "reg_lambda", p.Lambda, "must not be negative")
	}
	if p.MinChildWeight < 0 {
		return common.ConfigError(op, "min_child_weight", p.MinChildWeight, "must not be negative")
	}
	if p.Subsample <= 0 || p.Subsample > 1 {
		return common.ConfigError(op, "subsample", p.Subsample, "must be in (0,1]")
	}
	return nil
}

// ParamsFromMap decodes a loose key/value configuration into the params record
// of kind, starting from defaults. Unknown keys are rejected.
func ParamsFromMap(kind string, values map[string]any) (any, error) {
	raw, err := yaml.Marshal(values)
	if err != nil {
		return nil, common.ConfigError("ml.ParamsFromMap", kind, nil, "encode: %w", err)
	}

	switch kind {
	case common.BackendRandomForest:
		p := DefaultRandomForestParams()
		if err := decodeStrict(raw, &p); err != nil {
			return nil, common.ConfigError("ml.ParamsFromMap", kind, nil, "%w", err)
		}
		return p, p.Validate()
	case common.BackendGradientBoosting:
		p := DefaultGradientBoostingParams()
		if err := decodeStrict(raw, &p); err != nil {
			return nil, common.ConfigError("ml.ParamsFromMap", kind, nil, "%w", err)
		}
		return p, p.Validate()
	}
	return nil, common.ConfigError("ml.ParamsFromMap", "kind", kind, "unknown backend")
}

func decodeStrict(raw []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	return nil
}
