package ml

import (
	"testing"

	"pump-predictor/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultParams(t *testing.T) {
	rf := DefaultRandomForestParams()
	assert.Equal(t, 100, rf.NEstimators)
	assert.Equal(t, 10, rf.MaxDepth)
	assert.Equal(t, 5, rf.MinSamplesSplit)
	assert.True(t, rf.Bootstrap)
	assert.Equal(t, int64(42), rf.Seed)
	require.NoError(t, rf.Validate())

	gb := DefaultGradientBoostingParams()
	assert.Equal(t, 100, gb.NEstimators)
	assert.Equal(t, 6, gb.MaxDepth)
	assert.Equal(t, 0.1, gb.LearningRate)
	require.NoError(t, gb.Validate())
}

func TestParams_Validate(t *testing.T) {
	rfCases := map[string]func(*RandomForestParams){
		"no trees":          func(p *RandomForestParams) { p.NEstimators = 0 },
		"too many trees":    func(p *RandomForestParams) { p.NEstimators = common.MaxEstimators + 1 },
		"negative depth":    func(p *RandomForestParams) { p.MaxDepth = -1 },
		"split below two":   func(p *RandomForestParams) { p.MinSamplesSplit = 1 },
		"empty leaf":        func(p *RandomForestParams) { p.MinSamplesLeaf = 0 },
		"negative features": func(p *RandomForestParams) { p.MaxFeatures = -2 },
		"negative workers":  func(p *RandomForestParams) { p.Workers = -1 },
	}
	for name, mutate := range rfCases {
		t.Run("random_forest/"+name, func(t *testing.T) {
			p := DefaultRandomForestParams()
			mutate(&p)
			_, err := NewRandomForest(p, nil)
			assert.ErrorIs(t, err, common.ErrConfig)
		})
	}

	gbCases := map[string]func(*GradientBoostingParams){
		"no rounds":         func(p *GradientBoostingParams) { p.NEstimators = 0 },
		"zero depth":        func(p *GradientBoostingParams) { p.MaxDepth = 0 },
		"zero rate":         func(p *GradientBoostingParams) { p.LearningRate = 0 },
		"rate above one":    func(p *GradientBoostingParams) { p.LearningRate = 1.5 },
		"negative lambda":   func(p *GradientBoostingParams) { p.Lambda = -1 },
		"negative weight":   func(p *GradientBoostingParams) { p.MinChildWeight = -0.1 },
		"zero subsample":    func(p *GradientBoostingParams) { p.Subsample = 0 },
		"subsample above 1": func(p *GradientBoostingParams) { p.Subsample = 1.1 },
	}
	for name, mutate := range gbCases {
		t.Run("gradient_boosting/"+name, func(t *testing.T) {
			p := DefaultGradientBoostingParams()
			mutate(&p)
			_, err := NewGradientBoosting(p, nil)
			assert.ErrorIs(t, err, common.ErrConfig)
		})
	}
}

func TestParamsFromMap(t *testing.T) {
	v, err := ParamsFromMap(common.BackendRandomForest, map[string]any{
		"n_estimators": 7,
		"max_depth":    3,
		"bootstrap":    false,
	})
	require.NoError(t, err)
	rf := v.(RandomForestParams)
	assert.Equal(t, 7, rf.NEstimators)
	assert.Equal(t, 3, rf.MaxDepth)
	assert.False(t, rf.Bootstrap)
	assert.Equal(t, 5, rf.MinSamplesSplit, "unset keys keep defaults")

	v, err = ParamsFromMap(common.BackendGradientBoosting, map[string]any{"learning_rate": 0.3})
	require.NoError(t, err)
	assert.Equal(t, 0.3, v.(GradientBoostingParams).LearningRate)

	_, err = ParamsFromMap(common.BackendGradientBoosting, map[string]any{"eta": 0.3})
	assert.ErrorIs(t, err, common.ErrConfig)

	_, err = ParamsFromMap(common.BackendRandomForest, map[string]any{"n_estimators": 0})
	assert.ErrorIs(t, err, common.ErrConfig)

	_, err = ParamsFromMap("svm", nil)
	assert.ErrorIs(t, err, common.ErrConfig)
}

func TestNewBackend(t *testing.T) {
	b, err := NewBackend(common.BackendRandomForest, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &RandomForest{}, b)

	b, err = NewBackend(common.BackendGradientBoosting, DefaultGradientBoostingParams(), nil)
	require.NoError(t, err)
	assert.IsType(t, &GradientBoosting{}, b)

	_, err = NewBackend(common.BackendGradientBoosting, DefaultRandomForestParams(), nil)
	assert.ErrorIs(t, err, common.ErrConfig)

	_, err = NewBackend("logistic_regression", nil, nil)
	assert.ErrorIs(t, err, common.ErrConfig)
}
