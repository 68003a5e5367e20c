package features

import (
	"encoding/json"
	"math"
	"testing"

	"pump-predictor/internal/common"
	"pump-predictor/internal/dataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDefault(t *testing.T) *Transformer {
	t.Helper()
	tr, err := New(DefaultOptions())
	require.NoError(t, err)
	return tr
}

func TestRollingWindow(t *testing.T) {
	assert.Equal(t, []float64{1, 1.5, 2.5, 3.5}, rollingMean([]float64{1, 2, 3, 4}, 2))

	// Fewer rows than the window: average what is available.
	means := rollingMean([]float64{100, 95, 85, 105, 80}, 24)
	assert.InDelta(t, 100, means[0], 1e-12)
	assert.InDelta(t, 97.5, means[1], 1e-12)
	assert.InDelta(t, 93.0, means[4], 1e-12)

	stds := rollingStd([]float64{2.5, 3.2, 4.8}, 24)
	assert.Equal(t, 0.0, stds[0])
	assert.InDelta(t, math.Sqrt(0.245), stds[1], 1e-12)
	assert.InDelta(t, 1.1789826122551597, stds[2], 1e-9)

	// Window of one never has two samples.
	assert.Equal(t, []float64{0, 0, 0}, rollingStd([]float64{1, 5, 9}, 1))
}

func TestTransformer_FeatureLayout(t *testing.T) {
	tr := newDefault(t)
	want := []string{
		"pressure", "temperature", "speed", "vibration", "oil_level", "runtime_hours",
		"pressure_rolling_mean", "vibration_rolling_std", "pressure_temp_interaction", "efficiency_score",
	}
	assert.Equal(t, want, tr.FeatureNames())

	subset, err := New(Options{Engineered: []string{common.FeatEfficiencyScore, common.FeatPressureRollingMean}})
	require.NoError(t, err)
	names := subset.FeatureNames()
	assert.Equal(t, []string{common.FeatPressureRollingMean, common.FeatEfficiencyScore}, names[6:])

	none, err := New(Options{Engineered: []string{}})
	require.NoError(t, err)
	assert.Len(t, none.FeatureNames(), len(common.BaseColumns))
}

func TestTransformer_FitTransformSample(t *testing.T) {
	tr := newDefault(t)
	X, y, err := tr.FitTransform(dataset.Sample(), nil)
	require.NoError(t, err)

	require.Len(t, X, 5)
	assert.Equal(t, []int{0, 0, 1, 0, 1}, y)
	for _, row := range X {
		require.Len(t, row, 10)
		for _, v := range row {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
		}
	}

	// Standardised columns: zero mean, unit population variance.
	for j := 0; j < 4; j++ {
		var sum, sq float64
		for _, row := range X {
			sum += row[j]
			sq += row[j] * row[j]
		}
		assert.InDelta(t, 0, sum/5, 1e-9, "column %d mean", j)
		assert.InDelta(t, 1, sq/5, 1e-9, "column %d variance", j)
	}

	// Absent optional columns impute to a constant and scale to zero.
	for _, row := range X {
		assert.Equal(t, 0.0, row[4])
		assert.Equal(t, 0.0, row[5])
	}
}

func TestTransformer_Deterministic(t *testing.T) {
	table := dataset.Sample()
	tr := newDefault(t)
	require.NoError(t, tr.Fit(table, []int{0, 1, 3, 4}))

	first, _, err := tr.Transform(table)
	require.NoError(t, err)
	second, _, err := tr.Transform(table)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other := newDefault(t)
	third, _, err := other.FitTransform(table, []int{0, 1, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, first, third)
}

func TestTransformer_StatisticsNotRecomputed(t *testing.T) {
	tr := newDefault(t)
	require.NoError(t, tr.Fit(dataset.Sample(), nil))
	center, scale := tr.ScaleStats()

	shifted := dataset.Sample()
	for i := range shifted.Records {
		shifted.Records[i].Pressure += 1000
	}
	X, _, err := tr.Transform(shifted)
	require.NoError(t, err)

	c2, s2 := tr.ScaleStats()
	assert.Equal(t, center, c2)
	assert.Equal(t, scale, s2)
	assert.Greater(t, X[0][0], 10.0)
}

// Fitting over every row lets test rows shape the statistics the model is
// trained with. The fit scope must therefore change the captured values.
func TestTransformer_FitScopeLeakage(t *testing.T) {
	table := dataset.Sample()
	table.Records[1].Pressure = math.NaN()
	train := []int{0, 1, 3, 4}

	full := newDefault(t)
	require.NoError(t, full.Fit(table, nil))
	scoped := newDefault(t)
	require.NoError(t, scoped.Fit(table, train))

	// Imputation mean: full scope sees the test row (pressure 85).
	assert.InDelta(t, (100.0+85+105+80)/4, full.ImputeMeans()[common.ColPressure], 1e-12)
	assert.InDelta(t, (100.0+105+80)/3, scoped.ImputeMeans()[common.ColPressure], 1e-12)

	fc, _ := full.ScaleStats()
	sc, _ := scoped.ScaleStats()
	assert.NotEqual(t, fc[0], sc[0], "full-scope scaling leaks test statistics")
}

func TestTransformer_MissingPolicies(t *testing.T) {
	table := dataset.Sample()
	table.Records[2].Vibration = math.NaN()

	zero, err := New(Options{Missing: MissingZero, Engineered: []string{}})
	require.NoError(t, err)
	require.NoError(t, zero.Fit(table, nil))
	assert.Equal(t, 0.0, zero.ImputeMeans()[common.ColVibration])

	strict, err := New(Options{Missing: MissingError})
	require.NoError(t, err)
	err = strict.Fit(table, nil)
	assert.ErrorIs(t, err, common.ErrData)
	assert.Contains(t, err.Error(), common.ColVibration)

	// Absent optional columns are not missing values.
	require.NoError(t, strict.Fit(dataset.Sample(), nil))
}

func TestTransformer_EfficiencyGuard(t *testing.T) {
	table := dataset.Sample()
	table.Records[0].Temperature = -1

	tr, err := New(Options{Scaling: ScalingMinMax})
	require.NoError(t, err)
	X, _, err := tr.FitTransform(table, nil)
	require.NoError(t, err)
	for _, row := range X {
		assert.False(t, math.IsInf(row[9], 0) || math.IsNaN(row[9]))
		assert.GreaterOrEqual(t, row[9], 0.0)
		assert.LessOrEqual(t, row[9], 1.0)
	}
}

func TestTransformer_Errors(t *testing.T) {
	tr := newDefault(t)

	_, _, err := tr.Transform(dataset.Sample())
	assert.ErrorIs(t, err, common.ErrNotTrained)

	err = tr.Fit(dataset.NewTable(nil), nil)
	assert.ErrorIs(t, err, common.ErrData)

	noVibration := dataset.NewTable(dataset.Sample().Records,
		common.ColPressure, common.ColTemperature, common.ColSpeed, common.ColLabel)
	err = tr.Fit(noVibration, nil)
	assert.ErrorIs(t, err, common.ErrData)
	assert.Contains(t, err.Error(), common.ColVibration)

	err = tr.Fit(dataset.Sample(), []int{0, 9})
	assert.ErrorIs(t, err, common.ErrData)

	err = tr.Fit(dataset.Sample(), []int{})
	assert.ErrorIs(t, err, common.ErrData)
}

func TestNew_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"negative window", Options{Window: -3}},
		{"huge window", Options{Window: common.MaxWindow + 1}},
		{"unknown policy", Options{Missing: "median"}},
		{"unknown scaling", Options{Scaling: "robust"}},
		{"unknown feature", Options{Engineered: []string{"oil_ratio"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.opts)
			assert.ErrorIs(t, err, common.ErrConfig)
		})
	}
}

func TestTransformer_JSONRoundTrip(t *testing.T) {
	table := dataset.Sample()
	tr, err := New(Options{Window: 3})
	require.NoError(t, err)
	require.NoError(t, tr.Fit(table, []int{0, 2, 4}))

	data, err := json.Marshal(tr)
	require.NoError(t, err)

	var restored Transformer
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.True(t, restored.Fitted())
	assert.Equal(t, tr.FeatureNames(), restored.FeatureNames())
	assert.Equal(t, 3, restored.Options().Window)

	want, _, err := tr.Transform(table)
	require.NoError(t, err)
	got, _, err := restored.Transform(table)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = json.Marshal(newDefault(t))
	assert.Error(t, err)

	assert.ErrorIs(t, restored.UnmarshalJSON([]byte(`{"options":{},"names":[],"impute_means":[1],"center":[],"scale":[]}`)), common.ErrPersistence)
}

func TestTransformer_TransformFeaturesUnlabeled(t *testing.T) {
	tr := newDefault(t)
	sample := dataset.Sample()
	require.NoError(t, tr.Fit(sample, nil))

	want, _, err := tr.Transform(sample)
	require.NoError(t, err)

	unlabeled := dataset.NewTable(sample.Records,
		common.ColPressure, common.ColTemperature, common.ColSpeed, common.ColVibration,
		common.ColOilLevel, common.ColRuntimeHours)
	got, err := tr.TransformFeatures(unlabeled)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, _, err = tr.Transform(unlabeled)
	assert.ErrorIs(t, err, common.ErrData)

	_, err = newDefault(t).TransformFeatures(sample)
	assert.ErrorIs(t, err, common.ErrNotTrained)
}
