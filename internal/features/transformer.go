// Package features turns raw pump telemetry into scaled feature vectors.
//
// A Transformer is fit once per training run. Fit captures imputation means and
// scaling statistics over a chosen set of rows; every later Transform, including
// inference on new data, reuses those statistics unchanged.
package features

import (
	"encoding/json"
	"fmt"
	"math"

	"pump-predictor/internal/common"
	"pump-predictor/internal/dataset"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MissingPolicy selects how missing sensor values are filled.
type MissingPolicy string

const (
	MissingMean  MissingPolicy = "mean"
	MissingZero  MissingPolicy = "zero"
	MissingError MissingPolicy = "error"
)

// Scaling selects the column normalisation.
type Scaling string

const (
	ScalingStandard Scaling = "standard"
	ScalingMinMax   Scaling = "minmax"
)

// efficiencyEpsilon bounds |temperature + 1| away from zero.
const efficiencyEpsilon = 1e-6

// Options configures a Transformer.
type Options struct {
	Window     int           `yaml:"window" json:"window"`
	Missing    MissingPolicy `yaml:"missing" json:"missing"`
	Scaling    Scaling       `yaml:"scaling" json:"scaling"`
	Engineered []string      `yaml:"engineered" json:"engineered"`
}

// DefaultOptions returns a 24-row window, mean imputation, z-score scaling and
// all engineered features.
func DefaultOptions() Options {
	return Options{
		Window:     common.DefaultWindow,
		Missing:    MissingMean,
		Scaling:    ScalingStandard,
		Engineered: append([]string{}, common.EngineeredFeatures...),
	}
}

// Transformer performs deterministic feature engineering and scaling.
type Transformer struct {
	opts       Options
	names      []string
	engineered map[string]bool

	fitted      bool
	imputeMeans []float64 // one per base column
	center      []float64 // one per output feature
	scale       []float64
}

// New validates options and returns an unfitted transformer. A nil Engineered
// list enables every engineered feature; an empty one disables them all.
func New(opts Options) (*Transformer, error) {
	if opts.Window == 0 {
		opts.Window = common.DefaultWindow
	}
	if opts.Missing == "" {
		opts.Missing = MissingMean
	}
	if opts.Scaling == "" {
		opts.Scaling = ScalingStandard
	}
	if opts.Engineered == nil {
		opts.Engineered = append([]string{}, common.EngineeredFeatures...)
	}

	if opts.Window < common.MinWindow || opts.Window > common.MaxWindow {
		return nil, common.ConfigError("features.New", "window", opts.Window,
			"must be between %d and %d", common.MinWindow, common.MaxWindow)
	}
	switch opts.Missing {
	case MissingMean, MissingZero, MissingError:
	default:
		return nil, common.ConfigError("features.New", "missing", opts.Missing, "unknown missing-value policy")
	}
	switch opts.Scaling {
	case ScalingStandard, ScalingMinMax:
	default:
		return nil, common.ConfigError("features.New", "scaling", opts.Scaling, "unknown scaling")
	}

	enabled := make(map[string]bool, len(opts.Engineered))
	for _, name := range opts.Engineered {
		if !isEngineered(name) {
			return nil, common.ConfigError("features.New", "engineered", name, "unknown engineered feature")
		}
		enabled[name] = true
	}

	t := &Transformer{opts: opts, engineered: enabled}
	t.names = append(t.names, common.BaseColumns...)
	for _, name := range common.EngineeredFeatures {
		if enabled[name] {
			t.names = append(t.names, name)
		}
	}
	t.opts.Engineered = append([]string{}, t.names[len(common.BaseColumns):]...)
	return t, nil
}

// FeatureNames returns the output vector layout.
func (t *Transformer) FeatureNames() []string {
	return append([]string{}, t.names...)
}

// Options returns the normalised options.
func (t *Transformer) Options() Options {
	o := t.opts
	o.Engineered = append([]string{}, t.opts.Engineered...)
	return o
}

// Fitted reports whether statistics have been captured.
func (t *Transformer) Fitted() bool {
	return t.fitted
}

// Fit captures imputation and scaling statistics over the given rows of table.
// Passing nil rows fits over the whole table.
func (t *Transformer) Fit(table *dataset.Table, rows []int) error {
	if err := table.Validate(); err != nil {
		return err
	}
	if rows == nil {
		rows = allRows(table.Len())
	}
	if len(rows) == 0 {
		return common.DataError("features.Fit", "rows", 0, "fit scope is empty")
	}
	for _, r := range rows {
		if r < 0 || r >= table.Len() {
			return common.DataError("features.Fit", "row", r, "row index out of range [0,%d)", table.Len())
		}
	}

	raw := rawColumns(table)
	if err := t.checkMissing(table, raw); err != nil {
		return err
	}

	means := make([]float64, len(raw))
	for j, col := range raw {
		if t.opts.Missing != MissingMean {
			continue
		}
		observed := make([]float64, 0, len(rows))
		for _, r := range rows {
			if !math.IsNaN(col[r]) {
				observed = append(observed, col[r])
			}
		}
		if len(observed) > 0 {
			means[j] = stat.Mean(observed, nil)
		}
	}

	cols := t.engineer(impute(raw, means))

	center := make([]float64, len(cols))
	scale := make([]float64, len(cols))
	scoped := make([]float64, len(rows))
	for j, col := range cols {
		for i, r := range rows {
			scoped[i] = col[r]
		}
		switch t.opts.Scaling {
		case ScalingMinMax:
			lo, hi := floats.Min(scoped), floats.Max(scoped)
			center[j], scale[j] = lo, hi-lo
		default:
			center[j], scale[j] = stat.PopMeanStdDev(scoped, nil)
		}
		if scale[j] == 0 || math.IsNaN(scale[j]) {
			scale[j] = 1
		}
	}

	t.imputeMeans = means
	t.center = center
	t.scale = scale
	t.fitted = true
	return nil
}

// Transform engineers and scales every row of table with the fitted statistics.
// It returns the feature matrix and the label vector in table order.
func (t *Transformer) Transform(table *dataset.Table) ([][]float64, []int, error) {
	if !t.fitted {
		return nil, nil, common.NotTrainedError("features.Transform")
	}
	if err := table.Validate(); err != nil {
		return nil, nil, err
	}
	X, err := t.TransformFeatures(table)
	if err != nil {
		return nil, nil, err
	}
	return X, table.Labels(), nil
}

// TransformFeatures is Transform for tables without labels.
func (t *Transformer) TransformFeatures(table *dataset.Table) ([][]float64, error) {
	if !t.fitted {
		return nil, common.NotTrainedError("features.Transform")
	}
	if err := table.ValidateFeatures(); err != nil {
		return nil, err
	}

	raw := rawColumns(table)
	if err := t.checkMissing(table, raw); err != nil {
		return nil, err
	}
	cols := t.engineer(impute(raw, t.imputeMeans))

	n := table.Len()
	X := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, len(cols))
		for j, col := range cols {
			row[j] = (col[i] - t.center[j]) / t.scale[j]
		}
		X[i] = row
	}
	return X, nil
}

// FitTransform fits over rows and transforms the whole table.
func (t *Transformer) FitTransform(table *dataset.Table, rows []int) ([][]float64, []int, error) {
	if err := t.Fit(table, rows); err != nil {
		return nil, nil, err
	}
	return t.Transform(table)
}

// ImputeMeans returns the per-base-column fill values captured at fit.
func (t *Transformer) ImputeMeans() map[string]float64 {
	out := make(map[string]float64, len(t.imputeMeans))
	for j, v := range t.imputeMeans {
		out[common.BaseColumns[j]] = v
	}
	return out
}

// ScaleStats returns the per-feature centre and scale captured at fit.
func (t *Transformer) ScaleStats() (center, scale []float64) {
	return append([]float64{}, t.center...), append([]float64{}, t.scale...)
}

func (t *Transformer) checkMissing(table *dataset.Table, raw [][]float64) error {
	if t.opts.Missing != MissingError {
		return nil
	}
	for j, col := range raw {
		name := common.BaseColumns[j]
		if !table.HasColumn(name) {
			continue
		}
		for i, v := range col {
			if math.IsNaN(v) {
				return common.DataError("features", name, "NaN", "row %d: missing value with policy %q", i, t.opts.Missing)
			}
		}
	}
	return nil
}

// engineer appends the enabled engineered columns to the imputed base columns.
func (t *Transformer) engineer(base [][]float64) [][]float64 {
	pressure := base[0]
	temperature := base[1]
	speed := base[2]
	vibration := base[3]
	n := len(pressure)

	out := append([][]float64{}, base...)
	if t.engineered[common.FeatPressureRollingMean] {
		out = append(out, rollingMean(pressure, t.opts.Window))
	}
	if t.engineered[common.FeatVibrationRollingStd] {
		out = append(out, rollingStd(vibration, t.opts.Window))
	}
	if t.engineered[common.FeatPressureTempInter] {
		col := make([]float64, n)
		for i := range col {
			col[i] = pressure[i] * temperature[i]
		}
		out = append(out, col)
	}
	if t.engineered[common.FeatEfficiencyScore] {
		col := make([]float64, n)
		for i := range col {
			col[i] = speed[i] / guardDenominator(temperature[i]+1)
		}
		out = append(out, col)
	}
	return out
}

type transformerState struct {
	Options     Options   `json:"options"`
	Names       []string  `json:"names"`
	ImputeMeans []float64 `json:"impute_means"`
	Center      []float64 `json:"center"`
	Scale       []float64 `json:"scale"`
}

// MarshalJSON encodes the fitted state.
func (t *Transformer) MarshalJSON() ([]byte, error) {
	if !t.fitted {
		return nil, common.NotTrainedError("features.MarshalJSON")
	}
	return json.Marshal(transformerState{
		Options:     t.opts,
		Names:       t.names,
		ImputeMeans: t.imputeMeans,
		Center:      t.center,
		Scale:       t.scale,
	})
}

// UnmarshalJSON restores a fitted transformer.
func (t *Transformer) UnmarshalJSON(data []byte) error {
	var st transformerState
	if err := json.Unmarshal(data, &st); err != nil {
		return common.PersistenceError("features.UnmarshalJSON", err)
	}
	restored, err := New(st.Options)
	if err != nil {
		return common.PersistenceError("features.UnmarshalJSON", err)
	}
	if len(st.ImputeMeans) != len(common.BaseColumns) ||
		len(st.Center) != len(restored.names) || len(st.Scale) != len(restored.names) {
		return common.PersistenceError("features.UnmarshalJSON",
			fmt.Errorf("statistics do not match %d features", len(restored.names)))
	}
	for i, name := range st.Names {
		if i >= len(restored.names) || restored.names[i] != name {
			return common.PersistenceError("features.UnmarshalJSON",
				fmt.Errorf("feature layout mismatch at %d: %q", i, name))
		}
	}
	restored.imputeMeans = st.ImputeMeans
	restored.center = st.Center
	restored.scale = st.Scale
	restored.fitted = true
	*t = *restored
	return nil
}

func rawColumns(table *dataset.Table) [][]float64 {
	raw := make([][]float64, len(common.BaseColumns))
	for j, name := range common.BaseColumns {
		raw[j] = table.Column(name)
	}
	return raw
}

func impute(raw [][]float64, fill []float64) [][]float64 {
	out := make([][]float64, len(raw))
	for j, col := range raw {
		c := make([]float64, len(col))
		for i, v := range col {
			if math.IsNaN(v) {
				v = fill[j]
			}
			c[i] = v
		}
		out[j] = c
	}
	return out
}

func guardDenominator(d float64) float64 {
	if math.Abs(d) < efficiencyEpsilon {
		if d < 0 {
			return -efficiencyEpsilon
		}
		return efficiencyEpsilon
	}
	return d
}

func isEngineered(name string) bool {
	for _, n := range common.EngineeredFeatures {
		if n == name {
			return true
		}
	}
	return false
}

func allRows(n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}
