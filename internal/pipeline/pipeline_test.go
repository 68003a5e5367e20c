package pipeline

import (
	"math"
	"math/rand"
	"testing"

	"pump-predictor/internal/common"
	"pump-predictor/internal/dataset"
	"pump-predictor/internal/ml"
	"pump-predictor/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// synthetic returns n readings where worn pumps run hot, slow and shaky.
func synthetic(n int, seed int64) *dataset.Table {
	rng := rand.New(rand.NewSource(seed))
	records := make([]dataset.Record, n)
	for i := range records {
		worn := rng.Float64() < 0.3
		r := dataset.Record{
			Pressure:     100 + rng.NormFloat64()*3,
			Temperature:  85 + rng.NormFloat64()*2,
			Speed:        1750 + rng.NormFloat64()*5,
			Vibration:    2.5 + rng.NormFloat64()*0.3,
			OilLevel:     0.8 + rng.NormFloat64()*0.05,
			RuntimeHours: float64(1000 + i*10),
		}
		if worn {
			r.Pressure -= 15
			r.Temperature += 12
			r.Speed -= 30
			r.Vibration += 2.5
			r.NeedsMaintenance = 1
		}
		records[i] = r
	}
	return dataset.NewTable(records)
}

func smallConfig() Config {
	c := DefaultConfig()
	rf := ml.DefaultRandomForestParams()
	rf.NEstimators = 20
	gb := ml.DefaultGradientBoostingParams()
	gb.NEstimators = 20
	c.Params[common.BackendRandomForest] = rf
	c.Params[common.BackendGradientBoosting] = gb
	return c
}

func TestRun_SampleData(t *testing.T) {
	obs := ml.NewMockObserver()
	res, err := Run(dataset.Sample(), DefaultConfig(), obs)
	require.NoError(t, err)

	assert.Len(t, res.TestIndex, 1)
	assert.Len(t, res.TrainIndex, 4)
	assert.Equal(t, 5, res.Rows)
	assert.Equal(t, common.FitScopeTrain, res.FitScope)
	assert.NotEmpty(t, res.RunID)

	sel := res.Selection
	require.Len(t, sel.All, 2)
	for _, name := range []string{common.BackendRandomForest, common.BackendGradientBoosting} {
		f1 := sel.All[name][common.MetricF1]
		assert.GreaterOrEqual(t, f1, 0.0, name)
		assert.LessOrEqual(t, f1, 1.0, name)
	}
	assert.Contains(t, sel.Order, res.Winner().Name)
	assert.Equal(t, "data_loaded", obs.Events[0])
	assert.Equal(t, res.Winner().Name, obs.Selected)
}

func TestRun_Deterministic(t *testing.T) {
	table := synthetic(80, 3)
	a, err := Run(table, smallConfig(), nil)
	require.NoError(t, err)
	b, err := Run(table, smallConfig(), nil)
	require.NoError(t, err)

	assert.Equal(t, a.TestIndex, b.TestIndex)
	assert.Equal(t, a.Winner().Name, b.Winner().Name)
	assert.Equal(t, a.Selection.All, b.Selection.All)
}

func TestRun_LearnsSyntheticData(t *testing.T) {
	res, err := Run(synthetic(200, 11), smallConfig(), nil)
	require.NoError(t, err)
	assert.Len(t, res.TestIndex, 40)
	assert.Greater(t, res.Selection.WinnerMetrics[common.MetricAccuracy], 0.85)
}

func TestRun_FitScope(t *testing.T) {
	table := synthetic(60, 5)

	trainScope := smallConfig()
	full := smallConfig()
	full.FitScope = common.FitScopeFull

	a, err := Run(table, trainScope, nil)
	require.NoError(t, err)
	b, err := Run(table, full, nil)
	require.NoError(t, err)

	ca, _ := a.Transformer.ScaleStats()
	cb, _ := b.Transformer.ScaleStats()
	assert.NotEqual(t, ca, cb, "full scope must see the test rows")
	assert.Equal(t, common.FitScopeFull, b.FitScope)

	bad := smallConfig()
	bad.FitScope = "everything"
	_, err = Run(table, bad, nil)
	assert.ErrorIs(t, err, common.ErrConfig)
}

func TestRun_Errors(t *testing.T) {
	_, err := Run(dataset.NewTable(nil), DefaultConfig(), nil)
	assert.ErrorIs(t, err, common.ErrData)

	c := DefaultConfig()
	c.TestFraction = 1.5
	_, err = Run(dataset.Sample(), c, nil)
	assert.ErrorIs(t, err, common.ErrConfig)

	c = DefaultConfig()
	c.Backends = []string{"svm"}
	_, err = Run(dataset.Sample(), c, nil)
	assert.ErrorIs(t, err, common.ErrConfig)

	c = DefaultConfig()
	c.Backends = nil
	_, err = Run(dataset.Sample(), c, nil)
	assert.ErrorIs(t, err, common.ErrConfig)

	c = DefaultConfig()
	c.Metric = "auc"
	_, err = Run(dataset.Sample(), c, nil)
	assert.ErrorIs(t, err, common.ErrConfig)
}

func TestPersistAndLoadModel(t *testing.T) {
	store, err := storage.New(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	table := synthetic(100, 7)
	res, err := Run(table, smallConfig(), nil)
	require.NoError(t, err)

	v, run, err := res.Persist(store, "synthetic")
	require.NoError(t, err)
	assert.True(t, v.IsActive)
	assert.Equal(t, res.Winner().Name, v.Backend)
	assert.Equal(t, res.RunID, v.RunID)
	assert.Equal(t, v.ID, run.VersionID)
	assert.Equal(t, 80, run.TrainRows)
	assert.Equal(t, 20, run.TestRows)
	assert.Len(t, run.Metrics, 2)

	latest, err := store.LatestRun()
	require.NoError(t, err)
	assert.Equal(t, res.RunID, latest.ID)

	model, err := LoadModel(store, "")
	require.NoError(t, err)
	assert.Equal(t, v.ID, model.Version.ID)

	proba, labels, err := model.Score(table)
	require.NoError(t, err)
	require.Len(t, proba, table.Len())

	X, _, err := res.Transformer.Transform(table)
	require.NoError(t, err)
	want, err := res.Winner().Backend.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, want, labels)
	for i, p := range proba {
		assert.False(t, math.IsNaN(p))
		assert.Equal(t, p > common.DecisionThreshold, labels[i] == 1)
	}

	byID, err := LoadModel(store, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.ID, byID.Version.ID)

	_, err = LoadModel(store, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPersist_SecondRunRollsBack(t *testing.T) {
	store, err := storage.New(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	first, err := Run(synthetic(60, 1), smallConfig(), nil)
	require.NoError(t, err)
	v1, _, err := first.Persist(store, "a")
	require.NoError(t, err)

	second, err := Run(synthetic(60, 2), smallConfig(), nil)
	require.NoError(t, err)
	v2, _, err := second.Persist(store, "b")
	require.NoError(t, err)

	current, err := store.Current()
	require.NoError(t, err)
	assert.Equal(t, v2.ID, current.ID)

	back, err := store.Rollback()
	require.NoError(t, err)
	assert.Equal(t, v1.ID, back.ID)
}
