package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pump-predictor/internal/common"
	"pump-predictor/internal/ml"
	"pump-predictor/internal/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedResult() *pipeline.Result {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &pipeline.Result{
		RunID:      "run-1",
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Rows:       10,
		FitScope:   common.FitScopeTrain,
		TrainIndex: []int{0, 1, 2, 3, 4, 5, 6, 7},
		TestIndex:  []int{8, 9},
		Selection: &ml.Selection{
			Winner:        ml.Candidate{Name: common.BackendGradientBoosting},
			WinnerMetrics: ml.Metrics{common.MetricF1: 1, common.MetricAccuracy: 1, common.MetricPrecision: 1, common.MetricRecall: 1},
			Metric:        common.MetricF1,
			All: map[string]ml.Metrics{
				common.BackendRandomForest:     {common.MetricF1: 0.5, common.MetricAccuracy: 0.5, common.MetricPrecision: 0.5, common.MetricRecall: 0.5},
				common.BackendGradientBoosting: {common.MetricF1: 1, common.MetricAccuracy: 1, common.MetricPrecision: 1, common.MetricRecall: 1},
			},
			Confusion: map[string]ml.ConfusionMatrix{
				common.BackendRandomForest:     {TP: 1, FN: 1},
				common.BackendGradientBoosting: {TP: 1, TN: 1},
			},
			Importance: map[string]map[string]float64{
				common.BackendRandomForest:     {"pressure": 0.25, "vibration": 0.75},
				common.BackendGradientBoosting: {"pressure": 0.5, "vibration": 0.5},
			},
			Order:    []string{common.BackendRandomForest, common.BackendGradientBoosting},
			Failures: map[string]error{"svm": errors.New("boom")},
		},
	}
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewReporter(fixedResult(), "").WithVersion("v-1").WriteSummary(&buf))
	out := buf.String()

	assert.Contains(t, out, "Rows: 10 (train 8, test 2)")
	assert.Contains(t, out, "Duration: 1.5s")
	assert.Contains(t, out, "Stored version: v-1")
	assert.Contains(t, out, "*gradient_boosting")
	assert.Contains(t, out, " random_forest")
	assert.Contains(t, out, "!svm")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "CONFUSION MATRIX (gradient_boosting)")
	// Equal scores fall back to name order.
	assert.Less(t, strings.Index(out, "pressure "), strings.Index(out, "vibration "))
	assert.Contains(t, out, strings.Repeat("#", 20))
}

func TestGenerateReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	require.NoError(t, NewReporter(fixedResult(), dir).GenerateReport())

	for _, name := range []string{SummaryFile, MetricsFile, ImportanceFile} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	raw, err := os.ReadFile(filepath.Join(dir, MetricsFile))
	require.NoError(t, err)
	var doc struct {
		Winner   string                        `json:"winner"`
		TestRows int                           `json:"test_rows"`
		Metrics  map[string]map[string]float64 `json:"metrics"`
		Failures map[string]string             `json:"failures"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, common.BackendGradientBoosting, doc.Winner)
	assert.Equal(t, 2, doc.TestRows)
	assert.Equal(t, 0.5, doc.Metrics[common.BackendRandomForest][common.MetricF1])
	assert.Equal(t, "boom", doc.Failures["svm"])

	f, err := os.Open(filepath.Join(dir, ImportanceFile))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"backend", "rank", "feature", "importance"}, rows[0])
	assert.Equal(t, []string{common.BackendRandomForest, "1", "vibration", "0.750000"}, rows[1])
	assert.Equal(t, []string{common.BackendGradientBoosting, "2", "vibration", "0.500000"}, rows[4])
}

func TestBar(t *testing.T) {
	assert.Equal(t, "", bar(0))
	assert.Equal(t, strings.Repeat("#", barWidth), bar(1))
	assert.Equal(t, strings.Repeat("#", barWidth), bar(3))
	assert.Equal(t, "", bar(-1))
}
