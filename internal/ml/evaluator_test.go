package ml

import (
	"testing"

	"pump-predictor/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name  string
		yTrue []int
		yPred []int
		want  Metrics
	}{
		{
			name:  "perfect",
			yTrue: []int{0, 1, 1, 0},
			yPred: []int{0, 1, 1, 0},
			want:  Metrics{"accuracy": 1, "precision": 1, "recall": 1, "f1": 1},
		},
		{
			name:  "all wrong",
			yTrue: []int{0, 1, 1, 0},
			yPred: []int{1, 0, 0, 1},
			want:  Metrics{"accuracy": 0, "precision": 0, "recall": 0, "f1": 0},
		},
		{
			name:  "no positive predictions",
			yTrue: []int{1, 0, 0},
			yPred: []int{0, 0, 0},
			want:  Metrics{"accuracy": 2.0 / 3, "precision": 0, "recall": 0, "f1": 0},
		},
		{
			name:  "no positive labels",
			yTrue: []int{0, 0},
			yPred: []int{0, 0},
			want:  Metrics{"accuracy": 1, "precision": 0, "recall": 0, "f1": 0},
		},
		{
			name:  "mixed",
			yTrue: []int{1, 1, 1, 0, 0},
			yPred: []int{1, 1, 0, 1, 0},
			want:  Metrics{"accuracy": 0.6, "precision": 2.0 / 3, "recall": 2.0 / 3, "f1": 2.0 / 3},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Evaluate(tc.yTrue, tc.yPred)
			require.NoError(t, err)
			require.Len(t, got, len(common.MetricNames))
			for k, v := range tc.want {
				assert.InDelta(t, v, got[k], 1e-12, k)
			}
		})
	}
}

func TestEvaluate_Errors(t *testing.T) {
	_, err := Evaluate(nil, nil)
	assert.ErrorIs(t, err, common.ErrData)

	_, err = Evaluate([]int{0, 1}, []int{0})
	assert.ErrorIs(t, err, common.ErrData)

	_, err = Evaluate([]int{0, 2}, []int{0, 1})
	assert.ErrorIs(t, err, common.ErrData)

	_, err = Evaluate([]int{0, 1}, []int{-1, 1})
	assert.ErrorIs(t, err, common.ErrData)
}

func TestConfusion(t *testing.T) {
	cm, err := Confusion([]int{1, 1, 1, 0, 0, 0}, []int{1, 0, 1, 1, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, ConfusionMatrix{TP: 2, FP: 1, TN: 2, FN: 1}, cm)
	assert.Equal(t, 6, cm.Total())
}

func TestMetrics_String(t *testing.T) {
	m := Metrics{"f1": 0.5, "accuracy": 1}
	assert.Equal(t, "accuracy=1.0000 f1=0.5000", m.String())
	assert.Equal(t, 0.5, m.Get("f1"))
	assert.Equal(t, 0.0, m.Get("auc"))
}
