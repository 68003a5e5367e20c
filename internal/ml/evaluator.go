package ml

import (
	"fmt"
	"sort"
	"strings"

	"pump-predictor/internal/common"
)

// Metrics maps a metric name (accuracy, precision, recall, f1) to its value.
type Metrics map[string]float64

// Get returns the named metric or 0.
func (m Metrics) Get(name string) float64 { return m[name] }

func (m Metrics) String() string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%.4f", k, m[k])
	}
	return strings.Join(parts, " ")
}

// ConfusionMatrix counts predictions against ground truth for the positive
// class 1.
type ConfusionMatrix struct {
	TP int `json:"tp"`
	FP int `json:"fp"`
	TN int `json:"tn"`
	FN int `json:"fn"`
}

// Total is the number of scored rows.
func (c ConfusionMatrix) Total() int { return c.TP + c.FP + c.TN + c.FN }

// Confusion tallies yPred against yTrue.
func Confusion(yTrue, yPred []int) (ConfusionMatrix, error) {
	const op = "ml.Confusion"
	var c ConfusionMatrix
	if len(yTrue) == 0 {
		return c, common.DataError(op, "labels", 0, "nothing to evaluate")
	}
	if len(yTrue) != len(yPred) {
		return c, common.DataError(op, "predictions", len(yPred), "have %d labels and %d predictions", len(yTrue), len(yPred))
	}
	for i := range yTrue {
		t, p := yTrue[i], yPred[i]
		if (t != 0 && t != 1) || (p != 0 && p != 1) {
			return c, common.DataError(op, "label", fmt.Sprintf("%d/%d", t, p), "row %d: labels must be 0 or 1", i)
		}
		switch {
		case t == 1 && p == 1:
			c.TP++
		case t == 0 && p == 1:
			c.FP++
		case t == 0 && p == 0:
			c.TN++
		default:
			c.FN++
		}
	}
	return c, nil
}

// Metrics derives the standard scores. Any ratio with a zero denominator is 0.
func (c ConfusionMatrix) Metrics() Metrics {
	precision := ratio(c.TP, c.TP+c.FP)
	recall := ratio(c.TP, c.TP+c.FN)
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return Metrics{
		common.MetricAccuracy:  ratio(c.TP+c.TN, c.Total()),
		common.MetricPrecision: precision,
		common.MetricRecall:    recall,
		common.MetricF1:        f1,
	}
}

// Evaluate scores binary predictions against ground truth.
func Evaluate(yTrue, yPred []int) (Metrics, error) {
	c, err := Confusion(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	return c.Metrics(), nil
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func knownMetric(name string) bool {
	for _, m := range common.MetricNames {
		if m == name {
			return true
		}
	}
	return false
}
