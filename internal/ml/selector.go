package ml

import (
	"errors"
	"fmt"
	"time"

	"pump-predictor/internal/common"
	"pump-predictor/internal/split"
)

// Selection is the outcome of comparing candidates on one split.
type Selection struct {
	Winner        Candidate
	WinnerMetrics Metrics
	Metric        string

	// Scores and importances of every candidate that trained, keyed by name.
	All        map[string]Metrics
	Confusion  map[string]ConfusionMatrix
	Importance map[string]map[string]float64

	// Order lists the successful candidates in input order.
	Order    []string
	Failures map[string]error
}

// Select trains every candidate on the training side of s, scores it on the
// test side and returns the one with the highest metric. The earliest
// candidate keeps a tie. A candidate that fails is recorded and skipped; if
// none succeed the returned error joins every failure.
func Select(candidates []Candidate, s split.Split, metric string, obs Observer) (*Selection, error) {
	const op = "ml.Select"
	if metric == "" {
		metric = common.DefaultMetric
	}
	if !knownMetric(metric) {
		return nil, common.ConfigError(op, "metric", metric, "must be one of %v", common.MetricNames)
	}
	if len(candidates) == 0 {
		return nil, common.ConfigError(op, "candidates", 0, "nothing to select from")
	}
	if obs == nil {
		obs = NopObserver{}
	}

	sel := &Selection{
		Metric:     metric,
		All:        make(map[string]Metrics, len(candidates)),
		Confusion:  make(map[string]ConfusionMatrix, len(candidates)),
		Importance: make(map[string]map[string]float64, len(candidates)),
		Failures:   make(map[string]error),
	}

	found := false
	best := 0.0
	for _, c := range candidates {
		if _, dup := sel.All[c.Name]; dup || sel.Failures[c.Name] != nil {
			return nil, common.ConfigError(op, "candidate", c.Name, "duplicate candidate name")
		}

		m, cm, imp, err := runCandidate(c, s, obs)
		if err != nil {
			sel.Failures[c.Name] = err
			continue
		}

		sel.All[c.Name] = m
		sel.Confusion[c.Name] = cm
		sel.Importance[c.Name] = imp
		sel.Order = append(sel.Order, c.Name)

		if !found || m[metric] > best {
			sel.Winner = c
			sel.WinnerMetrics = m
			best = m[metric]
			found = true
		}
	}

	if !found {
		errs := make([]error, 0, len(candidates))
		for _, c := range candidates {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name, sel.Failures[c.Name]))
		}
		return nil, &common.Error{Kind: common.ErrTraining, Op: op, Field: "candidates", Err: errors.Join(errs...)}
	}

	obs.ModelSelected(sel.Winner.Name, metric, best)
	return sel, nil
}

func runCandidate(c Candidate, s split.Split, obs Observer) (Metrics, ConfusionMatrix, map[string]float64, error) {
	var cm ConfusionMatrix
	if c.Backend == nil {
		err := common.ConfigError("ml.Select", "backend", c.Name, "candidate has no backend")
		obs.TrainingFinished(c.Name, 0, err)
		return nil, cm, nil, err
	}

	obs.TrainingStarted(c.Name, len(s.TrainX))
	start := time.Now()
	err := c.Backend.Train(s.TrainX, s.TrainY)
	obs.TrainingFinished(c.Name, time.Since(start), err)
	if err != nil {
		return nil, cm, nil, err
	}

	pred, err := c.Backend.Predict(s.TestX)
	if err != nil {
		return nil, cm, nil, err
	}
	cm, err = Confusion(s.TestY, pred)
	if err != nil {
		return nil, cm, nil, err
	}
	m := cm.Metrics()
	obs.MetricsComputed(c.Name, m)

	imp, err := c.Backend.FeatureImportance()
	if err != nil {
		return nil, cm, nil, err
	}
	return m, cm, imp, nil
}
