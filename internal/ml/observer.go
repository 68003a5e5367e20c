package ml

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Observer receives progress events from a training run. Implementations must
// not block; they run on the caller's goroutine.
type Observer interface {
	DataLoaded(rows, features int)
	TrainingStarted(name string, rows int)
	TrainingFinished(name string, elapsed time.Duration, err error)
	MetricsComputed(name string, m Metrics)
	ModelSelected(name, metric string, value float64)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) DataLoaded(int, int)                           {}
func (NopObserver) TrainingStarted(string, int)                   {}
func (NopObserver) TrainingFinished(string, time.Duration, error) {}
func (NopObserver) MetricsComputed(string, Metrics)               {}
func (NopObserver) ModelSelected(string, string, float64)         {}

// LogObserver writes each event as a structured log line.
type LogObserver struct {
	logger zerolog.Logger
}

// NewLogObserver logs through l, or the global logger when l is nil.
func NewLogObserver(l *zerolog.Logger) *LogObserver {
	if l == nil {
		return &LogObserver{logger: log.Logger}
	}
	return &LogObserver{logger: *l}
}

func (o *LogObserver) DataLoaded(rows, features int) {
	o.logger.Info().Int("rows", rows).Int("features", features).Msg("Data loaded")
}

func (o *LogObserver) TrainingStarted(name string, rows int) {
	o.logger.Info().Str("model", name).Int("rows", rows).Msg("Training started")
}

func (o *LogObserver) TrainingFinished(name string, elapsed time.Duration, err error) {
	if err != nil {
		o.logger.Error().Err(err).Str("model", name).Dur("elapsed", elapsed).Msg("Training failed")
		return
	}
	o.logger.Info().Str("model", name).Dur("elapsed", elapsed).Msg("Training finished")
}

func (o *LogObserver) MetricsComputed(name string, m Metrics) {
	ev := o.logger.Info().Str("model", name)
	for k, v := range m {
		ev = ev.Float64(k, v)
	}
	ev.Msg("Metrics computed")
}

func (o *LogObserver) ModelSelected(name, metric string, value float64) {
	o.logger.Info().Str("model", name).Str("metric", metric).Float64("value", value).Msg("Model selected")
}

// Observers fans every event out to each member in order.
type Observers []Observer

func (obs Observers) DataLoaded(rows, features int) {
	for _, o := range obs {
		o.DataLoaded(rows, features)
	}
}

func (obs Observers) TrainingStarted(name string, rows int) {
	for _, o := range obs {
		o.TrainingStarted(name, rows)
	}
}

func (obs Observers) TrainingFinished(name string, elapsed time.Duration, err error) {
	for _, o := range obs {
		o.TrainingFinished(name, elapsed, err)
	}
}

func (obs Observers) MetricsComputed(name string, m Metrics) {
	for _, o := range obs {
		o.MetricsComputed(name, m)
	}
}

func (obs Observers) ModelSelected(name, metric string, value float64) {
	for _, o := range obs {
		o.ModelSelected(name, metric, value)
	}
}
