package ml

import (
	"sync"
	"time"
)

// MockObserver records events for tests.
type MockObserver struct {
	mu       sync.Mutex
	Events   []string
	Rows     int
	Started  []string
	Finished map[string]error
	Scores   map[string]Metrics
	Selected string
}

func NewMockObserver() *MockObserver {
	return &MockObserver{
		Finished: make(map[string]error),
		Scores:   make(map[string]Metrics),
	}
}

func (m *MockObserver) DataLoaded(rows, features int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Rows = rows
	m.Events = append(m.Events, "data_loaded")
}

func (m *MockObserver) TrainingStarted(name string, rows int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Started = append(m.Started, name)
	m.Events = append(m.Events, "training_started:"+name)
}

func (m *MockObserver) TrainingFinished(name string, elapsed time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Finished[name] = err
	m.Events = append(m.Events, "training_finished:"+name)
}

func (m *MockObserver) MetricsComputed(name string, metrics Metrics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Scores[name] = metrics
	m.Events = append(m.Events, "metrics_computed:"+name)
}

func (m *MockObserver) ModelSelected(name, metric string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Selected = name
	m.Events = append(m.Events, "model_selected:"+name)
}
