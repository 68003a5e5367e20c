package features

import (
	"container/ring"

	"gonum.org/v1/gonum/stat"
)

// rollingWindow keeps the trailing size values of an ordered series.
type rollingWindow struct {
	ring  *ring.Ring
	count int
	buf   []float64
}

func newRollingWindow(size int) *rollingWindow {
	if size <= 0 {
		size = 1
	}
	return &rollingWindow{ring: ring.New(size), buf: make([]float64, 0, size)}
}

func (w *rollingWindow) Add(v float64) {
	w.ring.Value = v
	w.ring = w.ring.Next()
	if w.count < w.ring.Len() {
		w.count++
	}
}

func (w *rollingWindow) values() []float64 {
	w.buf = w.buf[:0]
	w.ring.Do(func(x any) {
		if v, ok := x.(float64); ok {
			w.buf = append(w.buf, v)
		}
	})
	return w.buf
}

// Mean averages whatever has been seen, up to the window size.
func (w *rollingWindow) Mean() float64 {
	if w.count == 0 {
		return 0
	}
	return stat.Mean(w.values(), nil)
}

// StdDev is the sample standard deviation; 0 with fewer than two values.
func (w *rollingWindow) StdDev() float64 {
	if w.count < 2 {
		return 0
	}
	return stat.StdDev(w.values(), nil)
}

// rollingMean returns the min-period-1 trailing mean for every position.
func rollingMean(series []float64, window int) []float64 {
	w := newRollingWindow(window)
	out := make([]float64, len(series))
	for i, v := range series {
		w.Add(v)
		out[i] = w.Mean()
	}
	return out
}

// rollingStd returns the trailing sample standard deviation for every position.
func rollingStd(series []float64, window int) []float64 {
	w := newRollingWindow(window)
	out := make([]float64, len(series))
	for i, v := range series {
		w.Add(v)
		out[i] = w.StdDev()
	}
	return out
}
