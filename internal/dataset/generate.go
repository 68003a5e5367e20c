package dataset

import (
	"math"
	"math/rand"
)

// GenerateOptions tunes the synthetic telemetry produced by Generate.
type GenerateOptions struct {
	Rows int
	Seed int64

	// Pumps cycles through this many units, each wearing out independently.
	Pumps int

	// FailureRate is the per-reading chance a healthy pump starts degrading.
	FailureRate float64
}

// DefaultGenerateOptions returns options producing roughly a quarter of
// readings that need maintenance.
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{Rows: 1000, Seed: 42, Pumps: 5, FailureRate: 0.02}
}

type pumpState struct {
	runtime float64
	wear    float64 // 0 healthy, 1 fully degraded
	oil     float64
}

// Generate simulates hourly readings from a small fleet. Wear drifts pressure
// and speed down and temperature and vibration up; a reading is labelled for
// maintenance once wear passes one half. Serviced pumps reset to healthy.
func Generate(opts GenerateOptions) *Table {
	if opts.Pumps < 1 {
		opts.Pumps = 1
	}
	rng := rand.New(rand.NewSource(opts.Seed))

	pumps := make([]pumpState, opts.Pumps)
	for i := range pumps {
		pumps[i] = pumpState{runtime: 500 + rng.Float64()*1000, oil: 0.9}
	}

	records := make([]Record, 0, opts.Rows)
	for i := 0; i < opts.Rows; i++ {
		p := &pumps[i%opts.Pumps]

		p.runtime++
		p.oil -= 0.001 + rng.Float64()*0.002
		if p.wear > 0 {
			p.wear = math.Min(1, p.wear+0.02+rng.Float64()*0.03)
		} else if rng.Float64() < opts.FailureRate {
			p.wear = 0.05
		}

		w := p.wear
		r := Record{
			Pressure:     100 - 20*w + rng.NormFloat64()*2.5,
			Temperature:  84 + 15*w + rng.NormFloat64()*1.5,
			Speed:        1750 - 35*w + rng.NormFloat64()*4,
			Vibration:    2.4 + 3*w + math.Abs(rng.NormFloat64())*0.3,
			OilLevel:     math.Max(0.1, p.oil),
			RuntimeHours: math.Round(p.runtime),
		}
		if w > 0.5 || p.oil < 0.3 {
			r.NeedsMaintenance = 1
		}
		records = append(records, r)

		// Service after a degraded reading has been recorded.
		if w >= 1 || p.oil < 0.2 {
			*p = pumpState{runtime: 0, oil: 0.9}
		}
	}
	return NewTable(records)
}
