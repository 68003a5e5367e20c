// Package dataset holds the pump telemetry table and its loaders.
//
// A Table keeps rows in source order; rolling-window features depend on it.
// Missing sensor values are represented as NaN and resolved later by the
// feature transformer.
package dataset

import (
	"math"

	"pump-predictor/internal/common"
)

// Record is one sensor reading with its maintenance label.
type Record struct {
	Pressure         float64 `json:"pressure"`
	Temperature      float64 `json:"temperature"`
	Speed            float64 `json:"speed"`
	Vibration        float64 `json:"vibration"`
	OilLevel         float64 `json:"oil_level"`
	RuntimeHours     float64 `json:"runtime_hours"`
	NeedsMaintenance int     `json:"needs_maintenance"`
}

// Value returns the raw value for a base column, NaN for unknown names.
func (r Record) Value(column string) float64 {
	switch column {
	case common.ColPressure:
		return r.Pressure
	case common.ColTemperature:
		return r.Temperature
	case common.ColSpeed:
		return r.Speed
	case common.ColVibration:
		return r.Vibration
	case common.ColOilLevel:
		return r.OilLevel
	case common.ColRuntimeHours:
		return r.RuntimeHours
	}
	return math.NaN()
}

// Table is an ordered set of records plus the columns present in the source.
type Table struct {
	Records []Record
	columns map[string]bool
}

// NewTable builds a table from records. columns names the source columns;
// with no columns given, every base column and the label are assumed present.
func NewTable(records []Record, columns ...string) *Table {
	t := &Table{Records: records, columns: make(map[string]bool)}
	if len(columns) == 0 {
		columns = append(append([]string{}, common.BaseColumns...), common.ColLabel)
	}
	for _, c := range columns {
		t.columns[c] = true
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// HasColumn reports whether the source carried the column.
func (t *Table) HasColumn(name string) bool {
	return t != nil && t.columns[name]
}

// Column returns a copy of a base column, NaN where the column is absent.
func (t *Table) Column(name string) []float64 {
	out := make([]float64, len(t.Records))
	present := t.HasColumn(name)
	for i, r := range t.Records {
		if !present {
			out[i] = math.NaN()
			continue
		}
		out[i] = r.Value(name)
	}
	return out
}

// Labels returns the label column.
func (t *Table) Labels() []int {
	out := make([]int, len(t.Records))
	for i, r := range t.Records {
		out[i] = r.NeedsMaintenance
	}
	return out
}

// Validate checks that the required columns exist and the table is non-empty.
func (t *Table) Validate() error {
	if err := t.ValidateFeatures(); err != nil {
		return err
	}
	if !t.HasColumn(common.ColLabel) {
		return common.DataError("dataset.Validate", "column", common.ColLabel, "required column missing")
	}
	for i, r := range t.Records {
		if r.NeedsMaintenance != 0 && r.NeedsMaintenance != 1 {
			return common.DataError("dataset.Validate", "needs_maintenance", r.NeedsMaintenance, "row %d: label must be 0 or 1", i)
		}
	}
	return nil
}

// ValidateFeatures is Validate without the label, for scoring new readings.
func (t *Table) ValidateFeatures() error {
	if t.Len() == 0 {
		return common.DataError("dataset.Validate", "rows", 0, "dataset has no rows")
	}
	for _, c := range common.SensorColumns {
		if !t.HasColumn(c) {
			return common.DataError("dataset.Validate", "column", c, "required column missing")
		}
	}
	return nil
}

// Sample returns the five-reading reference data set. oil_level and
// runtime_hours are not part of it.
func Sample() *Table {
	nan := math.NaN()
	records := []Record{
		{Pressure: 100, Temperature: 85, Speed: 1750, Vibration: 2.5, OilLevel: nan, RuntimeHours: nan, NeedsMaintenance: 0},
		{Pressure: 95, Temperature: 90, Speed: 1745, Vibration: 3.2, OilLevel: nan, RuntimeHours: nan, NeedsMaintenance: 0},
		{Pressure: 85, Temperature: 95, Speed: 1730, Vibration: 4.8, OilLevel: nan, RuntimeHours: nan, NeedsMaintenance: 1},
		{Pressure: 105, Temperature: 82, Speed: 1755, Vibration: 2.1, OilLevel: nan, RuntimeHours: nan, NeedsMaintenance: 0},
		{Pressure: 80, Temperature: 98, Speed: 1720, Vibration: 5.2, OilLevel: nan, RuntimeHours: nan, NeedsMaintenance: 1},
	}
	return NewTable(records,
		common.ColPressure, common.ColTemperature, common.ColSpeed, common.ColVibration, common.ColLabel)
}
