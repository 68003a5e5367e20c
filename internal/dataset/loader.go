package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"pump-predictor/internal/common"

	"github.com/rs/zerolog/log"
)

// LoadCSV reads a telemetry table from a CSV file with a header row.
// Columns are matched by name; unknown columns are ignored.
func LoadCSV(path string) (*Table, error) {
	return loadCSV(path, ReadCSV)
}

// LoadUnlabeledCSV is LoadCSV for readings that may lack the label column.
func LoadUnlabeledCSV(path string) (*Table, error) {
	return loadCSV(path, ReadUnlabeledCSV)
}

func loadCSV(path string, read func(io.Reader) (*Table, error)) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, common.DataError("dataset.LoadCSV", "path", path, "open: %w", err)
	}
	defer file.Close()

	t, err := read(file)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("path", path).
		Int("rows", t.Len()).
		Msg("Telemetry data loaded")

	return t, nil
}

// ReadCSV parses telemetry rows from r. Empty, "NA" and "NaN" cells are missing
// values; a missing or malformed label is an error.
func ReadCSV(r io.Reader) (*Table, error) {
	return readCSV(r, true)
}

// ReadUnlabeledCSV parses rows whose label column is optional. Rows of a file
// without labels get label 0.
func ReadUnlabeledCSV(r io.Reader) (*Table, error) {
	return readCSV(r, false)
}

func readCSV(r io.Reader, requireLabel bool) (*Table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, common.DataError("dataset.ReadCSV", "header", nil, "read header: %w", err)
	}

	// Map header indices
	indices := make(map[string]int)
	columns := make([]string, 0, len(header))
	for i, col := range header {
		name := strings.ToLower(strings.TrimSpace(col))
		indices[name] = i
		columns = append(columns, name)
	}

	t := NewTable(nil, columns...)
	required := common.SensorColumns
	if requireLabel {
		required = common.RequiredColumns
	}
	for _, c := range required {
		if !t.HasColumn(c) {
			return nil, common.DataError("dataset.ReadCSV", "column", c, "required column missing from header")
		}
	}

	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, common.DataError("dataset.ReadCSV", "line", line, "%w", err)
		}

		var rec Record
		for _, col := range common.BaseColumns {
			v := math.NaN()
			if idx, ok := indices[col]; ok {
				v, err = parseCell(record[idx])
				if err != nil {
					return nil, common.DataError("dataset.ReadCSV", col, record[idx], "line %d: %w", line, err)
				}
			}
			setValue(&rec, col, v)
		}

		if idx, ok := indices[common.ColLabel]; ok {
			raw := strings.TrimSpace(record[idx])
			label, err := strconv.Atoi(raw)
			if err != nil {
				if f, ferr := strconv.ParseFloat(raw, 64); ferr == nil && (f == 0 || f == 1) {
					label = int(f)
				} else {
					return nil, common.DataError("dataset.ReadCSV", common.ColLabel, raw, "line %d: invalid label", line)
				}
			}
			rec.NeedsMaintenance = label
		}

		t.Records = append(t.Records, rec)
	}

	if t.Len() == 0 {
		return nil, common.DataError("dataset.ReadCSV", "rows", 0, "no data rows")
	}
	return t, nil
}

// WriteCSV writes the table with every base column and the label.
func WriteCSV(w io.Writer, t *Table) error {
	writer := csv.NewWriter(w)

	header := append(append([]string{}, common.BaseColumns...), common.ColLabel)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, r := range t.Records {
		row := make([]string, 0, len(header))
		for _, col := range common.BaseColumns {
			v := r.Value(col)
			if math.IsNaN(v) {
				row = append(row, "")
				continue
			}
			row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
		}
		row = append(row, strconv.Itoa(r.NeedsMaintenance))
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "na", "nan", "null":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func setValue(r *Record, column string, v float64) {
	switch column {
	case common.ColPressure:
		r.Pressure = v
	case common.ColTemperature:
		r.Temperature = v
	case common.ColSpeed:
		r.Speed = v
	case common.ColVibration:
		r.Vibration = v
	case common.ColOilLevel:
		r.OilLevel = v
	case common.ColRuntimeHours:
		r.RuntimeHours = v
	}
}
