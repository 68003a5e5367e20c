// Package report writes the files describing one training run.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"pump-predictor/internal/common"
	"pump-predictor/internal/pipeline"

	"github.com/rs/zerolog/log"
)

// File names written by GenerateReport.
const (
	SummaryFile    = "summary.txt"
	MetricsFile    = "metrics.json"
	ImportanceFile = "feature_importance.csv"
)

const barWidth = 40

// Reporter generates training reports
type Reporter struct {
	result     *pipeline.Result
	outputPath string
	versionID  string
}

// NewReporter creates a new reporter
func NewReporter(result *pipeline.Result, outputPath string) *Reporter {
	return &Reporter{
		result:     result,
		outputPath: outputPath,
	}
}

// WithVersion records the stored version id in the report.
func (r *Reporter) WithVersion(id string) *Reporter {
	r.versionID = id
	return r
}

// GenerateReport generates all report formats
func (r *Reporter) GenerateReport() error {
	if err := os.MkdirAll(r.outputPath, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := r.generateSummary(); err != nil {
		return err
	}
	if err := r.generateJSONReport(); err != nil {
		return err
	}
	return r.generateImportanceReport()
}

func (r *Reporter) generateSummary() error {
	summaryPath := filepath.Join(r.outputPath, SummaryFile)
	file, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	if err := r.WriteSummary(file); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	log.Info().Str("file", summaryPath).Msg("Summary report generated")
	return nil
}

// WriteSummary writes the human-readable summary to w.
func (r *Reporter) WriteSummary(w io.Writer) error {
	res := r.result
	sel := res.Selection
	ew := &errWriter{w: w}

	ew.printf("PUMP MAINTENANCE TRAINING SUMMARY\n")
	ew.printf("=================================\n\n")
	ew.printf("Run: %s\n", res.RunID)
	ew.printf("Started: %s\n", res.StartedAt.Format("2006-01-02 15:04:05"))
	ew.printf("Duration: %s\n", res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
	ew.printf("Rows: %d (train %d, test %d)\n", res.Rows, len(res.TrainIndex), len(res.TestIndex))
	ew.printf("Transformer fit on: %s rows\n", res.FitScope)
	if r.versionID != "" {
		ew.printf("Stored version: %s\n", r.versionID)
	}

	ew.printf("\nMODEL COMPARISON (%s)\n", sel.Metric)
	ew.printf("--------------------\n")
	ew.printf("%-20s", "backend")
	for _, m := range common.MetricNames {
		ew.printf(" %9s", m)
	}
	ew.printf("\n")
	for _, name := range sel.Order {
		marker := " "
		if name == sel.Winner.Name {
			marker = "*"
		}
		ew.printf("%s%-19s", marker, name)
		for _, m := range common.MetricNames {
			ew.printf(" %9.4f", sel.All[name][m])
		}
		ew.printf("\n")
	}
	for _, name := range sortedKeys(sel.Failures) {
		ew.printf("!%-19s failed: %v\n", name, sel.Failures[name])
	}

	cm := sel.Confusion[sel.Winner.Name]
	ew.printf("\nCONFUSION MATRIX (%s)\n", sel.Winner.Name)
	ew.printf("--------------------\n")
	ew.printf("%18s %10s %10s\n", "", "pred 0", "pred 1")
	ew.printf("%18s %10d %10d\n", "actual 0", cm.TN, cm.FP)
	ew.printf("%18s %10d %10d\n", "actual 1", cm.FN, cm.TP)

	ew.printf("\nFEATURE IMPORTANCE (%s)\n", sel.Winner.Name)
	ew.printf("--------------------\n")
	for _, f := range rankImportance(sel.Importance[sel.Winner.Name]) {
		ew.printf("%-28s %6.4f %s\n", f.Name, f.Score, bar(f.Score))
	}
	return ew.err
}

func (r *Reporter) generateJSONReport() error {
	jsonPath := filepath.Join(r.outputPath, MetricsFile)
	sel := r.result.Selection

	failures := make(map[string]string, len(sel.Failures))
	for name, err := range sel.Failures {
		failures[name] = err.Error()
	}
	report := map[string]interface{}{
		"run_id":       r.result.RunID,
		"version_id":   r.versionID,
		"rows":         r.result.Rows,
		"train_rows":   len(r.result.TrainIndex),
		"test_rows":    len(r.result.TestIndex),
		"fit_scope":    r.result.FitScope,
		"metric":       sel.Metric,
		"winner":       sel.Winner.Name,
		"metrics":      sel.All,
		"confusion":    sel.Confusion,
		"importance":   sel.Importance,
		"failures":     failures,
		"generated_at": time.Now(),
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}

	log.Info().Str("file", jsonPath).Msg("JSON report generated")
	return nil
}

func (r *Reporter) generateImportanceReport() error {
	csvPath := filepath.Join(r.outputPath, ImportanceFile)
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create importance report: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"backend", "rank", "feature", "importance"}); err != nil {
		return err
	}
	sel := r.result.Selection
	for _, name := range sel.Order {
		for i, f := range rankImportance(sel.Importance[name]) {
			record := []string{name, fmt.Sprintf("%d", i+1), f.Name, fmt.Sprintf("%.6f", f.Score)}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to write importance report: %w", err)
	}

	log.Info().Str("file", csvPath).Msg("Feature importance report generated")
	return nil
}

// PrintSummary prints a summary to console
func (r *Reporter) PrintSummary() {
	sel := r.result.Selection
	fmt.Println("\n=== TRAINING RESULTS ===")
	fmt.Printf("Rows: %d (train %d, test %d)\n", r.result.Rows, len(r.result.TrainIndex), len(r.result.TestIndex))
	for _, name := range sel.Order {
		fmt.Printf("%s: %s\n", name, sel.All[name])
	}
	fmt.Printf("Selected: %s (%s=%.4f)\n", sel.Winner.Name, sel.Metric, sel.WinnerMetrics.Get(sel.Metric))
	fmt.Println("========================")
}

// FeatureScore is one ranked importance entry.
type FeatureScore struct {
	Name  string
	Score float64
}

// rankImportance orders features by descending score, then by name.
func rankImportance(imp map[string]float64) []FeatureScore {
	out := make([]FeatureScore, 0, len(imp))
	for name, score := range imp {
		out = append(out, FeatureScore{Name: name, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// bar renders a score in [0,1] as a text bar.
func bar(score float64) string {
	n := int(score*barWidth + 0.5)
	if n < 0 {
		n = 0
	}
	if n > barWidth {
		n = barWidth
	}
	return strings.Repeat("#", n)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
