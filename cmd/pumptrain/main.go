package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"pump-predictor/internal/cfg"
	"pump-predictor/internal/dataset"
	"pump-predictor/internal/metrics"
	"pump-predictor/internal/ml"
	"pump-predictor/internal/pipeline"
	"pump-predictor/internal/report"
	"pump-predictor/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config (default: $CONFIG_FILE)")
		dataPath   = flag.String("data", "", "Training CSV (overrides config)")
		useSample  = flag.Bool("sample", false, "Train on the built-in five-row sample")
		logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
		reportDir  = flag.String("report", "", "Report output directory (overrides config)")
		storePath  = flag.String("store", "", "Model store directory (overrides config)")
		noPersist  = flag.Bool("dry-run", false, "Train and report without storing the model")
	)
	flag.Parse()

	config, err := cfg.LoadFrom(*configPath, ".env")
	if err != nil {
		setupLogging("info", false)
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *logLevel != "" {
		config.LogLevel = *logLevel
	}
	if *dataPath != "" {
		config.DataPath = *dataPath
	}
	if *reportDir != "" {
		config.ReportDir = *reportDir
	}
	if *storePath != "" {
		config.StorePath = *storePath
	}
	setupLogging(config.LogLevel, config.LogJSON)

	var (
		table  *dataset.Table
		source string
	)
	if *useSample {
		table, source = dataset.Sample(), "sample"
	} else {
		table, err = dataset.LoadCSV(config.DataPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", config.DataPath).Msg("Failed to load data")
		}
		source = config.DataPath
	}

	fmt.Println("=== Training Configuration ===")
	fmt.Printf("Data: %s (%d rows)\n", source, table.Len())
	fmt.Printf("Backends: %s\n", strings.Join(config.Backends, ", "))
	fmt.Printf("Metric: %s\n", config.Metric)
	fmt.Printf("Test Fraction: %.2f (seed %d)\n", config.TestFraction, config.Seed)
	fmt.Printf("Fit Scope: %s\n", config.FitScope)
	fmt.Printf("Store: %s\n", config.StorePath)
	fmt.Println("==============================")

	m := metrics.New()
	observer := ml.Observers{ml.NewLogObserver(nil), m}

	result, err := pipeline.Run(table, pipeline.NewConfig(&config), observer)
	if err != nil {
		log.Fatal().Err(err).Msg("Training failed")
	}

	versionID := ""
	if !*noPersist {
		if err := os.MkdirAll(config.StorePath, 0755); err != nil {
			log.Fatal().Err(err).Msg("Failed to create store directory")
		}
		store, err := storage.New(config.StorePath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open model store")
		}
		v, _, err := result.Persist(store, source)
		store.Close()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to store model")
		}
		versionID = v.ID
	}

	reporter := report.NewReporter(result, config.ReportDir).WithVersion(versionID)
	if err := reporter.GenerateReport(); err != nil {
		log.Error().Err(err).Msg("Failed to generate reports")
	}

	if config.MetricsFile != "" {
		if err := m.WriteTextfile(config.MetricsFile); err != nil {
			log.Error().Err(err).Str("file", config.MetricsFile).Msg("Failed to write metrics textfile")
		}
	}

	reporter.PrintSummary()

	log.Info().
		Str("winner", result.Winner().Name).
		Str("version", versionID).
		Str("report", config.ReportDir).
		Msg("Training completed successfully")
}

func setupLogging(level string, json bool) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if !json {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
