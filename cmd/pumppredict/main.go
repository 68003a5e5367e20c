package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"pump-predictor/internal/cfg"
	"pump-predictor/internal/dataset"
	"pump-predictor/internal/pipeline"
	"pump-predictor/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		storePath = flag.String("store", "", "Model store directory (default from config)")
		dataPath  = flag.String("data", "", "CSV of readings to score (required)")
		versionID = flag.String("version", "", "Model version to use (default: active)")
		logLevel  = flag.String("log-level", "warn", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *dataPath == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *storePath == "" {
		config, err := cfg.Load()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load config")
		}
		*storePath = config.StorePath
	}

	store, err := storage.New(*storePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open model store")
	}
	defer store.Close()

	model, err := pipeline.LoadModel(store, *versionID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load model")
	}
	log.Info().
		Str("version", model.Version.ID).
		Str("backend", model.Version.Backend).
		Time("created", model.Version.CreatedAt).
		Msg("Model loaded")

	table, err := dataset.LoadUnlabeledCSV(*dataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load readings")
	}

	proba, labels, err := model.Score(table)
	if err != nil {
		log.Fatal().Err(err).Msg("Prediction failed")
	}

	out := bufio.NewWriter(os.Stdout)
	fmt.Fprintln(out, "row,probability,label")
	for i := range labels {
		fmt.Fprintf(out, "%d,%.6f,%d\n", i, proba[i], labels[i])
	}
	if err := out.Flush(); err != nil {
		log.Fatal().Err(err).Msg("Failed to write predictions")
	}
}
