package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"pump-predictor/internal/dataset"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	defaults := dataset.DefaultGenerateOptions()
	var (
		outPath     = flag.String("out", "data/pump_data.csv", "Output CSV path")
		rows        = flag.Int("rows", defaults.Rows, "Number of readings to generate")
		seed        = flag.Int64("seed", defaults.Seed, "Random seed")
		pumps       = flag.Int("pumps", defaults.Pumps, "Number of simulated pumps")
		failureRate = flag.Float64("failure-rate", defaults.FailureRate, "Per-reading chance a pump starts degrading")
	)
	flag.Parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *rows < 1 {
		log.Fatal().Int("rows", *rows).Msg("rows must be positive")
	}

	fmt.Printf("Generating sample pump data...\n")
	fmt.Printf("  Rows: %d\n", *rows)
	fmt.Printf("  Pumps: %d\n", *pumps)
	fmt.Printf("  Seed: %d\n", *seed)
	fmt.Printf("  Output: %s\n", *outPath)

	table := dataset.Generate(dataset.GenerateOptions{
		Rows:        *rows,
		Seed:        *seed,
		Pumps:       *pumps,
		FailureRate: *failureRate,
	})

	if dir := filepath.Dir(*outPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatal().Err(err).Msg("Failed to create output directory")
		}
	}
	file, err := os.Create(*outPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create output file")
	}
	if err := dataset.WriteCSV(file, table); err != nil {
		file.Close()
		log.Fatal().Err(err).Msg("Failed to write data")
	}
	if err := file.Close(); err != nil {
		log.Fatal().Err(err).Msg("Failed to close output file")
	}

	positives := 0
	for _, y := range table.Labels() {
		positives += y
	}
	fmt.Printf("  Needs maintenance: %d of %d readings\n", positives, table.Len())
}
