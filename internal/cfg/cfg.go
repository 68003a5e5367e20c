package cfg

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"

	"pump-predictor/internal/common"
	"pump-predictor/internal/features"
	"pump-predictor/internal/ml"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	DataPath     string
	StorePath    string
	ReportDir    string
	MetricsFile  string
	TestFraction float64
	Seed         int64
	FitScope     string
	Metric       string
	Backends     []string

	Features         features.Options
	RandomForest     ml.RandomForestParams
	GradientBoosting ml.GradientBoostingParams

	LogLevel string
	LogJSON  bool
}

type ConfigFile struct {
	Data struct {
		Path string `yaml:"path"`
	} `yaml:"data"`

	Features struct {
		Window     int      `yaml:"window"`
		Missing    string   `yaml:"missing"`
		Scaling    string   `yaml:"scaling"`
		Engineered []string `yaml:"engineered"`
		FitScope   string   `yaml:"fitScope"`
	} `yaml:"features"`

	Split struct {
		TestFraction float64 `yaml:"testFraction"`
		Seed         int64   `yaml:"seed"`
	} `yaml:"split"`

	Selection struct {
		Metric   string   `yaml:"metric"`
		Backends []string `yaml:"backends"`
	} `yaml:"selection"`

	Models struct {
		RandomForest     ml.RandomForestParams     `yaml:"random_forest"`
		GradientBoosting ml.GradientBoostingParams `yaml:"gradient_boosting"`
	} `yaml:"models"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Report struct {
		Dir string `yaml:"dir"`
	} `yaml:"report"`

	Logging struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"logging"`

	Metrics struct {
		Textfile string `yaml:"textfile"`
	} `yaml:"metrics"`
}

// Defaults returns the settings used when nothing is configured.
func Defaults() Settings {
	return Settings{
		DataPath:         common.DefaultDataPath,
		StorePath:        common.DefaultStorePath,
		ReportDir:        common.DefaultReportDir,
		TestFraction:     common.DefaultTestFraction,
		Seed:             common.DefaultSeed,
		FitScope:         common.DefaultFitScope,
		Metric:           common.DefaultMetric,
		Backends:         []string{common.BackendRandomForest, common.BackendGradientBoosting},
		Features:         features.DefaultOptions(),
		RandomForest:     ml.DefaultRandomForestParams(),
		GradientBoosting: ml.DefaultGradientBoostingParams(),
		LogLevel:         common.DefaultLogLevel,
	}
}

// Load reads .env (if present), then the YAML file named by CONFIG_FILE, then
// PUMP_* environment overrides.
func Load() (Settings, error) {
	return LoadFrom("", ".env")
}

// LoadFrom is Load with an explicit config path (empty means CONFIG_FILE) and
// dotenv file (empty skips it).
func LoadFrom(configPath, envFile string) (Settings, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Settings{}, common.ConfigError("cfg.Load", "env_file", envFile, "%w", err)
		}
	}
	if configPath == "" {
		configPath = os.Getenv(common.EnvConfigFile)
	}

	settings := Defaults()
	if configPath != "" {
		if err := loadFromYAML(configPath, &settings); err != nil {
			return Settings{}, err
		}
	}
	if err := applyEnv(&settings); err != nil {
		return Settings{}, err
	}
	if err := validateSettings(&settings); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func loadFromYAML(path string, settings *Settings) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return common.ConfigError("cfg.Load", "config_file", path, "failed to read config file: %w", err)
	}

	config := fileFromSettings(*settings)
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return common.ConfigError("cfg.Load", "config_file", path, "failed to parse config file: %w", err)
	}

	settings.DataPath = config.Data.Path
	settings.StorePath = config.Storage.Path
	settings.ReportDir = config.Report.Dir
	settings.MetricsFile = config.Metrics.Textfile
	settings.TestFraction = config.Split.TestFraction
	settings.Seed = config.Split.Seed
	settings.FitScope = config.Features.FitScope
	settings.Metric = config.Selection.Metric
	settings.Backends = config.Selection.Backends
	settings.Features = features.Options{
		Window:     config.Features.Window,
		Missing:    features.MissingPolicy(config.Features.Missing),
		Scaling:    features.Scaling(config.Features.Scaling),
		Engineered: config.Features.Engineered,
	}
	settings.RandomForest = config.Models.RandomForest
	settings.GradientBoosting = config.Models.GradientBoosting
	settings.LogLevel = config.Logging.Level
	settings.LogJSON = config.Logging.JSON
	return nil
}

// fileFromSettings seeds the file layout so keys absent from YAML keep their
// current values.
func fileFromSettings(s Settings) ConfigFile {
	var c ConfigFile
	c.Data.Path = s.DataPath
	c.Storage.Path = s.StorePath
	c.Report.Dir = s.ReportDir
	c.Metrics.Textfile = s.MetricsFile
	c.Split.TestFraction = s.TestFraction
	c.Split.Seed = s.Seed
	c.Features.Window = s.Features.Window
	c.Features.Missing = string(s.Features.Missing)
	c.Features.Scaling = string(s.Features.Scaling)
	c.Features.Engineered = s.Features.Engineered
	c.Features.FitScope = s.FitScope
	c.Selection.Metric = s.Metric
	c.Selection.Backends = s.Backends
	c.Models.RandomForest = s.RandomForest
	c.Models.GradientBoosting = s.GradientBoosting
	c.Logging.Level = s.LogLevel
	c.Logging.JSON = s.LogJSON
	return c
}

func applyEnv(s *Settings) error {
	s.DataPath = getEnvOrDefault(common.EnvDataPath, s.DataPath)
	s.StorePath = getEnvOrDefault(common.EnvStorePath, s.StorePath)
	s.ReportDir = getEnvOrDefault(common.EnvReportDir, s.ReportDir)
	s.MetricsFile = getEnvOrDefault(common.EnvMetricsFile, s.MetricsFile)
	s.Metric = getEnvOrDefault(common.EnvMetric, s.Metric)
	s.FitScope = getEnvOrDefault(common.EnvFitScope, s.FitScope)
	s.LogLevel = getEnvOrDefault(common.EnvLogLevel, s.LogLevel)

	var err error
	if s.TestFraction, err = getFloatFromEnv(common.EnvTestFraction, s.TestFraction); err != nil {
		return err
	}
	if s.Seed, err = getInt64FromEnv(common.EnvSeed, s.Seed); err != nil {
		return err
	}
	window, err := getInt64FromEnv(common.EnvWindow, int64(s.Features.Window))
	if err != nil {
		return err
	}
	s.Features.Window = int(window)
	if s.LogJSON, err = getBoolFromEnv(common.EnvLogJSON, s.LogJSON); err != nil {
		return err
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

func getFloatFromEnv(key string, current float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return current, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return current, common.ConfigError("cfg.Load", key, v, "not a number")
	}
	return f, nil
}

func getInt64FromEnv(key string, current int64) (int64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return current, nil
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return current, common.ConfigError("cfg.Load", key, v, "not an integer")
	}
	return i, nil
}

func getBoolFromEnv(key string, current bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return current, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return current, common.ConfigError("cfg.Load", key, v, "not a boolean")
	}
	return b, nil
}

// validateSettings performs range checks on every configured value.
func validateSettings(s *Settings) error {
	const op = "cfg.validate"

	if strings.TrimSpace(s.DataPath) == "" {
		return common.ConfigError(op, "data.path", s.DataPath, "must not be empty")
	}
	if strings.TrimSpace(s.StorePath) == "" {
		return common.ConfigError(op, "storage.path", s.StorePath, "must not be empty")
	}
	if math.IsNaN(s.TestFraction) || s.TestFraction <= 0 || s.TestFraction >= 1 {
		return common.ConfigError(op, "split.testFraction", s.TestFraction, "must be in (0,1)")
	}
	if s.FitScope != common.FitScopeTrain && s.FitScope != common.FitScopeFull {
		return common.ConfigError(op, "features.fitScope", s.FitScope, "must be %q or %q", common.FitScopeTrain, common.FitScopeFull)
	}
	if !isMetric(s.Metric) {
		return common.ConfigError(op, "selection.metric", s.Metric, "must be one of %v", common.MetricNames)
	}

	if len(s.Backends) == 0 {
		return common.ConfigError(op, "selection.backends", nil, "at least one backend must be listed")
	}
	seen := make(map[string]bool, len(s.Backends))
	for _, b := range s.Backends {
		if b != common.BackendRandomForest && b != common.BackendGradientBoosting {
			return common.ConfigError(op, "selection.backends", b, "unknown backend")
		}
		if seen[b] {
			return common.ConfigError(op, "selection.backends", b, "listed twice")
		}
		seen[b] = true
	}

	if _, err := features.New(s.Features); err != nil {
		return fmt.Errorf("features: %w", err)
	}
	if err := s.RandomForest.Validate(); err != nil {
		return fmt.Errorf("models.random_forest: %w", err)
	}
	if err := s.GradientBoosting.Validate(); err != nil {
		return fmt.Errorf("models.gradient_boosting: %w", err)
	}

	switch strings.ToLower(s.LogLevel) {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		return common.ConfigError(op, "logging.level", s.LogLevel, "unknown level")
	}
	return nil
}

func isMetric(name string) bool {
	for _, m := range common.MetricNames {
		if m == name {
			return true
		}
	}
	return false
}

// BackendParams returns the params record configured for kind.
func (s Settings) BackendParams(kind string) any {
	switch kind {
	case common.BackendRandomForest:
		return s.RandomForest
	case common.BackendGradientBoosting:
		return s.GradientBoosting
	}
	return nil
}
