package common

// Raw sensor columns, in feature-vector order.
const (
	ColPressure     = "pressure"
	ColTemperature  = "temperature"
	ColSpeed        = "speed"
	ColVibration    = "vibration"
	ColOilLevel     = "oil_level"
	ColRuntimeHours = "runtime_hours"

	// ColLabel is the binary target column.
	ColLabel = "needs_maintenance"
)

// Engineered feature names, in the order they are appended to the vector.
const (
	FeatPressureRollingMean = "pressure_rolling_mean"
	FeatVibrationRollingStd = "vibration_rolling_std"
	FeatPressureTempInter   = "pressure_temp_interaction"
	FeatEfficiencyScore     = "efficiency_score"
)

// BaseColumns lists every raw sensor column used as a feature.
var BaseColumns = []string{
	ColPressure,
	ColTemperature,
	ColSpeed,
	ColVibration,
	ColOilLevel,
	ColRuntimeHours,
}

// RequiredColumns must be present in any input table. The remaining base
// columns are imputed when absent.
var RequiredColumns = []string{
	ColPressure,
	ColTemperature,
	ColSpeed,
	ColVibration,
	ColLabel,
}

// SensorColumns must be present in any input table, labelled or not.
var SensorColumns = []string{
	ColPressure,
	ColTemperature,
	ColSpeed,
	ColVibration,
}

// EngineeredFeatures lists all engineered features in their fixed order.
var EngineeredFeatures = []string{
	FeatPressureRollingMean,
	FeatVibrationRollingStd,
	FeatPressureTempInter,
	FeatEfficiencyScore,
}

// Backend kinds
const (
	BackendRandomForest     = "random_forest"
	BackendGradientBoosting = "gradient_boosting"
)

// Metric names
const (
	MetricAccuracy  = "accuracy"
	MetricPrecision = "precision"
	MetricRecall    = "recall"
	MetricF1        = "f1"
)

// MetricNames lists the metrics produced by the evaluator.
var MetricNames = []string{MetricAccuracy, MetricPrecision, MetricRecall, MetricF1}

// Environment variable keys
const (
	EnvConfigFile   = "CONFIG_FILE"
	EnvDataPath     = "PUMP_DATA_PATH"
	EnvStorePath    = "PUMP_STORE_PATH"
	EnvTestFraction = "PUMP_TEST_FRACTION"
	EnvSeed         = "PUMP_SEED"
	EnvWindow       = "PUMP_WINDOW"
	EnvMetric       = "PUMP_METRIC"
	EnvFitScope     = "PUMP_FIT_SCOPE"
	EnvLogLevel     = "PUMP_LOG_LEVEL"
	EnvLogJSON      = "PUMP_LOG_JSON"
	EnvMetricsFile  = "PUMP_METRICS_FILE"
	EnvReportDir    = "PUMP_REPORT_DIR"
)

// Configuration defaults
const (
	DefaultDataPath     = "data/pump_data.csv"
	DefaultStorePath    = "models"
	DefaultReportDir    = "reports"
	DefaultTestFraction = 0.2
	DefaultSeed         = 42
	DefaultWindow       = 24
	DefaultMetric       = MetricF1
	DefaultFitScope     = "train"
	DefaultMissing      = "mean"
	DefaultScaling      = "standard"
	DefaultLogLevel     = "info"
)

// Fit scopes for imputation and scaling statistics.
const (
	FitScopeTrain = "train"
	FitScopeFull  = "full"
)

// Validation constants
const (
	MinWindow          = 1
	MaxWindow          = 10000
	MaxEstimators      = 10000
	MaxTreeDepth       = 64
	MinLearningRate    = 0.0
	MaxLearningRate    = 1.0
	DecisionThreshold  = 0.5
	ModelSchemaVersion = 1
)
