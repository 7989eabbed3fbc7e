// Package config defines the configuration of the sensorpulse daemon.
// Configuration is loaded once at startup and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> Secret files (*_FILE, Lowest)
//
// Any missing required value or invalid format is returned as a ConfigError
// and aborts startup.
package config

import (
	"time"

	"sensorpulse/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the subset they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"sensorpulse"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Domain Configurations
	Server        ServerConfig
	Engine        EngineConfig
	LLM           LLMConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	MQTT          MQTTConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	RequestTimeout  time.Duration `envconfig:"HTTP_REQUEST_TIMEOUT" default:"30s" validate:"gt=0"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"15s" validate:"gt=0"`
	MaxBodyBytes    int64         `envconfig:"HTTP_MAX_BODY_BYTES" default:"1048576" validate:"gt=0"`
	MaxBatchSize    int           `envconfig:"HTTP_MAX_BATCH_SIZE" default:"500" validate:"gt=0"`
}

// EngineConfig holds the analysis knobs.
type EngineConfig struct {
	// Window horizons; WINDOW_HORIZONS overrides per kind, e.g.
	// "accelerometer:1h,light:30m".
	DefaultHorizon time.Duration `envconfig:"WINDOW_DEFAULT_HORIZON" default:"1h" validate:"gt=0"`
	Horizons       HorizonMap    `envconfig:"WINDOW_HORIZONS"`

	AnalysisInterval time.Duration `envconfig:"ANALYSIS_INTERVAL" default:"15m" validate:"gt=0"`
	MinDataPoints    int           `envconfig:"MIN_DATA_POINTS" default:"10" validate:"gt=0"`

	MaxPoints int           `envconfig:"TIMESERIES_MAX_POINTS" default:"1000" validate:"gt=0"`
	MaxAge    time.Duration `envconfig:"TIMESERIES_MAX_AGE" default:"720h" validate:"gt=0"`

	ClockSkewTolerance time.Duration `envconfig:"CLOCK_SKEW_TOLERANCE" default:"5s" validate:"gt=0"`
	// CONFIDENCE_THRESHOLDS, e.g. "optimal_timing:0.6,energy_level:0.2".
	ConfidenceThresholds ThresholdMap `envconfig:"CONFIDENCE_THRESHOLDS"`

	// Timezone used for hour-of-day analysis (night hours, same-hour
	// baselines).
	Timezone string `envconfig:"ANALYSIS_TIMEZONE" default:"UTC" validate:"timezone"`

	TemplateFile    string        `envconfig:"INSIGHT_TEMPLATE_PATH"`
	RandSeed        uint64        `envconfig:"INSIGHT_RAND_SEED"` // 0 seeds randomly
	ExternalTimeout time.Duration `envconfig:"EXTERNAL_TIMEOUT" default:"10s" validate:"gt=0"`
}

// Location resolves Timezone. It only fails for configs that skipped
// validation.
func (c EngineConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// LLMConfig holds the insight backend settings. An empty Endpoint disables
// enrichment.
type LLMConfig struct {
	Endpoint    string        `envconfig:"LLM_ENDPOINT" validate:"omitempty,url"`
	APIKey      SecretString  `envconfig:"LLM_API_KEY"`
	Model       string        `envconfig:"LLM_MODEL" default:"insight-small"`
	Temperature float64       `envconfig:"LLM_TEMPERATURE" default:"0.7" validate:"gte=0,lte=2"`
	TopP        float64       `envconfig:"LLM_TOP_P" default:"0.9" validate:"gt=0,lte=1"`
	MaxTokens   int           `envconfig:"LLM_MAX_TOKENS" default:"512" validate:"gt=0"`
	Timeout     time.Duration `envconfig:"LLM_TIMEOUT" default:"30s" validate:"gt=0"`
}

// Enabled reports whether an LLM endpoint is configured.
func (c LLMConfig) Enabled() bool {
	return c.Endpoint != ""
}

// DatabaseConfig holds the persistence sink connection. An empty URL
// disables persistence.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"omitempty,url"`

	// Tuning Parameters
	MaxConns          int32         `envconfig:"DB_MAX_CONNS" default:"10" validate:"gt=0"`
	MinConns          int32         `envconfig:"DB_MIN_CONNS" default:"1" validate:"gte=0,ltefield=MaxConns"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
	EnsureSchema      bool          `envconfig:"DB_ENSURE_SCHEMA" default:"true"`
}

// AWSConfig holds AWS resource identifiers. An empty RealtimeQueueURL
// disables the SQS sink.
type AWSConfig struct {
	Region           string `envconfig:"AWS_REGION" default:"us-east-1"`
	RealtimeQueueURL string `envconfig:"SQS_REALTIME_QUEUE" validate:"omitempty,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL" validate:"omitempty,url"`
}

// MQTTConfig holds the MQTT ingest source. An empty BrokerURL disables it.
type MQTTConfig struct {
	BrokerURL string       `envconfig:"MQTT_BROKER_URL" validate:"omitempty,url"`
	Topic     string       `envconfig:"MQTT_TOPIC" default:"sensorpulse/events"`
	ClientID  string       `envconfig:"MQTT_CLIENT_ID" default:"sensorpulse"`
	QoS       byte         `envconfig:"MQTT_QOS" default:"1" validate:"lte=2"`
	Username  string       `envconfig:"MQTT_USERNAME"`
	Password  SecretString `envconfig:"MQTT_PASSWORD"`
	KeepAlive uint16       `envconfig:"MQTT_KEEP_ALIVE_SECONDS" default:"30"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"SensorPulse"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrSecretResolution indicates a *_FILE secret could not be read.
	ErrSecretResolution ConfigErrorType = "SECRET_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
