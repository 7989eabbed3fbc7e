package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"sensorpulse/internal/external"
	"sensorpulse/internal/insight"
	"sensorpulse/internal/sink"
	"sensorpulse/internal/types"
)

// Defaults applied by New to zero-valued Config fields.
const (
	DefaultHorizon          = time.Hour
	DefaultAnalysisInterval = 15 * time.Minute
	DefaultMinDataPoints    = 10
	DefaultMaxPoints        = 1000
	DefaultMaxAge           = 30 * 24 * time.Hour
	DefaultExternalTimeout  = 10 * time.Second
	DefaultLLMTimeout       = 30 * time.Second
	DefaultSubscriberBuffer = 64
	DefaultPassConcurrency  = 4
)

// Summarizer produces an LLM insight summary from feature summaries.
// *external.LLMClient satisfies it.
type Summarizer interface {
	Summarize(ctx context.Context, recent, previous []types.FeatureSummary) (external.InsightSummary, error)
}

// Config configures an Engine. Zero values take the Default* constants;
// negative durations and counts are configuration errors.
type Config struct {
	// Window horizons. Kinds missing from Horizons use DefaultHorizon.
	DefaultHorizon time.Duration
	Horizons       map[types.SensorKind]time.Duration

	AnalysisInterval time.Duration
	// MinDataPoints is the number of accepted samples that triggers an
	// on-arrival pass.
	MinDataPoints int

	MaxPoints int
	MaxAge    time.Duration

	ClockSkewTolerance   time.Duration
	ConfidenceThresholds map[types.PredictionKind]float64
	Location             *time.Location

	// Per-call bounds for sinks/metrics and for the LLM.
	ExternalTimeout time.Duration
	LLMTimeout      time.Duration

	SubscriberBuffer int
	PassConcurrency  int

	// InlinePasses runs on-arrival passes on the ingesting goroutine instead
	// of in the background. Replay and tests use it for deterministic output.
	InlinePasses bool

	// Optional collaborators.
	LLM       Summarizer
	Sink      sink.Sink
	Metrics   sink.Metrics
	Templates insight.Templates
	Rand      *rand.Rand
	Clock     func() time.Time
	Logger    *slog.Logger
}

func (c Config) withDefaults() (Config, error) {
	if c.DefaultHorizon < 0 || c.AnalysisInterval < 0 || c.MaxAge < 0 ||
		c.ClockSkewTolerance < 0 || c.ExternalTimeout < 0 || c.LLMTimeout < 0 {
		return c, types.NewAppError(types.ErrCodeConfigInvalid, "engine durations must not be negative", nil)
	}
	if c.MinDataPoints < 0 || c.MaxPoints < 0 || c.SubscriberBuffer < 0 || c.PassConcurrency < 0 {
		return c, types.NewAppError(types.ErrCodeConfigInvalid, "engine counts must not be negative", nil)
	}
	for kind, threshold := range c.ConfidenceThresholds {
		if threshold < 0 || threshold > 1 {
			return c, types.NewAppError(types.ErrCodeConfigInvalid,
				fmt.Sprintf("confidence threshold for %s must be within [0,1], got %v", kind, threshold), nil)
		}
	}

	if c.DefaultHorizon == 0 {
		c.DefaultHorizon = DefaultHorizon
	}
	if c.AnalysisInterval == 0 {
		c.AnalysisInterval = DefaultAnalysisInterval
	}
	if c.MinDataPoints == 0 {
		c.MinDataPoints = DefaultMinDataPoints
	}
	if c.MaxPoints == 0 {
		c.MaxPoints = DefaultMaxPoints
	}
	if c.MaxAge == 0 {
		c.MaxAge = DefaultMaxAge
	}
	if c.ExternalTimeout == 0 {
		c.ExternalTimeout = DefaultExternalTimeout
	}
	if c.LLMTimeout == 0 {
		c.LLMTimeout = DefaultLLMTimeout
	}
	if c.SubscriberBuffer == 0 {
		c.SubscriberBuffer = DefaultSubscriberBuffer
	}
	if c.PassConcurrency == 0 {
		c.PassConcurrency = DefaultPassConcurrency
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.Sink == nil {
		c.Sink = sink.Noop{}
	}
	if c.Metrics == nil {
		c.Metrics = sink.NoopMetrics{}
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c, nil
}
