// Package prediction synthesizes gated, confidence-scored Prediction records
// and retains the emitted ones until they expire.
package prediction

import (
	"fmt"
	"log/slog"
	"maps"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"sensorpulse/internal/features"
	"sensorpulse/internal/pattern"
	"sensorpulse/internal/timeseries"
	"sensorpulse/internal/types"
)

// Config holds the gates and validity periods of each prediction kind.
type Config struct {
	StressRiskThreshold   float64
	HealthTrendThreshold  float64 // percent week-over-week change
	RoutineThreshold      float64
	SleepDisruptionThresh float64
	MinTimingHours        int
	ConfidenceThresholds  map[types.PredictionKind]float64
	EnergyValidity        time.Duration
	StressValidity        time.Duration
	TimingValidity        time.Duration
	HealthValidity        time.Duration
	RoutineValidity       time.Duration
	ActivityScale         float64 // movement magnitude that maps to a full activity term
	Location              *time.Location
	Logger                *slog.Logger
	NewID                 func() string
}

// DefaultConfig returns the gates used by the engine.
func DefaultConfig() Config {
	return Config{
		StressRiskThreshold:   0.4,
		HealthTrendThreshold:  10,
		RoutineThreshold:      pattern.RoutineIndicatorThreshold,
		SleepDisruptionThresh: pattern.SleepIndicatorThreshold,
		MinTimingHours:        3,
		ConfidenceThresholds: map[types.PredictionKind]float64{
			types.PredictionOptimalTiming: 0.5,
		},
		EnergyValidity:  2 * time.Hour,
		StressValidity:  6 * time.Hour,
		TimingValidity:  24 * time.Hour,
		HealthValidity:  24 * time.Hour,
		RoutineValidity: 12 * time.Hour,
		ActivityScale:   20,
		Location:        time.UTC,
	}
}

// Inputs is the analysis state one synthesis round works from. Every field is
// a copy; the synthesizer never reaches back into buffers or stores.
type Inputs struct {
	Now            time.Time
	Stress         types.StressAssessment
	SleepQuality   float64
	RecentActivity float64
	HourlyActivity timeseries.HourlyProfile
	HistorySize    int
	ThisWeek       []types.Point
	LastWeek       []types.Point
}

// Synthesizer builds candidate predictions. It is stateless apart from its
// configuration and safe for concurrent use.
type Synthesizer struct {
	cfg    Config
	logger *slog.Logger
}

// NewSynthesizer creates a Synthesizer. Zero-valued fields of cfg take their
// defaults.
func NewSynthesizer(cfg Config) *Synthesizer {
	d := DefaultConfig()
	if cfg.StressRiskThreshold <= 0 {
		cfg.StressRiskThreshold = d.StressRiskThreshold
	}
	if cfg.HealthTrendThreshold <= 0 {
		cfg.HealthTrendThreshold = d.HealthTrendThreshold
	}
	if cfg.RoutineThreshold <= 0 {
		cfg.RoutineThreshold = d.RoutineThreshold
	}
	if cfg.SleepDisruptionThresh <= 0 {
		cfg.SleepDisruptionThresh = d.SleepDisruptionThresh
	}
	if cfg.MinTimingHours <= 0 {
		cfg.MinTimingHours = d.MinTimingHours
	}
	if cfg.ConfidenceThresholds == nil {
		cfg.ConfidenceThresholds = d.ConfidenceThresholds
	}
	if cfg.EnergyValidity <= 0 {
		cfg.EnergyValidity = d.EnergyValidity
	}
	if cfg.StressValidity <= 0 {
		cfg.StressValidity = d.StressValidity
	}
	if cfg.TimingValidity <= 0 {
		cfg.TimingValidity = d.TimingValidity
	}
	if cfg.HealthValidity <= 0 {
		cfg.HealthValidity = d.HealthValidity
	}
	if cfg.RoutineValidity <= 0 {
		cfg.RoutineValidity = d.RoutineValidity
	}
	if cfg.ActivityScale <= 0 {
		cfg.ActivityScale = d.ActivityScale
	}
	if cfg.Location == nil {
		cfg.Location = d.Location
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{cfg: cfg, logger: logger}
}

// Synthesize runs every kind in AllPredictionKinds order and returns the
// candidates that passed their gate and confidence threshold. Kinds that lack
// data are skipped, never reported as failures.
func (s *Synthesizer) Synthesize(in Inputs) []types.Prediction {
	out := make([]types.Prediction, 0, len(types.AllPredictionKinds))
	for _, kind := range types.AllPredictionKinds {
		p, err := s.For(kind, in)
		if err != nil {
			s.logger.Debug("prediction skipped", "kind", kind, "reason", types.CodeOf(err))
			continue
		}
		out = append(out, p)
	}
	return out
}

// For synthesizes a single kind. It returns ErrInsufficientData when the
// kind's gate or confidence threshold is not met.
func (s *Synthesizer) For(kind types.PredictionKind, in Inputs) (types.Prediction, error) {
	var (
		p  types.Prediction
		ok bool
	)
	switch kind {
	case types.PredictionEnergyLevel:
		p, ok = s.Energy(in), true
	case types.PredictionStressRisk:
		p, ok = s.StressRisk(in)
	case types.PredictionOptimalTiming:
		p, ok = s.OptimalTiming(in)
	case types.PredictionHealthTrend:
		p, ok = s.HealthTrend(in)
	case types.PredictionRoutineDisruption:
		p, ok = s.RoutineDisruption(in)
	default:
		return types.Prediction{}, types.NewAppError(types.ErrCodeInternalUnexpected,
			fmt.Sprintf("unknown prediction kind %q", kind), nil)
	}
	if !ok || p.Confidence < s.cfg.ConfidenceThresholds[kind] {
		return types.Prediction{}, types.ErrInsufficientData
	}
	return p, nil
}

func (s *Synthesizer) newPrediction(kind types.PredictionKind, now time.Time, validity time.Duration) types.Prediction {
	return types.Prediction{
		ID:         s.cfg.NewID(),
		CreatedAt:  now,
		Kind:       kind,
		ValidUntil: now.Add(validity),
		Parameters: map[string]any{},
	}
}

// timeOfDayAdjustment is the energy offset for the hour-of-day bucket.
func timeOfDayAdjustment(hour int) float64 {
	switch {
	case hour >= 6 && hour < 9:
		return 0.1
	case hour >= 9 && hour < 12:
		return 0.2
	case hour >= 12 && hour < 14:
		return -0.1
	case hour >= 14 && hour < 17:
		return 0.1
	case hour >= 17 && hour < 21:
		return 0
	default:
		return -0.2
	}
}

func isWeekday(d time.Weekday) bool {
	return d != time.Saturday && d != time.Sunday
}

// EnergyLevel computes the predicted energy level in [0,1] for in.Now.
func (s *Synthesizer) EnergyLevel(in Inputs) float64 {
	local := in.Now.In(s.cfg.Location)
	hour := local.Hour()

	level := 0.5 + timeOfDayAdjustment(hour)
	if isWeekday(local.Weekday()) {
		level += 0.1
	}
	level += (in.SleepQuality - 0.5) * 0.4
	level += in.RecentActivity / s.cfg.ActivityScale * 0.2

	if in.HourlyActivity.Has(hour) {
		// Same-hour history: a resting hour maps to 0.3, a fully active one to 1.
		baseline := clamp01(0.3 + in.HourlyActivity.Means[hour]/s.cfg.ActivityScale*0.7)
		level = (level + baseline) / 2
	}
	return clamp01(level)
}

func energyLabel(level float64) string {
	switch {
	case level >= 0.7:
		return "high"
	case level >= 0.4:
		return "moderate"
	default:
		return "low"
	}
}

var energySuggestions = map[string][]string{
	"high": {
		"Tackle demanding tasks while energy is high",
		"Schedule exercise or focused work now",
	},
	"moderate": {
		"Pace yourself with short breaks",
		"Keep hydrated to sustain energy",
	},
	"low": {
		"Take a short walk or stretch to recharge",
		"Save demanding tasks for later",
	},
}

// Energy always produces a prediction; its confidence grows with history size
// and sleep quality.
func (s *Synthesizer) Energy(in Inputs) types.Prediction {
	level := s.EnergyLevel(in)
	label := energyLabel(level)

	p := s.newPrediction(types.PredictionEnergyLevel, in.Now, s.cfg.EnergyValidity)
	p.Title = "Energy level forecast"
	p.Description = fmt.Sprintf("Expected %s energy (%.0f%%) over the next %s",
		label, level*100, formatHours(s.cfg.EnergyValidity))
	p.Confidence = math.Min(0.5+math.Min(float64(in.HistorySize)/500, 0.3)+clamp01(in.SleepQuality)*0.15, 0.95)
	p.Parameters["level"] = level
	p.Parameters["label"] = label
	p.Parameters["hour"] = in.Now.In(s.cfg.Location).Hour()
	p.Parameters["sleep_quality"] = in.SleepQuality
	p.Parameters["recent_activity"] = in.RecentActivity
	p.Suggestions = append([]string(nil), energySuggestions[label]...)
	return p
}

// StressRisk emits when the assessed risk reaches the configured threshold.
func (s *Synthesizer) StressRisk(in Inputs) (types.Prediction, bool) {
	risk := in.Stress.RiskLevel
	if risk < s.cfg.StressRiskThreshold {
		return types.Prediction{}, false
	}

	p := s.newPrediction(types.PredictionStressRisk, in.Now, s.cfg.StressValidity)
	p.Title = "Elevated stress risk"
	p.Description = fmt.Sprintf("Stress risk is %.0f%% based on recent changes in behavior", risk*100)
	if len(in.Stress.Indicators) > 0 {
		p.Description += ": " + strings.Join(in.Stress.Indicators, ", ")
	}
	p.Confidence = math.Min(0.6+0.1*float64(len(in.Stress.Indicators)), 0.9)
	p.Parameters["risk_level"] = risk
	p.Parameters["indicators"] = append([]string(nil), in.Stress.Indicators...)
	p.Parameters["deviations"] = maps.Clone(in.Stress.Deviations)
	p.Suggestions = []string{
		"Plan a few minutes of breathing or mindfulness",
		"Protect your sleep schedule tonight",
		"Take short breaks between tasks",
	}
	return p, true
}

// OptimalTiming picks the historically most active hour, provided enough
// distinct hours are covered.
func (s *Synthesizer) OptimalTiming(in Inputs) (types.Prediction, bool) {
	covered := in.HourlyActivity.CoveredHours()
	if covered < s.cfg.MinTimingHours {
		return types.Prediction{}, false
	}

	best := -1
	for h := 0; h < 24; h++ {
		if !in.HourlyActivity.Has(h) {
			continue
		}
		if best < 0 || in.HourlyActivity.Means[h] > in.HourlyActivity.Means[best] {
			best = h
		}
	}

	p := s.newPrediction(types.PredictionOptimalTiming, in.Now, s.cfg.TimingValidity)
	p.Title = "Best time for activity"
	p.Description = fmt.Sprintf("You are usually most active around %02d:00", best)
	p.Confidence = math.Min(0.5+float64(covered)/24*0.4, 0.9)
	p.Parameters["best_hour"] = best
	p.Parameters["covered_hours"] = covered
	p.Parameters["next_window"] = nextOccurrence(in.Now.In(s.cfg.Location), best)
	p.Suggestions = []string{
		fmt.Sprintf("Schedule workouts or walks around %02d:00", best),
	}
	return p, true
}

// HealthTrend emits when the week-over-week change of activity reaches the
// configured percentage and both weeks have data.
func (s *Synthesizer) HealthTrend(in Inputs) (types.Prediction, bool) {
	if len(in.ThisWeek) == 0 || len(in.LastWeek) == 0 {
		return types.Prediction{}, false
	}
	last := features.Mean(types.Values(in.LastWeek))
	if last == 0 {
		return types.Prediction{}, false
	}
	this := features.Mean(types.Values(in.ThisWeek))
	change := (this - last) / math.Abs(last) * 100
	if math.Abs(change) < s.cfg.HealthTrendThreshold {
		return types.Prediction{}, false
	}

	direction := "improving"
	if change < 0 {
		direction = "declining"
	}

	p := s.newPrediction(types.PredictionHealthTrend, in.Now, s.cfg.HealthValidity)
	p.Title = "Weekly activity trend"
	p.Description = fmt.Sprintf("Activity is %s: %.0f%% compared to last week", direction, change)
	samples := math.Min(float64(len(in.ThisWeek)), float64(len(in.LastWeek)))
	p.Confidence = math.Min(0.5+math.Min(samples/200, 0.3)+math.Min(math.Abs(change)/100, 0.15), 0.95)
	p.Parameters["direction"] = direction
	p.Parameters["percent_change"] = change
	p.Parameters["this_week_mean"] = this
	p.Parameters["last_week_mean"] = last
	if direction == "improving" {
		p.Suggestions = []string{"Keep up the momentum"}
	} else {
		p.Suggestions = []string{"Add a short daily walk to recover last week's level"}
	}
	return p, true
}

// RoutineDisruption emits when the routine or sleep deviation of the stress
// assessment exceeds its threshold.
func (s *Synthesizer) RoutineDisruption(in Inputs) (types.Prediction, bool) {
	routine := in.Stress.Deviations[pattern.DeviationRoutine]
	sleep := in.Stress.Deviations[pattern.DeviationSleep]
	if routine <= s.cfg.RoutineThreshold && sleep <= s.cfg.SleepDisruptionThresh {
		return types.Prediction{}, false
	}

	p := s.newPrediction(types.PredictionRoutineDisruption, in.Now, s.cfg.RoutineValidity)
	p.Title = "Routine disruption"
	switch {
	case routine > s.cfg.RoutineThreshold && sleep > s.cfg.SleepDisruptionThresh:
		p.Description = "Both your daily routine and sleep pattern have shifted"
	case routine > s.cfg.RoutineThreshold:
		p.Description = "Your daily routine has shifted compared to last week"
	default:
		p.Description = "Your sleep pattern has shifted compared to last week"
	}
	p.Confidence = math.Min(0.5+0.4*math.Max(routine, sleep), 0.9)
	p.Parameters["routine_deviation"] = routine
	p.Parameters["sleep_deviation"] = sleep
	p.Suggestions = []string{
		"Try to keep consistent wake and sleep times",
		"Anchor your day with a regular activity",
	}
	return p, true
}

func nextOccurrence(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func formatHours(d time.Duration) string {
	h := int(d.Hours())
	if h == 1 {
		return "hour"
	}
	return fmt.Sprintf("%d hours", h)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
