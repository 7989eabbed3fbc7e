package types

import (
	"maps"
	"slices"
	"time"
)

// Trend describes the direction of change between the first and second half
// of a window.
type Trend struct {
	Direction     TrendDirection `json:"direction"`
	PercentChange float64        `json:"percent_change"`
}

// FeatureSet is the scalar summary of one window snapshot. Skewness is nil
// unless SampleCount > 2.
type FeatureSet struct {
	Mean        float64  `json:"mean"`
	Min         float64  `json:"min"`
	Max         float64  `json:"max"`
	Variance    float64  `json:"variance"`
	StdDev      float64  `json:"std_dev"`
	Skewness    *float64 `json:"skewness,omitempty"`
	Trend       Trend    `json:"trend"`
	SampleCount int      `json:"sample_count"`
}

// FeatureSummary ties a FeatureSet to the sensor and the span it covers.
// Summaries are handed to persistence and to the LLM context builder.
type FeatureSummary struct {
	Kind        SensorKind `json:"sensor_kind"`
	WindowStart time.Time  `json:"window_start"`
	WindowEnd   time.Time  `json:"window_end"`
	Features    FeatureSet `json:"features"`
}

// Prediction is a time-bounded, confidence-scored forward-looking statement.
// The engine owns every Prediction; consumers receive copies.
type Prediction struct {
	ID          string         `json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	Kind        PredictionKind `json:"kind"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Confidence  float64        `json:"confidence"`
	ValidUntil  time.Time      `json:"valid_until"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Suggestions []string       `json:"suggestions,omitempty"`
}

// Clone returns a deep copy of p so that consumers never share maps or slices
// with the engine's retained list.
func (p Prediction) Clone() Prediction {
	out := p
	if p.Parameters != nil {
		out.Parameters = maps.Clone(p.Parameters)
	}
	out.Suggestions = slices.Clone(p.Suggestions)
	return out
}

// ValidAt reports whether the prediction is still valid at now.
func (p Prediction) ValidAt(now time.Time) bool {
	return p.ValidUntil.After(now)
}

// Insight is a present-tense, prioritized observation about current behavior
// or environment. Insights are immutable and never retained by the engine.
type Insight struct {
	Kind             InsightKind    `json:"kind"`
	Message          string         `json:"message"`
	Priority         Priority       `json:"priority"`
	ActionSuggestion string         `json:"action_suggestion"`
	Rationale        string         `json:"rationale"`
	CreatedAt        time.Time      `json:"created_at"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Clone returns a copy of i with its own metadata map.
func (i Insight) Clone() Insight {
	out := i
	if i.Metadata != nil {
		out.Metadata = maps.Clone(i.Metadata)
	}
	return out
}

// BehaviorPattern is the finalized result of folding movement samples for one
// analysis pass.
type BehaviorPattern struct {
	AvgMovement         float64  `json:"avg_movement"`
	ActiveMinutes       float64  `json:"active_minutes"`
	StationaryMinutes   float64  `json:"stationary_minutes"`
	MovementVariability float64  `json:"movement_variability"`
	StressIndicators    []string `json:"stress_indicators,omitempty"`
	DominantActivity    Activity `json:"dominant_activity"`
	SampleCount         int      `json:"sample_count"`
}

// TrackedMinutes is the total of active and stationary minutes.
func (b BehaviorPattern) TrackedMinutes() float64 {
	return b.ActiveMinutes + b.StationaryMinutes
}

// InactivityPercentage is the share of tracked time spent stationary, 0 when
// nothing was tracked.
func (b BehaviorPattern) InactivityPercentage() float64 {
	total := b.TrackedMinutes()
	if total == 0 {
		return 0
	}
	return b.StationaryMinutes / total * 100
}

// StressAssessment is the aggregated deviation-based stress risk.
type StressAssessment struct {
	RiskLevel  float64            `json:"risk_level"`
	Indicators []string           `json:"indicators"`
	Deviations map[string]float64 `json:"deviations"`
}
