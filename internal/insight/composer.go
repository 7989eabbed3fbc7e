// Package insight turns a BehaviorPattern and the recent environment into
// prioritized, template-driven Insight records.
package insight

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"sensorpulse/internal/types"
)

// Rule thresholds.
const (
	PostureInactivityPct   = 70.0
	PostureStationaryMin   = 30.0
	LowLightLux            = 50.0
	LowLightStationaryMin  = 20.0
	HighActivityMovement   = 15.0
	ExtendedInactivityMin  = 120.0
	IrregularVariabilityPc = 50.0
)

// Unusual pattern names reported by DetectUnusualPatterns.
const (
	PatternExtendedInactivity = "extended_inactivity"
	PatternIrregularMovement  = "irregular_movement"
)

// Environment is the non-movement context of a pass.
type Environment struct {
	// Lux is the average ambient light; only meaningful when HasLight is set.
	Lux      float64
	HasLight bool
}

// Config configures a Composer.
type Config struct {
	// Rand picks among template messages. Defaults to a randomly seeded PCG.
	Rand      *rand.Rand
	Templates Templates
	Logger    *slog.Logger
}

// Composer builds insights. It is safe for concurrent use; access to the
// random source is serialized.
type Composer struct {
	mu        sync.Mutex
	rng       *rand.Rand
	templates Templates
	logger    *slog.Logger
}

// NewComposer creates a Composer.
func NewComposer(cfg Config) *Composer {
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	tpl := cfg.Templates
	if tpl == nil {
		tpl = DefaultTemplates()
	} else {
		tpl = tpl.Clone()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{rng: rng, templates: tpl, logger: logger}
}

// NewSeededRand returns a deterministic source for tests and replays.
func NewSeededRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Compose applies the rules in order and returns the first match:
//
//  1. posture: inactivity > 70% and stationary > 30 min
//  2. environmental: light < 50 lux and stationary > 20 min
//  3. encouragement: average movement > 15
//  4. stress: any stress indicator present
//  5. wellness
func (c *Composer) Compose(p types.BehaviorPattern, env Environment, now time.Time) types.Insight {
	vars := patternVars(p, env)

	switch {
	case p.InactivityPercentage() > PostureInactivityPct && p.StationaryMinutes > PostureStationaryMin:
		return c.build(types.InsightPosture, types.PriorityMedium, vars, now, map[string]any{
			"inactivity_pct":     p.InactivityPercentage(),
			"stationary_minutes": p.StationaryMinutes,
		})
	case env.HasLight && env.Lux < LowLightLux && p.StationaryMinutes > LowLightStationaryMin:
		return c.build(types.InsightEnvironmental, types.PriorityLow, vars, now, map[string]any{
			"lux":                env.Lux,
			"stationary_minutes": p.StationaryMinutes,
		})
	case p.AvgMovement > HighActivityMovement:
		return c.build(types.InsightEncouragement, types.PriorityLow, vars, now, map[string]any{
			"avg_movement":   p.AvgMovement,
			"active_minutes": p.ActiveMinutes,
		})
	case len(p.StressIndicators) > 0:
		return c.build(types.InsightStress, types.PriorityHigh, vars, now, map[string]any{
			"indicators": append([]string(nil), p.StressIndicators...),
		})
	default:
		return c.build(types.InsightWellness, types.PriorityLow, vars, now, nil)
	}
}

// DetectUnusualPatterns reports extended inactivity (stationary > 120 min)
// and irregular movement (variability > 50%) as a single concern insight. It
// returns nil when neither applies.
func (c *Composer) DetectUnusualPatterns(p types.BehaviorPattern, now time.Time) *types.Insight {
	var found []string
	if p.StationaryMinutes > ExtendedInactivityMin {
		found = append(found, PatternExtendedInactivity)
	}
	if p.MovementVariability > IrregularVariabilityPc {
		found = append(found, PatternIrregularMovement)
	}
	if len(found) == 0 {
		return nil
	}

	priority := types.PriorityMedium
	if len(found) > 1 {
		priority = types.PriorityHigh
	}
	in := c.build(types.InsightConcern, priority, patternVars(p, Environment{}), now, map[string]any{
		"patterns": found,
	})
	in.Rationale = fmt.Sprintf("%s: %s", in.Rationale, strings.Join(found, ", "))
	return &in
}

// Fallback is the neutral insight returned when analysis or enrichment fails.
func (c *Composer) Fallback(reason string, now time.Time) types.Insight {
	tpl := c.templates[types.InsightWellness]
	return types.Insight{
		Kind:             types.InsightWellness,
		Message:          "Keep up your healthy habits!",
		Priority:         types.PriorityLow,
		ActionSuggestion: tpl.Action,
		Rationale:        "Analysis unavailable",
		CreatedAt:        now,
		Metadata: map[string]any{
			"fallback": true,
			"reason":   reason,
		},
	}
}

// Celebration returns a celebration insight for an improving health-trend
// prediction; ok is false for any other prediction.
func (c *Composer) Celebration(p types.Prediction, now time.Time) (types.Insight, bool) {
	if p.Kind != types.PredictionHealthTrend || p.Parameters["direction"] != "improving" {
		return types.Insight{}, false
	}
	return c.build(types.InsightCelebration, types.PriorityLow, nil, now, map[string]any{
		"prediction_id":  p.ID,
		"percent_change": p.Parameters["percent_change"],
	}), true
}

// Support wraps an externally generated summary as a support insight.
// Confidence at or above 0.7 raises the priority to medium.
func (c *Composer) Support(summary string, recommendations []string, confidence float64, now time.Time) types.Insight {
	tpl := c.templates[types.InsightSupport]
	msg := strings.TrimSpace(summary)
	if msg == "" {
		msg = c.pick(tpl.Messages)
	}
	action := tpl.Action
	if len(recommendations) > 0 {
		action = recommendations[0]
	}
	priority := types.PriorityLow
	if confidence >= 0.7 {
		priority = types.PriorityMedium
	}
	return types.Insight{
		Kind:             types.InsightSupport,
		Message:          msg,
		Priority:         priority,
		ActionSuggestion: action,
		Rationale:        tpl.Rationale,
		CreatedAt:        now,
		Metadata: map[string]any{
			"confidence":      confidence,
			"recommendations": append([]string(nil), recommendations...),
		},
	}
}

func (c *Composer) build(kind types.InsightKind, priority types.Priority, vars *strings.Replacer, now time.Time, meta map[string]any) types.Insight {
	tpl, ok := c.templates[kind]
	if !ok {
		c.logger.Warn("no template for insight kind", "kind", kind)
	}
	msg := c.pick(tpl.Messages)
	if vars != nil {
		msg = vars.Replace(msg)
	}
	return types.Insight{
		Kind:             kind,
		Message:          msg,
		Priority:         priority,
		ActionSuggestion: tpl.Action,
		Rationale:        tpl.Rationale,
		CreatedAt:        now,
		Metadata:         meta,
	}
}

func (c *Composer) pick(messages []string) string {
	if len(messages) == 0 {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return messages[c.rng.IntN(len(messages))]
}

func patternVars(p types.BehaviorPattern, env Environment) *strings.Replacer {
	return strings.NewReplacer(
		"{minutes}", fmt.Sprintf("%.0f", p.StationaryMinutes),
		"{active_minutes}", fmt.Sprintf("%.0f", p.ActiveMinutes),
		"{lux}", fmt.Sprintf("%.0f", env.Lux),
		"{movement}", fmt.Sprintf("%.1f", p.AvgMovement),
		"{indicators}", strings.ReplaceAll(strings.Join(p.StressIndicators, ", "), "_", " "),
	)
}
