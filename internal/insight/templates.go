package insight

import (
	"fmt"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"sensorpulse/internal/types"
)

// Template is the text used for one insight kind. Messages may reference
// {minutes}, {active_minutes}, {lux}, {movement} and {indicators}.
type Template struct {
	Messages  []string `yaml:"messages"`
	Action    string   `yaml:"action"`
	Rationale string   `yaml:"rationale"`
}

// Templates maps an insight kind to its text.
type Templates map[types.InsightKind]Template

// DefaultTemplates returns the built-in template set.
func DefaultTemplates() Templates {
	return Templates{
		types.InsightPosture: {
			Messages: []string{
				"You've been still for about {minutes} minutes. Time to stand up and stretch.",
				"{minutes} minutes without moving much. A short break helps your back and focus.",
				"Long sitting stretch detected ({minutes} min). Roll your shoulders and take a walk.",
			},
			Action:    "Stand up, stretch and walk for 2-3 minutes",
			Rationale: "Prolonged inactivity with little movement in the recent window",
		},
		types.InsightEnvironmental: {
			Messages: []string{
				"It's quite dim around you ({lux} lux) and you've been still for a while.",
				"Low light for the last {minutes} minutes. Brighter light can lift alertness.",
			},
			Action:    "Move to a brighter space or open the blinds",
			Rationale: "Low ambient light combined with prolonged stillness",
		},
		types.InsightEncouragement: {
			Messages: []string{
				"Great energy! You've been active for {active_minutes} minutes.",
				"Strong movement lately. Keep it up!",
				"You're on the move. Nice work staying active.",
			},
			Action:    "Remember to hydrate and cool down",
			Rationale: "High average movement in the recent window",
		},
		types.InsightStress: {
			Messages: []string{
				"Your movement suggests some restlessness ({indicators}).",
				"Signs of tension in your recent activity: {indicators}.",
			},
			Action:    "Take five slow breaths or a short mindful pause",
			Rationale: "Movement statistics matched stress indicators",
		},
		types.InsightWellness: {
			Messages: []string{
				"Your activity looks balanced. Keep listening to your body.",
				"Steady day so far. A glass of water is always a good idea.",
				"Things look calm. A quick stretch keeps it that way.",
			},
			Action:    "Keep up your current routine",
			Rationale: "No notable pattern in the recent window",
		},
		types.InsightConcern: {
			Messages: []string{
				"Your recent activity looks unusual compared to normal.",
			},
			Action:    "Check in with how you're feeling today",
			Rationale: "Recent movement falls outside typical ranges",
		},
		types.InsightCelebration: {
			Messages: []string{
				"You're more active than last week. Well done!",
				"Activity is up week over week. Celebrate the progress!",
			},
			Action:    "Set a slightly bigger goal for next week",
			Rationale: "Week-over-week activity improved",
		},
		types.InsightSupport: {
			Messages: []string{
				"Here's what your recent data suggests.",
			},
			Action:    "Review the recommendations when you have a moment",
			Rationale: "Summary generated from recent feature statistics",
		},
	}
}

// LoadTemplates reads a YAML file of template overrides and merges them onto
// the defaults. Kinds absent from the file keep their default text, and
// empty fields of an override keep the default value.
func LoadTemplates(path string) (Templates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	return ParseTemplates(data)
}

// ParseTemplates merges YAML template overrides onto the defaults.
func ParseTemplates(data []byte) (Templates, error) {
	var overrides map[string]Template
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, types.NewAppError(types.ErrCodeConfigInvalid, "invalid insight templates", err)
	}

	out := DefaultTemplates()
	for name, o := range overrides {
		kind := types.InsightKind(name)
		base, ok := out[kind]
		if !ok {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeConfigInvalid,
				fmt.Sprintf("unknown insight kind %q in templates", name), nil,
				map[string]any{"kind": name})
		}
		if len(o.Messages) > 0 {
			base.Messages = slices.Clone(o.Messages)
		}
		if o.Action != "" {
			base.Action = o.Action
		}
		if o.Rationale != "" {
			base.Rationale = o.Rationale
		}
		out[kind] = base
	}
	return out, nil
}

// Clone returns a deep copy of t.
func (t Templates) Clone() Templates {
	out := maps.Clone(t)
	for k, v := range out {
		v.Messages = slices.Clone(v.Messages)
		out[k] = v
	}
	return out
}
