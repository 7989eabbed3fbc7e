package prediction

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorpulse/internal/pattern"
	"sensorpulse/internal/timeseries"
	"sensorpulse/internal/types"
)

// Wednesday.
var wednesday10 = time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)

func newTestSynthesizer() *Synthesizer {
	n := 0
	cfg := DefaultConfig()
	cfg.NewID = func() string {
		n++
		return fmt.Sprintf("pred-%d", n)
	}
	return NewSynthesizer(cfg)
}

func weekPoints(start time.Time, values ...float64) []types.Point {
	out := make([]types.Point, len(values))
	for i, v := range values {
		out[i] = types.Point{Timestamp: start.Add(time.Duration(i) * time.Hour), Value: v}
	}
	return out
}

func TestEnergyLevel(t *testing.T) {
	s := newTestSynthesizer()

	tests := []struct {
		name string
		in   Inputs
		want float64
	}{
		{
			name: "weekday morning neutral sleep",
			in:   Inputs{Now: wednesday10, SleepQuality: 0.5},
			want: 0.8,
		},
		{
			name: "weekend night poor sleep",
			in:   Inputs{Now: time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC), SleepQuality: 0},
			want: 0.1,
		},
		{
			name: "averaged with same-hour history",
			in: Inputs{
				Now:          wednesday10,
				SleepQuality: 0.5,
				HourlyActivity: func() timeseries.HourlyProfile {
					var p timeseries.HourlyProfile
					p.Means[10], p.Counts[10] = 20, 1
					return p
				}(),
			},
			want: 0.9,
		},
		{
			name: "activity above scale is not capped",
			in:   Inputs{Now: time.Date(2026, 3, 14, 2, 0, 0, 0, time.UTC), SleepQuality: 0.5, RecentActivity: 30},
			want: 0.6,
		},
		{
			name: "clamped at one",
			in:   Inputs{Now: wednesday10, SleepQuality: 1, RecentActivity: 100},
			want: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, s.EnergyLevel(tt.in), 1e-9)
		})
	}
}

func TestEnergy_AlwaysEmitsWithBoundedConfidence(t *testing.T) {
	s := newTestSynthesizer()

	p := s.Energy(Inputs{Now: wednesday10, SleepQuality: 0.5})
	assert.Equal(t, types.PredictionEnergyLevel, p.Kind)
	assert.Equal(t, "pred-1", p.ID)
	assert.InDelta(t, 0.575, p.Confidence, 1e-9)
	assert.Equal(t, wednesday10.Add(2*time.Hour), p.ValidUntil)
	assert.Equal(t, "high", p.Parameters["label"])
	assert.NotEmpty(t, p.Suggestions)

	capped := s.Energy(Inputs{Now: wednesday10, SleepQuality: 1, HistorySize: 10000})
	assert.InDelta(t, 0.95, capped.Confidence, 1e-9)
}

func TestStressRisk_Gate(t *testing.T) {
	s := newTestSynthesizer()

	_, ok := s.StressRisk(Inputs{Now: wednesday10, Stress: types.StressAssessment{RiskLevel: 0.39}})
	assert.False(t, ok)

	p, ok := s.StressRisk(Inputs{Now: wednesday10, Stress: types.StressAssessment{
		RiskLevel:  0.45,
		Indicators: []string{pattern.IndicatorIrregularActivity, pattern.IndicatorRoutineChange},
		Deviations: map[string]float64{pattern.DeviationActivity: 0.6},
	}})
	require.True(t, ok)
	assert.InDelta(t, 0.8, p.Confidence, 1e-9)
	assert.Equal(t, wednesday10.Add(6*time.Hour), p.ValidUntil)
	assert.Contains(t, p.Description, pattern.IndicatorIrregularActivity)
}

func TestOptimalTiming(t *testing.T) {
	s := newTestSynthesizer()

	var two timeseries.HourlyProfile
	two.Means[8], two.Counts[8] = 5, 2
	two.Means[18], two.Counts[18] = 9, 2
	_, ok := s.OptimalTiming(Inputs{Now: wednesday10, HourlyActivity: two})
	assert.False(t, ok)

	three := two
	three.Means[12], three.Counts[12] = 3, 1
	p, ok := s.OptimalTiming(Inputs{Now: wednesday10, HourlyActivity: three})
	require.True(t, ok)
	assert.Equal(t, 18, p.Parameters["best_hour"])
	assert.InDelta(t, 0.55, p.Confidence, 1e-9)
	assert.Equal(t, time.Date(2026, 3, 11, 18, 0, 0, 0, time.UTC), p.Parameters["next_window"])
}

func TestHealthTrend(t *testing.T) {
	s := newTestSynthesizer()
	lastStart := wednesday10.Add(-10 * 24 * time.Hour)
	thisStart := wednesday10.Add(-3 * 24 * time.Hour)

	tests := []struct {
		name      string
		this      []types.Point
		last      []types.Point
		wantOK    bool
		direction string
	}{
		{"improving", weekPoints(thisStart, 12, 12), weekPoints(lastStart, 10, 10), true, "improving"},
		{"declining", weekPoints(thisStart, 8), weekPoints(lastStart, 10), true, "declining"},
		{"below threshold", weekPoints(thisStart, 10.5), weekPoints(lastStart, 10), false, ""},
		{"no previous week", weekPoints(thisStart, 12), nil, false, ""},
		{"zero previous mean", weekPoints(thisStart, 12), weekPoints(lastStart, 0), false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := s.HealthTrend(Inputs{Now: wednesday10, ThisWeek: tt.this, LastWeek: tt.last})
			require.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.direction, p.Parameters["direction"])
				assert.Equal(t, wednesday10.Add(24*time.Hour), p.ValidUntil)
			}
		})
	}
}

func TestRoutineDisruption(t *testing.T) {
	s := newTestSynthesizer()

	in := func(routine, sleep float64) Inputs {
		return Inputs{Now: wednesday10, Stress: types.StressAssessment{Deviations: map[string]float64{
			pattern.DeviationRoutine: routine,
			pattern.DeviationSleep:   sleep,
		}}}
	}

	_, ok := s.RoutineDisruption(in(0.25, 0.2))
	assert.False(t, ok)

	p, ok := s.RoutineDisruption(in(0.3, 0))
	require.True(t, ok)
	assert.InDelta(t, 0.62, p.Confidence, 1e-9)

	_, ok = s.RoutineDisruption(in(0, 0.21))
	assert.True(t, ok)
}

func TestSynthesize_OrderAndSkips(t *testing.T) {
	s := newTestSynthesizer()

	got := s.Synthesize(Inputs{
		Now:          wednesday10,
		SleepQuality: 0.5,
		Stress: types.StressAssessment{
			RiskLevel:  0.5,
			Deviations: map[string]float64{pattern.DeviationRoutine: 0.5},
		},
	})

	kinds := make([]types.PredictionKind, len(got))
	for i, p := range got {
		kinds[i] = p.Kind
	}
	assert.Equal(t, []types.PredictionKind{
		types.PredictionEnergyLevel,
		types.PredictionStressRisk,
		types.PredictionRoutineDisruption,
	}, kinds)
}

func TestFor_ConfidenceThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConfidenceThresholds = map[types.PredictionKind]float64{types.PredictionEnergyLevel: 0.99}
	s := NewSynthesizer(cfg)

	_, err := s.For(types.PredictionEnergyLevel, Inputs{Now: wednesday10})
	assert.True(t, types.IsCode(err, types.ErrCodeInsufficientData))

	_, err = s.For("bogus", Inputs{Now: wednesday10})
	assert.True(t, types.IsCode(err, types.ErrCodeInternalUnexpected))
}
