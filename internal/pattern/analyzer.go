package pattern

import (
	"time"

	"sensorpulse/internal/types"
)

// Deviation map keys and the indicator text each one contributes.
const (
	DeviationActivity = "activity"
	DeviationSleep    = "sleep"
	DeviationRoutine  = "routine"

	IndicatorIrregularActivity = "irregular activity patterns"
	IndicatorDisruptedSleep    = "disrupted sleep patterns"
	IndicatorRoutineChange     = "changes in daily routine"
)

// Component weights and per-component indicator thresholds.
const (
	activityWeight = 0.4
	sleepWeight    = 0.3
	routineWeight  = 0.3

	ActivityIndicatorThreshold = 0.3
	SleepIndicatorThreshold    = 0.2
	RoutineIndicatorThreshold  = 0.25
)

// WeekSource provides the two equally sized weekly windows of a series.
// *timeseries.Store satisfies it.
type WeekSource interface {
	WeekOverWeek(kind types.SensorKind, now time.Time) (thisWeek, lastWeek []types.Point)
}

// Analyzer turns window comparisons into a stress assessment.
type Analyzer struct {
	loc *time.Location
}

// NewAnalyzer creates an Analyzer that buckets hours in loc (UTC when nil).
func NewAnalyzer(loc *time.Location) *Analyzer {
	if loc == nil {
		loc = time.UTC
	}
	return &Analyzer{loc: loc}
}

// Location returns the time zone used for hour-of-day bucketing.
func (a *Analyzer) Location() *time.Location { return a.loc }

// AssessStress compares recent against previous and aggregates the three
// deviations into a risk level in [0,1]. Indicators list only the components
// whose own deviation exceeds its threshold.
func (a *Analyzer) AssessStress(recent, previous []types.Point) types.StressAssessment {
	activity := ActivityDeviation(types.Values(recent), types.Values(previous))
	sleep := SleepDeviation(recent, previous, a.loc)
	routine := RoutineDeviation(recent, previous, a.loc)

	risk := clamp01(activityWeight*activity + sleepWeight*sleep + routineWeight*routine)

	indicators := make([]string, 0, 3)
	if activity > ActivityIndicatorThreshold {
		indicators = append(indicators, IndicatorIrregularActivity)
	}
	if sleep > SleepIndicatorThreshold {
		indicators = append(indicators, IndicatorDisruptedSleep)
	}
	if routine > RoutineIndicatorThreshold {
		indicators = append(indicators, IndicatorRoutineChange)
	}

	return types.StressAssessment{
		RiskLevel:  risk,
		Indicators: indicators,
		Deviations: map[string]float64{
			DeviationActivity: activity,
			DeviationSleep:    sleep,
			DeviationRoutine:  routine,
		},
	}
}

// CompareWeeks assesses the trailing week of kind against the week before.
func (a *Analyzer) CompareWeeks(src WeekSource, kind types.SensorKind, now time.Time) types.StressAssessment {
	thisWeek, lastWeek := src.WeekOverWeek(kind, now)
	return a.AssessStress(thisWeek, lastWeek)
}
