package pattern

import (
	"math"
	"slices"
	"time"

	"sensorpulse/internal/types"
)

// Stress indicator names contributed by BehaviorAccumulator.
const (
	IndicatorErraticMovement   = "erratic_movement"
	IndicatorRestlessRotation  = "restless_rotation"
	IndicatorLateNightActivity = "late_night_activity"
)

// BehaviorConfig holds the movement thresholds used when folding samples.
// Accelerometer magnitudes are expected as linear (gravity-removed)
// acceleration in m/s².
type BehaviorConfig struct {
	// ActiveThreshold separates active from stationary samples.
	ActiveThreshold float64
	// WalkingThreshold is the average movement at or above which the dominant
	// activity becomes running.
	WalkingThreshold float64
	// MaxGap caps the time a single sample may account for.
	MaxGap time.Duration
	// ErraticCV is the coefficient of variation above which movement counts
	// as erratic.
	ErraticCV float64
	// RestlessRotation is the mean gyroscope magnitude (rad/s) above which
	// rotation counts as restless.
	RestlessRotation float64
	// LateNightMinutes is the active nighttime minutes that flag late-night
	// activity.
	LateNightMinutes float64
	// MinIndicatorSamples is the number of samples a statistic needs before
	// it may raise an indicator.
	MinIndicatorSamples int
	// Location buckets hours of day. Defaults to UTC.
	Location *time.Location
}

// DefaultBehaviorConfig returns the thresholds used by the engine.
func DefaultBehaviorConfig() BehaviorConfig {
	return BehaviorConfig{
		ActiveThreshold:     2.0,
		WalkingThreshold:    12.0,
		MaxGap:              2 * time.Minute,
		ErraticCV:           0.75,
		RestlessRotation:    3.0,
		LateNightMinutes:    15,
		MinIndicatorSamples: 10,
		Location:            time.UTC,
	}
}

func (c BehaviorConfig) withDefaults() BehaviorConfig {
	d := DefaultBehaviorConfig()
	if c.ActiveThreshold <= 0 {
		c.ActiveThreshold = d.ActiveThreshold
	}
	if c.WalkingThreshold <= 0 {
		c.WalkingThreshold = d.WalkingThreshold
	}
	if c.MaxGap <= 0 {
		c.MaxGap = d.MaxGap
	}
	if c.ErraticCV <= 0 {
		c.ErraticCV = d.ErraticCV
	}
	if c.RestlessRotation <= 0 {
		c.RestlessRotation = d.RestlessRotation
	}
	if c.LateNightMinutes <= 0 {
		c.LateNightMinutes = d.LateNightMinutes
	}
	if c.MinIndicatorSamples <= 0 {
		c.MinIndicatorSamples = d.MinIndicatorSamples
	}
	if c.Location == nil {
		c.Location = d.Location
	}
	return c
}

// BehaviorAccumulator folds movement samples one at a time. Accelerometer
// samples must be folded in timestamp order; each one is credited with the
// gap since the previous accelerometer sample, capped at MaxGap.
//
// An accumulator is not safe for concurrent use. Build one per pass.
type BehaviorAccumulator struct {
	cfg BehaviorConfig

	count int
	sum   float64
	sumSq float64

	last    time.Time
	hasLast bool

	activeMin     float64
	stationaryMin float64
	nightActive   float64

	gyroCount int
	gyroSum   float64
}

// NewBehaviorAccumulator creates an empty accumulator. Zero fields of cfg
// take their defaults.
func NewBehaviorAccumulator(cfg BehaviorConfig) *BehaviorAccumulator {
	return &BehaviorAccumulator{cfg: cfg.withDefaults()}
}

// Fold adds one sample. Kinds other than accelerometer and gyroscope are
// ignored.
func (a *BehaviorAccumulator) Fold(s types.SensorSample) {
	switch s.Kind {
	case types.SensorAccelerometer:
		a.foldMovement(s)
	case types.SensorGyroscope:
		a.gyroCount++
		a.gyroSum += s.Value
	}
}

// FoldAll folds every sample in order.
func (a *BehaviorAccumulator) FoldAll(samples []types.SensorSample) {
	for _, s := range samples {
		a.Fold(s)
	}
}

func (a *BehaviorAccumulator) foldMovement(s types.SensorSample) {
	a.count++
	a.sum += s.Value
	a.sumSq += s.Value * s.Value

	if !a.hasLast {
		a.last = s.Timestamp
		a.hasLast = true
		return
	}

	gap := s.Timestamp.Sub(a.last)
	if gap < 0 {
		gap = 0
	} else {
		a.last = s.Timestamp
	}
	if gap > a.cfg.MaxGap {
		gap = a.cfg.MaxGap
	}
	minutes := gap.Minutes()

	if s.Value >= a.cfg.ActiveThreshold {
		a.activeMin += minutes
		if IsNightHour(s.Timestamp.In(a.cfg.Location).Hour()) {
			a.nightActive += minutes
		}
	} else {
		a.stationaryMin += minutes
	}
}

// Finalize returns the BehaviorPattern for everything folded so far.
func (a *BehaviorAccumulator) Finalize() types.BehaviorPattern {
	p := types.BehaviorPattern{
		ActiveMinutes:     a.activeMin,
		StationaryMinutes: a.stationaryMin,
		DominantActivity:  types.ActivityUnknown,
		SampleCount:       a.count,
	}
	if tracked := a.activeMin + a.stationaryMin; tracked > 0 {
		p.MovementVariability = a.activeMin / tracked * 100
	}
	if a.count == 0 {
		return p
	}

	n := float64(a.count)
	p.AvgMovement = a.sum / n
	p.DominantActivity = a.dominantActivity(p.AvgMovement)

	set := make(map[string]struct{}, 3)
	if a.count >= a.cfg.MinIndicatorSamples && p.AvgMovement > 0 {
		variance := math.Max(a.sumSq/n-p.AvgMovement*p.AvgMovement, 0)
		if math.Sqrt(variance)/p.AvgMovement > a.cfg.ErraticCV {
			set[IndicatorErraticMovement] = struct{}{}
		}
	}
	if a.gyroCount >= a.cfg.MinIndicatorSamples && a.gyroSum/float64(a.gyroCount) > a.cfg.RestlessRotation {
		set[IndicatorRestlessRotation] = struct{}{}
	}
	if a.nightActive > a.cfg.LateNightMinutes {
		set[IndicatorLateNightActivity] = struct{}{}
	}
	if len(set) > 0 {
		p.StressIndicators = make([]string, 0, len(set))
		for k := range set {
			p.StressIndicators = append(p.StressIndicators, k)
		}
		slices.Sort(p.StressIndicators)
	}
	return p
}

func (a *BehaviorAccumulator) dominantActivity(avg float64) types.Activity {
	switch {
	case avg < a.cfg.ActiveThreshold:
		return types.ActivityStationary
	case avg < a.cfg.WalkingThreshold:
		return types.ActivityWalking
	default:
		return types.ActivityRunning
	}
}

// BuildPattern folds the accelerometer and gyroscope snapshots of one pass.
func BuildPattern(cfg BehaviorConfig, accel, gyro []types.SensorSample) types.BehaviorPattern {
	acc := NewBehaviorAccumulator(cfg)
	acc.FoldAll(accel)
	acc.FoldAll(gyro)
	return acc.Finalize()
}
