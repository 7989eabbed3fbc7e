package types

// SensorKind identifies the device sensor a sample came from.
type SensorKind string

const (
	SensorAccelerometer SensorKind = "accelerometer"
	SensorGyroscope     SensorKind = "gyroscope"
	SensorMagnetometer  SensorKind = "magnetometer"
	SensorLocation      SensorKind = "location"
	SensorBattery       SensorKind = "battery"
	SensorLight         SensorKind = "light"
	SensorProximity     SensorKind = "proximity"
)

// AllSensorKinds lists every supported sensor kind in a stable order.
var AllSensorKinds = []SensorKind{
	SensorAccelerometer,
	SensorGyroscope,
	SensorMagnetometer,
	SensorLocation,
	SensorBattery,
	SensorLight,
	SensorProximity,
}

// Valid reports whether k is a supported sensor kind.
func (k SensorKind) Valid() bool {
	switch k {
	case SensorAccelerometer, SensorGyroscope, SensorMagnetometer,
		SensorLocation, SensorBattery, SensorLight, SensorProximity:
		return true
	}
	return false
}

// TrendDirection classifies the movement between the two halves of a window.
type TrendDirection string

const (
	TrendStable     TrendDirection = "stable"
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
)

// PredictionKind identifies the forward-looking statement a Prediction makes.
type PredictionKind string

const (
	PredictionEnergyLevel       PredictionKind = "energy_level"
	PredictionStressRisk        PredictionKind = "stress_risk"
	PredictionOptimalTiming     PredictionKind = "optimal_timing"
	PredictionHealthTrend       PredictionKind = "health_trend"
	PredictionRoutineDisruption PredictionKind = "routine_disruption"
)

// AllPredictionKinds lists every prediction kind in synthesis order.
var AllPredictionKinds = []PredictionKind{
	PredictionEnergyLevel,
	PredictionStressRisk,
	PredictionOptimalTiming,
	PredictionHealthTrend,
	PredictionRoutineDisruption,
}

// PredictionState is the lifecycle position of the latest prediction of a kind.
type PredictionState string

const (
	PredictionStateNone      PredictionState = "none"
	PredictionStateCandidate PredictionState = "candidate"
	PredictionStateEmitted   PredictionState = "emitted"
	PredictionStateExpired   PredictionState = "expired"
	PredictionStatePurged    PredictionState = "purged"
)

// InsightKind categorizes a present-tense observation.
type InsightKind string

const (
	InsightPosture       InsightKind = "posture"
	InsightEnvironmental InsightKind = "environmental"
	InsightEncouragement InsightKind = "encouragement"
	InsightStress        InsightKind = "stress"
	InsightWellness      InsightKind = "wellness"
	InsightSupport       InsightKind = "support"
	InsightConcern       InsightKind = "concern"
	InsightCelebration   InsightKind = "celebration"
)

// Priority ranks how urgently an insight should be surfaced.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Activity labels the dominant movement class of a behavior pattern.
type Activity string

const (
	ActivityUnknown    Activity = "unknown"
	ActivityStationary Activity = "stationary"
	ActivityWalking    Activity = "walking"
	ActivityRunning    Activity = "running"
)

// Cadence identifies which scheduler cadence triggered an analysis pass.
type Cadence string

const (
	CadenceOnArrival  Cadence = "on_arrival"
	CadenceBackground Cadence = "background"
)
