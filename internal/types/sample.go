package types

import (
	"fmt"
	"math"
	"time"
)

// Payload is the raw, kind-specific body of a sensor sample. The set of
// implementations is closed; see Vector3, LocationFix, BatteryReading,
// LightReading and ProximityReading.
type Payload interface {
	payload()
}

// Vector3 is a three-axis reading (accelerometer, gyroscope, magnetometer).
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Magnitude returns the Euclidean norm of the vector.
func (v Vector3) Magnitude() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// LocationFix is a positioning update. Speed is in meters per second and is
// nil when the provider did not report one.
type LocationFix struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Speed     *float64 `json:"speed,omitempty"`
	Accuracy  float64  `json:"accuracy,omitempty"`
}

// BatteryReading is a battery level in percent.
type BatteryReading struct {
	Level    float64 `json:"level"`
	Charging bool    `json:"charging"`
}

// LightReading is an ambient light level in lux.
type LightReading struct {
	Lux float64 `json:"lux"`
}

// ProximityReading is a proximity sensor distance in centimeters.
type ProximityReading struct {
	Distance float64 `json:"distance"`
	Near     bool    `json:"near"`
}

func (Vector3) payload()          {}
func (LocationFix) payload()      {}
func (BatteryReading) payload()   {}
func (LightReading) payload()     {}
func (ProximityReading) payload() {}

// SensorSample is a normalized reading. Value is the kind-specific scalar
// projection of Raw used by all statistics. Samples are immutable once built
// by NewSample.
type SensorSample struct {
	Kind      SensorKind `json:"sensor_kind"`
	Timestamp time.Time  `json:"timestamp"`
	Value     float64    `json:"scalar_value"`
	Raw       Payload    `json:"raw"`
}

// NewSample validates the kind/payload pairing and computes the scalar
// projection. It returns an AppError with code ErrCodeUnsupportedSensor,
// ErrCodeInvalidSample or ErrCodeNonFiniteValue when the sample cannot be used.
func NewSample(kind SensorKind, ts time.Time, raw Payload) (SensorSample, error) {
	value, err := Project(kind, raw)
	if err != nil {
		return SensorSample{}, err
	}
	return SensorSample{Kind: kind, Timestamp: ts, Value: value, Raw: raw}, nil
}

// Project computes the scalar value statistics operate on:
//
//	accelerometer, gyroscope, magnetometer -> sqrt(x²+y²+z²)
//	location                               -> speed, or 0 when unknown
//	battery                                -> level %
//	light                                  -> lux
//	proximity                              -> distance
func Project(kind SensorKind, raw Payload) (float64, error) {
	if !kind.Valid() {
		return 0, NewAppErrorWithDetails(ErrCodeUnsupportedSensor,
			fmt.Sprintf("unsupported sensor kind %q", kind), nil,
			map[string]any{"sensor_kind": string(kind)})
	}

	var value float64
	switch kind {
	case SensorAccelerometer, SensorGyroscope, SensorMagnetometer:
		v, ok := raw.(Vector3)
		if !ok {
			return 0, payloadMismatch(kind, raw)
		}
		value = v.Magnitude()
	case SensorLocation:
		loc, ok := raw.(LocationFix)
		if !ok {
			return 0, payloadMismatch(kind, raw)
		}
		if loc.Speed != nil {
			value = *loc.Speed
		}
	case SensorBattery:
		b, ok := raw.(BatteryReading)
		if !ok {
			return 0, payloadMismatch(kind, raw)
		}
		value = b.Level
	case SensorLight:
		l, ok := raw.(LightReading)
		if !ok {
			return 0, payloadMismatch(kind, raw)
		}
		value = l.Lux
	case SensorProximity:
		p, ok := raw.(ProximityReading)
		if !ok {
			return 0, payloadMismatch(kind, raw)
		}
		value = p.Distance
	}

	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, NewAppErrorWithDetails(ErrCodeNonFiniteValue,
			"sample projects to a non-finite value", nil,
			map[string]any{"sensor_kind": string(kind)})
	}
	return value, nil
}

func payloadMismatch(kind SensorKind, raw Payload) *AppError {
	return NewAppErrorWithDetails(ErrCodeInvalidSample,
		fmt.Sprintf("payload %T does not match sensor kind %q", raw, kind), nil,
		map[string]any{"sensor_kind": string(kind)})
}

// Point is a single time-series element.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Values returns the scalar values of points in order.
func Values(points []Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}

// SampleValues returns the scalar projections of samples in order.
func SampleValues(samples []SensorSample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Value
	}
	return out
}
