package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"sensorpulse/internal/types"
)

// DefaultClockSkewTolerance is how far in the future a timestamp may be
// before the sample is treated as a clock anomaly.
const DefaultClockSkewTolerance = 5 * time.Second

// Target receives normalized batches. The engine implements it.
type Target interface {
	IngestEvents(ctx context.Context, events []RawEvent) BatchResult
}

// Rejection describes one event that was not accepted.
type Rejection struct {
	Index int
	Err   error
}

// BatchResult summarizes how a batch was handled. Anomalous samples are
// recorded in history but kept out of the recent windows.
type BatchResult struct {
	Accepted  int
	Anomalous int
	Rejected  []Rejection
}

// Total returns the number of events the result covers.
func (r BatchResult) Total() int {
	return r.Accepted + r.Anomalous + len(r.Rejected)
}

// Ingestor validates and normalizes raw events.
type Ingestor struct {
	now      func() time.Time
	skew     time.Duration
	validate *validator.Validate
}

// NewIngestor creates an Ingestor. A nil now uses time.Now and a skew of zero
// uses DefaultClockSkewTolerance.
func NewIngestor(now func() time.Time, skew time.Duration) *Ingestor {
	if now == nil {
		now = time.Now
	}
	if skew <= 0 {
		skew = DefaultClockSkewTolerance
	}
	return &Ingestor{now: now, skew: skew, validate: validator.New()}
}

// Normalize turns ev into a SensorSample. A missing timestamp is replaced by
// the ingest time. Errors are AppErrors with a validation code.
func (i *Ingestor) Normalize(ev RawEvent) (types.SensorSample, error) {
	kind := types.SensorKind(ev.SensorKind)
	if !kind.Valid() {
		return types.SensorSample{}, types.NewAppErrorWithDetails(types.ErrCodeUnsupportedSensor,
			fmt.Sprintf("unsupported sensor kind %q", ev.SensorKind), nil,
			map[string]any{"sensor_kind": ev.SensorKind})
	}
	if len(ev.Data) == 0 {
		return types.SensorSample{}, invalid(kind, "missing data", nil)
	}

	raw, err := i.decodePayload(kind, ev.Data)
	if err != nil {
		return types.SensorSample{}, err
	}

	ts := ev.Timestamp.Time
	if ts.IsZero() {
		ts = i.now()
	}
	return types.NewSample(kind, ts, raw)
}

func (i *Ingestor) decodePayload(kind types.SensorKind, data json.RawMessage) (types.Payload, error) {
	switch kind {
	case types.SensorAccelerometer, types.SensorGyroscope, types.SensorMagnetometer:
		var d vectorData
		if err := i.decode(kind, data, &d); err != nil {
			return nil, err
		}
		return types.Vector3{X: *d.X, Y: *d.Y, Z: *d.Z}, nil
	case types.SensorLocation:
		var d locationData
		if err := i.decode(kind, data, &d); err != nil {
			return nil, err
		}
		return types.LocationFix{Latitude: *d.Latitude, Longitude: *d.Longitude, Speed: d.Speed, Accuracy: d.Accuracy}, nil
	case types.SensorBattery:
		var d batteryData
		if err := i.decode(kind, data, &d); err != nil {
			return nil, err
		}
		return types.BatteryReading{Level: *d.Level, Charging: d.Charging}, nil
	case types.SensorLight:
		var d lightData
		if err := i.decode(kind, data, &d); err != nil {
			return nil, err
		}
		return types.LightReading{Lux: *d.Lux}, nil
	case types.SensorProximity:
		var d proximityData
		if err := i.decode(kind, data, &d); err != nil {
			return nil, err
		}
		return types.ProximityReading{Distance: *d.Distance, Near: d.Near}, nil
	}
	return nil, invalid(kind, "unhandled sensor kind", nil)
}

func (i *Ingestor) decode(kind types.SensorKind, data json.RawMessage, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return invalid(kind, "malformed data", err)
	}
	if err := i.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return invalid(kind, fmt.Sprintf("field %s failed %s", verrs[0].Field(), verrs[0].Tag()), err)
		}
		return invalid(kind, "invalid data", err)
	}
	return nil
}

// CheckClock classifies a sample's timestamp against now. It returns a
// ClockAnomaly AppError when the sample is more than the skew tolerance in
// the future or already older than horizon.
func (i *Ingestor) CheckClock(s types.SensorSample, horizon time.Duration) error {
	now := i.now()
	switch {
	case s.Timestamp.After(now.Add(i.skew)):
		return types.NewAppErrorWithDetails(types.ErrCodeClockAnomaly,
			"sample timestamp is in the future", nil,
			map[string]any{"sensor_kind": string(s.Kind), "skew": s.Timestamp.Sub(now).String()})
	case horizon > 0 && now.Sub(s.Timestamp) > horizon:
		return types.NewAppErrorWithDetails(types.ErrCodeClockAnomaly,
			"sample is older than its window horizon", nil,
			map[string]any{"sensor_kind": string(s.Kind), "age": now.Sub(s.Timestamp).String()})
	}
	return nil
}

func invalid(kind types.SensorKind, msg string, err error) *types.AppError {
	return types.NewAppErrorWithDetails(types.ErrCodeInvalidSample, msg, err,
		map[string]any{"sensor_kind": string(kind)})
}
