// Package ingest normalizes raw device events into types.SensorSample and
// feeds them to the engine from external transports.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"sensorpulse/internal/types"
)

// EventTime accepts either an RFC 3339 string or a number of milliseconds
// since the Unix epoch.
type EventTime struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *EventTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		t.Time = parsed
		return nil
	}
	ms, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", data, err)
	}
	t.Time = time.UnixMilli(int64(ms)).UTC()
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t EventTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// RawEvent is a device event as it arrives on the wire:
//
//	{"sensor_kind":"accelerometer","timestamp":"2026-03-11T10:00:00Z","data":{"x":0.1,"y":0.2,"z":9.8}}
type RawEvent struct {
	SensorKind string          `json:"sensor_kind"`
	Timestamp  EventTime       `json:"timestamp"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEvents parses a payload holding either one RawEvent object or an
// array of them.
func DecodeEvents(payload []byte) ([]RawEvent, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, types.NewAppError(types.ErrCodeInvalidJSON, "empty payload", nil)
	}
	if trimmed[0] == '[' {
		var events []RawEvent
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return nil, types.NewAppError(types.ErrCodeInvalidJSON, "malformed event batch", err)
		}
		return events, nil
	}
	var ev RawEvent
	if err := json.Unmarshal(trimmed, &ev); err != nil {
		return nil, types.NewAppError(types.ErrCodeInvalidJSON, "malformed event", err)
	}
	return []RawEvent{ev}, nil
}

// Wire shapes of each payload. Pointer fields distinguish a missing value
// from an explicit zero.
type vectorData struct {
	X *float64 `json:"x" validate:"required"`
	Y *float64 `json:"y" validate:"required"`
	Z *float64 `json:"z" validate:"required"`
}

type locationData struct {
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	Speed     *float64 `json:"speed" validate:"omitempty,gte=0"`
	Accuracy  float64  `json:"accuracy" validate:"gte=0"`
}

type batteryData struct {
	Level    *float64 `json:"level" validate:"required,gte=0,lte=100"`
	Charging bool     `json:"charging"`
}

type lightData struct {
	Lux *float64 `json:"lux" validate:"required,gte=0"`
}

type proximityData struct {
	Distance *float64 `json:"distance" validate:"required,gte=0"`
	Near     bool     `json:"near"`
}
