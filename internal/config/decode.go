package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"sensorpulse/internal/types"
)

// HorizonMap is a per-sensor-kind duration map decoded from
// "kind:duration,kind:duration".
type HorizonMap map[types.SensorKind]time.Duration

// Decode implements envconfig.Decoder.
func (m *HorizonMap) Decode(value string) error {
	out := make(HorizonMap)
	err := eachPair(value, func(key, raw string) error {
		kind := types.SensorKind(key)
		if !kind.Valid() {
			return fmt.Errorf("unsupported sensor kind %q", key)
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("horizon for %s: %w", key, err)
		}
		if d <= 0 {
			return fmt.Errorf("horizon for %s must be positive, got %s", key, d)
		}
		out[kind] = d
		return nil
	})
	if err != nil {
		return err
	}
	*m = out
	return nil
}

// ThresholdMap is a per-prediction-kind confidence threshold map decoded from
// "kind:value,kind:value".
type ThresholdMap map[types.PredictionKind]float64

// Decode implements envconfig.Decoder.
func (m *ThresholdMap) Decode(value string) error {
	known := make(map[types.PredictionKind]bool, len(types.AllPredictionKinds))
	for _, k := range types.AllPredictionKinds {
		known[k] = true
	}

	out := make(ThresholdMap)
	err := eachPair(value, func(key, raw string) error {
		kind := types.PredictionKind(key)
		if !known[kind] {
			return fmt.Errorf("unknown prediction kind %q", key)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("threshold for %s: %w", key, err)
		}
		if v < 0 || v > 1 {
			return fmt.Errorf("threshold for %s must be within [0,1], got %v", key, v)
		}
		out[kind] = v
		return nil
	})
	if err != nil {
		return err
	}
	*m = out
	return nil
}

func eachPair(value string, fn func(key, raw string) error) error {
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, raw, ok := strings.Cut(entry, ":")
		if !ok {
			return fmt.Errorf("entry %q is not of the form key:value", entry)
		}
		if err := fn(strings.TrimSpace(key), strings.TrimSpace(raw)); err != nil {
			return err
		}
	}
	return nil
}
