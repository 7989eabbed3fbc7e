// Package sink delivers engine output to persistence and realtime backends
// and reports engine metrics.
package sink

import (
	"context"
	"errors"

	"sensorpulse/internal/types"
)

// Sink receives every emitted prediction and insight and the feature
// summaries of each background pass. Implementations must honor ctx; the
// engine bounds every call with a timeout and only logs failures.
type Sink interface {
	PublishPrediction(ctx context.Context, p types.Prediction) error
	PublishInsight(ctx context.Context, in types.Insight) error
	PublishFeatures(ctx context.Context, summaries []types.FeatureSummary) error
}

// Multi fans a call out to every sink and joins their errors.
type Multi []Sink

var _ Sink = Multi(nil)

// PublishPrediction implements Sink.
func (m Multi) PublishPrediction(ctx context.Context, p types.Prediction) error {
	var errs []error
	for _, s := range m {
		if err := s.PublishPrediction(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishInsight implements Sink.
func (m Multi) PublishInsight(ctx context.Context, in types.Insight) error {
	var errs []error
	for _, s := range m {
		if err := s.PublishInsight(ctx, in); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishFeatures implements Sink.
func (m Multi) PublishFeatures(ctx context.Context, summaries []types.FeatureSummary) error {
	var errs []error
	for _, s := range m {
		if err := s.PublishFeatures(ctx, summaries); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Noop discards everything.
type Noop struct{}

var _ Sink = Noop{}

func (Noop) PublishPrediction(context.Context, types.Prediction) error     { return nil }
func (Noop) PublishInsight(context.Context, types.Insight) error           { return nil }
func (Noop) PublishFeatures(context.Context, []types.FeatureSummary) error { return nil }
