package sink

import (
	"context"

	"sensorpulse/internal/types"
)

// PredictionWriter is satisfied by *db.PredictionRepository.
type PredictionWriter interface {
	Insert(ctx context.Context, p types.Prediction) error
}

// InsightWriter is satisfied by *db.InsightRepository.
type InsightWriter interface {
	Insert(ctx context.Context, in types.Insight) (int64, error)
}

// FeatureWriter is satisfied by *db.FeatureSummaryRepository.
type FeatureWriter interface {
	InsertBatch(ctx context.Context, summaries []types.FeatureSummary) error
}

// Store is the persistence sink. Any nil writer turns that record type into
// a no-op.
type Store struct {
	Predictions PredictionWriter
	Insights    InsightWriter
	Features    FeatureWriter
}

var _ Sink = (*Store)(nil)

// PublishPrediction implements Sink.
func (s *Store) PublishPrediction(ctx context.Context, p types.Prediction) error {
	if s.Predictions == nil {
		return nil
	}
	if err := s.Predictions.Insert(ctx, p); err != nil {
		return persistenceError("prediction", err)
	}
	return nil
}

// PublishInsight implements Sink.
func (s *Store) PublishInsight(ctx context.Context, in types.Insight) error {
	if s.Insights == nil {
		return nil
	}
	if _, err := s.Insights.Insert(ctx, in); err != nil {
		return persistenceError("insight", err)
	}
	return nil
}

// PublishFeatures implements Sink.
func (s *Store) PublishFeatures(ctx context.Context, summaries []types.FeatureSummary) error {
	if s.Features == nil || len(summaries) == 0 {
		return nil
	}
	if err := s.Features.InsertBatch(ctx, summaries); err != nil {
		return persistenceError("feature_summary", err)
	}
	return nil
}

func persistenceError(record string, err error) *types.AppError {
	return types.NewAppErrorWithDetails(types.ErrCodeUpstreamPersistence,
		"failed to persist "+record, err, map[string]any{"record_type": record})
}
