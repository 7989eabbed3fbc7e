package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"sensorpulse/internal/types"
)

// FeatureSummaryRepository stores feature summaries with the FeatureSet
// compressed as a zstd JSON blob.
type FeatureSummaryRepository struct {
	db    DBTX
	codec *blobCodec
}

// NewFeatureSummaryRepository creates a FeatureSummaryRepository.
func NewFeatureSummaryRepository(db DBTX) *FeatureSummaryRepository {
	return &FeatureSummaryRepository{db: db, codec: newBlobCodec()}
}

// InsertBatch stores every summary in order. It stops at the first failure.
func (r *FeatureSummaryRepository) InsertBatch(ctx context.Context, summaries []types.FeatureSummary) error {
	for _, s := range summaries {
		blob, err := r.codec.encode(s.Features)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode feature summary", err)
		}
		_, err = r.db.Exec(ctx,
			`INSERT INTO feature_summaries
			 (sensor_kind, window_start, window_end, sample_count, payload)
			 VALUES ($1, $2, $3, $4, $5)`,
			string(s.Kind),
			s.WindowStart,
			s.WindowEnd,
			s.Features.SampleCount,
			blob,
		)
		if err != nil {
			return types.NewAppErrorWithDetails(types.ErrCodeInternalDB, "failed to insert feature summary", err,
				map[string]any{"sensor_kind": string(s.Kind)})
		}
	}
	return nil
}

// Latest returns the most recent summary stored for kind.
func (r *FeatureSummaryRepository) Latest(ctx context.Context, kind types.SensorKind) (types.FeatureSummary, error) {
	var (
		out  types.FeatureSummary
		raw  string
		blob []byte
	)
	err := r.db.QueryRow(ctx,
		`SELECT sensor_kind, window_start, window_end, payload
		 FROM feature_summaries
		 WHERE sensor_kind = $1
		 ORDER BY window_end DESC
		 LIMIT 1`,
		string(kind),
	).Scan(&raw, &out.WindowStart, &out.WindowEnd, &blob)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.FeatureSummary{}, types.NewAppErrorWithDetails(types.ErrCodeNotFoundSensorKind,
				"no feature summary stored for sensor kind", nil, map[string]any{"sensor_kind": string(kind)})
		}
		return types.FeatureSummary{}, types.NewAppError(types.ErrCodeInternalDB, "failed to load feature summary", err)
	}
	out.Kind = types.SensorKind(raw)
	if err := r.codec.decode(blob, &out.Features); err != nil {
		return types.FeatureSummary{}, types.NewAppError(types.ErrCodeInternalDB, "corrupt feature summary payload", err)
	}
	return out, nil
}
