package db

import (
	"context"
	"encoding/json"

	"sensorpulse/internal/types"
)

// InsightRepository writes composed insights.
type InsightRepository struct {
	db DBTX
}

// NewInsightRepository creates an InsightRepository.
func NewInsightRepository(db DBTX) *InsightRepository {
	return &InsightRepository{db: db}
}

// Insert stores in and returns the generated row id.
func (r *InsightRepository) Insert(ctx context.Context, in types.Insight) (int64, error) {
	meta, err := json.Marshal(orEmptyMap(in.Metadata))
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode insight metadata", err)
	}

	var id int64
	err = r.db.QueryRow(ctx,
		`INSERT INTO insights
		 (kind, priority, message, action_suggestion, rationale, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		string(in.Kind),
		string(in.Priority),
		in.Message,
		in.ActionSuggestion,
		in.Rationale,
		meta,
		in.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to insert insight", err)
	}
	return id, nil
}
