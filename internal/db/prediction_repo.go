package db

import (
	"context"
	"encoding/json"
	"time"

	"sensorpulse/internal/types"
)

// PredictionRepository writes emitted predictions. Inserting the same ID
// twice is a no-op.
type PredictionRepository struct {
	db DBTX
}

// NewPredictionRepository creates a PredictionRepository.
func NewPredictionRepository(db DBTX) *PredictionRepository {
	return &PredictionRepository{db: db}
}

// Insert stores p. Parameters and suggestions are stored as JSONB.
func (r *PredictionRepository) Insert(ctx context.Context, p types.Prediction) error {
	params, err := json.Marshal(orEmptyMap(p.Parameters))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode prediction parameters", err)
	}
	suggestions, err := json.Marshal(orEmptySlice(p.Suggestions))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode prediction suggestions", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO predictions
		 (id, kind, title, description, confidence, parameters, suggestions, valid_until, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING`,
		p.ID,
		string(p.Kind),
		p.Title,
		p.Description,
		p.Confidence,
		params,
		suggestions,
		p.ValidUntil,
		p.CreatedAt,
	)
	if err != nil {
		return types.NewAppErrorWithDetails(types.ErrCodeInternalDB, "failed to insert prediction", err,
			map[string]any{"prediction_id": p.ID})
	}
	return nil
}

// CountActive returns how many stored predictions are valid at now.
func (r *PredictionRepository) CountActive(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM predictions WHERE valid_until > $1`, now,
	).Scan(&n)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count active predictions", err)
	}
	return n, nil
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
