package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"sensorpulse/internal/types"
)

// RecordFeatures tags feature-summary lines written by JSONLines.
const RecordFeatures = "features"

// JSONLines writes each record as one Envelope per line. Replays use it to
// print engine output.
type JSONLines struct {
	mu  sync.Mutex
	enc *json.Encoder
	// Features controls whether feature summaries are written.
	Features bool
}

var _ Sink = (*JSONLines)(nil)

// NewJSONLines creates a JSONLines sink writing to w.
func NewJSONLines(w io.Writer, features bool) *JSONLines {
	return &JSONLines{enc: json.NewEncoder(w), Features: features}
}

// PublishPrediction implements Sink.
func (j *JSONLines) PublishPrediction(_ context.Context, p types.Prediction) error {
	return j.write(RecordPrediction, p)
}

// PublishInsight implements Sink.
func (j *JSONLines) PublishInsight(_ context.Context, in types.Insight) error {
	return j.write(RecordInsight, in)
}

// PublishFeatures implements Sink.
func (j *JSONLines) PublishFeatures(_ context.Context, summaries []types.FeatureSummary) error {
	if !j.Features || len(summaries) == 0 {
		return nil
	}
	return j.write(RecordFeatures, summaries)
}

func (j *JSONLines) write(recordType string, payload any) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.enc.Encode(Envelope{Type: recordType, Payload: payload}); err != nil {
		return fmt.Errorf("write %s: %w", recordType, err)
	}
	return nil
}
