package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"sensorpulse/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation. Production code uses
// *sqs.Client.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Record types carried in the envelope and the record_type attribute.
const (
	RecordPrediction = "prediction"
	RecordInsight    = "insight"
)

// Envelope is the SQS message body.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// SQSPublisher is the realtime sink: each prediction and insight becomes one
// SQS message. Feature summaries are not published.
type SQSPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

var _ Sink = (*SQSPublisher)(nil)

// NewSQSPublisher creates a publisher for queueURL.
func NewSQSPublisher(client SQSSender, queueURL string, logger *slog.Logger) *SQSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQSPublisher{client: client, queueURL: queueURL, logger: logger}
}

// PublishPrediction implements Sink.
func (p *SQSPublisher) PublishPrediction(ctx context.Context, pred types.Prediction) error {
	return p.send(ctx, RecordPrediction, pred, "prediction_id", pred.ID)
}

// PublishInsight implements Sink.
func (p *SQSPublisher) PublishInsight(ctx context.Context, in types.Insight) error {
	return p.send(ctx, RecordInsight, in, "insight_kind", string(in.Kind))
}

// PublishFeatures implements Sink.
func (p *SQSPublisher) PublishFeatures(context.Context, []types.FeatureSummary) error {
	return nil
}

func (p *SQSPublisher) send(ctx context.Context, recordType string, payload any, logKey, logVal string) error {
	body, err := json.Marshal(Envelope{Type: recordType, Payload: payload})
	if err != nil {
		return fmt.Errorf("sqs publisher: failed to marshal %s: %w", recordType, err)
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"record_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(recordType),
			},
		},
	})
	if err != nil {
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("failed to send %s to %s", recordType, p.queueURL), err,
			map[string]any{"record_type": recordType})
	}

	p.logger.DebugContext(ctx, "record published", "record_type", recordType, logKey, logVal)
	return nil
}
