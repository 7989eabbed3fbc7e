package sink

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"sensorpulse/internal/types"
)

// Metrics records engine telemetry. Implementations must never fail the
// caller; errors are logged.
type Metrics interface {
	RecordPass(ctx context.Context, cadence types.Cadence, duration time.Duration)
	RecordEmitted(ctx context.Context, predictions, insights int)
	RecordDropped(ctx context.Context, kind types.SensorKind, reason types.ErrorCode)
	RecordExternalFailure(ctx context.Context, provider string)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

var _ Metrics = NoopMetrics{}

func (NoopMetrics) RecordPass(context.Context, types.Cadence, time.Duration)         {}
func (NoopMetrics) RecordEmitted(context.Context, int, int)                          {}
func (NoopMetrics) RecordDropped(context.Context, types.SensorKind, types.ErrorCode) {}
func (NoopMetrics) RecordExternalFailure(context.Context, string)                    {}

// CloudWatchClient abstracts PutMetricData for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics emits:
//   - AnalysisPass (count) and AnalysisLatency (ms), dims {Cadence}
//   - PredictionsEmitted, InsightsEmitted (count)
//   - SamplesDropped (count), dims {SensorKind, Reason}
//   - ExternalAPIFailure (count), dims {Provider}
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

var _ Metrics = (*CloudWatchMetrics)(nil)

// NewCloudWatchMetrics creates a CloudWatchMetrics. An empty namespace uses
// types.MetricNamespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{client: client, namespace: namespace, logger: logger}
}

// RecordPass emits one AnalysisPass and its latency.
func (m *CloudWatchMetrics) RecordPass(ctx context.Context, cadence types.Cadence, duration time.Duration) {
	dims := []cwtypes.Dimension{dim(types.DimCadence, string(cadence))}
	m.put(ctx, "analysis pass",
		datum(types.MetricAnalysisPass, 1, cwtypes.StandardUnitCount, dims),
		datum(types.MetricAnalysisLatency, float64(duration.Milliseconds()), cwtypes.StandardUnitMilliseconds, dims),
	)
}

// RecordEmitted emits the number of predictions and insights of a pass.
func (m *CloudWatchMetrics) RecordEmitted(ctx context.Context, predictions, insights int) {
	m.put(ctx, "emitted",
		datum(types.MetricPredictionsEmitted, float64(predictions), cwtypes.StandardUnitCount, nil),
		datum(types.MetricInsightsEmitted, float64(insights), cwtypes.StandardUnitCount, nil),
	)
}

// RecordDropped emits one rejected or anomalous sample.
func (m *CloudWatchMetrics) RecordDropped(ctx context.Context, kind types.SensorKind, reason types.ErrorCode) {
	m.put(ctx, "dropped sample",
		datum(types.MetricSamplesDropped, 1, cwtypes.StandardUnitCount, []cwtypes.Dimension{
			dim(types.DimSensorKind, string(kind)),
			dim(types.DimReason, string(reason)),
		}),
	)
}

// RecordExternalFailure emits one failed call to provider.
func (m *CloudWatchMetrics) RecordExternalFailure(ctx context.Context, provider string) {
	m.put(ctx, "external failure",
		datum(types.MetricExternalAPIFailure, 1, cwtypes.StandardUnitCount, []cwtypes.Dimension{
			dim(types.DimProvider, provider),
		}),
	)
}

func (m *CloudWatchMetrics) put(ctx context.Context, what string, data ...cwtypes.MetricDatum) {
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	})
	if err != nil {
		m.logger.Error("failed to record metric", "metric", what, "error", err.Error())
	}
}

func datum(name string, value float64, unit cwtypes.StandardUnit, dims []cwtypes.Dimension) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       unit,
		Dimensions: dims,
	}
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}
