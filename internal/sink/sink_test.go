package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorpulse/internal/types"
)

type mockSQSSender struct {
	calls     []*sqs.SendMessageInput
	returnErr error
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.calls = append(m.calls, params)
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return &sqs.SendMessageOutput{}, nil
}

type mockCloudWatchClient struct {
	calls     []*cloudwatch.PutMetricDataInput
	returnErr error
}

func (m *mockCloudWatchClient) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.calls = append(m.calls, params)
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

type recordingSink struct {
	predictions []types.Prediction
	insights    []types.Insight
	features    int
	err         error
}

func (r *recordingSink) PublishPrediction(_ context.Context, p types.Prediction) error {
	r.predictions = append(r.predictions, p)
	return r.err
}

func (r *recordingSink) PublishInsight(_ context.Context, in types.Insight) error {
	r.insights = append(r.insights, in)
	return r.err
}

func (r *recordingSink) PublishFeatures(_ context.Context, s []types.FeatureSummary) error {
	r.features += len(s)
	return r.err
}

func TestSQSPublisher_PublishPrediction(t *testing.T) {
	mock := &mockSQSSender{}
	pub := NewSQSPublisher(mock, "https://sqs.us-east-1.amazonaws.com/123/predictions", nil)

	pred := types.Prediction{ID: "p-1", Kind: types.PredictionStressRisk, Confidence: 0.8}
	if err := pub.PublishPrediction(context.Background(), pred); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.calls) != 1 {
		t.Fatalf("expected 1 SQS call, got %d", len(mock.calls))
	}

	call := mock.calls[0]
	if *call.QueueUrl != "https://sqs.us-east-1.amazonaws.com/123/predictions" {
		t.Errorf("unexpected queue URL %q", *call.QueueUrl)
	}
	if got := *call.MessageAttributes["record_type"].StringValue; got != RecordPrediction {
		t.Errorf("record_type = %q, want %q", got, RecordPrediction)
	}

	var body struct {
		Type    string           `json:"type"`
		Payload types.Prediction `json:"payload"`
	}
	if err := json.Unmarshal([]byte(*call.MessageBody), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body.Type != RecordPrediction || body.Payload.ID != "p-1" {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestSQSPublisher_SendError(t *testing.T) {
	mock := &mockSQSSender{returnErr: errors.New("throttled")}
	pub := NewSQSPublisher(mock, "q", nil)

	err := pub.PublishInsight(context.Background(), types.Insight{Kind: types.InsightWellness})
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeUpstreamUnavailable, types.CodeOf(err))
}

func TestSQSPublisher_FeaturesAreNotSent(t *testing.T) {
	mock := &mockSQSSender{}
	pub := NewSQSPublisher(mock, "q", nil)

	require.NoError(t, pub.PublishFeatures(context.Background(), []types.FeatureSummary{{Kind: types.SensorLight}}))
	assert.Empty(t, mock.calls)
}

func TestMulti_JoinsErrors(t *testing.T) {
	ok := &recordingSink{}
	bad := &recordingSink{err: errors.New("down")}
	m := Multi{ok, bad}

	err := m.PublishPrediction(context.Background(), types.Prediction{ID: "x"})
	require.Error(t, err)
	assert.Len(t, ok.predictions, 1)
	assert.Len(t, bad.predictions, 1)

	require.NoError(t, Multi{ok}.PublishFeatures(context.Background(), make([]types.FeatureSummary, 3)))
	assert.Equal(t, 3, ok.features)
}

type fakeInsightWriter struct{ err error }

func (f fakeInsightWriter) Insert(context.Context, types.Insight) (int64, error) { return 1, f.err }

func TestStore_NilWritersAreNoops(t *testing.T) {
	s := &Store{}
	ctx := context.Background()
	assert.NoError(t, s.PublishPrediction(ctx, types.Prediction{}))
	assert.NoError(t, s.PublishInsight(ctx, types.Insight{}))
	assert.NoError(t, s.PublishFeatures(ctx, []types.FeatureSummary{{}}))
}

func TestStore_WrapsPersistenceErrors(t *testing.T) {
	s := &Store{Insights: fakeInsightWriter{err: errors.New("conn reset")}}

	err := s.PublishInsight(context.Background(), types.Insight{})
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeUpstreamPersistence, types.CodeOf(err))
}

func TestCloudWatchMetrics_RecordPass(t *testing.T) {
	mock := &mockCloudWatchClient{}
	m := NewCloudWatchMetrics(mock, "", nil)

	m.RecordPass(context.Background(), types.CadenceBackground, 1500*time.Millisecond)

	if len(mock.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(mock.calls))
	}
	input := mock.calls[0]
	if *input.Namespace != types.MetricNamespace {
		t.Errorf("namespace = %q", *input.Namespace)
	}
	if len(input.MetricData) != 2 {
		t.Fatalf("expected 2 data points, got %d", len(input.MetricData))
	}
	latency := input.MetricData[1]
	if *latency.MetricName != types.MetricAnalysisLatency {
		t.Errorf("metric name = %q", *latency.MetricName)
	}
	if *latency.Value != 1500 {
		t.Errorf("latency = %v, want 1500", *latency.Value)
	}
	if latency.Unit != cwtypes.StandardUnitMilliseconds {
		t.Errorf("unit = %v", latency.Unit)
	}
	if *latency.Dimensions[0].Value != string(types.CadenceBackground) {
		t.Errorf("cadence dimension = %q", *latency.Dimensions[0].Value)
	}
}

func TestCloudWatchMetrics_RecordDropped(t *testing.T) {
	mock := &mockCloudWatchClient{}
	m := NewCloudWatchMetrics(mock, "Custom", nil)

	m.RecordDropped(context.Background(), types.SensorLight, types.ErrCodeClockAnomaly)

	require.Len(t, mock.calls, 1)
	datum := mock.calls[0].MetricData[0]
	assert.Equal(t, "Custom", *mock.calls[0].Namespace)
	assert.Equal(t, types.MetricSamplesDropped, *datum.MetricName)
	require.Len(t, datum.Dimensions, 2)
	assert.Equal(t, "light", *datum.Dimensions[0].Value)
	assert.Equal(t, string(types.ErrCodeClockAnomaly), *datum.Dimensions[1].Value)
}

func TestCloudWatchMetrics_ErrorIsSwallowed(t *testing.T) {
	mock := &mockCloudWatchClient{returnErr: errors.New("denied")}
	m := NewCloudWatchMetrics(mock, "", nil)

	m.RecordExternalFailure(context.Background(), "llm")
	m.RecordEmitted(context.Background(), 2, 1)
	assert.Len(t, mock.calls, 2)
}

func TestJSONLines(t *testing.T) {
	var buf bytes.Buffer
	j := NewJSONLines(&buf, false)
	ctx := context.Background()

	require.NoError(t, j.PublishPrediction(ctx, types.Prediction{ID: "p1", Kind: types.PredictionStressRisk}))
	require.NoError(t, j.PublishInsight(ctx, types.Insight{Kind: types.InsightPosture}))
	require.NoError(t, j.PublishFeatures(ctx, []types.FeatureSummary{{Kind: types.SensorLight}}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2, "features are off")

	var first struct {
		Type    string           `json:"type"`
		Payload types.Prediction `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, RecordPrediction, first.Type)
	assert.Equal(t, "p1", first.Payload.ID)
	assert.Contains(t, lines[1], `"type":"insight"`)

	buf.Reset()
	j.Features = true
	require.NoError(t, j.PublishFeatures(ctx, []types.FeatureSummary{{Kind: types.SensorLight}}))
	assert.Contains(t, buf.String(), `"type":"features"`)
}
