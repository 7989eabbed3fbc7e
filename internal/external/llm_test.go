package external

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorpulse/internal/types"
)

func newTestLLM(t *testing.T, url string) *LLMClient {
	t.Helper()
	c, err := NewLLMClient(&http.Client{Timeout: 5 * time.Second}, LLMConfig{
		Endpoint:    url,
		APIKey:      types.SecretString("sk-test"),
		Model:       "tiny-insights",
		Temperature: 0.2,
		TopP:        0.9,
		MaxTokens:   128,
	}, WithSleepFunc(noopSleep))
	require.NoError(t, err)
	return c
}

func TestNewLLMClient_Validation(t *testing.T) {
	_, err := NewLLMClient(nil, LLMConfig{Model: "m"})
	assert.True(t, types.IsCode(err, types.ErrCodeConfigInvalid))

	_, err = NewLLMClient(nil, LLMConfig{Endpoint: "http://x"})
	assert.True(t, types.IsCode(err, types.ErrCodeConfigInvalid))
}

func TestGenerate_SendsRequest(t *testing.T) {
	var got GenerationRequest
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"text":"hello"}`))
	}))
	defer server.Close()

	text, err := newTestLLM(t, server.URL).Generate(context.Background(), "prompt body")
	require.NoError(t, err)

	assert.Equal(t, "hello", text)
	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, GenerationRequest{
		Model:       "tiny-insights",
		Prompt:      "prompt body",
		Temperature: 0.2,
		TopP:        0.9,
		MaxTokens:   128,
	}, got)
}

func TestGenerate_ResponseShapes(t *testing.T) {
	for _, body := range []string{
		`{"text":"a"}`,
		`{"response":"a"}`,
		`{"choices":[{"text":"a"}]}`,
	} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))
		text, err := newTestLLM(t, server.URL).Generate(context.Background(), "p")
		server.Close()

		require.NoError(t, err, body)
		assert.Equal(t, "a", text, body)
	}
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		code    types.ErrorCode
	}{
		{
			name:    "client error",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadRequest) },
			code:    types.ErrCodeUpstreamLLM,
		},
		{
			name:    "server error after retries",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
			code:    types.ErrCodeUpstreamLLM,
		},
		{
			name:    "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`<html>`)) },
			code:    types.ErrCodeUpstreamMalformedResponse,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := newTestLLM(t, server.URL).Generate(context.Background(), "p")
			assert.Equal(t, tt.code, types.CodeOf(err))
		})
	}
}

func TestGenerate_BodyReplayedOnRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req GenerationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "same prompt", req.Prompt)
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"text":"ok"}`))
	}))
	defer server.Close()

	text, err := newTestLLM(t, server.URL).Generate(context.Background(), "same prompt")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSummarize_ParsesStructuredAnswer(t *testing.T) {
	var prompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req GenerationRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		prompt = req.Prompt
		answer := "Sure! Here it is:\n" +
			`{"activity":"mostly sedentary","patterns":["long sitting"],"recommendations":["walk"],"confidence":0.8}`
		json.NewEncoder(w).Encode(map[string]string{"text": answer})
	}))
	defer server.Close()

	recent := []types.FeatureSummary{{Kind: types.SensorAccelerometer, Features: types.FeatureSet{Mean: 1, SampleCount: 10}}}
	got, err := newTestLLM(t, server.URL).Summarize(context.Background(), recent, nil)
	require.NoError(t, err)

	assert.Equal(t, "mostly sedentary", got.Activity)
	assert.Equal(t, []string{"walk"}, got.Recommendations)
	assert.InDelta(t, 0.8, got.Confidence, 1e-9)
	assert.False(t, got.Fallback)
	assert.Contains(t, prompt, "<accelerometer>")
}

func TestParseInsightText(t *testing.T) {
	t.Run("plain text falls back", func(t *testing.T) {
		got := ParseInsightText("  You seem to be resting a lot today.  ")
		assert.True(t, got.Fallback)
		assert.Equal(t, "You seem to be resting a lot today.", got.Activity)
		assert.Equal(t, FallbackConfidence, got.Confidence)
	})

	t.Run("broken json falls back", func(t *testing.T) {
		got := ParseInsightText(`{"activity": "walking", "patterns": [}`)
		assert.True(t, got.Fallback)
	})

	t.Run("json without activity falls back", func(t *testing.T) {
		got := ParseInsightText(`{"confidence": 0.9}`)
		assert.True(t, got.Fallback)
	})

	t.Run("confidence clamped", func(t *testing.T) {
		got := ParseInsightText(`{"activity":"running","confidence":3}`)
		assert.False(t, got.Fallback)
		assert.Equal(t, 1.0, got.Confidence)
	})

	t.Run("long text truncated", func(t *testing.T) {
		got := ParseInsightText(strings.Repeat("a", 1000))
		assert.True(t, strings.HasSuffix(got.Activity, "..."))
		assert.LessOrEqual(t, len([]rune(got.Activity)), maxFallbackSummary+3)
	})
}

func TestBuildContextDocument(t *testing.T) {
	start := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
	skew := 0.5
	recent := []types.FeatureSummary{
		{Kind: types.SensorLight, WindowStart: start, WindowEnd: start.Add(time.Hour),
			Features: types.FeatureSet{Mean: 30, SampleCount: 4, Trend: types.Trend{Direction: types.TrendStable}}},
		{Kind: types.SensorAccelerometer, WindowStart: start, WindowEnd: start.Add(time.Hour),
			Features: types.FeatureSet{Mean: 1.5, SampleCount: 12, Skewness: &skew, Trend: types.Trend{Direction: types.TrendIncreasing, PercentChange: 12}}},
	}
	previous := []types.FeatureSummary{
		{Kind: types.SensorAccelerometer, Features: types.FeatureSet{Mean: 1, SampleCount: 8, Trend: types.Trend{Direction: types.TrendStable}}},
	}

	doc := BuildContextDocument(recent, previous)

	accel := strings.Index(doc, "<accelerometer>")
	light := strings.Index(doc, "<light>")
	require.GreaterOrEqual(t, accel, 0)
	require.Greater(t, light, accel, "sections follow sensor kind order")
	assert.Contains(t, doc, "recent: n=12 mean=1.500")
	assert.Contains(t, doc, "trend=increasing(12.0%)")
	assert.Contains(t, doc, "skew=0.500")
	assert.Contains(t, doc, "previous: n=8 mean=1.000")
	assert.Contains(t, doc, "</light>")
	assert.NotContains(t, doc, "<gyroscope>")
}
