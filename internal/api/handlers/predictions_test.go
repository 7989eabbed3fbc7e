package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorpulse/internal/core"
	"sensorpulse/internal/types"
)

var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

// --- Fake Engine ---

type fakeReader struct {
	now         time.Time
	predictions []types.Prediction
	features    []types.FeatureSummary
	history     map[types.SensorKind][]types.Point
	askedAt     time.Time
}

func (f *fakeReader) Now() time.Time { return f.now }

func (f *fakeReader) ActivePredictions(now time.Time) []types.Prediction {
	f.askedAt = now
	return f.predictions
}

func (f *fakeReader) LatestFeatures() []types.FeatureSummary { return f.features }

func (f *fakeReader) History(kind types.SensorKind) []types.Point { return f.history[kind] }

// --- Helpers ---

func makeQueryRouter(f *fakeReader) http.Handler {
	r := chi.NewRouter()
	r.Route("/v1", NewQueryHandler(f, nil, nil).RegisterRoutes)
	return r
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

type listEnvelope[T any] struct {
	Data []T            `json:"data"`
	Meta map[string]any `json:"meta"`
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		now: testNow,
		predictions: []types.Prediction{
			{ID: "p1", Kind: types.PredictionStressRisk, Confidence: 0.7, ValidUntil: testNow.Add(time.Hour)},
			{ID: "p2", Kind: types.PredictionEnergyLevel, Confidence: 0.8, ValidUntil: testNow.Add(time.Hour)},
		},
		features: []types.FeatureSummary{
			{Kind: types.SensorAccelerometer, Features: types.FeatureSet{Mean: 1, SampleCount: 12}},
			{Kind: types.SensorLight, Features: types.FeatureSet{Mean: 300, SampleCount: 12}},
		},
		history: map[types.SensorKind][]types.Point{
			types.SensorLight: {
				{Timestamp: testNow.Add(-2 * time.Hour), Value: 100},
				{Timestamp: testNow.Add(-30 * time.Minute), Value: 200},
			},
		},
	}
}

// --- Tests ---

func TestHandleActivePredictions(t *testing.T) {
	f := newFakeReader()
	rec := get(t, makeQueryRouter(f), "/v1/predictions/active")

	require.Equal(t, http.StatusOK, rec.Code)
	var env listEnvelope[types.Prediction]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Len(t, env.Data, 2)
	assert.EqualValues(t, 2, env.Meta["count"])
	assert.Equal(t, testNow, f.askedAt, "handler must use the engine clock")
}

func TestHandleActivePredictions_KindFilter(t *testing.T) {
	rec := get(t, makeQueryRouter(newFakeReader()), "/v1/predictions/active?kind=stress_risk")

	require.Equal(t, http.StatusOK, rec.Code)
	var env listEnvelope[types.Prediction]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	require.Len(t, env.Data, 1)
	assert.Equal(t, "p1", env.Data[0].ID)
}

func TestHandleActivePredictions_InvalidKind(t *testing.T) {
	rec := get(t, makeQueryRouter(newFakeReader()), "/v1/predictions/active?kind=weather")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var env core.APIErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Equal(t, string(types.ErrCodeInvalidParameter), env.Error.Code)
}

func TestHandleActivePredictions_EmptyIsArray(t *testing.T) {
	f := newFakeReader()
	f.predictions = nil
	rec := get(t, makeQueryRouter(f), "/v1/predictions/active")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestHandleFeatures(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		wantCode  int
		wantKinds []types.SensorKind
	}{
		{"all", "/v1/features", http.StatusOK, []types.SensorKind{types.SensorAccelerometer, types.SensorLight}},
		{"filtered", "/v1/features?kind=light", http.StatusOK, []types.SensorKind{types.SensorLight}},
		{"no data for kind", "/v1/features?kind=battery", http.StatusOK, []types.SensorKind{}},
		{"unknown kind", "/v1/features?kind=thermometer", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, makeQueryRouter(newFakeReader()), tt.target)
			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantKinds == nil {
				return
			}
			var env listEnvelope[types.FeatureSummary]
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
			got := make([]types.SensorKind, 0, len(env.Data))
			for _, s := range env.Data {
				got = append(got, s.Kind)
			}
			assert.Equal(t, tt.wantKinds, got)
		})
	}
}

func TestHandleHistory(t *testing.T) {
	router := makeQueryRouter(newFakeReader())

	rec := get(t, router, "/v1/history/light")
	require.Equal(t, http.StatusOK, rec.Code)
	var env listEnvelope[types.Point]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Len(t, env.Data, 2)
	assert.Equal(t, "light", env.Meta["sensor_kind"])

	since := testNow.Add(-time.Hour).Format(time.RFC3339)
	rec = get(t, router, "/v1/history/light?since="+since)
	require.Equal(t, http.StatusOK, rec.Code)
	env = listEnvelope[types.Point]{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	require.Len(t, env.Data, 1)
	assert.Equal(t, 200.0, env.Data[0].Value)

	rec = get(t, router, "/v1/history/light?since=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, router, "/v1/history/thermometer")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
