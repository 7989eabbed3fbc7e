// Package engine wires the analysis components into a running engine: it
// admits samples, drives on-arrival and background analysis passes and
// broadcasts the resulting predictions and insights.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sensorpulse/internal/broadcast"
	"sensorpulse/internal/ingest"
	"sensorpulse/internal/insight"
	"sensorpulse/internal/pattern"
	"sensorpulse/internal/prediction"
	"sensorpulse/internal/sink"
	"sensorpulse/internal/timeseries"
	"sensorpulse/internal/types"
	"sensorpulse/internal/window"
)

// Engine owns every buffer, store and the prediction registry. Consumers only
// ever see copies.
type Engine struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	ingestor *ingest.Ingestor
	windows  *window.Set
	store    *timeseries.Store
	analyzer *pattern.Analyzer
	behavior pattern.BehaviorConfig
	synth    *prediction.Synthesizer
	registry *prediction.Registry
	composer *insight.Composer

	predictions *broadcast.Hub[types.Prediction]
	insights    *broadcast.Hub[types.Insight]

	sink    sink.Sink
	metrics sink.Metrics
	llm     Summarizer

	mu       sync.Mutex
	closed   bool
	started  bool
	pending  int
	arriving bool // an on-arrival pass is running
	rerun    bool // a trigger arrived while it was running
	latest   map[types.SensorKind]types.FeatureSummary
	previous []types.FeatureSummary // summaries of the last background pass

	cleanupMu    sync.Mutex
	backgroundMu sync.Mutex
	inflight     sync.WaitGroup
	stop         chan struct{}
}

var _ ingest.Target = (*Engine)(nil)

// New validates cfg and builds an idle engine. Configuration errors are the
// only errors that are fatal to construction.
func New(cfg Config) (*Engine, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	windows, err := window.NewSet(cfg.DefaultHorizon, cfg.Horizons, cfg.Clock)
	if err != nil {
		return nil, err
	}
	store, err := timeseries.NewStore(cfg.MaxPoints, cfg.MaxAge)
	if err != nil {
		return nil, err
	}

	behavior := pattern.DefaultBehaviorConfig()
	behavior.Location = cfg.Location

	synthCfg := prediction.DefaultConfig()
	synthCfg.Location = cfg.Location
	synthCfg.Logger = cfg.Logger
	if cfg.ConfidenceThresholds != nil {
		thresholds := make(map[types.PredictionKind]float64, len(synthCfg.ConfidenceThresholds)+len(cfg.ConfidenceThresholds))
		for k, v := range synthCfg.ConfidenceThresholds {
			thresholds[k] = v
		}
		for k, v := range cfg.ConfidenceThresholds {
			thresholds[k] = v
		}
		synthCfg.ConfidenceThresholds = thresholds
	}

	e := &Engine{
		cfg:      cfg,
		logger:   cfg.Logger,
		now:      cfg.Clock,
		ingestor: ingest.NewIngestor(cfg.Clock, cfg.ClockSkewTolerance),
		windows:  windows,
		store:    store,
		analyzer: pattern.NewAnalyzer(cfg.Location),
		behavior: behavior,
		synth:    prediction.NewSynthesizer(synthCfg),
		registry: prediction.NewRegistry(),
		composer: insight.NewComposer(insight.Config{
			Rand:      cfg.Rand,
			Templates: cfg.Templates,
			Logger:    cfg.Logger,
		}),
		predictions: broadcast.NewHub(broadcast.Options[types.Prediction]{
			Name:   "predictions",
			Buffer: cfg.SubscriberBuffer,
			Clone:  types.Prediction.Clone,
			Logger: cfg.Logger,
		}),
		insights: broadcast.NewHub(broadcast.Options[types.Insight]{
			Name:   "insights",
			Buffer: cfg.SubscriberBuffer,
			Clone:  types.Insight.Clone,
			Logger: cfg.Logger,
		}),
		sink:    cfg.Sink,
		metrics: cfg.Metrics,
		llm:     cfg.LLM,
		latest:  make(map[types.SensorKind]types.FeatureSummary),
		stop:    make(chan struct{}),
	}
	return e, nil
}

// -----------------------------------------------------------------------------
// Ingestion
// -----------------------------------------------------------------------------

// Ingest admits one already-normalized sample. A clock-anomalous sample is
// kept in history only and reported with ErrCodeClockAnomaly.
func (e *Engine) Ingest(ctx context.Context, s types.SensorSample) error {
	if e.isClosed() {
		return types.ErrEngineClosed
	}
	err := e.admit(ctx, s)
	if err == nil || types.IsCode(err, types.ErrCodeClockAnomaly) {
		e.noteAccepted(ctx, 1)
	}
	return err
}

// IngestRaw normalizes and admits one raw event.
func (e *Engine) IngestRaw(ctx context.Context, ev ingest.RawEvent) error {
	if e.isClosed() {
		return types.ErrEngineClosed
	}
	s, err := e.ingestor.Normalize(ev)
	if err != nil {
		e.dropped(ctx, types.SensorKind(ev.SensorKind), err)
		return err
	}
	return e.Ingest(ctx, s)
}

// IngestEvents admits a batch. Failures are contained per event; at most one
// on-arrival pass is triggered for the whole batch.
func (e *Engine) IngestEvents(ctx context.Context, events []ingest.RawEvent) ingest.BatchResult {
	var res ingest.BatchResult
	if e.isClosed() {
		for i := range events {
			res.Rejected = append(res.Rejected, ingest.Rejection{Index: i, Err: types.ErrEngineClosed})
		}
		return res
	}

	for i, ev := range events {
		s, err := e.ingestor.Normalize(ev)
		if err != nil {
			e.dropped(ctx, types.SensorKind(ev.SensorKind), err)
			res.Rejected = append(res.Rejected, ingest.Rejection{Index: i, Err: err})
			continue
		}
		switch err := e.admit(ctx, s); {
		case err == nil:
			res.Accepted++
		case types.IsCode(err, types.ErrCodeClockAnomaly):
			res.Anomalous++
		default:
			res.Rejected = append(res.Rejected, ingest.Rejection{Index: i, Err: err})
		}
	}
	e.noteAccepted(ctx, res.Accepted+res.Anomalous)
	return res
}

// admit records s in history and, unless its clock is off, in its window.
func (e *Engine) admit(ctx context.Context, s types.SensorSample) error {
	value, err := types.Project(s.Kind, s.Raw)
	if err != nil {
		e.dropped(ctx, s.Kind, err)
		return err
	}
	s.Value = value

	e.store.Record(s.Kind, s.Value, s.Timestamp)
	if err := e.ingestor.CheckClock(s, e.windows.HorizonFor(s.Kind)); err != nil {
		e.logger.WarnContext(ctx, "sample kept out of recent window",
			"sensor_kind", s.Kind, "timestamp", s.Timestamp, "error", err.Error())
		e.metrics.RecordDropped(ctx, s.Kind, types.ErrCodeClockAnomaly)
		return err
	}
	e.windows.Push(s)
	return nil
}

func (e *Engine) dropped(ctx context.Context, kind types.SensorKind, err error) {
	code := types.CodeOf(err)
	e.logger.WarnContext(ctx, "sample dropped", "sensor_kind", kind, "error", err.Error())
	e.metrics.RecordDropped(ctx, kind, code)
}

// noteAccepted counts newly admitted samples and starts an on-arrival pass
// once MinDataPoints have accumulated. A trigger during a running pass
// coalesces into one follow-up pass.
func (e *Engine) noteAccepted(ctx context.Context, n int) {
	if n == 0 {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.pending += n
	if e.pending < e.cfg.MinDataPoints {
		e.mu.Unlock()
		return
	}
	if e.arriving {
		e.rerun = true
		e.mu.Unlock()
		return
	}
	e.arriving = true
	e.pending = 0
	e.inflight.Add(1)
	e.mu.Unlock()

	if e.cfg.InlinePasses {
		e.arrivalLoop(context.WithoutCancel(ctx))
		return
	}
	go e.arrivalLoop(context.WithoutCancel(ctx))
}

func (e *Engine) arrivalLoop(ctx context.Context) {
	defer e.inflight.Done()
	for {
		e.runOnArrival(ctx)

		e.mu.Lock()
		if !e.rerun || e.closed {
			e.arriving = false
			e.rerun = false
			e.mu.Unlock()
			return
		}
		e.rerun = false
		e.pending = 0
		e.mu.Unlock()
	}
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Start launches the background pass loop. It returns ErrEngineClosed after
// Shutdown and is a no-op when already started.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return types.ErrEngineClosed
	}
	if e.started {
		return nil
	}
	e.started = true
	e.inflight.Add(1)
	go e.backgroundLoop(context.WithoutCancel(ctx))

	e.logger.Info("engine started", "analysis_interval", e.cfg.AnalysisInterval.String(),
		"min_data_points", e.cfg.MinDataPoints)
	return nil
}

func (e *Engine) backgroundLoop(ctx context.Context) {
	defer e.inflight.Done()

	ticker := time.NewTicker(e.cfg.AnalysisInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			if err := e.RunPass(ctx, types.CadenceBackground); err != nil && !types.IsCode(err, types.ErrCodeEngineClosed) {
				e.logger.Error("background pass failed", "error", err.Error())
			}
		}
	}
}

// Shutdown stops the timers, refuses new passes, waits for in-flight passes
// (bounded by ctx) and closes both broadcast hubs. It is idempotent.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.stop)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		e.logger.Warn("shutdown deadline reached with passes in flight", "error", err.Error())
	}

	e.predictions.Close()
	e.insights.Close()
	e.logger.Info("engine stopped")
	return err
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// beginPass registers a pass unless the engine has shut down.
func (e *Engine) beginPass() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.inflight.Add(1)
	return true
}

// -----------------------------------------------------------------------------
// Consumer API
// -----------------------------------------------------------------------------

// SubscribePredictions registers a prediction consumer.
func (e *Engine) SubscribePredictions() (*broadcast.Subscription[types.Prediction], error) {
	return e.predictions.Subscribe()
}

// SubscribeInsights registers an insight consumer.
func (e *Engine) SubscribeInsights() (*broadcast.Subscription[types.Insight], error) {
	return e.insights.Subscribe()
}

// ActivePredictions returns copies of the retained predictions still valid at
// now.
func (e *Engine) ActivePredictions(now time.Time) []types.Prediction {
	return e.registry.Active(now)
}

// LatestFeatures returns the most recent feature summary of every kind seen,
// in AllSensorKinds order.
func (e *Engine) LatestFeatures() []types.FeatureSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.FeatureSummary, 0, len(e.latest))
	for _, kind := range types.AllSensorKinds {
		if s, ok := e.latest[kind]; ok {
			out = append(out, s)
		}
	}
	return out
}

// History returns a copy of the retained time series of kind.
func (e *Engine) History(kind types.SensorKind) []types.Point {
	return e.store.Points(kind)
}

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time {
	return e.now()
}

// Check reports ErrEngineClosed once the engine has shut down. It serves as
// the engine's health probe.
func (e *Engine) Check(context.Context) error {
	if e.isClosed() {
		return types.ErrEngineClosed
	}
	return nil
}

// Kinds returns the sensor kinds with a live window, in AllSensorKinds order.
func (e *Engine) Kinds() []types.SensorKind {
	return e.windows.Kinds()
}
