package engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"sensorpulse/internal/features"
	"sensorpulse/internal/insight"
	"sensorpulse/internal/pattern"
	"sensorpulse/internal/prediction"
	"sensorpulse/internal/types"
)

// ProviderLLM is the Provider dimension reported for LLM failures.
const ProviderLLM = "llm"

// sleepLookback is the history range used to estimate sleep quality.
const sleepLookback = 24 * time.Hour

// hourlyLookback is the history range of the same-hour baselines.
const hourlyLookback = 7 * 24 * time.Hour

// PassResult is what one analysis pass emitted, in broadcast order.
type PassResult struct {
	Cadence     types.Cadence
	Predictions []types.Prediction
	Insights    []types.Insight
	Summaries   []types.FeatureSummary
}

// RunPass runs one pass of the given cadence synchronously. Background passes
// are single-flight: a call while one is running returns an empty result.
func (e *Engine) RunPass(ctx context.Context, cadence types.Cadence) error {
	_, err := e.Pass(ctx, cadence)
	return err
}

// Pass is RunPass returning what was emitted.
func (e *Engine) Pass(ctx context.Context, cadence types.Cadence) (PassResult, error) {
	if !e.beginPass() {
		return PassResult{Cadence: cadence}, types.ErrEngineClosed
	}
	defer e.inflight.Done()

	switch cadence {
	case types.CadenceOnArrival:
		return e.runOnArrival(ctx), nil
	case types.CadenceBackground:
		if !e.backgroundMu.TryLock() {
			e.logger.DebugContext(ctx, "background pass already running, skipping")
			return PassResult{Cadence: cadence}, nil
		}
		defer e.backgroundMu.Unlock()
		return e.runBackground(ctx), nil
	default:
		return PassResult{Cadence: cadence}, types.NewAppError(types.ErrCodeInternalUnexpected,
			fmt.Sprintf("unknown cadence %q", cadence), nil)
	}
}

// runOnArrival refreshes the feature summaries and composes the current
// behavior insight plus any unusual-pattern concern.
func (e *Engine) runOnArrival(ctx context.Context) PassResult {
	start := time.Now()
	now := e.now()
	res := PassResult{Cadence: types.CadenceOnArrival}

	snapshots := e.windows.SnapshotAll()
	res.Summaries = e.summarize(ctx, snapshots)

	behavior := pattern.BuildPattern(e.behavior,
		snapshots[types.SensorAccelerometer], snapshots[types.SensorGyroscope])
	if behavior.SampleCount > 0 {
		env := environment(snapshots[types.SensorLight])
		res.Insights = append(res.Insights, e.composer.Compose(behavior, env, now))
		if unusual := e.composer.DetectUnusualPatterns(behavior, now); unusual != nil {
			res.Insights = append(res.Insights, *unusual)
		}
	} else {
		e.logger.DebugContext(ctx, "no movement samples, skipping behavior insight")
	}

	for _, in := range res.Insights {
		e.emitInsight(ctx, in)
	}
	e.finishPass(ctx, res, start)
	return res
}

// runBackground runs the longer-horizon analysis: cleanup, stress and
// prediction synthesis, feature persistence and LLM enrichment.
func (e *Engine) runBackground(ctx context.Context) PassResult {
	start := time.Now()
	now := e.now()
	res := PassResult{Cadence: types.CadenceBackground}

	e.cleanup(ctx, now)

	snapshots := e.windows.SnapshotAll()
	res.Summaries = e.summarize(ctx, snapshots)

	in := e.predictionInputs(snapshots, now)
	candidates := e.synth.Synthesize(in)
	res.Predictions = e.registry.Admit(candidates, now)

	for _, p := range res.Predictions {
		e.emitPrediction(ctx, p)
		if celebration, ok := e.composer.Celebration(p, now); ok {
			res.Insights = append(res.Insights, celebration)
			e.emitInsight(ctx, celebration)
		}
	}

	if len(res.Summaries) > 0 {
		sctx, cancel := context.WithTimeout(ctx, e.cfg.ExternalTimeout)
		if err := e.sink.PublishFeatures(sctx, res.Summaries); err != nil {
			e.logger.ErrorContext(ctx, "failed to publish feature summaries", "error", err.Error())
		}
		cancel()
		e.enrich(ctx, res.Summaries, now)
	}

	e.finishPass(ctx, res, start)
	return res
}

// cleanup sweeps expired predictions and aged history. Cleanups never
// overlap.
func (e *Engine) cleanup(ctx context.Context, now time.Time) {
	e.cleanupMu.Lock()
	defer e.cleanupMu.Unlock()

	purged := e.registry.Sweep(now)
	removed := e.store.Cleanup(now)
	if purged > 0 || removed > 0 {
		e.logger.InfoContext(ctx, "cleanup complete", "predictions_purged", purged, "points_removed", removed)
	}
}

// summarize extracts a FeatureSummary per kind concurrently and records them
// as the latest summaries.
func (e *Engine) summarize(ctx context.Context, snapshots map[types.SensorKind][]types.SensorSample) []types.FeatureSummary {
	results := make([]*types.FeatureSummary, len(types.AllSensorKinds))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.PassConcurrency)
	for i, kind := range types.AllSensorKinds {
		samples := snapshots[kind]
		if len(samples) == 0 {
			continue
		}
		g.Go(func() error {
			if s, ok := features.Summarize(kind, samples); ok {
				results[i] = &s
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]types.FeatureSummary, 0, len(results))
	e.mu.Lock()
	for _, s := range results {
		if s == nil {
			continue
		}
		out = append(out, *s)
		e.latest[s.Kind] = *s
	}
	e.mu.Unlock()
	return out
}

func (e *Engine) predictionInputs(snapshots map[types.SensorKind][]types.SensorSample, now time.Time) prediction.Inputs {
	loc := e.analyzer.Location()
	thisWeek, lastWeek := e.store.WeekOverWeek(types.SensorAccelerometer, now)

	return prediction.Inputs{
		Now:            now,
		Stress:         e.analyzer.AssessStress(thisWeek, lastWeek),
		SleepQuality:   pattern.EstimateSleepQuality(e.store.Slice(types.SensorAccelerometer, sleepLookback, 0, now), loc),
		RecentActivity: features.Mean(types.SampleValues(snapshots[types.SensorAccelerometer])),
		HourlyActivity: e.store.HourlyAverages(types.SensorAccelerometer, hourlyLookback, now, loc),
		HistorySize:    e.store.Len(types.SensorAccelerometer),
		ThisWeek:       thisWeek,
		LastWeek:       lastWeek,
	}
}

// enrich asks the LLM for a support insight without blocking the pass. A
// failure yields the neutral fallback insight instead.
func (e *Engine) enrich(ctx context.Context, recent []types.FeatureSummary, now time.Time) {
	e.mu.Lock()
	previous := e.previous
	e.previous = recent
	e.mu.Unlock()

	if e.llm == nil || !e.beginPass() {
		return
	}
	run := func() {
		defer e.inflight.Done()

		lctx, cancel := context.WithTimeout(ctx, e.cfg.LLMTimeout)
		defer cancel()

		summary, err := e.llm.Summarize(lctx, recent, previous)
		var in types.Insight
		if err != nil {
			e.logger.WarnContext(ctx, "llm enrichment failed, using fallback insight", "error", err.Error())
			e.metrics.RecordExternalFailure(ctx, ProviderLLM)
			in = e.composer.Fallback("llm_unavailable", now)
		} else {
			in = e.composer.Support(summary.Activity, summary.Recommendations, summary.Confidence, now)
		}
		e.emitInsight(ctx, in)
	}
	if e.cfg.InlinePasses {
		run()
		return
	}
	go run()
}

func (e *Engine) emitPrediction(ctx context.Context, p types.Prediction) {
	e.predictions.Publish(p)

	sctx, cancel := context.WithTimeout(ctx, e.cfg.ExternalTimeout)
	defer cancel()
	if err := e.sink.PublishPrediction(sctx, p.Clone()); err != nil {
		e.logger.ErrorContext(ctx, "failed to publish prediction", "prediction_id", p.ID, "error", err.Error())
	}
}

func (e *Engine) emitInsight(ctx context.Context, in types.Insight) {
	e.insights.Publish(in)

	sctx, cancel := context.WithTimeout(ctx, e.cfg.ExternalTimeout)
	defer cancel()
	if err := e.sink.PublishInsight(sctx, in.Clone()); err != nil {
		e.logger.ErrorContext(ctx, "failed to publish insight", "insight_kind", in.Kind, "error", err.Error())
	}
}

func (e *Engine) finishPass(ctx context.Context, res PassResult, start time.Time) {
	elapsed := time.Since(start)
	e.metrics.RecordPass(ctx, res.Cadence, elapsed)
	e.metrics.RecordEmitted(ctx, len(res.Predictions), len(res.Insights))
	e.logger.InfoContext(ctx, "analysis pass complete",
		"cadence", res.Cadence,
		"predictions", len(res.Predictions),
		"insights", len(res.Insights),
		"summaries", len(res.Summaries),
		"duration_ms", elapsed.Milliseconds(),
	)
}

func environment(light []types.SensorSample) insight.Environment {
	if len(light) == 0 {
		return insight.Environment{}
	}
	return insight.Environment{Lux: features.Mean(types.SampleValues(light)), HasLight: true}
}
