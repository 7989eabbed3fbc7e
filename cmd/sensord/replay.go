package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"sensorpulse/internal/engine"
	"sensorpulse/internal/ingest"
	"sensorpulse/internal/insight"
	"sensorpulse/internal/sink"
	"sensorpulse/internal/types"
)

// maxReplayLine bounds one line of the event log.
const maxReplayLine = 4 << 20

type replayOptions struct {
	File          string
	Interval      time.Duration
	MinDataPoints int
	Seed          uint64
	Timezone      string
	TemplateFile  string
	Features      bool
	LogLevel      string
}

// replayStats summarizes a replay run.
type replayStats struct {
	Lines            int
	SkippedLines     int
	Accepted         int
	Anomalous        int
	Rejected         int
	BackgroundPasses int
}

func newReplayCmd() *cobra.Command {
	opts := replayOptions{}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a recorded event log through a fresh engine",
		Long: `Feed a JSON lines event log through an engine whose clock follows the
events' timestamps. Background passes run whenever simulated time crosses an
analysis interval, and once more at the end. Every emitted prediction and
insight is printed to stdout as one JSON line.

Each input line holds one raw event or an array of raw events:

  {"sensor_kind":"accelerometer","timestamp":"2026-03-11T10:00:00Z","data":{"x":0.1,"y":0.2,"z":9.8}}

Examples:
  sensord replay --file events.jsonl
  sensord replay --file - --interval 5m --seed 7 < events.jsonl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, closeFn, err := openReplayInput(cmd, opts.File)
			if err != nil {
				return err
			}
			defer closeFn()

			logger := newLogger(cmd.ErrOrStderr(), opts.LogLevel)
			stats, err := runReplay(cmd.Context(), in, cmd.OutOrStdout(), opts, logger)
			if err != nil {
				return err
			}
			logger.Info("replay complete",
				"lines", stats.Lines,
				"skipped_lines", stats.SkippedLines,
				"accepted", stats.Accepted,
				"anomalous", stats.Anomalous,
				"rejected", stats.Rejected,
				"background_passes", stats.BackgroundPasses,
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "event log to replay (\"-\" for stdin)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", engine.DefaultAnalysisInterval, "simulated background analysis interval")
	cmd.Flags().IntVar(&opts.MinDataPoints, "min-points", engine.DefaultMinDataPoints, "accepted samples that trigger an on-arrival pass")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 1, "seed for insight message selection")
	cmd.Flags().StringVar(&opts.Timezone, "timezone", "UTC", "timezone for hour-of-day analysis")
	cmd.Flags().StringVar(&opts.TemplateFile, "templates", "", "YAML insight template overrides")
	cmd.Flags().BoolVar(&opts.Features, "features", false, "also print feature summaries of background passes")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "info", "log level for stderr diagnostics")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func openReplayInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening event log: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// simClock is the replay's notion of now. It only moves forward.
type simClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *simClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *simClock) Advance(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.now) {
		c.now = t
	}
}

// runReplay drives an inline engine from the events in r and writes its
// output to w.
func runReplay(ctx context.Context, r io.Reader, w io.Writer, opts replayOptions, logger *slog.Logger) (replayStats, error) {
	var stats replayStats

	loc, err := time.LoadLocation(opts.Timezone)
	if err != nil {
		return stats, fmt.Errorf("loading timezone: %w", err)
	}
	if opts.Interval <= 0 {
		return stats, fmt.Errorf("interval must be positive, got %s", opts.Interval)
	}

	clock := &simClock{}
	cfg := engine.Config{
		AnalysisInterval: opts.Interval,
		MinDataPoints:    opts.MinDataPoints,
		Location:         loc,
		InlinePasses:     true,
		Sink:             sink.NewJSONLines(w, opts.Features),
		Rand:             insight.NewSeededRand(opts.Seed),
		Clock:            clock.Now,
		Logger:           logger,
	}
	if opts.TemplateFile != "" {
		tpl, err := insight.LoadTemplates(opts.TemplateFile)
		if err != nil {
			return stats, fmt.Errorf("loading insight templates: %w", err)
		}
		cfg.Templates = tpl
	}

	eng, err := engine.New(cfg)
	if err != nil {
		return stats, fmt.Errorf("creating engine: %w", err)
	}
	defer func() {
		_ = eng.Shutdown(context.WithoutCancel(ctx))
	}()

	var nextBackground time.Time
	background := func(at time.Time) error {
		clock.Advance(at)
		if _, err := eng.Pass(ctx, types.CadenceBackground); err != nil {
			return fmt.Errorf("background pass: %w", err)
		}
		stats.BackgroundPasses++
		return nil
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxReplayLine)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Lines++
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		events, err := ingest.DecodeEvents(line)
		if err != nil {
			stats.SkippedLines++
			logger.Warn("skipping malformed line", "line", stats.Lines, "error", err)
			continue
		}

		for _, ev := range events {
			ts := ev.Timestamp.Time
			if !ts.IsZero() {
				if nextBackground.IsZero() {
					nextBackground = ts.Add(opts.Interval)
				}
				// One pass per crossed boundary span; long gaps collapse to a
				// single pass at the first boundary.
				if !ts.Before(nextBackground) {
					if err := background(nextBackground); err != nil {
						return stats, err
					}
					steps := ts.Sub(nextBackground)/opts.Interval + 1
					nextBackground = nextBackground.Add(steps * opts.Interval)
				}
				clock.Advance(ts)
			}

			res := eng.IngestEvents(ctx, []ingest.RawEvent{ev})
			stats.Accepted += res.Accepted
			stats.Anomalous += res.Anomalous
			stats.Rejected += len(res.Rejected)
			for _, rej := range res.Rejected {
				logger.Debug("event rejected", "line", stats.Lines, "error", rej.Err)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return stats, fmt.Errorf("reading event log: %w", err)
	}

	if stats.Accepted > 0 {
		if err := background(clock.Now()); err != nil {
			return stats, err
		}
	}
	return stats, nil
}
