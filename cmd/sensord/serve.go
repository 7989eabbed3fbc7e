package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sensorpulse/internal/api/handlers"
	"sensorpulse/internal/config"
	"sensorpulse/internal/core"
	"sensorpulse/internal/db"
	"sensorpulse/internal/engine"
	"sensorpulse/internal/external"
	"sensorpulse/internal/ingest"
	"sensorpulse/internal/insight"
	"sensorpulse/internal/sink"
)

func newServeCmd() *cobra.Command {
	var envFiles []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine behind the HTTP API",
		Long: `Run the engine with its configured sinks, the optional MQTT source and
the HTTP API until SIGINT or SIGTERM.

Configuration comes from the environment, optional .env files and *_FILE
secret pointers. See internal/config for the variables.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(config.FileSecretProvider{}, envFiles...)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			logger := newLogger(os.Stdout, cfg.LogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logger)
		},
	}
	cmd.Flags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load before the environment")
	return cmd
}

// runServe wires every component from cfg and blocks until ctx is done or a
// component fails.
func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("sensorpulse starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	var (
		sinks   sink.Multi
		metrics sink.Metrics = sink.NoopMetrics{}
		probes  []core.HealthProbe
		pool    *pgxpool.Pool
	)

	if cfg.Database.URL.IsSet() {
		var err error
		pool, err = db.OpenPool(ctx, cfg.Database.URL.Unmask(), db.PoolOptions{
			MaxConns:          cfg.Database.MaxConns,
			MinConns:          cfg.Database.MinConns,
			MaxConnLifetime:   cfg.Database.MaxConnLifetime,
			HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
		})
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer pool.Close()
		if cfg.Database.EnsureSchema {
			if err := db.EnsureSchema(ctx, pool); err != nil {
				return fmt.Errorf("ensuring schema: %w", err)
			}
		}
		sinks = append(sinks, &sink.Store{
			Predictions: db.NewPredictionRepository(pool),
			Insights:    db.NewInsightRepository(pool),
			Features:    db.NewFeatureSummaryRepository(pool),
		})
		probes = append(probes, core.ProbeFunc{ProbeName: "database", Fn: pool.Ping})
		logger.Info("persistence sink enabled")
	}

	if cfg.AWS.RealtimeQueueURL != "" || cfg.Observability.EnableMetrics {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return fmt.Errorf("loading aws config: %w", err)
		}
		if cfg.AWS.RealtimeQueueURL != "" {
			client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
				if cfg.AWS.EndpointURL != "" {
					o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
				}
			})
			sinks = append(sinks, sink.NewSQSPublisher(client, cfg.AWS.RealtimeQueueURL, logger))
			logger.Info("realtime sink enabled", "queue_url", cfg.AWS.RealtimeQueueURL)
		}
		if cfg.Observability.EnableMetrics {
			client := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
				if cfg.AWS.EndpointURL != "" {
					o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
				}
			})
			metrics = sink.NewCloudWatchMetrics(client, cfg.Observability.MetricNamespace, logger)
		}
	}

	engCfg, err := engineConfig(cfg, logger)
	if err != nil {
		return err
	}
	if len(sinks) > 0 {
		engCfg.Sink = sinks
	}
	engCfg.Metrics = metrics

	eng, err := engine.New(engCfg)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := eng.Shutdown(shutdownCtx); err != nil {
			logger.Error("engine shutdown incomplete", "error", err)
		}
	}()
	probes = append(probes, core.ProbeFunc{ProbeName: "engine", Fn: eng.Check})

	srv, err := newServer(cfg, eng, logger)
	if err != nil {
		return err
	}
	srv.HealthProbes = probes
	// Closing the engine first lets open streams send their close event
	// before the HTTP drain.
	srv.ShutdownHooks = append(srv.ShutdownHooks, eng.Shutdown)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})

	if cfg.MQTT.BrokerURL != "" {
		src, err := ingest.NewMQTTSource(ingest.MQTTConfig{
			BrokerURL: cfg.MQTT.BrokerURL,
			Topic:     cfg.MQTT.Topic,
			ClientID:  cfg.MQTT.ClientID,
			QoS:       cfg.MQTT.QoS,
			Username:  cfg.MQTT.Username,
			Password:  cfg.MQTT.Password,
			KeepAlive: time.Duration(cfg.MQTT.KeepAlive) * time.Second,
			Logger:    logger,
		}, eng, nil)
		if err != nil {
			return fmt.Errorf("creating mqtt source: %w", err)
		}
		g.Go(func() error {
			if err := src.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("mqtt source: %w", err)
			}
			return nil
		})
		logger.Info("mqtt source enabled", "broker", cfg.MQTT.BrokerURL, "topic", cfg.MQTT.Topic)
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("sensorpulse stopped")
	return nil
}

// engineConfig maps the loaded configuration onto engine.Config. Sinks and
// metrics are attached by the caller.
func engineConfig(cfg *config.Config, logger *slog.Logger) (engine.Config, error) {
	loc, err := cfg.Engine.Location()
	if err != nil {
		return engine.Config{}, fmt.Errorf("loading timezone: %w", err)
	}

	engCfg := engine.Config{
		DefaultHorizon:       cfg.Engine.DefaultHorizon,
		Horizons:             cfg.Engine.Horizons,
		AnalysisInterval:     cfg.Engine.AnalysisInterval,
		MinDataPoints:        cfg.Engine.MinDataPoints,
		MaxPoints:            cfg.Engine.MaxPoints,
		MaxAge:               cfg.Engine.MaxAge,
		ClockSkewTolerance:   cfg.Engine.ClockSkewTolerance,
		ConfidenceThresholds: cfg.Engine.ConfidenceThresholds,
		Location:             loc,
		ExternalTimeout:      cfg.Engine.ExternalTimeout,
		LLMTimeout:           cfg.LLM.Timeout,
		Logger:               logger,
	}

	if cfg.Engine.TemplateFile != "" {
		tpl, err := insight.LoadTemplates(cfg.Engine.TemplateFile)
		if err != nil {
			return engine.Config{}, fmt.Errorf("loading insight templates: %w", err)
		}
		engCfg.Templates = tpl
	}
	if cfg.Engine.RandSeed != 0 {
		engCfg.Rand = insight.NewSeededRand(cfg.Engine.RandSeed)
	}

	if cfg.LLM.Enabled() {
		llm, err := external.NewLLMClient(&http.Client{Timeout: cfg.LLM.Timeout}, external.LLMConfig{
			Endpoint:    cfg.LLM.Endpoint,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			TopP:        cfg.LLM.TopP,
			MaxTokens:   cfg.LLM.MaxTokens,
			Logger:      logger,
		})
		if err != nil {
			return engine.Config{}, fmt.Errorf("creating llm client: %w", err)
		}
		engCfg.LLM = llm
		logger.Info("llm enrichment enabled", "model", cfg.LLM.Model)
	}
	return engCfg, nil
}

// newServer builds the HTTP chassis and mounts the handlers.
func newServer(cfg *config.Config, eng *engine.Engine, logger *slog.Logger) (*core.Server, error) {
	srv, err := core.NewServer(cfg.Server, cfg.Build, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}

	samples := handlers.NewSampleHandler(eng, cfg.Server.MaxBatchSize, logger)
	queries := handlers.NewQueryHandler(eng, srv.Validator, logger)
	streams := handlers.NewStreamHandler(eng, handlers.DefaultHeartbeat, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		samples.RegisterRoutes,
		queries.RegisterRoutes,
	)
	srv.StreamRegistrars = append(srv.StreamRegistrars, streams.RegisterRoutes)
	srv.MountRoutes()
	return srv, nil
}
