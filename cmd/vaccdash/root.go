package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/David-Botos/vaccine-ingress/pkg/config"
	"github.com/David-Botos/vaccine-ingress/pkg/connector"
	"github.com/David-Botos/vaccine-ingress/pkg/gateway"
	"github.com/David-Botos/vaccine-ingress/pkg/ingest"
	"github.com/David-Botos/vaccine-ingress/pkg/logging"
	"github.com/David-Botos/vaccine-ingress/pkg/querylog"
)

// globalOptions are the persistent flags shared by every command
type globalOptions struct {
	envFile    string
	queryLog   string
	metricsOut string
	timeout    time.Duration
}

// app holds what a single command invocation needs
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	runID    string
	queries  *querylog.Collector
	factory  *connector.ConnectorFactory
	store    connector.DatabaseConnector
	gateway  *gateway.Gateway
	queryLog string
	metrics  string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "vaccdash",
		Short: "Load, normalize and query country vaccination statistics",
		Long: `vaccdash normalizes the per-country daily vaccination dataset, appends it to a
relational store (embedded DuckDB or PostgreSQL) and answers range, count and
chart queries against it. Settings come from the environment or a .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Environment file to load before reading settings")
	rootCmd.PersistentFlags().StringVar(&opts.queryLog, "query-log", "", "Write the query timing log as CSV to this path (overrides QUERY_LOG_PATH)")
	rootCmd.PersistentFlags().StringVar(&opts.metricsOut, "metrics-out", "", "Write query metrics in Prometheus text format to this path (overrides METRICS_PATH)")
	rootCmd.PersistentFlags().DurationVarP(&opts.timeout, "timeout", "t", 10*time.Minute, "Timeout for the whole operation")

	rootCmd.AddCommand(
		newInitCmd(opts),
		newLoadCmd(opts),
		newCleanCmd(opts),
		newQueryCmd(opts),
		newCountVaccineCmd(opts),
		newChartCmd(opts),
		newVerifyCmd(opts),
	)
	return rootCmd
}

// loadSettings reads configuration and builds the logger
func loadSettings(opts *globalOptions) (*config.Config, *zap.Logger, error) {
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("error loading configuration: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// newApp opens the store and wires the gateway to a fresh query log
func newApp(ctx context.Context, opts *globalOptions) (*app, error) {
	cfg, logger, err := loadSettings(opts)
	if err != nil {
		return nil, err
	}

	runID := ingest.NewRunID()
	logger = logger.With(zap.String("run_id", runID))
	queries := querylog.NewCollector(runID)

	factory := connector.NewConnectorFactory(cfg, logger)
	store, err := factory.CreateStoreConnector(ctx)
	if err != nil {
		logger.Sync() //nolint:errcheck
		return nil, err
	}

	queryLog := cfg.QueryLogPath
	if opts.queryLog != "" {
		queryLog = opts.queryLog
	}
	metrics := cfg.MetricsPath
	if opts.metricsOut != "" {
		metrics = opts.metricsOut
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		runID:   runID,
		queries: queries,
		factory: factory,
		store:   store,
		gateway: gateway.New(store.DB(), store.DriverName(), logger, gateway.Options{
			PersistEnrichment: cfg.PersistEnrichment,
			ChunkSize:         cfg.ChunkSize,
			Recorder:          queries,
		}),
		queryLog: queryLog,
		metrics:  metrics,
	}, nil
}

// Close flushes the query log and metrics, if requested, and closes the store
func (a *app) Close() error {
	var errs []error
	if a.queryLog != "" {
		if err := a.queries.FlushFile(a.queryLog); err != nil {
			errs = append(errs, err)
		} else {
			a.logger.Info("Wrote query log",
				zap.String("path", a.queryLog),
				zap.Int("queries", a.queries.Len()))
		}
	}
	if a.metrics != "" {
		if err := prometheus.WriteToTextfile(a.metrics, a.queries.Registry()); err != nil {
			errs = append(errs, fmt.Errorf("failed to write metrics %s: %w", a.metrics, err))
		} else {
			a.logger.Info("Wrote query metrics", zap.String("path", a.metrics))
		}
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, err)
	}
	a.logger.Sync() //nolint:errcheck
	return errors.Join(errs...)
}

// withApp runs fn against an open app and always closes it
func withApp(cmd *cobra.Command, opts *globalOptions, fn func(ctx context.Context, a *app) error) (err error) {
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); err == nil {
			err = closeErr
		}
	}()

	return fn(ctx, a)
}

// writeJSON prints v as indented JSON
func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
