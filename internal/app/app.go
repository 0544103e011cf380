package app

import (
	"context"
	"fmt"
	"io"

	"geopark-pipeline/internal/config"
	"geopark-pipeline/internal/logger"
	"geopark-pipeline/internal/notify"
	"geopark-pipeline/internal/pipeline"
	"geopark-pipeline/internal/report"
	"geopark-pipeline/internal/services/alphavantage"
	"geopark-pipeline/internal/services/reconcile"
	"geopark-pipeline/internal/store"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Bootstrap loads .env, the configuration and the process logger. The closer releases the log file.
func Bootstrap(configPath string) (*config.Config, *logrus.Logger, io.Closer, error) {
	envErr := godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	log, closer, err := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	if envErr != nil {
		log.Debug("no .env file found")
	}
	return cfg, log, closer, nil
}

// App holds the wired components of the pipeline process.
type App struct {
	Config   *config.Config
	Logger   logrus.FieldLogger
	Store    store.RecordStore
	Pipeline *pipeline.Pipeline
}

// Option overrides a component; used by tools and tests.
type Option func(*options)

type options struct {
	notifier pipeline.Notifier
}

func WithNotifier(n pipeline.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// New opens the store, ensures its schema and wires the pipeline.
func New(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	rs, err := store.Open(ctx, cfg.Store, log)
	if err != nil {
		return nil, err
	}
	if err := rs.EnsureSchema(ctx); err != nil {
		rs.Close(ctx)
		return nil, err
	}

	client := alphavantage.NewClient(cfg.API.BaseURL, cfg.API.Key, cfg.API.Symbol,
		alphavantage.WithTimeout(cfg.API.Timeout),
		alphavantage.WithBenchmarkFunction(cfg.API.BenchmarkFunction),
		alphavantage.WithLogger(log.WithField("component", "alphavantage")),
	)
	rc := reconcile.New(reconcile.WithLogger(log.WithField("component", "reconcile")))
	renderer := report.NewExcelRenderer(cfg.Report.Dir, cfg.Report.Title,
		report.WithCharts(!cfg.Render),
		report.WithLogger(log.WithField("component", "report")),
	)

	notifier := o.notifier
	if notifier == nil {
		en := notify.NewEmailNotifier(cfg.Email, cfg.Report.Title, notify.WithLogger(log.WithField("component", "email")))
		if !en.Enabled() {
			log.Warn("email credentials or recipients not configured; reports will not be mailed")
		}
		notifier = en
	}

	p := pipeline.New(client, rc, rs, renderer, notifier,
		pipeline.WithMinDelay(cfg.API.MinDelay),
		pipeline.WithHistory(cfg.Report.History),
		pipeline.WithLogger(log.WithField("component", "pipeline")),
	)

	log.WithFields(logrus.Fields{
		"symbol":    cfg.API.Symbol,
		"benchmark": cfg.API.BenchmarkFunction,
		"api_key":   config.MaskSecret(cfg.API.Key),
		"report":    cfg.Report.Dir,
	}).Info("pipeline initialized")

	return &App{Config: cfg, Logger: log, Store: rs, Pipeline: p}, nil
}

func (a *App) Close(ctx context.Context) error {
	return a.Store.Close(ctx)
}
