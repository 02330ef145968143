package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anggasct/inspectflow"
	"github.com/anggasct/inspectflow/pkg/awsconfig"
	"github.com/anggasct/inspectflow/pkg/blob/memblob"
	"github.com/anggasct/inspectflow/pkg/blob/s3blob"
	"github.com/anggasct/inspectflow/pkg/config"
	"github.com/anggasct/inspectflow/pkg/notify"
	"github.com/anggasct/inspectflow/pkg/observers"
	"github.com/anggasct/inspectflow/pkg/store/dynamostore"
	"github.com/anggasct/inspectflow/pkg/store/memory"
	"github.com/anggasct/inspectflow/pkg/store/redisstore"
)

// app is a configured engine plus the resources that must be released
type app struct {
	engine     *inspectflow.Engine
	metrics    *observers.MetricsObserver
	validation *observers.ValidationObserver
	logger     *slog.Logger
	closers    []func()
	// persistent is false when submissions vanish with the process
	persistent bool
}

var errEphemeralStore = errors.New("the memory store does not keep submissions between runs; " +
	"set store.backend to redis or dynamodb (simulate works with any backend)")

// appFactory builds an app from loaded configuration
type appFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error)

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// buildApp wires the store, blob store, observers and notifier named by cfg
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger, persistent: cfg.Store.Backend != config.StoreMemory}
	fail := func(err error) (*app, error) {
		a.Close()
		return nil, err
	}

	policy, err := cfg.Policy()
	if err != nil {
		return nil, fmt.Errorf("engine policy: %w", err)
	}
	awsOpts := awsconfig.Options{
		Region:   cfg.AWS.Region,
		Endpoint: cfg.AWS.Endpoint,
		Local:    cfg.AWS.UseLocal(),
	}

	var store inspectflow.Store
	switch cfg.Store.Backend {
	case config.StoreRedis:
		client, err := redisstore.Connect(ctx, cfg.Store.Redis.Addr, cfg.Store.Redis.Password, cfg.Store.Redis.DB)
		if err != nil {
			return fail(err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		store = redisstore.New(client, cfg.Store.Redis.Prefix, redisstore.WithLogger(logger))
	case config.StoreDynamoDB:
		store, err = dynamostore.NewFromConfig(ctx, cfg.Store.DynamoDB.Table, awsOpts)
		if err != nil {
			return fail(err)
		}
	default:
		store = memory.New()
	}

	var blobs inspectflow.BlobStore
	switch cfg.Blobs.Backend {
	case config.BlobsS3:
		blobs, err = s3blob.NewFromConfig(ctx, cfg.Blobs.Bucket, awsOpts)
		if err != nil {
			return fail(err)
		}
	case config.BlobsMemory:
		blobs = memblob.New()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics, err = observers.NewMetricsObserver(reg)
	if err != nil {
		return fail(fmt.Errorf("register metrics: %w", err))
	}
	a.validation = observers.NewValidationObserver(inspectflow.DefaultTransitions())

	builder := inspectflow.NewBuilder().
		Store(store).
		Policy(policy).
		Logger(logger).
		Retry(cfg.Engine.MaxAttempts, cfg.Engine.Backoff()).
		Observer(observers.NewLoggingObserver(observers.ParseLogLevel(cfg.LogLevel), logger)).
		Observer(a.metrics).
		Observer(a.validation)
	if blobs != nil {
		builder = builder.Blobs(blobs)
	}

	if cfg.NATS.URL != "" {
		notifier, drain, err := notify.Connect(ctx, cfg.NATS.URL, cfg.NATS.Stream,
			notify.WithSubjectPrefix(cfg.NATS.SubjectPrefix),
			notify.WithTimeout(cfg.NATS.Timeout),
			notify.WithLogger(logger))
		if err != nil {
			return fail(err)
		}
		a.closers = append(a.closers, drain)
		builder = builder.Observer(notifier)
	}

	if cfg.Metrics.Addr != "" {
		stop := serveMetrics(cfg.Metrics.Addr, cfg.Metrics.Path, reg, logger)
		a.closers = append(a.closers, stop)
	}

	a.engine, err = builder.Build()
	if err != nil {
		return fail(err)
	}
	return a, nil
}

// serveMetrics exposes the registry over HTTP until the returned func is called
func serveMetrics(addr, path string, reg *prometheus.Registry, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Serving metrics", slog.String("addr", addr), slog.String("path", path))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", slog.Any("error", err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
