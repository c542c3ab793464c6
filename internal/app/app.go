// Package app assembles the extraction, persistence and chat services from
// configuration. Every transport runs on top of an App.
package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/hpungsan/facet/internal/blob"
	"github.com/hpungsan/facet/internal/cache"
	"github.com/hpungsan/facet/internal/chat"
	"github.com/hpungsan/facet/internal/config"
	"github.com/hpungsan/facet/internal/errors"
	"github.com/hpungsan/facet/internal/extract"
	"github.com/hpungsan/facet/internal/inference"
	"github.com/hpungsan/facet/internal/ops"
	"github.com/hpungsan/facet/internal/retry"
)

// Services are the components exposed by the transports.
type Services struct {
	Extractor *extract.Extractor
	Personas  *ops.Coordinator
	Chat      *chat.Responder
	Cache     cache.Cache
}

// App owns Services and the clients behind them.
type App struct {
	Services

	closers []io.Closer
}

// Wire builds Services from already constructed backends.
func Wire(cfg *config.Config, backend inference.Backend, c cache.Cache, store blob.Store, logger *zap.Logger) Services {
	retryCfg := retry.Config{
		MaxRetries:   cfg.Retry.MaxRetries,
		InitialDelay: cfg.InitialDelay(),
	}

	extractOpts := extract.DefaultOptions()
	extractOpts.Temperature = cfg.Inference.Temperature
	extractOpts.MaxTokens = cfg.Inference.MaxTokens
	extractOpts.Retry = retryCfg
	extractOpts.Timeout = cfg.ExtractTimeout()

	chatOpts := chat.DefaultOptions()
	chatOpts.Retry = retryCfg

	personas := ops.New(store, logger, ops.WithPathPolicy(ops.PathPolicyFromConfig(cfg)))

	return Services{
		Extractor: extract.New(backend, c, extractOpts, logger),
		Personas:  personas,
		Chat:      chat.New(personas, backend, chatOpts, logger),
		Cache:     c,
	}
}

// New connects the configured inference backend, cache and blob store.
// The caller must Close the App.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{}

	backend, err := inference.New(ctx, cfg.Inference, logger)
	if err != nil {
		logger.Warn("inference backend unavailable; extraction and chat will fail",
			zap.String("provider", cfg.Inference.Provider), zap.Error(err))
		backend = unavailable{cause: err}
	}
	a.track(backend)

	c, err := newCache(ctx, cfg)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("cache: %w", err)
	}
	a.track(c)

	store, err := newStore(ctx, cfg)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}
	a.track(store)

	logger.Info("services ready",
		zap.String("inference", cfg.Inference.Provider),
		zap.String("cache", cfg.Cache.Backend),
		zap.String("storage", cfg.Storage.Backend))

	a.Services = Wire(cfg, backend, c, store, logger)
	return a, nil
}

// Close releases every client in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return stderrors.Join(errs...)
}

func (a *App) track(v any) {
	if c, ok := v.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
}

// unavailable stands in for a backend that could not be configured, so
// storage-only commands still work without API credentials.
type unavailable struct {
	cause error
}

func (u unavailable) Complete(context.Context, inference.Request) (*inference.Response, error) {
	return nil, errors.NewExtractionFailed("inference backend is not configured: "+u.cause.Error(), nil, u.cause)
}

func newCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	switch cfg.Cache.Backend {
	case "redis":
		return cache.NewRedis(ctx, cache.RedisOptions{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			Prefix:   cfg.Cache.RedisPrefix,
			TTL:      cfg.CacheTTL(),
		})
	case "memory", "":
		return cache.NewMemory(cache.MemoryOptions{
			TTL:        cfg.CacheTTL(),
			MaxEntries: cfg.Cache.MaxEntries,
		}), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

func newStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch cfg.Storage.Backend {
	case "sqlite", "":
		return blob.OpenSQLite(cfg.Storage.Path, cfg.Storage.DBMaxOpenConns)
	case "gcs":
		return blob.NewGCS(ctx, blob.GCSOptions{
			Bucket:          cfg.Storage.GCSBucket,
			Prefix:          cfg.Storage.GCSPrefix,
			CredentialsFile: cfg.Storage.GCSCredentialsFile,
		})
	case "memory":
		return blob.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
