// Package app builds and owns the long-lived services a command needs.
package app

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	gcsstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/gel-catalog/internal/catalog"
	"github.com/JakeFAU/gel-catalog/internal/clock/system"
	"github.com/JakeFAU/gel-catalog/internal/config"
	"github.com/JakeFAU/gel-catalog/internal/extract"
	collyfetcher "github.com/JakeFAU/gel-catalog/internal/fetcher/colly"
	"github.com/JakeFAU/gel-catalog/internal/hash/sha256"
	"github.com/JakeFAU/gel-catalog/internal/id/uuid"
	"github.com/JakeFAU/gel-catalog/internal/logging"
	"github.com/JakeFAU/gel-catalog/internal/mask"
	"github.com/JakeFAU/gel-catalog/internal/metrics"
	"github.com/JakeFAU/gel-catalog/internal/pipeline"
	"github.com/JakeFAU/gel-catalog/internal/policy/ratelimit"
	"github.com/JakeFAU/gel-catalog/internal/policy/retry"
	pubsubpublisher "github.com/JakeFAU/gel-catalog/internal/publisher/pubsub"
	"github.com/JakeFAU/gel-catalog/internal/storage/gcs"
	"github.com/JakeFAU/gel-catalog/internal/storage/local"
	"github.com/JakeFAU/gel-catalog/internal/storage/memory"
	"github.com/JakeFAU/gel-catalog/internal/storage/postgres"
	"github.com/JakeFAU/gel-catalog/internal/thumbnail"
)

// App holds configuration, the logger and the metrics recorder. Storage,
// database and Pub/Sub clients are opened on demand by Pipeline.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	metrics *metrics.Recorder

	closers []func()
}

// New builds the logger and metrics recorder for cfg.
func New(cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return &App{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
	}, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Metrics returns the run metrics recorder.
func (a *App) Metrics() *metrics.Recorder {
	return a.metrics
}

// SetMaxProducts overrides source.max_products for this process.
func (a *App) SetMaxProducts(n int) {
	a.cfg.Source.MaxProducts = n
}

// Thumbnails builds the mask processor with the given tolerance.
func (a *App) Thumbnails(tolerance int) (*thumbnail.Processor, error) {
	engine, err := mask.NewEngine(tolerance)
	if err != nil {
		return nil, err
	}
	encoder, err := a.cfg.Images.Mask.NewEncoder()
	if err != nil {
		return nil, err
	}
	return thumbnail.NewProcessor(engine, encoder)
}

// Pipeline opens every configured backend and wires a scrape pipeline.
func (a *App) Pipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	cfg := a.cfg
	logger := a.logger

	store, err := a.openBlobStore(ctx)
	if err != nil {
		return nil, err
	}
	sink, err := a.openSink(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := a.openPublisher(ctx)
	if err != nil {
		return nil, err
	}

	listing, err := extract.NewListingParser(cfg.Selectors.Listing, logger.Named("listing"))
	if err != nil {
		return nil, err
	}
	detail, err := extract.NewDetailParser(cfg.Selectors.Detail, logger.Named("detail"))
	if err != nil {
		return nil, err
	}

	var thumbs pipeline.ThumbnailProcessor
	if cfg.Images.Mask.Enabled {
		processor, err := a.Thumbnails(cfg.Images.Mask.Tolerance)
		if err != nil {
			return nil, fmt.Errorf("init thumbnail processor: %w", err)
		}
		thumbs = processor
	}

	initial, maxDelay := cfg.Backoff()
	deps := pipeline.Dependencies{
		Fetcher: collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.Source.UserAgent,
			RespectRobots: cfg.Source.RespectRobots,
			Timeout:       cfg.Timeout(),
			MaxBodyBytes:  cfg.HTTP.MaxBodyMB << 20,
		}),
		Listing:    listing,
		Detail:     detail,
		Thumbnails: thumbs,
		Store:      store,
		Publisher:  publisher,
		Hasher:     sha256.New(),
		Clock:      system.New(),
		IDs:        uuid.New(),
		Limiter: ratelimit.New(ratelimit.Config{
			Interval: cfg.Delay(),
			Burst:    1,
			Observe:  a.metrics.ObserveRateLimitDelay,
		}),
		Retry: retry.NewExponential(retry.Config{
			MaxAttempts: cfg.HTTP.MaxRetries + 1,
			BaseDelay:   initial,
			MaxDelay:    maxDelay,
		}),
		Metrics: a.metrics,
		Logger:  logger,
	}
	if sink != nil {
		deps.Sink = sink
	}

	return pipeline.New(pipeline.Config{
		BaseURL:        cfg.Source.BaseURL,
		CollectionURL:  cfg.CollectionURL(),
		MaxProducts:    cfg.Source.MaxProducts,
		DownloadImages: cfg.Images.Download,
		ThumbnailIndex: cfg.Images.ThumbnailIndex,
		ImagesPrefix:   cfg.Storage.ImagesPrefix,
		CatalogPath:    cfg.Storage.CatalogPath,
		EnvelopePath:   cfg.Storage.EnvelopePath,
		Topic:          cfg.PubSub.TopicName,
	}, deps)
}

func (a *App) openBlobStore(ctx context.Context) (catalog.BlobStore, error) {
	cfg := a.cfg.Storage
	switch cfg.Backend {
	case config.BackendMemory:
		a.logger.Info("Using in-memory storage; nothing will be persisted")
		return memory.NewBlobStore(), nil
	case config.BackendGCS:
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.onClose(func() {
			if err := client.Close(); err != nil {
				a.logger.Warn("Error closing GCS client", zap.Error(err))
			}
		})
		a.logger.Info("Using GCS storage", zap.String("bucket", cfg.GCSBucket))
		return gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket, Prefix: cfg.Prefix})
	default:
		a.logger.Info("Using local storage", zap.String("base_dir", cfg.BaseDir))
		return local.New(local.Config{BaseDir: cfg.BaseDir})
	}
}

func (a *App) openSink(ctx context.Context) (*postgres.ProductStore, error) {
	cfg := a.cfg.DB
	if cfg.DSN == "" {
		return nil, nil
	}
	store, err := postgres.NewProductStore(ctx, postgres.ProductStoreConfig{
		DSN:      cfg.DSN,
		Table:    cfg.Table,
		MaxConns: cfg.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("init product store: %w", err)
	}
	a.onClose(store.Close)
	if err := store.EnsureTable(ctx); err != nil {
		return nil, err
	}
	a.logger.Info("Mirroring products to Postgres", zap.String("table", cfg.Table))
	return store, nil
}

// openPublisher returns nil when no topic is configured; the pipeline then
// skips notification.
func (a *App) openPublisher(ctx context.Context) (catalog.Publisher, error) {
	cfg := a.cfg.PubSub
	if cfg.TopicName == "" {
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	publisher := pubsubpublisher.New(client, map[string]string{"source": a.cfg.Source.BaseURL})
	a.onClose(func() {
		publisher.Stop()
		if err := client.Close(); err != nil {
			a.logger.Warn("Error closing Pub/Sub client", zap.Error(err))
		}
	})
	a.logger.Info("Publishing run notifications", zap.String("topic", cfg.TopicName))
	return publisher, nil
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// WriteMetrics dumps the metrics textfile when one is configured.
func (a *App) WriteMetrics() {
	path := a.cfg.Metrics.TextfilePath
	if path == "" {
		return
	}
	if err := a.metrics.WriteTextfile(path); err != nil {
		a.logger.Warn("Failed to write metrics textfile", zap.String("path", path), zap.Error(err))
	}
}

// Close releases opened clients in reverse order and flushes the logger.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	_ = a.logger.Sync()
}
