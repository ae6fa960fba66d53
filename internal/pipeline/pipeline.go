// Package pipeline runs one scrape: collection page, product pages, slide
// downloads, thumbnail masking and catalog persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/gel-catalog/internal/catalog"
	"github.com/JakeFAU/gel-catalog/internal/export"
	"github.com/JakeFAU/gel-catalog/internal/metrics"
	"github.com/JakeFAU/gel-catalog/internal/thumbnail"
)

// ListingParser extracts product tiles from the collection page.
type ListingParser interface {
	Parse(html []byte, baseURL string) ([]catalog.Listing, error)
}

// DetailParser extracts fields from a product page.
type DetailParser interface {
	Parse(html []byte, pageURL string) (catalog.Details, error)
}

// ThumbnailProcessor masks a thumbnail's background.
type ThumbnailProcessor interface {
	Process(data []byte) (thumbnail.Result, error)
	ContentType() string
	Extension() string
}

// Recorder receives run metrics.
type Recorder interface {
	ObserveProduct()
	ObserveDetailFailure()
	ObserveImage(status string)
	ObserveMask(outcome string, pixelsCleared int)
	ObserveFetch(rawURL, kind string, code int, duration time.Duration)
	MarkRunFinished(at time.Time)
}

// Config controls a run.
type Config struct {
	BaseURL        string
	CollectionURL  string
	MaxProducts    int
	DownloadImages bool
	ThumbnailIndex int
	ImagesPrefix   string
	CatalogPath    string
	EnvelopePath   string
	Topic          string
}

// Dependencies are the collaborators a Pipeline drives. Sink, Publisher,
// Thumbnails, Limiter, Retry and Metrics are optional.
type Dependencies struct {
	Fetcher    catalog.Fetcher
	Listing    ListingParser
	Detail     DetailParser
	Thumbnails ThumbnailProcessor
	Store      catalog.BlobStore
	Sink       catalog.ProductSink
	Publisher  catalog.Publisher
	Hasher     catalog.Hasher
	Clock      catalog.Clock
	IDs        catalog.IDGenerator
	Limiter    catalog.Limiter
	Retry      catalog.RetryPolicy
	Metrics    Recorder
	Logger     *zap.Logger
}

// Stats summarises a run.
type Stats struct {
	Products         int `json:"products"`
	DetailFailures   int `json:"detail_failures"`
	ImagesDownloaded int `json:"images_downloaded"`
	ImageFailures    int `json:"image_failures"`
	MasksApplied     int `json:"masks_applied"`
	MasksSkipped     int `json:"masks_skipped"`
	MaskErrors       int `json:"mask_errors"`
}

// Notification is published once the catalog has been written.
type Notification struct {
	RunID       string    `json:"run_id"`
	Source      string    `json:"source"`
	CatalogURI  string    `json:"catalog_uri"`
	GeneratedAt time.Time `json:"generated_at"`
	Stats       Stats     `json:"stats"`
}

// Pipeline executes scrape runs.
type Pipeline struct {
	cfg     Config
	deps    Dependencies
	writer  *export.Writer
	metrics Recorder
	logger  *zap.Logger
}

// New validates dependencies and builds a Pipeline.
func New(cfg Config, deps Dependencies) (*Pipeline, error) {
	switch {
	case deps.Fetcher == nil:
		return nil, errors.New("pipeline: fetcher is required")
	case deps.Listing == nil || deps.Detail == nil:
		return nil, errors.New("pipeline: listing and detail parsers are required")
	case deps.Store == nil:
		return nil, errors.New("pipeline: blob store is required")
	case deps.Hasher == nil || deps.Clock == nil || deps.IDs == nil:
		return nil, errors.New("pipeline: hasher, clock and id generator are required")
	}
	if cfg.CollectionURL == "" {
		return nil, errors.New("pipeline: collection url is required")
	}
	if cfg.CatalogPath == "" {
		return nil, errors.New("pipeline: catalog path is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = cfg.CollectionURL
	}
	writer, err := export.NewWriter(deps.Store)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rec := deps.Metrics
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Pipeline{
		cfg:     cfg,
		deps:    deps,
		writer:  writer,
		metrics: rec,
		logger:  logger.Named("pipeline"),
	}, nil
}

// Run scrapes the collection and writes the catalog. Only a failed
// collection fetch, a failed catalog write or cancellation abort the run;
// per-product failures are logged and counted in Stats.
func (p *Pipeline) Run(ctx context.Context) (catalog.Catalog, Stats, error) {
	var stats Stats

	runID, err := p.deps.IDs.NewID()
	if err != nil {
		return catalog.Catalog{}, stats, fmt.Errorf("generate run id: %w", err)
	}
	logger := p.logger.With(zap.String("run_id", runID))
	logger.Info("Starting scrape", zap.String("collection", p.cfg.CollectionURL))

	resp, err := p.fetch(ctx, p.cfg.CollectionURL, metrics.KindListing)
	if err != nil {
		return catalog.Catalog{}, stats, fmt.Errorf("fetch collection: %w", err)
	}
	listings, err := p.deps.Listing.Parse(resp.Body, p.cfg.BaseURL)
	if err != nil {
		return catalog.Catalog{}, stats, fmt.Errorf("parse collection: %w", err)
	}
	if p.cfg.MaxProducts > 0 && len(listings) > p.cfg.MaxProducts {
		listings = listings[:p.cfg.MaxProducts]
	}
	logger.Info("Parsed collection", zap.Int("listings", len(listings)))

	slugs := newSlugSet()
	products := make([]catalog.Product, 0, len(listings))
	for i, listing := range listings {
		if err := ctx.Err(); err != nil {
			return catalog.Catalog{}, stats, fmt.Errorf("scrape canceled: %w", err)
		}
		product, err := p.processListing(ctx, logger, listing, slugs.claim(listing.Name, i), &stats)
		if err != nil {
			return catalog.Catalog{}, stats, err
		}
		products = append(products, product)
		stats.Products++
		p.metrics.ObserveProduct()
	}

	result := catalog.Catalog{
		RunID:       runID,
		Source:      p.cfg.CollectionURL,
		GeneratedAt: p.deps.Clock.Now(),
		Products:    products,
	}
	uri, err := p.persist(ctx, logger, result)
	if err != nil {
		return result, stats, err
	}
	p.metrics.MarkRunFinished(result.GeneratedAt)
	p.notify(ctx, logger, Notification{
		RunID:       runID,
		Source:      result.Source,
		CatalogURI:  uri,
		GeneratedAt: result.GeneratedAt,
		Stats:       stats,
	})

	logger.Info("Scrape finished",
		zap.String("catalog", uri),
		zap.Int("products", stats.Products),
		zap.Int("detail_failures", stats.DetailFailures),
		zap.Int("images_downloaded", stats.ImagesDownloaded),
		zap.Int("image_failures", stats.ImageFailures),
		zap.Int("masks_applied", stats.MasksApplied),
		zap.Int("masks_skipped", stats.MasksSkipped),
		zap.Int("mask_errors", stats.MaskErrors),
	)
	return result, stats, nil
}

func (p *Pipeline) processListing(
	ctx context.Context,
	logger *zap.Logger,
	listing catalog.Listing,
	slug string,
	stats *Stats,
) (catalog.Product, error) {
	product := catalog.Product{
		Listing:   listing,
		Slug:      slug,
		ScrapedAt: p.deps.Clock.Now(),
	}
	logger = logger.With(zap.String("slug", slug))

	details, err := p.scrapeDetails(ctx, listing.URL)
	if err != nil {
		if ctx.Err() != nil {
			return product, fmt.Errorf("scrape canceled: %w", ctx.Err())
		}
		logger.Warn("Failed to fetch details", zap.String("url", listing.URL), zap.Error(err))
		stats.DetailFailures++
		p.metrics.ObserveDetailFailure()
	}
	product.Details = details
	if product.SlideImages == nil {
		product.SlideImages = []string{}
	}

	if !p.cfg.DownloadImages || len(product.SlideImages) == 0 {
		return product, nil
	}
	thumb, err := p.downloadSlides(ctx, logger, &product, stats)
	if err != nil {
		return product, err
	}
	if thumb != nil {
		product.Thumbnail = p.buildThumbnail(ctx, logger, slug, thumb, stats)
	}
	return product, nil
}

func (p *Pipeline) scrapeDetails(ctx context.Context, pageURL string) (catalog.Details, error) {
	if pageURL == "" {
		return catalog.Details{}, errors.New("listing has no product link")
	}
	resp, err := p.fetch(ctx, pageURL, metrics.KindDetail)
	if err != nil {
		return catalog.Details{}, err
	}
	details, err := p.deps.Detail.Parse(resp.Body, pageURL)
	if err != nil {
		return catalog.Details{}, fmt.Errorf("parse product page: %w", err)
	}
	return details, nil
}

// fetch applies the limiter and retry policy around one GET.
func (p *Pipeline) fetch(ctx context.Context, url, kind string) (catalog.FetchResponse, error) {
	for attempt := 1; ; attempt++ {
		if p.deps.Limiter != nil {
			if err := p.deps.Limiter.Wait(ctx, url); err != nil {
				return catalog.FetchResponse{}, err
			}
		}
		start := time.Now()
		resp, err := p.deps.Fetcher.Fetch(ctx, catalog.FetchRequest{URL: url})
		p.metrics.ObserveFetch(url, kind, resp.StatusCode, time.Since(start))
		if err == nil {
			return resp, nil
		}
		if p.deps.Retry == nil || !p.deps.Retry.ShouldRetry(err, attempt) {
			return resp, err
		}
		delay := p.deps.Retry.Backoff(attempt - 1)
		p.logger.Debug("Retrying fetch",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return catalog.FetchResponse{}, fmt.Errorf("fetch %s: %w", url, ctx.Err())
		case <-timer.C:
		}
	}
}

func (p *Pipeline) persist(ctx context.Context, logger *zap.Logger, result catalog.Catalog) (string, error) {
	uri, err := p.writer.WriteProducts(ctx, p.cfg.CatalogPath, result.Products)
	if err != nil {
		return "", fmt.Errorf("write catalog: %w", err)
	}
	if p.cfg.EnvelopePath != "" {
		if _, err := p.writer.WriteEnvelope(ctx, p.cfg.EnvelopePath, result); err != nil {
			return "", fmt.Errorf("write run envelope: %w", err)
		}
	}
	if p.deps.Sink != nil {
		if err := p.deps.Sink.UpsertProducts(ctx, result.RunID, result.Products); err != nil {
			logger.Error("Failed to mirror products", zap.Error(err))
		}
	}
	return uri, nil
}

func (p *Pipeline) notify(ctx context.Context, logger *zap.Logger, n Notification) {
	if p.deps.Publisher == nil || p.cfg.Topic == "" {
		return
	}
	id, err := p.deps.Publisher.Publish(ctx, p.cfg.Topic, n)
	if err != nil {
		logger.Error("Failed to publish run notification", zap.String("topic", p.cfg.Topic), zap.Error(err))
		return
	}
	logger.Debug("Published run notification", zap.String("message_id", id))
}

type nopRecorder struct{}

func (nopRecorder) ObserveProduct() {}
func (nopRecorder) ObserveDetailFailure() {}
func (nopRecorder) ObserveImage(string) {}
func (nopRecorder) ObserveMask(string, int) {}
func (nopRecorder) ObserveFetch(string, string, int, time.Duration) {}
func (nopRecorder) MarkRunFinished(time.Time) {}
