package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/gel-catalog/internal/catalog"
	"github.com/JakeFAU/gel-catalog/internal/metrics"
)

const fallbackImageExt = ".png"

// Image download statuses.
const (
	imageOK    = "ok"
	imageError = "error"
)

// downloaded is the slide picked as the product thumbnail.
type downloaded struct {
	path string
	data []byte
}

// downloadSlides stores every slide under <prefix>/<slug>/ and rewrites
// SlideImages to the stored paths. A slide that fails keeps its remote URL.
// It returns the thumbnail slide when that one downloaded.
func (p *Pipeline) downloadSlides(
	ctx context.Context,
	logger *zap.Logger,
	product *catalog.Product,
	stats *Stats,
) (*downloaded, error) {
	var thumb *downloaded
	stored := make([]string, len(product.SlideImages))
	for i, remote := range product.SlideImages {
		stored[i] = remote

		ext := catalog.FileExtension(remote, fallbackImageExt)
		objectPath := p.imagePath(product.Slug, fmt.Sprintf("%s_slide_%d%s", product.Slug, i, ext))
		data, err := p.downloadTo(ctx, remote, objectPath, ext)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("scrape canceled: %w", ctx.Err())
			}
			logger.Warn("Failed to download image", zap.String("url", remote), zap.Error(err))
			stats.ImageFailures++
			p.metrics.ObserveImage(imageError)
			continue
		}
		logger.Debug("Downloaded image", zap.String("path", objectPath))
		stats.ImagesDownloaded++
		p.metrics.ObserveImage(imageOK)
		stored[i] = objectPath
		if i == p.cfg.ThumbnailIndex {
			thumb = &downloaded{path: objectPath, data: data}
		}
	}
	product.SlideImages = stored
	return thumb, nil
}

func (p *Pipeline) downloadTo(ctx context.Context, remote, objectPath, ext string) ([]byte, error) {
	resp, err := p.fetch(ctx, remote, metrics.KindImage)
	if err != nil {
		return nil, err
	}
	contentType := resp.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(ext)
	}
	if _, err := p.deps.Store.PutObject(ctx, objectPath, contentType, bytes.NewReader(resp.Body)); err != nil {
		return nil, fmt.Errorf("store %s: %w", objectPath, err)
	}
	return resp.Body, nil
}

// buildThumbnail runs the mask over the thumbnail slide. Skipped and failed
// masks leave the thumbnail pointing at the unmodified download.
func (p *Pipeline) buildThumbnail(
	ctx context.Context,
	logger *zap.Logger,
	slug string,
	src *downloaded,
	stats *Stats,
) *catalog.Thumbnail {
	thumb := &catalog.Thumbnail{Path: src.path, Source: src.path}
	thumb.Hash = p.hash(logger, src.data)

	if p.deps.Thumbnails == nil {
		thumb.Outcome = catalog.ThumbnailOutcomeDisabled
		return thumb
	}

	result, err := p.deps.Thumbnails.Process(src.data)
	if err != nil {
		logger.Warn("Failed to mask thumbnail", zap.String("source", src.path), zap.Error(err))
		return p.thumbnailError(thumb, err, stats)
	}
	thumb.Outcome = string(result.Outcome.Status)
	if !result.Outcome.IsApplied() {
		logger.Info("Thumbnail left unmasked", zap.String("source", src.path), zap.String("reason", result.Outcome.Reason))
		thumb.Reason = result.Outcome.Reason
		stats.MasksSkipped++
		p.metrics.ObserveMask(thumb.Outcome, 0)
		return thumb
	}

	masked := p.imagePath(slug, slug+"_thumb"+p.deps.Thumbnails.Extension())
	if _, err := p.deps.Store.PutObject(ctx, masked, p.deps.Thumbnails.ContentType(), bytes.NewReader(result.Data)); err != nil {
		logger.Warn("Failed to store masked thumbnail", zap.String("path", masked), zap.Error(err))
		return p.thumbnailError(thumb, err, stats)
	}
	thumb.Path = masked
	thumb.Masked = true
	thumb.PixelsCleared = result.Outcome.PixelsCleared
	thumb.Hash = p.hash(logger, result.Data)
	stats.MasksApplied++
	p.metrics.ObserveMask(thumb.Outcome, thumb.PixelsCleared)
	return thumb
}

func (p *Pipeline) thumbnailError(thumb *catalog.Thumbnail, err error, stats *Stats) *catalog.Thumbnail {
	thumb.Outcome = catalog.ThumbnailOutcomeError
	thumb.Reason = err.Error()
	stats.MaskErrors++
	p.metrics.ObserveMask(thumb.Outcome, 0)
	return thumb
}

func (p *Pipeline) hash(logger *zap.Logger, data []byte) string {
	sum, err := p.deps.Hasher.Hash(data)
	if err != nil {
		logger.Warn("Failed to hash image", zap.Error(err))
		return ""
	}
	return sum
}

func (p *Pipeline) imagePath(slug, name string) string {
	return path.Join(p.cfg.ImagesPrefix, slug, name)
}
