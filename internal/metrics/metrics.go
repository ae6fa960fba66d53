// Package metrics records scrape-run counters on a private Prometheus
// registry and dumps them in textfile-collector format.
package metrics

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch kinds used as the "kind" label.
const (
	KindListing = "listing"
	KindDetail  = "detail"
	KindImage   = "image"
)

// Recorder owns the collectors for a single process.
type Recorder struct {
	registry *prometheus.Registry

	productsTotal         prometheus.Counter
	detailFailuresTotal   prometheus.Counter
	imagesTotal           *prometheus.CounterVec
	masksTotal            *prometheus.CounterVec
	pixelsCleared         prometheus.Histogram
	fetchesTotal          *prometheus.CounterVec
	fetchDurationSeconds  *prometheus.HistogramVec
	rateLimitDelaySeconds *prometheus.HistogramVec
	lastRunTimestamp      prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		productsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "catalog_products_total",
			Help: "Products written to the catalog.",
		}),
		detailFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "catalog_detail_failures_total",
			Help: "Product pages that could not be fetched or parsed.",
		}),
		imagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_images_total",
			Help: "Slide image downloads, labeled by status.",
		}, []string{"status"}),
		masksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_thumbnail_masks_total",
			Help: "Thumbnail background masks, labeled by outcome.",
		}, []string{"outcome"}),
		pixelsCleared: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "catalog_thumbnail_pixels_cleared",
			Help:    "Pixels made transparent per applied mask.",
			Buckets: prometheus.ExponentialBuckets(1000, 4, 8),
		}),
		fetchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_fetches_total",
			Help: "HTTP fetches, labeled by site, kind and status code.",
		}, []string{"site", "kind", "code"}),
		fetchDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "catalog_fetch_duration_seconds",
			Help:    "Histogram of fetch latencies, labeled by kind.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"kind"}),
		rateLimitDelaySeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "catalog_rate_limit_delay_seconds",
			Help:    "Histogram of politeness wait durations.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}, []string{"domain"}),
		lastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "catalog_last_run_timestamp_seconds",
			Help: "Unix time the last run finished writing its catalog.",
		}),
	}
}

// Registry exposes the underlying registry for tests and custom exporters.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveProduct counts one product added to the catalog.
func (r *Recorder) ObserveProduct() {
	r.productsTotal.Inc()
}

// ObserveDetailFailure counts a product whose page could not be used.
func (r *Recorder) ObserveDetailFailure() {
	r.detailFailuresTotal.Inc()
}

// ObserveImage counts a slide download with status "ok" or "error".
func (r *Recorder) ObserveImage(status string) {
	r.imagesTotal.WithLabelValues(status).Inc()
}

// ObserveMask counts a thumbnail outcome and, for applied masks, the number
// of cleared pixels.
func (r *Recorder) ObserveMask(outcome string, pixelsCleared int) {
	r.masksTotal.WithLabelValues(outcome).Inc()
	if pixelsCleared > 0 {
		r.pixelsCleared.Observe(float64(pixelsCleared))
	}
}

// ObserveFetch records one fetch. code is 0 when no response arrived.
func (r *Recorder) ObserveFetch(rawURL, kind string, code int, duration time.Duration) {
	r.fetchesTotal.WithLabelValues(SanitizeSite(rawURL), kind, strconv.Itoa(code)).Inc()
	r.fetchDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func (r *Recorder) ObserveRateLimitDelay(domain string, duration time.Duration) {
	r.rateLimitDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// MarkRunFinished stamps the last-run gauge.
func (r *Recorder) MarkRunFinished(at time.Time) {
	r.lastRunTimestamp.Set(float64(at.Unix()))
}

// WriteTextfile writes every collector to path for the node-exporter
// textfile collector. The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
