package config

import (
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/gel-catalog/internal/codec"
	"github.com/JakeFAU/gel-catalog/internal/extract"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://oliveandjune.com/collections/gel-polish", cfg.CollectionURL())
	assert.Equal(t, 100*time.Millisecond, cfg.Delay())
	assert.Equal(t, 15*time.Second, cfg.Timeout())
	assert.Equal(t, DefaultUserAgent, cfg.Source.UserAgent)
	assert.Equal(t, extract.DefaultListingSelectors(), cfg.Selectors.Listing)
	assert.Equal(t, extract.DefaultDetailSelectors(), cfg.Selectors.Detail)
	assert.True(t, cfg.Images.Download)
	assert.True(t, cfg.Images.Mask.Enabled)
	assert.Equal(t, 4, cfg.Images.Mask.Tolerance)
	assert.Equal(t, BackendLocal, cfg.Storage.Backend)
	assert.Equal(t, "assets/images", cfg.Storage.ImagesPrefix)
	assert.Equal(t, "assets/data/gel_polishes.json", cfg.Storage.CatalogPath)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadWithFileOverrides(t *testing.T) {
	path := writeConfig(t, `
source:
  base_url: https://shop.example.com/
  collection_path: collections/polish
  delay_ms: 250
  max_products: 5
selectors:
  listing:
    item: li.product
  detail:
    cut_marker: "FUN FACT"
http:
  timeout_seconds: 30
  max_retries: 4
  backoff_initial_ms: 100
  backoff_max_ms: 500
images:
  thumbnail_index: 1
  mask:
    tolerance: 10
    png_compression: best_speed
storage:
  backend: gcs
  gcs_bucket: catalog-bucket
  prefix: runs
db:
  dsn: postgres://localhost/catalog
  table: gel_products
pubsub:
  project_id: proj
  topic_name: catalog-written
metrics:
  textfile_path: /var/lib/node_exporter/catalog.prom
logging:
  development: false
  level: warn
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://shop.example.com/collections/polish", cfg.CollectionURL())
	assert.Equal(t, 250*time.Millisecond, cfg.Delay())
	assert.Equal(t, 5, cfg.Source.MaxProducts)
	assert.Equal(t, "li.product", cfg.Selectors.Listing.Item)
	assert.Equal(t, ".grid-view-item__title", cfg.Selectors.Listing.Name)
	assert.Equal(t, "FUN FACT", cfg.Selectors.Detail.CutMarker)
	assert.Equal(t, 4, cfg.HTTP.MaxRetries)
	initial, maxDelay := cfg.Backoff()
	assert.Equal(t, 100*time.Millisecond, initial)
	assert.Equal(t, 500*time.Millisecond, maxDelay)
	assert.Equal(t, 1, cfg.Images.ThumbnailIndex)
	assert.Equal(t, 10, cfg.Images.Mask.Tolerance)
	level, err := cfg.Images.Mask.CompressionLevel()
	require.NoError(t, err)
	assert.Equal(t, png.BestSpeed, level)
	assert.Equal(t, BackendGCS, cfg.Storage.Backend)
	assert.Equal(t, "catalog-bucket", cfg.Storage.GCSBucket)
	assert.Equal(t, "gel_products", cfg.DB.Table)
	assert.Equal(t, "catalog-written", cfg.PubSub.TopicName)
	assert.Equal(t, "/var/lib/node_exporter/catalog.prom", cfg.Metrics.TextfilePath)
	assert.False(t, cfg.Logging.Development)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CATALOG_IMAGES_MASK_TOLERANCE", "7")
	t.Setenv("CATALOG_STORAGE_BACKEND", "memory")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Images.Mask.Tolerance)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "relative base url", mutate: func(c *Config) { c.Source.BaseURL = "oliveandjune.com" }},
		{name: "negative delay", mutate: func(c *Config) { c.Source.DelayMs = -1 }},
		{name: "missing item selector", mutate: func(c *Config) { c.Selectors.Listing.Item = "" }},
		{name: "missing xpath", mutate: func(c *Config) { c.Selectors.Detail.ProductIDXPath = "" }},
		{name: "zero timeout", mutate: func(c *Config) { c.HTTP.TimeoutSeconds = 0 }},
		{name: "negative tolerance", mutate: func(c *Config) { c.Images.Mask.Tolerance = -1 }},
		{name: "unknown format", mutate: func(c *Config) { c.Images.Mask.OutputFormat = "tiff" }},
		{name: "bad compression", mutate: func(c *Config) { c.Images.Mask.PNGCompression = "max" }},
		{name: "unknown backend", mutate: func(c *Config) { c.Storage.Backend = "s3" }},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Storage.Backend = BackendGCS }},
		{name: "no catalog path", mutate: func(c *Config) { c.Storage.CatalogPath = "" }},
		{name: "topic without project", mutate: func(c *Config) { c.PubSub.TopicName = "t" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateRejectsOpaqueOutput(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Images.Mask.OutputFormat = "jpeg"
	err = cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, codec.ErrFormatNoAlpha))
}
