// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"image/png"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/gel-catalog/internal/codec"
	"github.com/JakeFAU/gel-catalog/internal/extract"
	"github.com/JakeFAU/gel-catalog/internal/logging"
	"github.com/JakeFAU/gel-catalog/internal/mask"
)

// Storage backends.
const (
	BackendLocal  = "local"
	BackendMemory = "memory"
	BackendGCS    = "gcs"
)

// DefaultUserAgent mimics a desktop browser; the storefront serves bots a
// reduced page.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115 Safari/537.36"

// Config captures all scraper configuration knobs loaded via Viper.
type Config struct {
	Source    SourceConfig    `mapstructure:"source"`
	Selectors SelectorsConfig `mapstructure:"selectors"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Images    ImagesConfig    `mapstructure:"images"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   logging.Config  `mapstructure:"logging"`
}

// SourceConfig names the storefront and how politely to crawl it.
type SourceConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	CollectionPath string `mapstructure:"collection_path"`
	UserAgent      string `mapstructure:"user_agent"`
	RespectRobots  bool   `mapstructure:"respect_robots"`
	DelayMs        int    `mapstructure:"delay_ms"`
	MaxProducts    int    `mapstructure:"max_products"`
}

// SelectorsConfig holds the CSS and XPath expressions used for extraction.
type SelectorsConfig struct {
	Listing extract.ListingSelectors `mapstructure:"listing"`
	Detail  extract.DetailSelectors  `mapstructure:"detail"`
}

// HTTPConfig configures HTTP client timeouts and retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
	MaxBodyMB        int `mapstructure:"max_body_mb"`
}

// ImagesConfig controls slide downloads and thumbnail masking.
type ImagesConfig struct {
	Download       bool       `mapstructure:"download"`
	ThumbnailIndex int        `mapstructure:"thumbnail_index"`
	Mask           MaskConfig `mapstructure:"mask"`
}

// MaskConfig controls the thumbnail background mask.
type MaskConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Tolerance      int    `mapstructure:"tolerance"`
	OutputFormat   string `mapstructure:"output_format"`
	PNGCompression string `mapstructure:"png_compression"`
}

// StorageConfig selects where images and the catalog are written.
type StorageConfig struct {
	Backend      string `mapstructure:"backend"`
	BaseDir      string `mapstructure:"base_dir"`
	GCSBucket    string `mapstructure:"gcs_bucket"`
	Prefix       string `mapstructure:"prefix"`
	ImagesPrefix string `mapstructure:"images_prefix"`
	CatalogPath  string `mapstructure:"catalog_path"`
	EnvelopePath string `mapstructure:"envelope_path"`
}

// DBConfig controls the optional Postgres product mirror.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig points at the node-exporter textfile to write after a run.
type MetricsConfig struct {
	TextfilePath string `mapstructure:"textfile_path"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.base_url", "https://oliveandjune.com")
	v.SetDefault("source.collection_path", "/collections/gel-polish")
	v.SetDefault("source.user_agent", DefaultUserAgent)
	v.SetDefault("source.respect_robots", false)
	v.SetDefault("source.delay_ms", 100)
	v.SetDefault("source.max_products", 0)

	listing := extract.DefaultListingSelectors()
	v.SetDefault("selectors.listing.item", listing.Item)
	v.SetDefault("selectors.listing.name", listing.Name)
	v.SetDefault("selectors.listing.price", listing.Price)
	v.SetDefault("selectors.listing.link", listing.Link)
	v.SetDefault("selectors.listing.new_badge", listing.NewBadge)
	v.SetDefault("selectors.listing.quick_add", listing.QuickAdd)
	detail := extract.DefaultDetailSelectors()
	v.SetDefault("selectors.detail.product_id_xpath", detail.ProductIDXPath)
	v.SetDefault("selectors.detail.description", detail.Description)
	v.SetDefault("selectors.detail.cut_marker", detail.CutMarker)
	v.SetDefault("selectors.detail.slide_images", detail.SlideImages)

	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 2000)
	v.SetDefault("http.max_body_mb", 32)

	v.SetDefault("images.download", true)
	v.SetDefault("images.thumbnail_index", 0)
	v.SetDefault("images.mask.enabled", true)
	v.SetDefault("images.mask.tolerance", mask.DefaultTolerance)
	v.SetDefault("images.mask.output_format", string(codec.FormatPNG))
	v.SetDefault("images.mask.png_compression", "default")

	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.base_dir", ".")
	v.SetDefault("storage.images_prefix", "assets/images")
	v.SetDefault("storage.catalog_path", "assets/data/gel_polishes.json")
	v.SetDefault("storage.envelope_path", "")

	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "products")
	v.SetDefault("db.max_conns", 4)

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")

	v.SetDefault("metrics.textfile_path", "")

	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.Source.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("source.base_url must be an absolute URL")
	}
	if c.Source.DelayMs < 0 {
		return fmt.Errorf("source.delay_ms must be >= 0")
	}
	if c.Source.MaxProducts < 0 {
		return fmt.Errorf("source.max_products must be >= 0")
	}
	if err := c.Selectors.Listing.Validate(); err != nil {
		return err
	}
	if err := c.Selectors.Detail.Validate(); err != nil {
		return err
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.Images.ThumbnailIndex < 0 {
		return fmt.Errorf("images.thumbnail_index must be >= 0")
	}
	if err := c.Images.Mask.validate(); err != nil {
		return err
	}
	if err := c.Storage.validate(); err != nil {
		return err
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

func (m MaskConfig) validate() error {
	if m.Tolerance < 0 {
		return fmt.Errorf("images.mask.tolerance must be >= 0")
	}
	if _, err := m.NewEncoder(); err != nil {
		return err
	}
	return nil
}

// NewEncoder builds the thumbnail encoder for output_format and png_compression.
func (m MaskConfig) NewEncoder() (*codec.Encoder, error) {
	format, err := codec.ParseFormat(m.OutputFormat)
	if err != nil {
		return nil, fmt.Errorf("images.mask.output_format: %w", err)
	}
	level, err := m.CompressionLevel()
	if err != nil {
		return nil, err
	}
	enc, err := codec.NewEncoder(format, level)
	if err != nil {
		return nil, fmt.Errorf("images.mask.output_format %q: %w", m.OutputFormat, err)
	}
	return enc, nil
}

func (s StorageConfig) validate() error {
	switch s.Backend {
	case BackendLocal:
		if strings.TrimSpace(s.BaseDir) == "" {
			return fmt.Errorf("storage.base_dir must be set for the local backend")
		}
	case BackendMemory:
	case BackendGCS:
		if s.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of local, memory, gcs", s.Backend)
	}
	if s.CatalogPath == "" {
		return fmt.Errorf("storage.catalog_path must be set")
	}
	return nil
}

// CompressionLevel maps png_compression to the encoder level.
func (m MaskConfig) CompressionLevel() (png.CompressionLevel, error) {
	switch strings.ToLower(strings.TrimSpace(m.PNGCompression)) {
	case "", "default":
		return png.DefaultCompression, nil
	case "none":
		return png.NoCompression, nil
	case "best_speed":
		return png.BestSpeed, nil
	case "best_compression":
		return png.BestCompression, nil
	default:
		return 0, fmt.Errorf("images.mask.png_compression %q is not one of default, none, best_speed, best_compression", m.PNGCompression)
	}
}

// CollectionURL joins the base URL and collection path.
func (c Config) CollectionURL() string {
	return strings.TrimRight(c.Source.BaseURL, "/") + "/" + strings.TrimLeft(c.Source.CollectionPath, "/")
}

// Delay converts the politeness delay to a duration.
func (c Config) Delay() time.Duration {
	return time.Duration(c.Source.DelayMs) * time.Millisecond
}

// Timeout converts the per-request timeout to a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// Backoff returns the initial and maximum retry delays.
func (c Config) Backoff() (initial, maxDelay time.Duration) {
	return time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond,
		time.Duration(c.HTTP.BackoffMaxMs) * time.Millisecond
}
