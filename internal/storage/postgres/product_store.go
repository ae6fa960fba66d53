// Package postgres mirrors scraped products into a Postgres table.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/gel-catalog/internal/catalog"
)

const defaultTable = "products"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ProductStoreConfig controls the Postgres connection pool used for product rows.
type ProductStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// ProductStore upserts product rows keyed by slug.
type ProductStore struct {
	pool  pool
	table string
}

// NewProductStore creates a Postgres-backed ProductStore using the provided config.
func NewProductStore(ctx context.Context, cfg ProductStoreConfig) (*ProductStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ProductStore{pool: p, table: table}, nil
}

// NewProductStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewProductStoreWithPool(p pool, table string) (*ProductStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &ProductStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *ProductStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureTable creates the product table when it does not exist.
func (s *ProductStore) EnsureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	slug text PRIMARY KEY,
	run_id text NOT NULL,
	variant_id text,
	product_id text,
	name text NOT NULL,
	price text,
	url text,
	is_new boolean NOT NULL DEFAULT false,
	color text,
	color_kind text,
	undertone text,
	season text,
	description text,
	slide_images jsonb NOT NULL DEFAULT '[]',
	thumbnail_path text,
	thumbnail_outcome text,
	scraped_at timestamptz NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// UpsertProducts writes every product in one transaction. A product already
// present under the same slug is overwritten.
func (s *ProductStore) UpsertProducts(ctx context.Context, runID string, products []catalog.Product) (err error) {
	if s == nil || s.pool == nil {
		return fmt.Errorf("product store is not configured")
	}
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	if len(products) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := s.upsertQuery()
	for _, p := range products {
		args, argErr := upsertArgs(runID, p)
		if argErr != nil {
			return argErr
		}
		if _, err = tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert product %q: %w", p.Slug, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

func (s *ProductStore) upsertQuery() string {
	return fmt.Sprintf(`
INSERT INTO %s (
	slug,
	run_id,
	variant_id,
	product_id,
	name,
	price,
	url,
	is_new,
	color,
	color_kind,
	undertone,
	season,
	description,
	slide_images,
	thumbnail_path,
	thumbnail_outcome,
	scraped_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17
)
ON CONFLICT (slug) DO UPDATE SET
	run_id = EXCLUDED.run_id,
	variant_id = EXCLUDED.variant_id,
	product_id = EXCLUDED.product_id,
	name = EXCLUDED.name,
	price = EXCLUDED.price,
	url = EXCLUDED.url,
	is_new = EXCLUDED.is_new,
	color = EXCLUDED.color,
	color_kind = EXCLUDED.color_kind,
	undertone = EXCLUDED.undertone,
	season = EXCLUDED.season,
	description = EXCLUDED.description,
	slide_images = EXCLUDED.slide_images,
	thumbnail_path = EXCLUDED.thumbnail_path,
	thumbnail_outcome = EXCLUDED.thumbnail_outcome,
	scraped_at = EXCLUDED.scraped_at`, s.table)
}

func upsertArgs(runID string, p catalog.Product) ([]any, error) {
	if p.Slug == "" {
		return nil, fmt.Errorf("product %q has no slug", p.Name)
	}
	images := p.SlideImages
	if images == nil {
		images = []string{}
	}
	imagesJSON, err := json.Marshal(images)
	if err != nil {
		return nil, fmt.Errorf("marshal slide images: %w", err)
	}
	var thumbPath, thumbOutcome string
	if p.Thumbnail != nil {
		thumbPath = p.Thumbnail.Path
		thumbOutcome = p.Thumbnail.Outcome
	}
	return []any{
		p.Slug,
		runID,
		p.VariantID,
		p.ProductID,
		p.Name,
		p.Price,
		p.URL,
		p.IsNew,
		p.Color,
		p.ColorKind,
		p.Undertone,
		p.Season,
		p.Description,
		imagesJSON,
		thumbPath,
		thumbOutcome,
		p.ScrapedAt,
	}, nil
}
