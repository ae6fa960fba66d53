// Package export serialises the catalog and writes it through a BlobStore.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/gel-catalog/internal/catalog"
)

const contentTypeJSON = "application/json"

// Writer writes catalog JSON documents.
type Writer struct {
	store catalog.BlobStore
}

// NewWriter returns a Writer backed by store.
func NewWriter(store catalog.BlobStore) (*Writer, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	return &Writer{store: store}, nil
}

// WriteProducts writes the product array, indented by two spaces, to path and
// returns the object URI. A nil slice is written as [].
func (w *Writer) WriteProducts(ctx context.Context, path string, products []catalog.Product) (string, error) {
	if products == nil {
		products = []catalog.Product{}
	}
	return w.write(ctx, path, products)
}

// WriteEnvelope writes the full run envelope (run id, source, timestamp and
// products) to path.
func (w *Writer) WriteEnvelope(ctx context.Context, path string, c catalog.Catalog) (string, error) {
	if c.Products == nil {
		c.Products = []catalog.Product{}
	}
	return w.write(ctx, path, c)
}

func (w *Writer) write(ctx context.Context, path string, v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", err
	}
	uri, err := w.store.PutObject(ctx, path, contentTypeJSON, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return uri, nil
}

// Marshal renders v as two-space indented JSON without HTML escaping.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("marshal catalog: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
