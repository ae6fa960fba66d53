package export

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/gel-catalog/internal/catalog"
	"github.com/JakeFAU/gel-catalog/internal/storage/memory"
)

type failingStore struct{}

func (failingStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("disk full")
}

func TestWriteProducts(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	w, err := NewWriter(store)
	require.NoError(t, err)

	products := []catalog.Product{{
		Listing: catalog.Listing{Name: "Rosé & Co", Price: "$14"},
		Slug:    "rose-co",
	}}
	uri, err := w.WriteProducts(context.Background(), "assets/data/gel_polishes.json", products)
	require.NoError(t, err)
	assert.Equal(t, "memory://assets/data/gel_polishes.json", uri)

	obj, ok := store.Get("assets/data/gel_polishes.json")
	require.True(t, ok)
	assert.Equal(t, "application/json", obj.ContentType)
	assert.Contains(t, string(obj.Data), "\n  {\n    \"variantId\"")
	assert.Contains(t, string(obj.Data), `"name": "Rosé & Co"`)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(obj.Data, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "rose-co", decoded[0]["slug"])
}

func TestWriteProductsEmpty(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	w, err := NewWriter(store)
	require.NoError(t, err)

	_, err = w.WriteProducts(context.Background(), "out.json", nil)
	require.NoError(t, err)
	obj, _ := store.Get("out.json")
	assert.Equal(t, "[]", string(obj.Data))
}

func TestWriteEnvelope(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	w, err := NewWriter(store)
	require.NoError(t, err)

	c := catalog.Catalog{
		RunID:       "run-1",
		Source:      "https://oliveandjune.com/collections/gel-polish",
		GeneratedAt: time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
	}
	_, err = w.WriteEnvelope(context.Background(), "run.json", c)
	require.NoError(t, err)

	obj, _ := store.Get("run.json")
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(obj.Data, &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	assert.Equal(t, []any{}, decoded["products"])
}

func TestWriterErrors(t *testing.T) {
	t.Parallel()

	_, err := NewWriter(nil)
	assert.Error(t, err)

	w, err := NewWriter(failingStore{})
	require.NoError(t, err)
	_, err = w.WriteProducts(context.Background(), "x.json", nil)
	assert.ErrorContains(t, err, "disk full")
}
