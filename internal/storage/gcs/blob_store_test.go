package gcs

import (
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	assert.Error(t, err)

	_, err = New(&storage.Client{}, Config{})
	assert.Error(t, err)
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	store, err := New(&storage.Client{}, Config{Bucket: "catalog", Prefix: "/runs/2026/"})
	require.NoError(t, err)
	assert.Equal(t, "runs/2026/assets/images/a/a_thumb.png", store.ObjectName("assets/images/a/a_thumb.png"))

	bare, err := New(&storage.Client{}, Config{Bucket: "catalog"})
	require.NoError(t, err)
	assert.Equal(t, "products.json", bare.ObjectName("/products.json"))
}
