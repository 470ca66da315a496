package minio

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	structchunk "github.com/LifeboatLLC/SparseHDF5"
)

// TestMinioStore_Integration requires a running MinIO instance.
// Skip if not available.
func TestMinioStore_Integration(t *testing.T) {
	cfg := structchunk.StoreConfig{
		Type:      structchunk.StoreMinio,
		Endpoint:  "localhost:9000",
		Bucket:    "test-structchunk",
		Prefix:    "test-prefix/",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()

	// Check if MinIO is reachable
	if _, err := client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	store, err := Dial(ctx, cfg)
	require.NoError(t, err)

	data := []byte("hello minio world")
	require.NoError(t, store.Put(ctx, "g/b/0", bytes.NewReader(data)))

	rc, err := store.Get(ctx, "g/b/0")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, data, got)

	n, err := store.Size(ctx, "g/b/0")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)

	names, err := store.List(ctx, "g/")
	require.NoError(t, err)
	assert.Contains(t, names, "g/b/0")

	require.NoError(t, store.Delete(ctx, "g/b/0"))
	_, err = store.Size(ctx, "g/b/0")
	assert.ErrorIs(t, err, structchunk.ErrNotfound)
	_, err = store.Get(ctx, "g/b/0")
	assert.ErrorIs(t, err, structchunk.ErrNotfound)
}
