package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"compass_sync/internal/storage"

	"github.com/stretchr/testify/require"
)

func openBackends(t *testing.T) map[string]storage.Backend {
	t.Helper()
	ctx := context.Background()

	fileStore, err := storage.Open(ctx, storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "state")})
	require.NoError(t, err)

	sqliteStore, err := storage.Open(ctx, storage.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "state.db")})
	require.NoError(t, err)

	backends := map[string]storage.Backend{"file": fileStore, "sqlite": sqliteStore}
	t.Cleanup(func() {
		for _, b := range backends {
			_ = b.Close()
		}
	})
	return backends
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := storage.Open(context.Background(), storage.Config{Driver: "redis", Path: "x"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown storage driver")
}

func TestOpen_MissingPath(t *testing.T) {
	for _, driver := range []string{"file", "sqlite", "postgres"} {
		_, err := storage.Open(context.Background(), storage.Config{Driver: driver})
		require.Error(t, err, driver)
	}
}

func TestStore_FirstWriteWins(t *testing.T) {
	ctx := context.Background()
	for name, st := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			has, err := st.Has(ctx, "messages", 1)
			require.NoError(t, err)
			require.False(t, has)

			written, err := st.Put(ctx, "messages", 1, []byte(`{"id": 1, "content": "first"}`))
			require.NoError(t, err)
			require.True(t, written)

			written, err = st.Put(ctx, "messages", 1, []byte(`{"id": 1, "content": "second"}`))
			require.NoError(t, err)
			require.False(t, written)

			body, ok, err := st.Get(ctx, "messages", 1)
			require.NoError(t, err)
			require.True(t, ok)
			require.JSONEq(t, `{"id": 1, "content": "first"}`, string(body))

			has, err = st.Has(ctx, "news_items", 1)
			require.NoError(t, err)
			require.False(t, has)
		})
	}
}

func TestStore_GetMissing(t *testing.T) {
	ctx := context.Background()
	for name, st := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			body, ok, err := st.Get(ctx, "messages", 404)
			require.NoError(t, err)
			require.False(t, ok)
			require.Nil(t, body)
		})
	}
}

func TestStore_List(t *testing.T) {
	ctx := context.Background()
	for name, st := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			empty, err := st.List(ctx, "news_items")
			require.NoError(t, err)
			require.Empty(t, empty)

			for _, id := range []int64{3, 1, 2} {
				_, err := st.Put(ctx, "news_items", id, []byte(`{}`))
				require.NoError(t, err)
			}
			_, err = st.Put(ctx, "messages", 9, []byte(`{}`))
			require.NoError(t, err)

			bodies, err := st.List(ctx, "news_items")
			require.NoError(t, err)
			require.Len(t, bodies, 3)
		})
	}
}

func TestBlobStore_IndependentOfRecords(t *testing.T) {
	ctx := context.Background()
	for name, st := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			written, err := st.PutBlob(ctx, "attachments", 7, []byte("payload"))
			require.NoError(t, err)
			require.True(t, written)

			hasBlob, err := st.HasBlob(ctx, "attachments", 7)
			require.NoError(t, err)
			require.True(t, hasBlob)

			hasRecord, err := st.Has(ctx, "attachments", 7)
			require.NoError(t, err)
			require.False(t, hasRecord)

			written, err = st.PutBlob(ctx, "attachments", 7, []byte("changed"))
			require.NoError(t, err)
			require.False(t, written)

			data, ok, err := st.GetBlob(ctx, "attachments", 7)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, []byte("payload"), data)

			_, ok, err = st.GetBlob(ctx, "attachments", 8)
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestFileStore_Layout(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "state")
	st, err := storage.Open(ctx, storage.Config{Driver: "file", Path: root})
	require.NoError(t, err)
	defer st.Close()

	_, err = st.Put(ctx, "news_items", 42, []byte("{\n  \"id\": 42\n}"))
	require.NoError(t, err)
	_, err = st.PutBlob(ctx, "attachments", 7, []byte("pdf"))
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(root, "news_items", "42.json"))
	require.NoError(t, err)
	require.Equal(t, "{\n  \"id\": 42\n}", string(b))

	b, err = os.ReadFile(filepath.Join(root, "attachments", "7.bin"))
	require.NoError(t, err)
	require.Equal(t, "pdf", string(b))

	// Временные файлы прерванной записи не считаются записями.
	require.NoError(t, os.WriteFile(filepath.Join(root, "news_items", "43.json.123.tmp"), []byte("{"), 0o644))
	has, err := st.Has(ctx, "news_items", 43)
	require.NoError(t, err)
	require.False(t, has)
	bodies, err := st.List(ctx, "news_items")
	require.NoError(t, err)
	require.Len(t, bodies, 1)
}

func TestFileStore_Closed(t *testing.T) {
	ctx := context.Background()
	st, err := storage.Open(ctx, storage.Config{Driver: "file", Path: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	_, err = st.Put(ctx, "messages", 1, []byte(`{}`))
	require.ErrorIs(t, err, storage.ErrClosed)
	require.ErrorIs(t, st.Ping(ctx), storage.ErrClosed)
}

func TestStore_Ping(t *testing.T) {
	for name, st := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, st.Ping(context.Background()))
		})
	}
}

func TestMinioBlobs(t *testing.T) {
	endpoint := os.Getenv("TEST_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("TEST_MINIO_ENDPOINT is not set")
	}
	ctx := context.Background()

	blobs, err := storage.OpenMinio(ctx, storage.MinioConfig{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("TEST_MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("TEST_MINIO_SECRET_KEY"),
		Bucket:    "compass-sync-test",
	})
	require.NoError(t, err)

	id := int64(os.Getpid())
	has, err := blobs.HasBlob(ctx, "attachments", id)
	require.NoError(t, err)
	require.False(t, has)

	written, err := blobs.PutBlob(ctx, "attachments", id, []byte("payload"))
	require.NoError(t, err)
	require.True(t, written)

	written, err = blobs.PutBlob(ctx, "attachments", id, []byte("payload"))
	require.NoError(t, err)
	require.False(t, written)

	data, ok, err := blobs.GetBlob(ctx, "attachments", id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("payload"), data)
}
