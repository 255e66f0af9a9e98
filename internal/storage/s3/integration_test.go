//go:build integration

package s3

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/minio"

	"github.com/anysoft/askql/internal/storage"
)

func TestStoreRoundTripAgainstMinIO(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := minio.Run(ctx,
		"minio/minio:RELEASE.2024-01-16T16-07-38Z",
		minio.WithUsername("askql"),
		minio.WithPassword("askql-secret"),
	)
	require.NoError(t, err, "start minio container")
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()), "terminate minio container")
	})

	endpoint, err := container.ConnectionString(ctx)
	require.NoError(t, err, "minio connection string")

	store, err := New(ctx, Config{
		Endpoint:         "http://" + endpoint,
		Region:           "us-east-1",
		Bucket:           "askql-it",
		AccessKeyID:      "askql",
		SecretAccessKey:  "askql-secret",
		Prefix:           "integration-tests",
		AutoCreateBucket: true,
	})
	require.NoError(t, err, "New()")
	require.NoError(t, store.HealthCheck(ctx), "HealthCheck()")

	key := "results/user=1/date=2025-01-01/roundtrip.parquet"
	payload := []byte("askql-integration")
	require.NoError(t, store.Put(ctx, key, payload, "application/vnd.apache.parquet"), "Put()")

	object, err := store.Open(ctx, key)
	require.NoError(t, err, "Open()")
	body, err := io.ReadAll(object.Body)
	_ = object.Body.Close()
	require.NoError(t, err, "read object")
	require.Equal(t, payload, body)
	require.Equal(t, int64(len(payload)), object.Size)
	require.Equal(t, "application/vnd.apache.parquet", object.ContentType)

	require.NoError(t, store.Delete(ctx, key), "Delete()")
	_, err = store.Open(ctx, key)
	require.True(t, errors.Is(err, storage.ErrObjectNotFound), "Open() after delete error = %v", err)
}
