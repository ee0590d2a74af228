package storage_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/italolelis/xtream_offline/internal/storage"
	"github.com/italolelis/xtream_offline/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(id string, status storage.Status) *storage.DownloadRecord {
	return &storage.DownloadRecord{
		ID:                 id,
		StreamID:           42,
		Title:              "Some Movie",
		MediaType:          "movie",
		ContainerExtension: "mp4",
		FilePath:           "/downloads/Some_Movie_42.mp4",
		Status:             status,
		CreatedAt:          time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMetadataStore_PutGetRoundTrip(t *testing.T) {
	store := storage.NewMetadataStore(memory.NewKV())
	ctx := context.Background()

	rec := record("download_42_1", storage.StatusDownloading)
	rec.TotalSize = 1000
	rec.DownloadedSize = 300

	require.NoError(t, store.Put(ctx, rec))

	got, err := store.Get(ctx, "download_42_1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestMetadataStore_GetUnknown(t *testing.T) {
	store := storage.NewMetadataStore(memory.NewKV())

	_, err := store.Get(context.Background(), "download_0_0")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMetadataStore_PutReplacesExisting(t *testing.T) {
	store := storage.NewMetadataStore(memory.NewKV())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, record("download_42_1", storage.StatusDownloading)))
	require.NoError(t, store.Put(ctx, record("download_42_1", storage.StatusPaused)))

	records, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, storage.StatusPaused, records[0].Status)
}

func TestMetadataStore_Update(t *testing.T) {
	store := storage.NewMetadataStore(memory.NewKV())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, record("download_42_1", storage.StatusDownloading)))

	err := store.Update(ctx, "download_42_1", func(rec *storage.DownloadRecord) {
		rec.DownloadedSize = 500
	})
	require.NoError(t, err)

	got, err := store.Get(ctx, "download_42_1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), got.DownloadedSize)

	err = store.Update(ctx, "download_0_0", func(rec *storage.DownloadRecord) {})
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMetadataStore_ConcurrentUpdates(t *testing.T) {
	store := storage.NewMetadataStore(memory.NewKV())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, record("download_42_1", storage.StatusDownloading)))

	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_ = store.Update(ctx, "download_42_1", func(rec *storage.DownloadRecord) {
				rec.DownloadedSize++
			})
		}()
	}

	wg.Wait()

	got, err := store.Get(ctx, "download_42_1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.DownloadedSize, "read-modify-write must not lose increments")
}

func TestMetadataStore_DeleteIsIdempotent(t *testing.T) {
	store := storage.NewMetadataStore(memory.NewKV())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, record("download_42_1", storage.StatusCompleted)))
	require.NoError(t, store.Put(ctx, record("download_43_2", storage.StatusCompleted)))

	require.NoError(t, store.Delete(ctx, "download_42_1"))
	require.NoError(t, store.Delete(ctx, "download_42_1"))
	require.NoError(t, store.Delete(ctx, "download_0_0"))

	records, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "download_43_2", records[0].ID)
}

func TestMetadataStore_Clear(t *testing.T) {
	store := storage.NewMetadataStore(memory.NewKV())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, record("download_42_1", storage.StatusCompleted)))
	require.NoError(t, store.Clear(ctx))

	records, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDownloadRecord_JSONShape(t *testing.T) {
	completed := time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)

	rec := record("download_42_1", storage.StatusCompleted)
	rec.PosterURL = "http://panel.example.com/poster.jpg"
	rec.TotalSize = 1000
	rec.DownloadedSize = 1000
	rec.CompletedAt = &completed

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))

	for _, key := range []string{
		"id", "streamId", "title", "posterUrl", "mediaType", "containerExtension",
		"filePath", "totalSize", "downloadedSize", "status", "createdAt", "completedAt",
	} {
		assert.Contains(t, fields, key)
	}

	assert.NotContains(t, fields, "errorDetail", "empty error detail must be omitted")
}

func TestStatus_Resumable(t *testing.T) {
	tests := []struct {
		status storage.Status
		want   bool
	}{
		{storage.StatusDownloading, false},
		{storage.StatusPaused, true},
		{storage.StatusCompleted, false},
		{storage.StatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.Resumable())
		})
	}
}
