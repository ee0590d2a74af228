package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/italolelis/xtream_offline/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	records []storage.DownloadRecord
	deleted []string
}

func (f *fakeRegistry) List(_ context.Context) ([]storage.DownloadRecord, error) {
	return f.records, nil
}

func (f *fakeRegistry) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)

	return nil
}

func completedAt(age time.Duration) *time.Time {
	t := time.Now().Add(-age)

	return &t
}

func TestDeleteExpiredDownloads(t *testing.T) {
	registry := &fakeRegistry{records: []storage.DownloadRecord{
		{ID: "download_1_1", Status: storage.StatusCompleted, CompletedAt: completedAt(48 * time.Hour)},
		{ID: "download_2_2", Status: storage.StatusCompleted, CompletedAt: completedAt(time.Hour)},
		{ID: "download_3_3", Status: storage.StatusDownloading},
		{ID: "download_4_4", Status: storage.StatusPaused},
		{ID: "download_5_5", Status: storage.StatusFailed},
	}}

	err := DeleteExpiredDownloads(context.Background(), registry, 24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, []string{"download_1_1"}, registry.deleted)
}

func TestDeleteExpiredDownloads_NothingExpired(t *testing.T) {
	registry := &fakeRegistry{records: []storage.DownloadRecord{
		{ID: "download_1_1", Status: storage.StatusCompleted, CompletedAt: completedAt(time.Minute)},
	}}

	err := DeleteExpiredDownloads(context.Background(), registry, 24*time.Hour)
	require.NoError(t, err)

	assert.Empty(t, registry.deleted)
}
