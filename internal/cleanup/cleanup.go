package cleanup

import (
	"context"
	"time"

	"github.com/italolelis/xtream_offline/internal/logctx"
	"github.com/italolelis/xtream_offline/internal/storage"
)

// DownloadRegistry is the slice of the download manager the sweeper needs.
type DownloadRegistry interface {
	List(ctx context.Context) ([]storage.DownloadRecord, error)
	Delete(ctx context.Context, id string) error
}

// DeleteExpiredDownloads removes completed downloads older than keepDuration,
// along with their files. Records still in flight are never touched.
func DeleteExpiredDownloads(ctx context.Context, registry DownloadRegistry, keepDuration time.Duration) error {
	logger := logctx.LoggerFromContext(ctx)
	now := time.Now()

	records, err := registry.List(ctx)
	if err != nil {
		return err
	}

	for _, rec := range records {
		if rec.Status != storage.StatusCompleted || rec.CompletedAt == nil {
			continue
		}

		if now.Sub(*rec.CompletedAt) <= keepDuration {
			continue
		}

		if err := registry.Delete(ctx, rec.ID); err != nil {
			logger.Error("failed to delete expired download", "download_id", rec.ID, "err", err)

			return err
		}

		logger.Info("deleted expired download", "download_id", rec.ID, "file", rec.FilePath)
	}

	return nil
}
