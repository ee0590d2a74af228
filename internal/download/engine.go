package download

import (
	"context"
	"errors"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/xtream_offline/internal/logctx"
	"github.com/italolelis/xtream_offline/internal/storage"
	"github.com/italolelis/xtream_offline/internal/telemetry"
	"github.com/italolelis/xtream_offline/internal/transfer"
)

// DefaultChunkSize is the byte-range window used per fetch when none is
// configured. It bounds both the memory held per download (a whole chunk is
// buffered before the write) and how much progress a crash can lose.
const DefaultChunkSize = 10 * 1024 * 1024

// MetadataStore is the slice of the storage layer the download components
// depend on.
type MetadataStore interface {
	List(ctx context.Context) ([]storage.DownloadRecord, error)
	Get(ctx context.Context, id string) (*storage.DownloadRecord, error)
	Put(ctx context.Context, rec *storage.DownloadRecord) error
	Update(ctx context.Context, id string, mutate func(*storage.DownloadRecord)) error
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// Outcome classifies how one transfer loop ended.
type Outcome int

const (
	// OutcomeCompleted means all bytes were received and the record is completed.
	OutcomeCompleted Outcome = iota
	// OutcomeStopped means cancellation was observed; the record was not touched here.
	OutcomeStopped
	// OutcomeFailed means an unrecoverable error was persisted on the record.
	OutcomeFailed
)

// Engine executes one download's byte-range fetch loop, persisting progress
// after every chunk so a process restart loses at most one chunk.
type Engine struct {
	store     MetadataStore
	files     FileStore
	fetcher   transfer.RangeFetcher
	chunkSize int64
	telemetry *telemetry.Telemetry
}

func NewEngine(store MetadataStore, files FileStore, fetcher transfer.RangeFetcher, chunkSize int64, tel *telemetry.Telemetry) *Engine {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	return &Engine{
		store:     store,
		files:     files,
		fetcher:   fetcher,
		chunkSize: chunkSize,
		telemetry: tel,
	}
}

// Run transfers the download's bytes starting at offset. Cancellation is
// cooperative: it is checked between chunks only, so the latency to stop is
// bounded by one chunk's fetch plus write. On cancellation the record is left
// exactly as the manager set it.
func (e *Engine) Run(ctx context.Context, id, url string, offset int64) Outcome {
	logger := logctx.LoggerFromContext(ctx).With("download_id", id)

	rec, err := e.store.Get(ctx, id)
	if err != nil {
		// The record can be gone if a cancel raced the spawn. Nothing to do.
		logger.Warn("record vanished before transfer started", "err", err)

		return OutcomeStopped
	}

	totalSize := rec.TotalSize
	filePath := rec.FilePath
	currentOffset := offset
	firstChunk := offset == 0

	// A fresh start must never append to stale data from a prior attempt.
	if offset == 0 {
		exists, err := e.files.Exists(filePath)
		if err != nil {
			return e.fail(ctx, id, err)
		}

		if exists {
			if err := e.files.Remove(filePath); err != nil {
				return e.fail(ctx, id, err)
			}
		}
	}

	logger.Info("transfer loop starting", "offset", currentOffset, "chunk_size", humanize.Bytes(uint64(e.chunkSize)))

	for {
		if ctx.Err() != nil {
			logger.Debug("transfer stopped at checkpoint", "offset", currentOffset)

			return OutcomeStopped
		}

		if totalSize > 0 && currentOffset >= totalSize {
			break
		}

		end := currentOffset + e.chunkSize - 1
		if totalSize > 0 && end > totalSize-1 {
			end = totalSize - 1
		}

		requested := end - currentOffset + 1
		chunkStart := time.Now()

		result, err := e.fetcher.FetchRange(ctx, url, currentOffset, end)
		if err != nil {
			if ctx.Err() != nil {
				// The cancel signal aborted the in-flight request; this is a
				// pause or delete, not a transport failure.
				return OutcomeStopped
			}

			return e.fail(ctx, id, err)
		}

		// A cancel may have landed while the fetch was in flight. Writing now
		// would resurrect a file the cancel already deleted.
		if ctx.Err() != nil {
			return OutcomeStopped
		}

		if totalSize == 0 && result.TotalSize > 0 {
			totalSize = result.TotalSize

			if err := e.store.Update(ctx, id, func(r *storage.DownloadRecord) {
				r.TotalSize = totalSize
			}); err != nil {
				return e.fail(ctx, id, err)
			}
		}

		if len(result.Data) == 0 {
			if totalSize > 0 && currentOffset < totalSize {
				return e.fail(ctx, id, &transfer.NetworkError{
					Operation:  "fetch_range",
					APIMessage: "empty chunk before end of resource",
				})
			}

			break
		}

		if firstChunk {
			err = e.files.WriteNew(filePath, result.Data)
		} else {
			err = e.files.Append(filePath, result.Data)
		}

		if err != nil {
			return e.fail(ctx, id, err)
		}

		firstChunk = false
		currentOffset += int64(len(result.Data))

		if err := e.store.Update(ctx, id, func(r *storage.DownloadRecord) {
			r.DownloadedSize = currentOffset
		}); err != nil {
			// A cancel deleted the record between the write and this update;
			// the chunk just written is an orphan and must go with it.
			if errors.Is(err, storage.ErrNotFound) {
				if rmErr := e.files.Remove(filePath); rmErr != nil {
					logger.Warn("failed to remove orphan file", "err", rmErr)
				}

				return OutcomeStopped
			}

			return e.fail(ctx, id, err)
		}

		e.telemetry.RecordChunk(int64(len(result.Data)), time.Since(chunkStart))

		logger.Debug("chunk persisted",
			"offset", currentOffset,
			"chunk", humanize.Bytes(uint64(len(result.Data))),
			"total", humanize.Bytes(uint64(totalSize)),
		)

		// Without an authoritative size, a short chunk is the end of the
		// stream.
		if totalSize == 0 && int64(len(result.Data)) < requested {
			break
		}
	}

	completedAt := time.Now().UTC()

	if err := e.store.Update(ctx, id, func(r *storage.DownloadRecord) {
		r.Status = storage.StatusCompleted
		r.CompletedAt = &completedAt
		r.DownloadedSize = currentOffset

		if totalSize > 0 {
			r.TotalSize = totalSize
		} else {
			r.TotalSize = currentOffset
		}
	}); err != nil {
		return e.fail(ctx, id, err)
	}

	logger.Info("download completed", "size", humanize.Bytes(uint64(currentOffset)))

	return OutcomeCompleted
}

// fail persists the error on the record unless cancellation already won, in
// which case the manager owns the status and the loop just stops.
func (e *Engine) fail(ctx context.Context, id string, cause error) Outcome {
	if ctx.Err() != nil {
		return OutcomeStopped
	}

	logger := logctx.LoggerFromContext(ctx).With("download_id", id)
	logger.Error("download failed", "err", cause)

	if err := e.store.Update(ctx, id, func(r *storage.DownloadRecord) {
		r.Status = storage.StatusFailed
		r.ErrorDetail = cause.Error()
	}); err != nil {
		logger.Error("failed to persist failure", "err", err)
	}

	return OutcomeFailed
}
