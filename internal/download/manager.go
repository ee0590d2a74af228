package download

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/italolelis/xtream_offline/internal/logctx"
	"github.com/italolelis/xtream_offline/internal/storage"
	"github.com/italolelis/xtream_offline/internal/telemetry"
	"github.com/italolelis/xtream_offline/internal/transfer"
	"github.com/italolelis/xtream_offline/internal/xtream"
	"golang.org/x/sync/semaphore"
)

// StartRequest carries everything needed to begin a new download.
type StartRequest struct {
	StreamID           int
	Title              string
	PosterURL          string
	MediaType          xtream.MediaType
	ContainerExtension string
}

// handle is the process-local cancellation handle for one in-flight transfer.
type handle struct {
	cancel context.CancelFunc
}

// Manager owns the set of in-flight transfers and enforces the download state
// machine. All control operations are serialized by one mutex; the transfer
// loops themselves run concurrently, bounded by a weighted semaphore.
type Manager struct {
	store       MetadataStore
	files       FileStore
	urls        *xtream.URLBuilder
	engine      *Engine
	downloadDir string
	sem         *semaphore.Weighted
	telemetry   *telemetry.Telemetry

	mu     sync.Mutex
	active map[string]*handle
	closed bool
	wg     sync.WaitGroup

	// Event channels for completed and failed transfer loops. Sends never
	// block: with no consumer, events are dropped.
	OnDownloadFinished chan *storage.DownloadRecord
	OnDownloadFailed   chan *storage.DownloadRecord
}

func NewManager(
	store MetadataStore,
	files FileStore,
	urls *xtream.URLBuilder,
	fetcher transfer.RangeFetcher,
	downloadDir string,
	chunkSize int64,
	maxParallel int64,
	tel *telemetry.Telemetry,
) *Manager {
	if maxParallel <= 0 {
		maxParallel = 3
	}

	return &Manager{
		store:       store,
		files:       files,
		urls:        urls,
		engine:      NewEngine(store, files, fetcher, chunkSize, tel),
		downloadDir: downloadDir,
		sem:         semaphore.NewWeighted(maxParallel),
		telemetry:   tel,
		active:      make(map[string]*handle),

		OnDownloadFinished: make(chan *storage.DownloadRecord, 16),
		OnDownloadFailed:   make(chan *storage.DownloadRecord, 16),
	}
}

// Close cancels every in-flight transfer, waits for the loops to wind down,
// and then releases the event channels. Control operations after Close are
// no-ops.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true

	for id, h := range m.active {
		h.cancel()
		delete(m.active, id)
	}
	m.mu.Unlock()

	m.wg.Wait()

	close(m.OnDownloadFinished)
	close(m.OnDownloadFailed)
}

// Start creates a fresh record and spawns its transfer loop. It returns as
// soon as the loop is scheduled; progress is observed through List/Get.
func (m *Manager) Start(ctx context.Context, req StartRequest) (string, error) {
	if req.MediaType == "" {
		req.MediaType = xtream.MediaTypeMovie
	}

	if req.MediaType != xtream.MediaTypeMovie && req.MediaType != xtream.MediaTypeSeries {
		return "", fmt.Errorf("media type %q is not downloadable", req.MediaType)
	}

	if req.ContainerExtension == "" {
		req.ContainerExtension = "mp4"
	}

	url, err := m.urls.Build(ctx, req.StreamID, req.MediaType, req.ContainerExtension)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	id := fmt.Sprintf("download_%d_%d", req.StreamID, now.UnixMilli())

	rec := &storage.DownloadRecord{
		ID:                 id,
		StreamID:           req.StreamID,
		Title:              req.Title,
		PosterURL:          req.PosterURL,
		MediaType:          req.MediaType,
		ContainerExtension: req.ContainerExtension,
		FilePath:           filepath.Join(m.downloadDir, destFileName(req.Title, req.StreamID, req.ContainerExtension)),
		Status:             storage.StatusDownloading,
		CreatedAt:          now,
	}

	if err := m.store.Put(ctx, rec); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.spawnLocked(ctx, id, url, 0)

	return id, nil
}

// Pause signals the transfer loop to stop at its next checkpoint. It returns
// once the signal is issued; the loop itself winds down eventually. Pausing a
// record that is not downloading is a no-op; an unknown id is an error.
func (m *Manager) Pause(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.active[id]
	if !ok {
		if _, err := m.store.Get(ctx, id); err != nil {
			return err
		}

		return nil
	}

	// Mark paused before signalling so the loop never observes a cancelled
	// context with a still-downloading record.
	if err := m.store.Update(ctx, id, func(r *storage.DownloadRecord) {
		if r.Status == storage.StatusDownloading {
			r.Status = storage.StatusPaused
		}
	}); err != nil {
		return err
	}

	h.cancel()
	delete(m.active, id)

	return nil
}

// Resume restarts a paused or failed download from its persisted offset. The
// destination file is appended to, never truncated.
func (m *Manager) Resume(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, running := m.active[id]; running {
		return &InvalidStateError{ID: id, Status: storage.StatusDownloading, Op: "resume"}
	}

	rec, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if !rec.Status.Resumable() {
		return &InvalidStateError{ID: id, Status: rec.Status, Op: "resume"}
	}

	url, err := m.urls.Build(ctx, rec.StreamID, rec.MediaType, rec.ContainerExtension)
	if err != nil {
		return err
	}

	if err := m.store.Update(ctx, id, func(r *storage.DownloadRecord) {
		r.Status = storage.StatusDownloading
		r.ErrorDetail = ""
	}); err != nil {
		return err
	}

	m.spawnLocked(ctx, id, url, rec.DownloadedSize)

	return nil
}

// Cancel stops the transfer if active, deletes the partial file, and removes
// the record. Unknown ids are a no-op; Cancel is idempotent.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.cancelLocked(ctx, id)
}

// Delete is an alias for Cancel; a download is removed the same way whether
// it is in flight or done.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.Cancel(ctx, id)
}

// List returns a snapshot of all records sorted by creation time descending.
func (m *Manager) List(ctx context.Context) ([]storage.DownloadRecord, error) {
	records, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	return records, nil
}

// Get returns the record for the given id, or storage.ErrNotFound.
func (m *Manager) Get(ctx context.Context, id string) (*storage.DownloadRecord, error) {
	return m.store.Get(ctx, id)
}

// TotalDownloadedSize sums the sizes of all completed downloads.
func (m *Manager) TotalDownloadedSize(ctx context.Context) (int64, error) {
	records, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}

	var total int64

	for i := range records {
		if records[i].Status == storage.StatusCompleted {
			total += records[i].TotalSize
		}
	}

	return total, nil
}

// ClearAll cancels every download, removes all files, and wipes the metadata.
func (m *Manager) ClearAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	records, err := m.store.List(ctx)
	if err != nil {
		return err
	}

	for i := range records {
		if err := m.cancelLocked(ctx, records[i].ID); err != nil {
			return err
		}
	}

	return m.store.Clear(ctx)
}

func (m *Manager) cancelLocked(ctx context.Context, id string) error {
	if h, ok := m.active[id]; ok {
		h.cancel()
		delete(m.active, id)
	}

	rec, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}

		return err
	}

	exists, err := m.files.Exists(rec.FilePath)
	if err != nil {
		return err
	}

	if exists {
		if err := m.files.Remove(rec.FilePath); err != nil {
			return err
		}
	}

	return m.store.Delete(ctx, id)
}

// spawnLocked registers the cancellation handle and launches the transfer
// loop. The caller must hold m.mu.
func (m *Manager) spawnLocked(ctx context.Context, id, url string, offset int64) {
	if m.closed {
		return
	}

	// The loop must outlive the caller's request context, but keeps its
	// values (logger, trace) for observability.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	h := &handle{cancel: cancel}
	m.active[id] = h

	m.wg.Add(1)

	go m.run(runCtx, h, id, url, offset)
}

func (m *Manager) run(ctx context.Context, h *handle, id, url string, offset int64) {
	defer m.wg.Done()

	logger := logctx.LoggerFromContext(ctx).With("download_id", id)

	// Global concurrency limit. Records queued here stay "downloading";
	// cancellation is still honored while waiting for a slot.
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer m.sem.Release(1)

	m.telemetry.IncrementActiveDownloads()
	defer m.telemetry.DecrementActiveDownloads()

	outcome := m.engine.Run(ctx, id, url, offset)

	m.drop(id, h)

	switch outcome {
	case OutcomeCompleted:
		m.telemetry.RecordDownload("completed")
		m.emit(ctx, id, m.OnDownloadFinished)
	case OutcomeFailed:
		m.telemetry.RecordDownload("failed")
		m.emit(ctx, id, m.OnDownloadFailed)
	case OutcomeStopped:
		logger.Debug("transfer loop stopped")
	}
}

// drop removes the handle only if it is still the one this loop registered;
// a pause/cancel may already have removed it, and a resume may have installed
// a fresh one.
func (m *Manager) drop(id string, h *handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.active[id]; ok && current == h {
		delete(m.active, id)
	}
}

func (m *Manager) emit(ctx context.Context, id string, ch chan *storage.DownloadRecord) {
	rec, err := m.store.Get(ctx, id)
	if err != nil {
		return
	}

	select {
	case ch <- rec:
	default:
	}
}

// destFileName builds the target file name: non-alphanumerics in the title
// collapse to underscores, suffixed with the stream id.
func destFileName(title string, streamID int, ext string) string {
	var b strings.Builder

	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	return fmt.Sprintf("%s_%d.%s", b.String(), streamID, ext)
}
