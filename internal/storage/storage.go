package storage

import (
	"context"
	"errors"
	"time"

	"github.com/italolelis/xtream_offline/internal/xtream"
)

// ErrNotFound is returned when a download id has no record.
var ErrNotFound = errors.New("download record not found")

// Status is the lifecycle state of a download.
type Status string

const (
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// Resumable reports whether a record in this status may be resumed.
func (s Status) Resumable() bool {
	return s == StatusPaused || s == StatusFailed
}

// DownloadRecord represents one user-initiated download. The JSON field names
// are the persisted wire shape and must stay stable across releases.
type DownloadRecord struct {
	ID                 string           `json:"id"`
	StreamID           int              `json:"streamId"`
	Title              string           `json:"title"`
	PosterURL          string           `json:"posterUrl"`
	MediaType          xtream.MediaType `json:"mediaType"`
	ContainerExtension string           `json:"containerExtension"`
	FilePath           string           `json:"filePath"`
	TotalSize          int64            `json:"totalSize"`
	DownloadedSize     int64            `json:"downloadedSize"`
	Status             Status           `json:"status"`
	CreatedAt          time.Time        `json:"createdAt"`
	CompletedAt        *time.Time       `json:"completedAt,omitempty"`
	ErrorDetail        string           `json:"errorDetail,omitempty"`
}

// KV is the persistent key-value store the metadata layer is built on.
// Get returns nil with no error when the key is absent.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}
