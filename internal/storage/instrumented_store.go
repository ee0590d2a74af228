package storage

import (
	"context"

	"github.com/italolelis/xtream_offline/internal/telemetry"
)

// InstrumentedMetadataStore wraps MetadataStore with telemetry.
type InstrumentedMetadataStore struct {
	store     *MetadataStore
	telemetry *telemetry.Telemetry
}

// NewInstrumentedMetadataStore creates a new instrumented metadata store.
func NewInstrumentedMetadataStore(kv KV, tel *telemetry.Telemetry) *InstrumentedMetadataStore {
	return &InstrumentedMetadataStore{
		store:     NewMetadataStore(kv),
		telemetry: tel,
	}
}

// List retrieves all records with telemetry.
func (s *InstrumentedMetadataStore) List(ctx context.Context) ([]DownloadRecord, error) {
	var result []DownloadRecord

	err := s.telemetry.InstrumentStoreOperation(ctx, "list", func(ctx context.Context) error {
		var opErr error
		result, opErr = s.store.List(ctx)

		return opErr
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Get retrieves one record with telemetry.
func (s *InstrumentedMetadataStore) Get(ctx context.Context, id string) (*DownloadRecord, error) {
	var result *DownloadRecord

	err := s.telemetry.InstrumentStoreOperation(ctx, "get", func(ctx context.Context) error {
		var opErr error
		result, opErr = s.store.Get(ctx, id)

		return opErr
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Put inserts or replaces a record with telemetry.
func (s *InstrumentedMetadataStore) Put(ctx context.Context, rec *DownloadRecord) error {
	return s.telemetry.InstrumentStoreOperation(ctx, "put", func(ctx context.Context) error {
		return s.store.Put(ctx, rec)
	})
}

// Update atomically mutates a record with telemetry.
func (s *InstrumentedMetadataStore) Update(ctx context.Context, id string, mutate func(*DownloadRecord)) error {
	return s.telemetry.InstrumentStoreOperation(ctx, "update", func(ctx context.Context) error {
		return s.store.Update(ctx, id, mutate)
	})
}

// Delete removes a record with telemetry.
func (s *InstrumentedMetadataStore) Delete(ctx context.Context, id string) error {
	return s.telemetry.InstrumentStoreOperation(ctx, "delete", func(ctx context.Context) error {
		return s.store.Delete(ctx, id)
	})
}

// Clear removes the whole download list with telemetry.
func (s *InstrumentedMetadataStore) Clear(ctx context.Context) error {
	return s.telemetry.InstrumentStoreOperation(ctx, "clear", func(ctx context.Context) error {
		return s.store.Clear(ctx)
	})
}
