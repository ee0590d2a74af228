package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MetadataKey is the single KV key under which the whole download list is
// persisted as a JSON array.
const MetadataKey = "downloads_metadata"

// MetadataStore persists DownloadRecords through a KV store using whole-list
// read-modify-write. Updates for all ids are serialized by an internal mutex;
// at the expected scale of tens of records the O(n) rewrite is acceptable.
type MetadataStore struct {
	kv KV
	mu sync.Mutex
}

func NewMetadataStore(kv KV) *MetadataStore {
	return &MetadataStore{kv: kv}
}

// List returns a snapshot of all records. No ordering is guaranteed.
func (s *MetadataStore) List(ctx context.Context) ([]DownloadRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load(ctx)
}

// Get returns the record for the given id, or ErrNotFound.
func (s *MetadataStore) Get(ctx context.Context, id string) (*DownloadRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	for i := range records {
		if records[i].ID == id {
			rec := records[i]

			return &rec, nil
		}
	}

	return nil, ErrNotFound
}

// Put inserts the record, replacing any existing record with the same id.
func (s *MetadataStore) Put(ctx context.Context, rec *DownloadRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return err
	}

	replaced := false

	for i := range records {
		if records[i].ID == rec.ID {
			records[i] = *rec
			replaced = true

			break
		}
	}

	if !replaced {
		records = append(records, *rec)
	}

	return s.save(ctx, records)
}

// Update applies mutate to the record under the store lock and persists the
// result, making the read-modify-write atomic with respect to other callers.
// Returns ErrNotFound if the id is unknown.
func (s *MetadataStore) Update(ctx context.Context, id string, mutate func(*DownloadRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return err
	}

	for i := range records {
		if records[i].ID == id {
			mutate(&records[i])

			return s.save(ctx, records)
		}
	}

	return ErrNotFound
}

// Delete removes the record for the given id. Unknown ids are a no-op.
func (s *MetadataStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return err
	}

	filtered := records[:0]

	for i := range records {
		if records[i].ID != id {
			filtered = append(filtered, records[i])
		}
	}

	if len(filtered) == len(records) {
		return nil
	}

	return s.save(ctx, filtered)
}

// Clear removes the whole download list.
func (s *MetadataStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(ctx, MetadataKey); err != nil {
		return fmt.Errorf("failed to clear metadata: %w", err)
	}

	return nil
}

func (s *MetadataStore) load(ctx context.Context) ([]DownloadRecord, error) {
	data, err := s.kv.Get(ctx, MetadataKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	if len(data) == 0 {
		return nil, nil
	}

	var records []DownloadRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}

	return records, nil
}

func (s *MetadataStore) save(ctx context.Context, records []DownloadRecord) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	if err := s.kv.Set(ctx, MetadataKey, data); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	return nil
}
