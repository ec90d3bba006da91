package memory

import (
	"context"
	"sort"
	"sync"

	"cate-trust-layer/internal/domain"
	"cate-trust-layer/internal/storage"
)

// DecisionStore is an in-memory implementation of storage.DecisionStore.
type DecisionStore struct {
	mu   sync.RWMutex
	data map[[32]byte]*domain.DecisionRecord // keyed by decision hash
}

// NewDecisionStore creates a new in-memory decision store.
func NewDecisionStore() *DecisionStore {
	return &DecisionStore{
		data: make(map[[32]byte]*domain.DecisionRecord),
	}
}

// Insert adds a new record. Returns ErrDuplicateKey if the decision hash exists.
func (s *DecisionStore) Insert(_ context.Context, r *domain.DecisionRecord) error {
	if r == nil || r.AssetID() == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.Signed.DecisionHash]; exists {
		return storage.ErrDuplicateKey
	}

	recordCopy := *r
	s.data[r.Signed.DecisionHash] = &recordCopy
	return nil
}

// GetByHash retrieves a record by decision hash. Returns ErrNotFound if not exists.
func (s *DecisionStore) GetByHash(_ context.Context, hash [32]byte) (*domain.DecisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[hash]
	if !ok {
		return nil, storage.ErrNotFound
	}
	recordCopy := *r
	return &recordCopy, nil
}

// GetLatest retrieves the newest record for an asset. Returns ErrNotFound if none.
func (s *DecisionStore) GetLatest(ctx context.Context, assetID string) (*domain.DecisionRecord, error) {
	records, err := s.ListByAsset(ctx, assetID, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, storage.ErrNotFound
	}
	return records[0], nil
}

// ListByAsset retrieves up to limit newest records for an asset, newest first.
func (s *DecisionStore) ListByAsset(_ context.Context, assetID string, limit int) ([]*domain.DecisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.DecisionRecord
	for _, r := range s.data {
		if r.AssetID() == assetID {
			recordCopy := *r
			result = append(result, &recordCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return newer(result[i], result[j])
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ListByTimeRange retrieves records within [start, end] (inclusive), ordered by timestamp ASC.
func (s *DecisionStore) ListByTimeRange(_ context.Context, start, end int64) ([]*domain.DecisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.DecisionRecord
	for _, r := range s.data {
		if ts := r.Timestamp(); ts >= start && ts <= end {
			recordCopy := *r
			result = append(result, &recordCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return newer(result[j], result[i])
	})

	return result, nil
}

// newer orders records by (timestamp, nonce) descending.
func newer(a, b *domain.DecisionRecord) bool {
	if a.Timestamp() != b.Timestamp() {
		return a.Timestamp() > b.Timestamp()
	}
	return a.Signed.Payload.Nonce > b.Signed.Payload.Nonce
}

var _ storage.DecisionStore = (*DecisionStore)(nil)
