package storage

import (
	"context"

	"cate-trust-layer/internal/domain"
)

// DecisionStore provides access to signed_decisions storage.
// Records are keyed by decision hash and never updated.
type DecisionStore interface {
	// Insert adds a new record. Returns ErrDuplicateKey if the decision hash exists.
	Insert(ctx context.Context, r *domain.DecisionRecord) error

	// GetByHash retrieves a record by decision hash. Returns ErrNotFound if not exists.
	GetByHash(ctx context.Context, hash [32]byte) (*domain.DecisionRecord, error)

	// GetLatest retrieves the newest record for an asset by (timestamp, nonce).
	// Returns ErrNotFound if the asset has no records.
	GetLatest(ctx context.Context, assetID string) (*domain.DecisionRecord, error)

	// ListByAsset retrieves up to limit newest records for an asset, newest first.
	// A non-positive limit returns all records.
	ListByAsset(ctx context.Context, assetID string, limit int) ([]*domain.DecisionRecord, error)

	// ListByTimeRange retrieves records with payload timestamp within [start, end]
	// (inclusive, Unix seconds), ordered by timestamp ASC.
	ListByTimeRange(ctx context.Context, start, end int64) ([]*domain.DecisionRecord, error)
}

// MetricsStore provides access to oracle_metrics storage.
type MetricsStore interface {
	// InsertBulk adds multiple points. Fails entire batch on duplicate (asset_id, timestamp_ms, source).
	InsertBulk(ctx context.Context, points []*domain.MetricsPoint) error

	// GetByTimeRange retrieves points for an asset within [start, end] (inclusive, ms), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, assetID string, start, end int64) ([]*domain.MetricsPoint, error)
}
