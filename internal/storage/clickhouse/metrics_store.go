package clickhouse

import (
	"context"
	"fmt"
	"math"

	"cate-trust-layer/internal/domain"
	"cate-trust-layer/internal/storage"
)

const metricsColumns = `asset_id, timestamp_ms, source, price, confidence,
	confidence_ratio, confidence_zscore, volatility_realized, volatility_expected,
	data_freshness_seconds, data_quality_score`

// MetricsStore writes oracle metrics to the oracle_metrics MergeTree table.
type MetricsStore struct {
	conn *Conn
}

// NewMetricsStore returns a store using conn.
func NewMetricsStore(conn *Conn) *MetricsStore {
	return &MetricsStore{conn: conn}
}

var _ storage.MetricsStore = (*MetricsStore)(nil)

type pointKey struct {
	asset  string
	ts     int64
	source string
}

// assetSpan is the timestamp range a batch covers for one asset.
type assetSpan struct{ min, max int64 }

// InsertBulk sends the points as one batch. MergeTree has no unique
// constraint, so keys already stored are looked up before sending.
func (s *MetricsStore) InsertBulk(ctx context.Context, points []*domain.MetricsPoint) error {
	if len(points) == 0 {
		return nil
	}

	keys := make(map[pointKey]struct{}, len(points))
	spans := make(map[string]assetSpan)
	for _, p := range points {
		if p == nil || p.AssetID == "" || p.TimestampMs < 0 {
			return storage.ErrInvalidInput
		}
		k := pointKey{p.AssetID, p.TimestampMs, p.Source}
		if _, dup := keys[k]; dup {
			return storage.ErrDuplicateKey
		}
		keys[k] = struct{}{}

		sp, ok := spans[p.AssetID]
		if !ok {
			sp = assetSpan{min: math.MaxInt64, max: math.MinInt64}
		}
		sp.min = min(sp.min, p.TimestampMs)
		sp.max = max(sp.max, p.TimestampMs)
		spans[p.AssetID] = sp
	}

	for asset, sp := range spans {
		stored, err := s.storedKeys(ctx, asset, sp)
		if err != nil {
			return err
		}
		for _, k := range stored {
			if _, hit := keys[k]; hit {
				return storage.ErrDuplicateKey
			}
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO oracle_metrics ("+metricsColumns+")")
	if err != nil {
		return fmt.Errorf("prepare oracle_metrics batch: %w", err)
	}
	for _, p := range points {
		if err := batch.Append(
			p.AssetID, uint64(p.TimestampMs), p.Source, p.Price, p.Confidence,
			p.ConfidenceRatio, p.ConfidenceZscore, p.VolatilityRealized, p.VolatilityExpected,
			p.DataFreshnessSeconds, p.DataQualityScore,
		); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append oracle_metrics row: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send oracle_metrics batch: %w", err)
	}
	return nil
}

func (s *MetricsStore) storedKeys(ctx context.Context, asset string, sp assetSpan) ([]pointKey, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT timestamp_ms, source FROM oracle_metrics WHERE asset_id = ? AND timestamp_ms BETWEEN ? AND ?`,
		asset, uint64(sp.min), uint64(sp.max))
	if err != nil {
		return nil, fmt.Errorf("look up stored metrics: %w", err)
	}
	defer rows.Close()

	var out []pointKey
	for rows.Next() {
		var (
			ts     uint64
			source string
		)
		if err := rows.Scan(&ts, &source); err != nil {
			return nil, fmt.Errorf("scan stored metrics key: %w", err)
		}
		out = append(out, pointKey{asset, int64(ts), source})
	}
	return out, rows.Err()
}

// GetByTimeRange returns the points of assetID with start <= ts <= end in
// (timestamp, source) order.
func (s *MetricsStore) GetByTimeRange(ctx context.Context, assetID string, start, end int64) ([]*domain.MetricsPoint, error) {
	start = max(start, 0)
	if end < start {
		return nil, nil
	}

	rows, err := s.conn.Query(ctx, "SELECT "+metricsColumns+` FROM oracle_metrics
		WHERE asset_id = ? AND timestamp_ms BETWEEN ? AND ?
		ORDER BY timestamp_ms, source`,
		assetID, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query oracle_metrics: %w", err)
	}
	defer rows.Close()

	var out []*domain.MetricsPoint
	for rows.Next() {
		var (
			p  domain.MetricsPoint
			ts uint64
		)
		if err := rows.Scan(
			&p.AssetID, &ts, &p.Source, &p.Price, &p.Confidence,
			&p.ConfidenceRatio, &p.ConfidenceZscore, &p.VolatilityRealized, &p.VolatilityExpected,
			&p.DataFreshnessSeconds, &p.DataQualityScore,
		); err != nil {
			return nil, fmt.Errorf("scan oracle_metrics row: %w", err)
		}
		p.TimestampMs = int64(ts)
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate oracle_metrics rows: %w", err)
	}
	return out, nil
}
