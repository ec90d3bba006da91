package memory

import (
	"context"
	"sort"
	"sync"

	"cate-trust-layer/internal/domain"
	"cate-trust-layer/internal/storage"
)

type pointKey struct {
	ts     int64
	source string
}

func keyOf(p *domain.MetricsPoint) pointKey { return pointKey{p.TimestampMs, p.Source} }

func (k pointKey) less(o pointKey) bool {
	if k.ts != o.ts {
		return k.ts < o.ts
	}
	return k.source < o.source
}

// MetricsStore keeps one series per asset ordered by (timestamp, source).
type MetricsStore struct {
	mu     sync.RWMutex
	series map[string][]domain.MetricsPoint
}

// NewMetricsStore creates an empty store.
func NewMetricsStore() *MetricsStore {
	return &MetricsStore{series: make(map[string][]domain.MetricsPoint)}
}

var _ storage.MetricsStore = (*MetricsStore)(nil)

// InsertBulk stores all points or none of them.
func (s *MetricsStore) InsertBulk(_ context.Context, points []*domain.MetricsPoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[string]map[pointKey]struct{})
	for _, p := range points {
		if p == nil || p.AssetID == "" {
			return storage.ErrInvalidInput
		}
		keys := batch[p.AssetID]
		if keys == nil {
			keys = make(map[pointKey]struct{})
			batch[p.AssetID] = keys
		}
		k := keyOf(p)
		if _, dup := keys[k]; dup {
			return storage.ErrDuplicateKey
		}
		if _, found := s.search(p.AssetID, k); found {
			return storage.ErrDuplicateKey
		}
		keys[k] = struct{}{}
	}

	for _, p := range points {
		i, _ := s.search(p.AssetID, keyOf(p))
		series := s.series[p.AssetID]
		series = append(series, domain.MetricsPoint{})
		copy(series[i+1:], series[i:])
		series[i] = *p
		s.series[p.AssetID] = series
	}
	return nil
}

// search returns the insertion index of k and whether it is already stored.
func (s *MetricsStore) search(asset string, k pointKey) (int, bool) {
	series := s.series[asset]
	i := sort.Search(len(series), func(i int) bool { return !keyOf(&series[i]).less(k) })
	return i, i < len(series) && keyOf(&series[i]) == k
}

// GetByTimeRange returns copies of the points with start <= ts <= end.
func (s *MetricsStore) GetByTimeRange(_ context.Context, assetID string, start, end int64) ([]*domain.MetricsPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.series[assetID]
	lo := sort.Search(len(series), func(i int) bool { return series[i].TimestampMs >= start })

	var out []*domain.MetricsPoint
	for i := lo; i < len(series) && series[i].TimestampMs <= end; i++ {
		p := series[i]
		out = append(out, &p)
	}
	return out, nil
}
