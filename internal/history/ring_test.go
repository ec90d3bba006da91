package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cate-trust-layer/internal/domain"
)

func entry(asset string, ts int64) Entry {
	return Entry{
		Decision: domain.RiskDecision{AssetID: asset, Timestamp: ts},
		Signed:   domain.SignedDecision{Payload: domain.DecisionPayload{AssetID: asset, Timestamp: ts}},
	}
}

func TestRing_FIFOEviction(t *testing.T) {
	r := NewRing(3)
	for ts := int64(1); ts <= 5; ts++ {
		r.Append(entry("SOL/USD", ts))
	}

	assert.Equal(t, 3, r.Len())
	recent := r.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, int64(5), recent[0].Decision.Timestamp)
	assert.Equal(t, int64(4), recent[1].Decision.Timestamp)
	assert.Equal(t, int64(3), recent[2].Decision.Timestamp)
}

func TestRing_RecentLimit(t *testing.T) {
	r := NewRing(10)
	r.Append(entry("A", 1))
	r.Append(entry("B", 2))

	assert.Len(t, r.Recent(1), 1)
	assert.Equal(t, "B", r.Recent(1)[0].Decision.AssetID)
	assert.Len(t, r.Recent(50), 2)
	assert.Empty(t, NewRing(2).Recent(5))
}

func TestRing_LatestSurvivesEviction(t *testing.T) {
	r := NewRing(2)
	r.Append(entry("SOL/USD", 1))
	r.Append(entry("BTC/USD", 2))
	r.Append(entry("BTC/USD", 3))

	e, ok := r.Latest("SOL/USD")
	require.True(t, ok)
	assert.Equal(t, int64(1), e.Decision.Timestamp)

	e, ok = r.Latest("BTC/USD")
	require.True(t, ok)
	assert.Equal(t, int64(3), e.Decision.Timestamp)

	_, ok = r.Latest("ETH/USD")
	assert.False(t, ok)
}

func TestRing_ByAsset(t *testing.T) {
	r := NewRing(10)
	r.Append(entry("A", 1))
	r.Append(entry("B", 2))
	r.Append(entry("A", 3))
	r.Append(entry("A", 4))

	got := r.ByAsset("A", 2)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].Decision.Timestamp)
	assert.Equal(t, int64(4), got[1].Decision.Timestamp)
	assert.Len(t, r.ByAsset("A", 0), 3)
}

func TestNewRing_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, NewRing(0).Capacity())
}
