package pipeline

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cate-trust-layer/internal/attestation"
	"cate-trust-layer/internal/breaker"
	"cate-trust-layer/internal/decision"
	"cate-trust-layer/internal/domain"
	"cate-trust-layer/internal/history"
	"cate-trust-layer/internal/metrics"
	"cate-trust-layer/internal/storage/memory"
)

const baseTime = int64(1_700_000_000)

type recordingPublisher struct {
	mu   sync.Mutex
	got  []domain.SignedDecision
	fail error
}

func (r *recordingPublisher) Publish(_ context.Context, sd domain.SignedDecision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.got = append(r.got, sd)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

type fixture struct {
	proc      *Processor
	decisions *memory.DecisionStore
	points    *memory.MetricsStore
	publisher *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := func() time.Time { return time.Unix(baseTime, 0) }
	engine, err := attestation.NewEngine(ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize)),
		attestation.WithNonceSource(attestation.NewNonceSourceFrom(1)))
	require.NoError(t, err)

	f := &fixture{
		decisions: memory.NewDecisionStore(),
		points:    memory.NewMetricsStore(),
		publisher: &recordingPublisher{},
	}
	f.proc, err = NewProcessor(Options{
		Calculator:    metrics.NewCalculator(metrics.DefaultConfig(), metrics.WithClock(clock)),
		Params:        decision.DefaultParams(),
		Breaker:       breaker.New(breaker.DefaultConfig(), breaker.WithClock(clock)),
		Engine:        engine,
		History:       history.NewRing(16),
		DecisionStore: f.decisions,
		MetricsStore:  f.points,
		Publisher:     f.publisher,
		Logger:        zerolog.Nop(),
		Now:           clock,
	})
	require.NoError(t, err)
	return f
}

func healthySample(asset string, ts int64) domain.OracleSample {
	return domain.OracleSample{
		AssetID:        asset,
		Price:          100,
		Confidence:     0.1,
		PublishTime:    ts,
		PublisherCount: 10,
		Source:         domain.SourceLive,
	}
}

func hasFactor(d domain.RiskDecision, name string) bool {
	for _, f := range d.Factors {
		if f.Name == name && f.Triggered {
			return true
		}
	}
	return false
}

func TestNewProcessor_RequiresEngine(t *testing.T) {
	_, err := NewProcessor(Options{Params: decision.DefaultParams()})
	assert.Error(t, err)
}

func TestProcess_HealthySampleIsSignedStoredAndPublished(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry, err := f.proc.Process(ctx, healthySample("SOL/USD", baseTime))
	require.NoError(t, err)

	assert.NotEqual(t, domain.ActionBlock, entry.Decision.Action)
	assert.True(t, attestation.Verify(entry.Signed).Valid)
	assert.Equal(t, "SOL/USD", entry.Signed.Payload.AssetID)
	assert.Equal(t, uint8(10), entry.Signed.Payload.PublisherCount)

	latest, ok := f.proc.History().Latest("SOL/USD")
	require.True(t, ok)
	assert.Equal(t, entry.Signed, latest.Signed)

	rec, err := f.decisions.GetByHash(ctx, entry.Signed.DecisionHash)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceLive, rec.Source)

	pts, err := f.points.GetByTimeRange(ctx, "SOL/USD", 0, baseTime*1000)
	require.NoError(t, err)
	assert.Len(t, pts, 1)

	require.Len(t, f.publisher.got, 1)
	assert.Equal(t, entry.Signed, f.publisher.got[0])
}

func TestProcess_InvalidSampleDroppedAndPreviousDecisionRetained(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.proc.Process(ctx, healthySample("SOL/USD", baseTime))
	require.NoError(t, err)

	bad := healthySample("SOL/USD", baseTime+1)
	bad.Price = 0
	_, err = f.proc.Process(ctx, bad)
	require.ErrorIs(t, err, metrics.ErrInvalidSample)

	latest, ok := f.proc.History().Latest("SOL/USD")
	require.True(t, ok)
	assert.Equal(t, first.Signed, latest.Signed)
	assert.Equal(t, 1, f.proc.History().Len())
	assert.Equal(t, 1, f.proc.Breaker().AssetStatus("SOL/USD").ConsecutiveFailures)
}

func TestProcess_StaleSamplesBlockThenTripAssetCircuit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	limit := breaker.DefaultConfig().AssetFailureLimit
	var last history.Entry
	for i := 0; i < limit; i++ {
		s := healthySample("ETH/USD", baseTime-120+int64(i))
		var err error
		last, err = f.proc.Process(ctx, s)
		require.NoError(t, err)
		assert.Equal(t, domain.ActionBlock, last.Decision.Action)
		assert.True(t, last.Signed.Payload.IsBlocked)
		assert.True(t, hasFactor(last.Decision, decision.FactorDataFreshness))
	}

	assert.True(t, hasFactor(last.Decision, decision.FactorAssetCircuit))
	assert.Contains(t, last.Decision.Explanation, decision.FactorAssetCircuit)
	assert.True(t, f.proc.Breaker().AssetStatus("ETH/USD").Blocked)

	// Other assets are unaffected.
	other, err := f.proc.Process(ctx, healthySample("SOL/USD", baseTime))
	require.NoError(t, err)
	assert.NotEqual(t, domain.ActionBlock, other.Decision.Action)
}

func TestProcess_EmergencyStopForcesBlock(t *testing.T) {
	f := newFixture(t)
	f.proc.Breaker().EmergencyStop("operator")

	entry, err := f.proc.Process(context.Background(), healthySample("SOL/USD", baseTime))
	require.NoError(t, err)

	assert.Equal(t, domain.ActionBlock, entry.Decision.Action)
	assert.Equal(t, uint16(0), entry.Signed.Payload.SizeMultiplierBps)
	assert.True(t, hasFactor(entry.Decision, decision.FactorCircuitBreaker))
	assert.Contains(t, entry.Decision.Explanation, "emergency stop")
}

func TestProcess_PublishFailureDoesNotFailSigning(t *testing.T) {
	f := newFixture(t)
	f.publisher.fail = errors.New("broker unavailable")

	entry, err := f.proc.Process(context.Background(), healthySample("SOL/USD", baseTime))
	require.NoError(t, err)
	assert.True(t, attestation.Verify(entry.Signed).Valid)
}

func TestProcess_CachedReEmitDoesNotFailOnDuplicatePoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := healthySample("SOL/USD", baseTime)
	s.Source = domain.SourceCached
	_, err := f.proc.Process(ctx, s)
	require.NoError(t, err)
	second, err := f.proc.Process(ctx, s)
	require.NoError(t, err)

	// CACHED never satisfies the live-oracle requirement.
	assert.Equal(t, domain.ActionBlock, second.Decision.Action)
	assert.True(t, hasFactor(second.Decision, decision.FactorSourceTrust))
	assert.Equal(t, 2, f.proc.History().Len())
}

func TestProcess_ConcurrentAssets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const assets, perAsset = 8, 20
	var wg sync.WaitGroup
	for a := 0; a < assets; a++ {
		wg.Add(1)
		go func(a int) {
			defer wg.Done()
			asset := fmt.Sprintf("ASSET%d", a)
			for i := 0; i < perAsset; i++ {
				_, err := f.proc.Process(ctx, healthySample(asset, baseTime-perAsset+int64(i)))
				assert.NoError(t, err)
			}
		}(a)
	}
	wg.Wait()

	all, err := f.decisions.ListByTimeRange(ctx, 0, baseTime)
	require.NoError(t, err)
	assert.Len(t, all, assets*perAsset)

	// Nonces are unique across assets.
	seen := make(map[uint64]bool)
	for _, r := range all {
		assert.False(t, seen[r.Signed.Payload.Nonce])
		seen[r.Signed.Payload.Nonce] = true
	}
}
