package decision

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cate-trust-layer/internal/domain"
)

func healthyMetrics() domain.OracleMetrics {
	return domain.OracleMetrics{
		AssetID:              "SOL/USD",
		Price:                100,
		Confidence:           0.2,
		ConfidenceRatio:      0.2,
		ConfidenceZscore:     0,
		VolatilityRealized:   10,
		VolatilityExpected:   0.2 * math.Sqrt(365*24),
		DataFreshnessSeconds: 1,
		DataQualityScore:     90,
		Timestamp:            1_700_000_000,
	}
}

func findFactor(t *testing.T, d domain.RiskDecision, name string) domain.RiskFactor {
	t.Helper()
	for _, f := range d.Factors {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("factor %q not found", name)
	return domain.RiskFactor{}
}

func TestEvaluate_HealthyAllow(t *testing.T) {
	d := Evaluate(healthyMetrics(), domain.SourceLive, DefaultParams())

	assert.Equal(t, domain.ActionAllow, d.Action)
	assert.GreaterOrEqual(t, d.SizeMultiplier, 0.95)
	assert.Empty(t, d.TriggeredFactors())
	assert.Len(t, d.Factors, 7)
	// 50 - (5+5+8+5+7+0+5)
	assert.InDelta(t, 15.0, d.RiskScore, 1e-9)
	assert.Contains(t, d.Explanation, "all factors within thresholds")
}

func TestEvaluate_WideConfidenceBlocks(t *testing.T) {
	m := healthyMetrics()
	m.Confidence = 4
	m.ConfidenceRatio = 4

	d := Evaluate(m, domain.SourceLive, DefaultParams())

	assert.Equal(t, domain.ActionBlock, d.Action)
	assert.Equal(t, 0.0, d.SizeMultiplier)
	f := findFactor(t, d, FactorConfidenceRatio)
	assert.True(t, f.Triggered)
	assert.Equal(t, 3.0, f.Threshold)
	assert.Contains(t, d.Explanation, "TRIGGERED Confidence Ratio")
	assert.Contains(t, d.Explanation, "threshold 3.0000")
}

func TestEvaluate_StaleDataBlocks(t *testing.T) {
	m := healthyMetrics()
	m.DataFreshnessSeconds = 120

	d := Evaluate(m, domain.SourceLive, DefaultParams())

	assert.Equal(t, domain.ActionBlock, d.Action)
	assert.True(t, findFactor(t, d, FactorDataFreshness).Triggered)
}

func TestEvaluate_ModerateConfidenceScales(t *testing.T) {
	m := healthyMetrics()
	m.ConfidenceRatio = 2.0

	d := Evaluate(m, domain.SourceLive, DefaultParams())

	assert.Equal(t, domain.ActionScale, d.Action)
	// 1 - (2-1)/(3-1)
	assert.InDelta(t, 0.5, d.SizeMultiplier, 1e-9)
	f := findFactor(t, d, FactorConfidenceRatio)
	assert.False(t, f.Triggered)
	assert.Equal(t, domain.SeverityWarning, f.Severity)
	assert.Contains(t, d.Explanation, "WARNING Confidence Ratio")
}

func TestEvaluate_ScaleDownsCompound(t *testing.T) {
	m := healthyMetrics()
	m.ConfidenceRatio = 2.0    // 0.5
	m.VolatilityRealized = 75  // 1 - 25/50 = 0.5
	m.ConfidenceZscore = -2.25 // 1 - 0.75/1.5 = 0.5
	m.VolatilityExpected = 2.0 * math.Sqrt(365*24)

	d := Evaluate(m, domain.SourceLive, DefaultParams())

	assert.Equal(t, domain.ActionScale, d.Action)
	assert.InDelta(t, 0.125, d.SizeMultiplier, 1e-9)
}

func TestEvaluate_ScaleFloor(t *testing.T) {
	m := healthyMetrics()
	m.ConfidenceRatio = 2.99

	d := Evaluate(m, domain.SourceLive, DefaultParams())

	assert.Equal(t, domain.ActionScale, d.Action)
	assert.InDelta(t, 0.1, d.SizeMultiplier, 1e-9)
}

func TestEvaluate_ZscoreBlocks(t *testing.T) {
	m := healthyMetrics()
	m.ConfidenceZscore = 3.5

	d := Evaluate(m, domain.SourceLive, DefaultParams())

	assert.Equal(t, domain.ActionBlock, d.Action)
	assert.True(t, findFactor(t, d, FactorConfidenceZscore).Triggered)
}

func TestEvaluate_LowQualityBlocks(t *testing.T) {
	m := healthyMetrics()
	m.DataQualityScore = 30

	d := Evaluate(m, domain.SourceLive, DefaultParams())

	assert.Equal(t, domain.ActionBlock, d.Action)
	assert.True(t, findFactor(t, d, FactorDataQuality).Triggered)
}

func TestEvaluate_SourceTrust(t *testing.T) {
	p := DefaultParams()

	d := Evaluate(healthyMetrics(), domain.SourceFallback, p)
	assert.Equal(t, domain.ActionBlock, d.Action)
	assert.True(t, findFactor(t, d, FactorSourceTrust).Triggered)

	p.RequireLiveOracle = false
	d = Evaluate(healthyMetrics(), domain.SourceCached, p)
	assert.NotEqual(t, domain.ActionBlock, d.Action)
	assert.Equal(t, domain.SeverityWarning, findFactor(t, d, FactorSourceTrust).Severity)
}

func TestSpikeFactor_RequiresElevatedConfidence(t *testing.T) {
	p := DefaultParams()

	m := healthyMetrics()
	m.VolatilityRealized = 80
	m.VolatilityExpected = 20 // spike ratio 4 > 3

	f := spikeFactor(m, p)
	assert.False(t, f.Triggered, "spike alone must not trigger")
	assert.Equal(t, domain.SeverityWarning, f.Severity)

	m.ConfidenceRatio = 1.5
	f = spikeFactor(m, p)
	assert.True(t, f.Triggered)
	assert.InDelta(t, 4.0, f.Value, 1e-9)
}

func TestEvaluate_Monotonicity(t *testing.T) {
	p := DefaultParams()

	vary := []struct {
		name  string
		apply func(m *domain.OracleMetrics, v float64)
		max   float64
		step  float64
	}{
		{"confidence ratio", func(m *domain.OracleMetrics, v float64) { m.ConfidenceRatio = v }, 5, 0.05},
		{"volatility", func(m *domain.OracleMetrics, v float64) { m.VolatilityRealized = v }, 150, 1},
		{"staleness", func(m *domain.OracleMetrics, v float64) { m.DataFreshnessSeconds = int64(v) }, 120, 1},
	}

	for _, tt := range vary {
		t.Run(tt.name, func(t *testing.T) {
			prev := math.Inf(1)
			for v := 0.0; v <= tt.max; v += tt.step {
				m := healthyMetrics()
				tt.apply(&m, v)
				d := Evaluate(m, domain.SourceLive, p)
				require.LessOrEqual(t, d.SizeMultiplier, prev, "multiplier increased at %v", v)
				prev = d.SizeMultiplier
			}
		})
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	m := healthyMetrics()
	m.ConfidenceRatio = 1.7
	m.VolatilityRealized = 63

	e := NewEvaluator(DefaultParams())
	a := e.Evaluate(m, domain.SourceLive)
	b := e.Evaluate(m, domain.SourceLive)

	assert.Equal(t, a, b)
}

func TestEvaluate_BoundsHold(t *testing.T) {
	p := DefaultParams()
	for ratio := 0.0; ratio < 6; ratio += 0.5 {
		for vol := 0.0; vol < 200; vol += 25 {
			m := healthyMetrics()
			m.ConfidenceRatio = ratio
			m.VolatilityRealized = vol
			d := Evaluate(m, domain.SourceLive, p)

			assert.GreaterOrEqual(t, d.RiskScore, 0.0)
			assert.LessOrEqual(t, d.RiskScore, 100.0)
			assert.GreaterOrEqual(t, d.SizeMultiplier, 0.0)
			assert.LessOrEqual(t, d.SizeMultiplier, 1.0)
			if d.Action == domain.ActionBlock {
				assert.Equal(t, 0.0, d.SizeMultiplier)
			}
		}
	}
}

func TestForceBlock(t *testing.T) {
	d := Evaluate(healthyMetrics(), domain.SourceLive, DefaultParams())

	blocked := ForceBlock(d, FactorCircuitBreaker, "circuit open: 5 consecutive failures")

	assert.Equal(t, domain.ActionBlock, blocked.Action)
	assert.Equal(t, 0.0, blocked.SizeMultiplier)
	assert.Len(t, blocked.Factors, len(d.Factors)+1)
	assert.True(t, findFactor(t, blocked, FactorCircuitBreaker).Triggered)
	assert.Contains(t, blocked.Explanation, "circuit open")
	// original untouched
	assert.Equal(t, domain.ActionAllow, d.Action)
	assert.Len(t, d.Factors, 7)
}

func TestRenderMarkdown(t *testing.T) {
	m := healthyMetrics()
	m.ConfidenceRatio = 4
	d := Evaluate(m, domain.SourceLive, DefaultParams())

	md := RenderMarkdown(&d)

	assert.True(t, strings.HasPrefix(md, "# Risk Decision: SOL/USD"))
	assert.Contains(t, md, "## Action: BLOCK")
	assert.Contains(t, md, "| 1 | Confidence Ratio |")
	assert.Contains(t, md, "Decision is BLOCK due to:")
}

func TestParamsValidate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())

	p := DefaultParams()
	p.MaxConfidenceRatioBlock = 0.5
	assert.Error(t, p.Validate())

	p = DefaultParams()
	p.ScaleFloor = 2
	assert.Error(t, p.Validate())
}
