package decision

import (
	"math"

	"cate-trust-layer/internal/domain"
)

// Evaluator evaluates risk factors against fixed thresholds.
// Evaluation is a pure function of (metrics, source, params).
type Evaluator struct {
	params Params
}

// NewEvaluator creates a new risk evaluator.
func NewEvaluator(params Params) *Evaluator {
	return &Evaluator{params: params}
}

// Params returns the evaluator thresholds.
func (e *Evaluator) Params() Params {
	return e.params
}

// Evaluate produces a RiskDecision from derived metrics.
// BLOCK if ANY factor is triggered, otherwise SCALE or ALLOW by multiplier.
func (e *Evaluator) Evaluate(m domain.OracleMetrics, source domain.SourceTag) domain.RiskDecision {
	return Evaluate(m, source, e.params)
}

// Evaluate is the stateless form of Evaluator.Evaluate.
func Evaluate(m domain.OracleMetrics, source domain.SourceTag, p Params) domain.RiskDecision {
	factors := []domain.RiskFactor{
		confidenceRatioFactor(m, p),
		zscoreFactor(m, p),
		freshnessFactor(m, p),
		volatilityFactor(m, p),
		qualityFactor(m, p),
		spikeFactor(m, p),
		sourceFactor(source, p),
	}

	d := domain.RiskDecision{
		AssetID:   m.AssetID,
		Factors:   factors,
		RiskScore: riskScore(factors),
		Timestamp: m.Timestamp,
		Source:    source,
		Metrics:   m,
	}

	if anyTriggered(factors) {
		d.Action = domain.ActionBlock
		d.SizeMultiplier = 0
	} else {
		d.SizeMultiplier = sizeMultiplier(m, p)
		if d.SizeMultiplier < p.AllowThreshold {
			d.Action = domain.ActionScale
		} else {
			d.Action = domain.ActionAllow
		}
	}

	d.Explanation = Explain(&d)
	return d
}

// riskScore = clamp(50 - sum(impact), 0, 100).
func riskScore(factors []domain.RiskFactor) float64 {
	sum := 0.0
	for _, f := range factors {
		sum += f.Impact
	}
	return clamp(BaseRiskScore-sum, 0, 100)
}

func anyTriggered(factors []domain.RiskFactor) bool {
	for _, f := range factors {
		if f.Triggered {
			return true
		}
	}
	return false
}

// sizeMultiplier chains the confidence, volatility and z-score scale-downs.
func sizeMultiplier(m domain.OracleMetrics, p Params) float64 {
	conf := scaleDown(m.ConfidenceRatio, p.MaxConfidenceRatioScale, p.MaxConfidenceRatioBlock, p.ScaleFloor)
	vol := scaleDown(m.VolatilityRealized, p.MaxVolatilityScale, p.MaxVolatilityBlock, p.ScaleFloor)
	z := scaleDown(math.Abs(m.ConfidenceZscore), p.MaxConfidenceZscore/2, p.MaxConfidenceZscore, p.ScaleFloor)
	return clamp(conf*vol*z, 0, 1)
}

// scaleDown returns max(floor, 1 - (v - soft) / (hard - soft)), capped at 1.
func scaleDown(v, soft, hard, floor float64) float64 {
	if v <= soft {
		return 1
	}
	if hard <= soft {
		return floor
	}
	return clamp(1-(v-soft)/(hard-soft), floor, 1)
}

func confidenceRatioFactor(m domain.OracleMetrics, p Params) domain.RiskFactor {
	f := domain.RiskFactor{
		Name:      FactorConfidenceRatio,
		Value:     m.ConfidenceRatio,
		Threshold: p.MaxConfidenceRatioScale,
		Impact:    5,
		Severity:  domain.SeverityInfo,
	}
	switch {
	case m.ConfidenceRatio > p.MaxConfidenceRatioBlock:
		f.Threshold = p.MaxConfidenceRatioBlock
		f.Impact = -30
		f.Triggered = true
		f.Severity = domain.SeverityCritical
	case m.ConfidenceRatio > p.MaxConfidenceRatioScale:
		f.Impact = -15
		f.Severity = domain.SeverityWarning
	}
	return f
}

func zscoreFactor(m domain.OracleMetrics, p Params) domain.RiskFactor {
	abs := math.Abs(m.ConfidenceZscore)
	f := domain.RiskFactor{
		Name:      FactorConfidenceZscore,
		Value:     m.ConfidenceZscore,
		Threshold: p.MaxConfidenceZscore,
		Impact:    5,
		Severity:  domain.SeverityInfo,
	}
	switch {
	case abs > p.MaxConfidenceZscore:
		f.Impact = -25
		f.Triggered = true
		f.Severity = domain.SeverityCritical
	case abs > p.MaxConfidenceZscore/2:
		f.Impact = -10
		f.Severity = domain.SeverityWarning
	}
	return f
}

func freshnessFactor(m domain.OracleMetrics, p Params) domain.RiskFactor {
	age := m.DataFreshnessSeconds
	f := domain.RiskFactor{
		Name:      FactorDataFreshness,
		Value:     float64(age),
		Threshold: float64(p.MaxStalenessSeconds),
		Impact:    8,
		Severity:  domain.SeverityInfo,
	}
	switch {
	case age > p.MaxStalenessSeconds:
		f.Impact = -30
		f.Triggered = true
		f.Severity = domain.SeverityCritical
	case age*2 > p.MaxStalenessSeconds:
		f.Impact = -10
		f.Severity = domain.SeverityWarning
	}
	return f
}

func volatilityFactor(m domain.OracleMetrics, p Params) domain.RiskFactor {
	f := domain.RiskFactor{
		Name:      FactorRealizedVolatility,
		Value:     m.VolatilityRealized,
		Threshold: p.MaxVolatilityScale,
		Impact:    5,
		Severity:  domain.SeverityInfo,
	}
	switch {
	case m.VolatilityRealized > p.MaxVolatilityBlock:
		f.Threshold = p.MaxVolatilityBlock
		f.Impact = -30
		f.Triggered = true
		f.Severity = domain.SeverityCritical
	case m.VolatilityRealized > p.MaxVolatilityScale:
		f.Impact = -15
		f.Severity = domain.SeverityWarning
	}
	return f
}

func qualityFactor(m domain.OracleMetrics, p Params) domain.RiskFactor {
	f := domain.RiskFactor{
		Name:      FactorDataQuality,
		Value:     m.DataQualityScore,
		Threshold: p.MinDataQualityScore,
		Impact:    7,
		Severity:  domain.SeverityInfo,
	}
	switch {
	case m.DataQualityScore < p.MinDataQualityScore:
		f.Impact = -20
		f.Triggered = true
		f.Severity = domain.SeverityCritical
	case m.DataQualityScore < p.MinDataQualityScore+20:
		f.Impact = -5
		f.Severity = domain.SeverityWarning
	}
	return f
}

// spikeFactor requires both a realized/expected spike and an elevated
// confidence ratio to trigger.
func spikeFactor(m domain.OracleMetrics, p Params) domain.RiskFactor {
	ratio := 0.0
	if m.VolatilityExpected > 0 {
		ratio = m.VolatilityRealized / m.VolatilityExpected
	}
	f := domain.RiskFactor{
		Name:      FactorVolatilitySpike,
		Value:     ratio,
		Threshold: p.SpikeThreshold,
		Severity:  domain.SeverityInfo,
	}
	if ratio > p.SpikeThreshold {
		if m.ConfidenceRatio > p.MaxConfidenceRatioScale {
			f.Impact = -25
			f.Triggered = true
			f.Severity = domain.SeverityCritical
		} else {
			f.Impact = -5
			f.Severity = domain.SeverityWarning
		}
	}
	return f
}

func sourceFactor(source domain.SourceTag, p Params) domain.RiskFactor {
	f := domain.RiskFactor{
		Name:      FactorSourceTrust,
		Value:     1,
		Threshold: 1,
		Impact:    5,
		Severity:  domain.SeverityInfo,
	}
	if source == domain.SourceLive {
		return f
	}
	f.Value = 0
	if p.RequireLiveOracle {
		f.Impact = -20
		f.Triggered = true
		f.Severity = domain.SeverityCritical
	} else {
		f.Impact = -5
		f.Severity = domain.SeverityWarning
	}
	return f
}

// ForceBlock returns a copy of d overridden to BLOCK with an extra triggered factor.
// Used when the circuit breaker denies an asset.
func ForceBlock(d domain.RiskDecision, factorName, reason string) domain.RiskDecision {
	out := d
	out.Factors = make([]domain.RiskFactor, len(d.Factors), len(d.Factors)+1)
	copy(out.Factors, d.Factors)
	out.Factors = append(out.Factors, domain.RiskFactor{
		Name:      factorName,
		Value:     1,
		Threshold: 0,
		Impact:    -50,
		Triggered: true,
		Severity:  domain.SeverityCritical,
	})
	out.Action = domain.ActionBlock
	out.SizeMultiplier = 0
	out.RiskScore = riskScore(out.Factors)
	out.Explanation = Explain(&out)
	if reason != "" {
		out.Explanation += "\n- reason: " + reason
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
