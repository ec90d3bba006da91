package attestation

import (
	"math"

	"github.com/shopspring/decimal"

	"cate-trust-layer/internal/domain"
)

// MaxBps is 100% in basis points.
const MaxBps = 10000

var (
	hundred = decimal.NewFromInt(100)
	bpsUnit = decimal.NewFromInt(MaxBps)
)

// PercentToBps converts a percentage to basis points, rounded half away
// from zero and clamped to [0, 10000].
func PercentToBps(pct float64) uint64 {
	if math.IsNaN(pct) || pct <= 0 {
		return 0
	}
	bps := decimal.NewFromFloat(pct).Mul(hundred).Round(0)
	if bps.GreaterThan(bpsUnit) {
		return MaxBps
	}
	return uint64(bps.IntPart())
}

// FractionToBps converts a [0, 1] fraction to basis points.
func FractionToBps(f float64) uint16 {
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	bps := decimal.NewFromFloat(f).Mul(bpsUnit).Round(0)
	if bps.GreaterThan(bpsUnit) {
		return MaxBps
	}
	return uint16(bps.IntPart())
}

// BpsToConfidence returns price * bps / 10000.
func BpsToConfidence(price float64, bps uint64) float64 {
	return decimal.NewFromFloat(price).
		Mul(decimal.NewFromInt(int64(bps))).
		Div(bpsUnit).
		InexactFloat64()
}

// NewPayload builds the signed payload for a risk decision.
func NewPayload(d domain.RiskDecision, nonce uint64) domain.DecisionPayload {
	score := math.Round(d.RiskScore)
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	publishers := d.Metrics.PublisherCount
	if publishers < 0 {
		publishers = 0
	}
	if publishers > math.MaxUint8 {
		publishers = math.MaxUint8
	}

	return domain.DecisionPayload{
		AssetID:            d.AssetID,
		Price:              d.Metrics.Price,
		Confidence:         d.Metrics.Confidence,
		ConfidenceRatioBps: PercentToBps(d.Metrics.ConfidenceRatio),
		RiskScore:          uint8(score),
		Action:             d.Action,
		IsBlocked:          d.Action == domain.ActionBlock,
		SizeMultiplierBps:  FractionToBps(d.SizeMultiplier),
		PublisherCount:     uint8(publishers),
		Timestamp:          d.Timestamp,
		Nonce:              nonce,
	}
}
