package decision

import "fmt"

// Factor names as they appear in decisions and explanations.
const (
	FactorConfidenceRatio    = "Confidence Ratio"
	FactorConfidenceZscore   = "Confidence Z-Score"
	FactorDataFreshness      = "Data Freshness"
	FactorRealizedVolatility = "Realized Volatility"
	FactorDataQuality        = "Data Quality"
	FactorVolatilitySpike    = "Volatility Spike"
	FactorSourceTrust        = "Source Trust"
	FactorCircuitBreaker     = "Circuit Breaker"
	FactorAssetCircuit       = "Asset Circuit"
)

// BaseRiskScore is the neutral score factors nudge up or down.
const BaseRiskScore = 50.0

// Params are the evaluator thresholds.
type Params struct {
	MaxConfidenceRatioScale float64 `mapstructure:"max_confidence_ratio_scale"` // percent
	MaxConfidenceRatioBlock float64 `mapstructure:"max_confidence_ratio_block"` // percent
	MaxConfidenceZscore     float64 `mapstructure:"max_confidence_zscore"`
	MaxStalenessSeconds     int64   `mapstructure:"max_staleness_seconds"`
	MaxVolatilityScale      float64 `mapstructure:"max_volatility_scale"` // annualized percent
	MaxVolatilityBlock      float64 `mapstructure:"max_volatility_block"` // annualized percent
	MinDataQualityScore     float64 `mapstructure:"min_data_quality_score"`
	SpikeThreshold          float64 `mapstructure:"spike_threshold"` // realized / expected
	RequireLiveOracle       bool    `mapstructure:"require_live_oracle"`

	// ScaleFloor is the lower bound of each individual scale-down.
	ScaleFloor float64 `mapstructure:"scale_floor"`
	// AllowThreshold is the multiplier at or above which the action is ALLOW.
	AllowThreshold float64 `mapstructure:"allow_threshold"`
}

// DefaultParams returns default evaluator thresholds.
func DefaultParams() Params {
	return Params{
		MaxConfidenceRatioScale: 1.0,
		MaxConfidenceRatioBlock: 3.0,
		MaxConfidenceZscore:     3.0,
		MaxStalenessSeconds:     30,
		MaxVolatilityScale:      50,
		MaxVolatilityBlock:      100,
		MinDataQualityScore:     50,
		SpikeThreshold:          3.0,
		RequireLiveOracle:       true,
		ScaleFloor:              0.1,
		AllowThreshold:          0.95,
	}
}

// Validate checks threshold ordering.
func (p Params) Validate() error {
	if p.MaxConfidenceRatioScale <= 0 || p.MaxConfidenceRatioBlock <= p.MaxConfidenceRatioScale {
		return fmt.Errorf("confidence ratio thresholds must satisfy 0 < scale < block")
	}
	if p.MaxVolatilityScale <= 0 || p.MaxVolatilityBlock <= p.MaxVolatilityScale {
		return fmt.Errorf("volatility thresholds must satisfy 0 < scale < block")
	}
	if p.MaxConfidenceZscore <= 0 {
		return fmt.Errorf("max_confidence_zscore must be greater than zero")
	}
	if p.MaxStalenessSeconds <= 0 {
		return fmt.Errorf("max_staleness_seconds must be greater than zero")
	}
	if p.MinDataQualityScore < 0 || p.MinDataQualityScore > 100 {
		return fmt.Errorf("min_data_quality_score must be within [0, 100]")
	}
	if p.SpikeThreshold <= 0 {
		return fmt.Errorf("spike_threshold must be greater than zero")
	}
	if p.ScaleFloor < 0 || p.ScaleFloor > 1 {
		return fmt.Errorf("scale_floor must be within [0, 1]")
	}
	if p.AllowThreshold <= 0 || p.AllowThreshold > 1 {
		return fmt.Errorf("allow_threshold must be within (0, 1]")
	}
	return nil
}
