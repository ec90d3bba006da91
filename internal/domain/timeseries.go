package domain

// MetricsPoint is a persisted oracle metrics observation.
// Corresponds to oracle_metrics table in ClickHouse.
type MetricsPoint struct {
	AssetID              string  // asset identifier
	TimestampMs          int64   // Unix timestamp in milliseconds
	Price                float64 // oracle price
	Confidence           float64 // oracle confidence
	ConfidenceRatio      float64 // percent
	ConfidenceZscore     float64
	VolatilityRealized   float64 // annualized percent
	VolatilityExpected   float64 // annualized percent
	DataFreshnessSeconds int64
	DataQualityScore     float64
	Source               string // LIVE, FALLBACK, CACHED
}

// NewMetricsPoint converts derived metrics into a storable point.
func NewMetricsPoint(m OracleMetrics, source SourceTag) *MetricsPoint {
	return &MetricsPoint{
		AssetID:              m.AssetID,
		TimestampMs:          m.Timestamp * 1000,
		Price:                m.Price,
		Confidence:           m.Confidence,
		ConfidenceRatio:      m.ConfidenceRatio,
		ConfidenceZscore:     m.ConfidenceZscore,
		VolatilityRealized:   m.VolatilityRealized,
		VolatilityExpected:   m.VolatilityExpected,
		DataFreshnessSeconds: m.DataFreshnessSeconds,
		DataQualityScore:     m.DataQualityScore,
		Source:               source.String(),
	}
}
