package domain

// MaxAssetIDLength is the maximum asset identifier length in bytes.
const MaxAssetIDLength = 16

// OracleSample is a single observation from a price oracle.
type OracleSample struct {
	AssetID        string    // e.g. "SOL/USD", at most 16 bytes
	Price          float64   // quote price, must be > 0
	Confidence     float64   // confidence interval half-width, >= 0
	PublishTime    int64     // Unix timestamp in seconds
	PublisherCount int       // number of publishers aggregated, 0 if unknown
	Source         SourceTag // LIVE, FALLBACK or CACHED
}

// OracleMetrics are the per-sample statistics derived from rolling windows.
type OracleMetrics struct {
	AssetID              string
	Price                float64
	Confidence           float64
	ConfidenceRatio      float64 // confidence / price * 100
	ConfidenceZscore     float64 // vs trailing 1h confidence ratio distribution
	VolatilityRealized   float64 // annualized, percent
	VolatilityExpected   float64 // confidence ratio * sqrt(hours per year)
	DataFreshnessSeconds int64
	DataQualityScore     float64 // [0, 100]
	PublisherCount       int
	Timestamp            int64 // PublishTime of the sample
	SampleCount          int   // points in the 1h window after append
}
