package ingestion

import (
	"context"

	"cate-trust-layer/internal/domain"
	"cate-trust-layer/internal/history"
)

// FeedStream is a push source of live samples.
// Samples is closed when Run returns; a stream is not restartable.
type FeedStream interface {
	Run(ctx context.Context) error
	Samples() <-chan domain.OracleSample
}

// FallbackSource fetches the latest sample per asset on demand.
type FallbackSource interface {
	Latest(ctx context.Context, assetIDs []string) ([]domain.OracleSample, error)
}

// Processor consumes samples. Implemented by pipeline.Processor.
type Processor interface {
	Process(ctx context.Context, sample domain.OracleSample) (history.Entry, error)
}
