// Package ingestion feeds oracle samples into the decision pipeline.
package ingestion

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"cate-trust-layer/internal/domain"
	"cate-trust-layer/internal/observability"
)

// Mode is the runner's current sample source.
type Mode string

const (
	ModeStream   Mode = "STREAM"
	ModeFallback Mode = "FALLBACK"
)

// Runner routes samples to one worker goroutine per asset.
//
// While the stream is healthy every sample goes straight to its asset
// worker. When the stream gives up, the runner polls the fallback source;
// when that fails too, the last known sample of each asset is re-emitted
// tagged CACHED so staleness keeps growing and decisions fail closed.
type Runner struct {
	newStream        func() FeedStream
	fallback         FallbackSource
	processor        Processor
	assets           []string
	pollInterval     time.Duration
	restreamInterval time.Duration
	workerBuffer     int
	obs              *observability.Metrics
	logger           zerolog.Logger

	mu      sync.RWMutex
	mode    Mode
	workers map[string]chan domain.OracleSample
	last    map[string]domain.OracleSample
	wg      sync.WaitGroup
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	// NewStream builds a fresh stream for each connection cycle. Nil runs
	// in fallback mode only.
	NewStream func() FeedStream
	Fallback  FallbackSource
	Processor Processor
	Assets    []string

	PollInterval     time.Duration // Default: 1s
	RestreamInterval time.Duration // Default: 60s - how long to poll before retrying the stream
	WorkerBuffer     int           // Default: 64 samples per asset

	Metrics *observability.Metrics
	Logger  zerolog.Logger
}

// NewRunner creates a new ingestion runner.
func NewRunner(opts RunnerOptions) *Runner {
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	restreamInterval := opts.RestreamInterval
	if restreamInterval <= 0 {
		restreamInterval = time.Minute
	}

	workerBuffer := opts.WorkerBuffer
	if workerBuffer <= 0 {
		workerBuffer = 64
	}

	return &Runner{
		newStream:        opts.NewStream,
		fallback:         opts.Fallback,
		processor:        opts.Processor,
		assets:           append([]string(nil), opts.Assets...),
		pollInterval:     pollInterval,
		restreamInterval: restreamInterval,
		workerBuffer:     workerBuffer,
		obs:              opts.Metrics,
		logger:           opts.Logger.With().Str("component", "ingestion").Logger(),
		mode:             ModeStream,
		workers:          make(map[string]chan domain.OracleSample),
		last:             make(map[string]domain.OracleSample),
	}
}

// Mode returns the current source mode.
func (r *Runner) Mode() Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mode
}

// Run blocks until ctx is cancelled, then drains the asset workers.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info().Strs("assets", r.assets).Msg("starting ingestion runner")

	defer r.stopWorkers()

	for {
		if r.newStream != nil {
			r.setMode(ModeStream)
			err := r.consumeStream(ctx, r.newStream())
			if ctx.Err() != nil {
				r.logger.Info().Msg("runner stopping")
				return ctx.Err()
			}
			r.logger.Error().Err(err).Msg("stream failed, switching to fallback polling")
		}

		r.setMode(ModeFallback)
		if err := r.pollFallback(ctx); err != nil {
			r.logger.Info().Msg("runner stopping")
			return err
		}
	}
}

// consumeStream dispatches stream samples until the stream ends.
func (r *Runner) consumeStream(ctx context.Context, s FeedStream) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Run(ctx)
	}()

	for sample := range s.Samples() {
		r.dispatch(ctx, sample)
	}

	err := <-errCh
	if err == nil {
		err = errors.New("stream ended")
	}
	return err
}

// pollFallback polls until the restream interval elapses (nil) or ctx ends.
func (r *Runner) pollFallback(ctx context.Context) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	var restream <-chan time.Time
	if r.newStream != nil {
		timer := time.NewTimer(r.restreamInterval)
		defer timer.Stop()
		restream = timer.C
	}

	r.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-restream:
			r.logger.Info().Msg("retrying stream")
			return nil
		case <-ticker.C:
			r.pollOnce(ctx)
		}
	}
}

// pollOnce fetches fallback samples, or re-emits cached ones on failure.
func (r *Runner) pollOnce(ctx context.Context) {
	if r.fallback != nil {
		samples, err := r.fallback.Latest(ctx, r.assets)
		if err == nil && len(samples) > 0 {
			for _, s := range samples {
				r.dispatch(ctx, s)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		r.logger.Warn().Err(err).Int("samples", len(samples)).Msg("fallback fetch failed, re-emitting cached samples")
	}

	for _, s := range r.cached() {
		r.dispatch(ctx, s)
	}
}

// cached returns the last known sample of every asset tagged CACHED.
func (r *Runner) cached() []domain.OracleSample {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.OracleSample, 0, len(r.last))
	for _, asset := range r.assets {
		if s, ok := r.last[asset]; ok {
			s.Source = domain.SourceCached
			out = append(out, s)
		}
	}
	return out
}

// dispatch hands sample to its asset worker, dropping it when the worker is backed up.
func (r *Runner) dispatch(ctx context.Context, sample domain.OracleSample) {
	ch := r.worker(ctx, sample.AssetID, sample.Source != domain.SourceCached, sample)

	select {
	case ch <- sample:
	default:
		r.obs.RecordDropped("backpressure")
		r.logger.Warn().Str("asset", sample.AssetID).Msg("asset worker backed up, sample dropped")
	}
}

// worker returns the asset's channel, starting its goroutine on first use.
// Non-cached samples also become the asset's last known sample.
func (r *Runner) worker(ctx context.Context, assetID string, remember bool, sample domain.OracleSample) chan domain.OracleSample {
	r.mu.Lock()
	defer r.mu.Unlock()

	if remember {
		r.last[assetID] = sample
	}

	ch, ok := r.workers[assetID]
	if ok {
		return ch
	}

	ch = make(chan domain.OracleSample, r.workerBuffer)
	r.workers[assetID] = ch
	r.wg.Add(1)
	go r.runWorker(ctx, assetID, ch)
	return ch
}

func (r *Runner) runWorker(ctx context.Context, assetID string, ch <-chan domain.OracleSample) {
	defer r.wg.Done()

	log := r.logger.With().Str("asset", assetID).Logger()
	for sample := range ch {
		if ctx.Err() != nil {
			continue
		}
		if _, err := r.processor.Process(ctx, sample); err != nil {
			log.Debug().Err(err).Msg("sample not processed")
		}
	}
}

func (r *Runner) stopWorkers() {
	r.mu.Lock()
	for asset, ch := range r.workers {
		close(ch)
		delete(r.workers, asset)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Runner) setMode(m Mode) {
	r.mu.Lock()
	prev := r.mode
	r.mode = m
	r.mu.Unlock()

	if prev != m {
		r.logger.Info().Str("from", string(prev)).Str("to", string(m)).Msg("source mode changed")
	}
}
