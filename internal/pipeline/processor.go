// Package pipeline turns oracle samples into signed risk decisions.
//
// Samples of one asset are processed strictly in arrival order. Samples of
// different assets proceed in parallel and share only the calculator, the
// breaker and the signing engine, each of which is safe for concurrent use.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"cate-trust-layer/internal/attestation"
	"cate-trust-layer/internal/breaker"
	"cate-trust-layer/internal/decision"
	"cate-trust-layer/internal/domain"
	"cate-trust-layer/internal/history"
	"cate-trust-layer/internal/metrics"
	"cate-trust-layer/internal/observability"
	"cate-trust-layer/internal/publish"
	"cate-trust-layer/internal/storage"
)

// DefaultPublishTimeout bounds a single decision publish.
const DefaultPublishTimeout = 2 * time.Second

// Options contains configuration for creating a Processor.
type Options struct {
	Calculator *metrics.Calculator
	Params     decision.Params
	Breaker    *breaker.Breaker
	Engine     *attestation.Engine
	History    *history.Ring

	// Optional sinks.
	DecisionStore storage.DecisionStore
	MetricsStore  storage.MetricsStore
	Publisher     publish.Publisher
	Metrics       *observability.Metrics

	PublishTimeout time.Duration
	Logger         zerolog.Logger
	Now            func() time.Time
}

// Processor runs the sample → metrics → decision → gate → sign flow.
type Processor struct {
	calc      *metrics.Calculator
	params    decision.Params
	breaker   *breaker.Breaker
	engine    *attestation.Engine
	history   *history.Ring
	decisions storage.DecisionStore
	points    storage.MetricsStore
	publisher publish.Publisher
	obs       *observability.Metrics

	publishTimeout time.Duration
	logger         zerolog.Logger
	now            func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewProcessor creates a new Processor.
func NewProcessor(opts Options) (*Processor, error) {
	if opts.Engine == nil {
		return nil, errors.New("pipeline: signing engine is required")
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	p := &Processor{
		calc:           opts.Calculator,
		params:         opts.Params,
		breaker:        opts.Breaker,
		engine:         opts.Engine,
		history:        opts.History,
		decisions:      opts.DecisionStore,
		points:         opts.MetricsStore,
		publisher:      opts.Publisher,
		obs:            opts.Metrics,
		publishTimeout: opts.PublishTimeout,
		logger:         opts.Logger.With().Str("component", "pipeline").Logger(),
		now:            opts.Now,
		locks:          make(map[string]*sync.Mutex),
	}
	if p.calc == nil {
		p.calc = metrics.NewCalculator(metrics.DefaultConfig())
	}
	if p.breaker == nil {
		p.breaker = breaker.New(breaker.DefaultConfig())
	}
	if p.history == nil {
		p.history = history.NewRing(history.DefaultCapacity)
	}
	if p.publisher == nil {
		p.publisher = publish.NopPublisher{}
	}
	if p.publishTimeout <= 0 {
		p.publishTimeout = DefaultPublishTimeout
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// Breaker returns the circuit breaker gating this processor.
func (p *Processor) Breaker() *breaker.Breaker { return p.breaker }

// History returns the recent-decision ring.
func (p *Processor) History() *history.Ring { return p.history }

// Engine returns the signing engine.
func (p *Processor) Engine() *attestation.Engine { return p.engine }

// Process handles one sample and returns the signed decision.
//
// An invalid sample is dropped and counted as an asset failure; the previous
// decision for the asset stays current and the wrapped
// metrics.ErrInvalidSample is returned. Storage and publish failures are
// logged and never fail the call.
func (p *Processor) Process(ctx context.Context, sample domain.OracleSample) (history.Entry, error) {
	lock := p.assetLock(sample.AssetID)
	lock.Lock()
	defer lock.Unlock()

	start := p.now()
	log := p.logger.With().
		Str("asset", sample.AssetID).
		Str("source", sample.Source.String()).
		Logger()

	m, err := p.calc.Append(sample)
	if err != nil {
		log.Warn().Err(err).Float64("price", sample.Price).Float64("confidence", sample.Confidence).
			Msg("sample dropped")
		p.obs.RecordDropped("invalid_sample")
		p.breaker.RecordFailure(sample.AssetID, err.Error())
		return history.Entry{}, err
	}
	p.obs.RecordSample(sample.Source)

	d := decision.Evaluate(m, sample.Source, p.params)

	if d.Action == domain.ActionBlock {
		p.breaker.RecordFailure(sample.AssetID, triggeredNames(d))
	} else {
		p.breaker.RecordSuccess(sample.AssetID)
	}

	if gateErr := p.breaker.IsAllowed(sample.AssetID); gateErr != nil {
		factor := decision.FactorAssetCircuit
		if errors.Is(gateErr, breaker.ErrCircuitOpen) {
			factor = decision.FactorCircuitBreaker
		}
		d = decision.ForceBlock(d, factor, gateErr.Error())
		log.Debug().Err(gateErr).Msg("decision forced to BLOCK by breaker")
	}

	signStart := p.now()
	sd, err := p.engine.SignDecision(d)
	p.obs.RecordSigning(p.now().Sub(signStart), err)
	if err != nil {
		log.Error().Err(err).Msg("signing failed")
		return history.Entry{}, fmt.Errorf("sign decision: %w", err)
	}

	entry := history.Entry{Decision: d, Signed: sd}
	p.history.Append(entry)

	p.persist(ctx, log, m, d, sd)
	p.fanOut(ctx, log, sd)

	p.obs.RecordDecision(d, p.now().Sub(start))

	ev := log.Info()
	if d.Action != domain.ActionBlock {
		ev = log.Debug()
	}
	ev.Str("action", d.Action.String()).
		Float64("risk_score", d.RiskScore).
		Float64("size_multiplier", d.SizeMultiplier).
		Uint64("nonce", sd.Payload.Nonce).
		Msg("decision signed")

	return entry, nil
}

func (p *Processor) persist(ctx context.Context, log zerolog.Logger, m domain.OracleMetrics, d domain.RiskDecision, sd domain.SignedDecision) {
	if p.decisions != nil {
		rec := domain.NewDecisionRecord(d, sd, p.now().UnixMilli())
		if err := p.decisions.Insert(ctx, rec); err != nil {
			log.Error().Err(err).Msg("persist decision")
			p.obs.RecordStorageError("decisions", "insert")
		}
	}

	if p.points != nil {
		err := p.points.InsertBulk(ctx, []*domain.MetricsPoint{domain.NewMetricsPoint(m, d.Source)})
		switch {
		case errors.Is(err, storage.ErrDuplicateKey):
			// A re-emitted sample repeats its publish time.
			log.Debug().Msg("metrics point already stored")
		case err != nil:
			log.Error().Err(err).Msg("persist metrics")
			p.obs.RecordStorageError("metrics", "insert")
		}
	}
}

func (p *Processor) fanOut(ctx context.Context, log zerolog.Logger, sd domain.SignedDecision) {
	pctx, cancel := context.WithTimeout(ctx, p.publishTimeout)
	defer cancel()

	err := p.publisher.Publish(pctx, sd)
	p.obs.RecordPublish(err)
	if err != nil {
		log.Warn().Err(err).Msg("publish decision")
	}
}

func (p *Processor) assetLock(assetID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.locks[assetID]
	if !ok {
		l = &sync.Mutex{}
		p.locks[assetID] = l
	}
	return l
}

func triggeredNames(d domain.RiskDecision) string {
	var names []string
	for _, f := range d.TriggeredFactors() {
		names = append(names, f.Name)
	}
	return strings.Join(names, ", ")
}
