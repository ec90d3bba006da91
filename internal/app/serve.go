package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"cate-trust-layer/internal/api"
	"cate-trust-layer/internal/breaker"
	"cate-trust-layer/internal/domain"
	"cate-trust-layer/internal/history"
	"cate-trust-layer/internal/ingestion"
	"cate-trust-layer/internal/observability"
	"cate-trust-layer/internal/oracle"
	"cate-trust-layer/internal/pipeline"
	"cate-trust-layer/internal/version"
)

// ServeOptions overrides parts of the configuration for one serve run.
type ServeOptions struct {
	// Addr overrides server.addr when set.
	Addr string
	// NoIngest disables the oracle runner; the HTTP API still signs.
	NoIngest bool
	// Registerer receives the service metrics. Defaults to the global registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// Serve runs ingestion, the decision pipeline and the HTTP API until ctx is
// cancelled or a signal arrives.
func (a *App) Serve(ctx context.Context, opts ServeOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := a.Config
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	obs := observability.NewMetrics(cfg.Metrics.Namespace, opts.Registerer)

	engine, err := a.newEngine()
	if err != nil {
		return err
	}
	a.Logger.Info().Str("signer", engine.Identity()).Msg("signing engine ready")

	decisions, closeDecisions, err := a.openDecisionStore(ctx)
	if err != nil {
		return err
	}
	defer closeDecisions()

	points, closePoints, err := a.openMetricsStore(ctx)
	if err != nil {
		return err
	}
	defer closePoints()

	publisher, err := a.newPublisher()
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("close publisher")
		}
	}()

	replay, closeReplay, err := a.newReplayGuard(ctx)
	if err != nil {
		return err
	}
	defer closeReplay()

	programID, err := a.programID()
	if err != nil {
		return err
	}

	brk := breaker.New(cfg.Breaker, breaker.WithStateChange(func(from, to domain.CircuitState, reason string) {
		obs.RecordBreakerTransition(from, to, reason)
		a.Logger.Warn().Str("from", from.String()).Str("to", to.String()).Str("reason", reason).Msg("circuit state changed")
	}))
	ring := history.NewRing(cfg.History.Capacity)

	processor, err := pipeline.NewProcessor(pipeline.Options{
		Calculator:     a.newCalculator(),
		Params:         cfg.Risk,
		Breaker:        brk,
		Engine:         engine,
		History:        ring,
		DecisionStore:  decisions,
		MetricsStore:   points,
		Publisher:      publisher,
		Metrics:        obs,
		PublishTimeout: cfg.NATS.PublishTimeout,
		Logger:         a.Logger,
	})
	if err != nil {
		return err
	}

	addr := cfg.Server.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}
	server, err := api.NewServer(api.Options{
		Engine:          engine,
		Breaker:         brk,
		History:         ring,
		Decisions:       decisions,
		Replay:          replay,
		Anchor:          a.newAnchorReader(obs),
		ProgramID:       programID,
		Metrics:         obs,
		Gatherer:        opts.Gatherer,
		Addr:            addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		CORSOrigins:     cfg.Server.CORSOrigins,
		TimestampWindow: cfg.Server.TimestampWindow,
		Version:         version.Version,
		Logger:          a.Logger,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})

	if opts.NoIngest || len(cfg.Oracle.Feeds) == 0 {
		a.Logger.Warn().Msg("oracle ingestion disabled; serving API only")
	} else {
		runner, err := a.newRunner(processor, obs)
		if err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
		g.Go(func() error {
			return runner.Run(gctx)
		})
	}

	a.Logger.Info().Str("addr", addr).Int("feeds", len(cfg.Oracle.Feeds)).Msg("trust layer started")
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("trust layer stopped")
	return nil
}

func (a *App) newRunner(processor *pipeline.Processor, obs *observability.Metrics) (*ingestion.Runner, error) {
	oc := a.Config.Oracle
	feeds, err := oracle.NewFeedMap(a.Config.FeedMap())
	if err != nil {
		return nil, err
	}

	var newStream func() ingestion.FeedStream
	if oc.StreamURL != "" {
		streamCfg := oracle.StreamConfig{
			Endpoint:             oc.StreamURL,
			ReconnectDelay:       oc.ReconnectDelay,
			MaxReconnectDelay:    oc.MaxReconnectDelay,
			MaxReconnectAttempts: oc.MaxReconnectAttempts,
			PingInterval:         oc.PingInterval,
			ReadTimeout:          oc.ReadTimeout,
		}
		newStream = func() ingestion.FeedStream {
			return oracle.NewStreamClient(streamCfg, feeds, a.Logger, oracle.WithStateHook(func(s oracle.State) {
				obs.RecordFeedState(s.String())
			}))
		}
	}

	var fallback ingestion.FallbackSource
	if oc.HTTPURL != "" {
		fallback = oracle.NewHTTPSource(oc.HTTPURL, feeds,
			oracle.WithHTTPTimeout(oc.HTTPTimeout),
			oracle.WithHTTPRetries(oc.HTTPRetries, oc.HTTPRetryDelay),
		)
	}
	if newStream == nil && fallback == nil {
		return nil, errors.New("oracle: stream_url or http_url is required when feeds are configured")
	}

	return ingestion.NewRunner(ingestion.RunnerOptions{
		NewStream:        newStream,
		Fallback:         fallback,
		Processor:        processor,
		Assets:           a.Config.Assets(),
		PollInterval:     a.Config.Ingestion.PollInterval,
		RestreamInterval: a.Config.Ingestion.RestreamInterval,
		WorkerBuffer:     a.Config.Ingestion.WorkerBuffer,
		Metrics:          obs,
		Logger:           a.Logger,
	}), nil
}
