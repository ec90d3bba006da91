// Package app wires configuration into running components for the CLI.
package app

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"cate-trust-layer/internal/anchor"
	"cate-trust-layer/internal/attestation"
	"cate-trust-layer/internal/config"
	"cate-trust-layer/internal/metrics"
	"cate-trust-layer/internal/observability"
	"cate-trust-layer/internal/publish"
	"cate-trust-layer/internal/solana"
	"cate-trust-layer/internal/storage"
	chstore "cate-trust-layer/internal/storage/clickhouse"
	"cate-trust-layer/internal/storage/memory"
	"cate-trust-layer/internal/storage/migrations"
	"cate-trust-layer/internal/storage/postgres"
)

// ErrSignerNotConfigured is returned when neither a secret key nor a keypair
// file is configured.
var ErrSignerNotConfigured = errors.New("signer not configured: set signer.secret_key or signer.keypair_path")

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// loadSigner resolves the signing key. An inline secret key wins over a
// keypair file.
func (a *App) loadSigner() (ed25519.PrivateKey, error) {
	sc := a.Config.Signer
	switch {
	case sc.SecretKey != "":
		return attestation.ParseSecretKey(sc.SecretKey)
	case sc.KeypairPath != "":
		return attestation.LoadKeypairFile(sc.KeypairPath)
	default:
		return nil, ErrSignerNotConfigured
	}
}

func (a *App) newEngine() (*attestation.Engine, error) {
	key, err := a.loadSigner()
	if err != nil {
		return nil, err
	}
	return attestation.NewEngine(key)
}

func (a *App) programID() (anchor.PublicKey, error) {
	if a.Config.Anchor.ProgramID == "" {
		return anchor.DefaultProgramID, nil
	}
	id, err := anchor.ParsePublicKey(a.Config.Anchor.ProgramID)
	if err != nil {
		return anchor.PublicKey{}, fmt.Errorf("anchor.program_id: %w", err)
	}
	return id, nil
}

func (a *App) newCalculator() *metrics.Calculator {
	wc := a.Config.Windows
	cfg := metrics.DefaultConfig()
	if len(wc.Specs) > 0 {
		cfg.Windows = make([]metrics.WindowSpec, 0, len(wc.Specs))
		for _, s := range wc.Specs {
			cfg.Windows = append(cfg.Windows, metrics.WindowSpec{Name: s.Name, MaxAge: s.MaxAge, MaxPoints: s.MaxPoints})
		}
	}
	if wc.StddevFloor > 0 {
		cfg.StddevFloor = wc.StddevFloor
	}
	if wc.ExpectedUpdateInterval > 0 {
		cfg.ExpectedUpdateInterval = wc.ExpectedUpdateInterval
	}
	if wc.MaxFreshness > 0 {
		cfg.MaxFreshness = wc.MaxFreshness
	}
	return metrics.NewCalculator(cfg)
}

// openDecisionStore returns the configured decision store and its closer.
func (a *App) openDecisionStore(ctx context.Context) (storage.DecisionStore, func(), error) {
	sc := a.Config.Storage
	switch sc.Decisions {
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, sc.PostgresDSN, postgres.WithMaxConns(sc.PostgresMaxConns))
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if sc.Migrate {
			if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		a.Logger.Info().Msg("decision store: postgres")
		return postgres.NewDecisionStore(pool), pool.Close, nil
	case config.DriverMemory, "":
		return memory.NewDecisionStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown decision store driver %q", sc.Decisions)
	}
}

// openMetricsStore returns the configured metrics store, or nil for "none".
func (a *App) openMetricsStore(ctx context.Context) (storage.MetricsStore, func(), error) {
	sc := a.Config.Storage
	switch sc.Metrics {
	case config.DriverClickHouse:
		var (
			conn *chstore.Conn
			err  error
		)
		if sc.Migrate {
			conn, err = migrations.RunClickhouseMigrations(ctx, sc.ClickHouseDSN)
		} else {
			conn, err = chstore.NewConn(ctx, sc.ClickHouseDSN)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("open clickhouse: %w", err)
		}
		a.Logger.Info().Msg("metrics store: clickhouse")
		return chstore.NewMetricsStore(conn), func() { _ = conn.Close() }, nil
	case config.DriverMemory, "":
		return memory.NewMetricsStore(), func() {}, nil
	case config.DriverNone:
		return nil, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown metrics store driver %q", sc.Metrics)
	}
}

func (a *App) newPublisher() (publish.Publisher, error) {
	nc := a.Config.NATS
	if !nc.Enabled {
		return publish.NopPublisher{}, nil
	}
	return publish.NewNATSPublisher(publish.NATSConfig{
		URL:           nc.URL,
		SubjectPrefix: nc.SubjectPrefix,
		MaxReconnects: nc.MaxReconnects,
		ReconnectWait: nc.ReconnectWait,
		FlushTimeout:  nc.FlushTimeout,
	}, a.Logger)
}

// newReplayGuard returns nil when replay protection is disabled.
func (a *App) newReplayGuard(ctx context.Context) (attestation.ReplayGuard, func(), error) {
	rc := a.Config.Replay
	if !rc.Enabled {
		return nil, func() {}, nil
	}
	if rc.Backend == config.ReplayRedis {
		g, err := attestation.NewRedisReplayGuard(ctx, attestation.RedisOptions{
			Addr:      a.Config.Redis.Addr,
			Password:  a.Config.Redis.Password,
			DB:        a.Config.Redis.DB,
			Prefix:    a.Config.Redis.Prefix,
			Retention: rc.Retention,
		})
		if err != nil {
			return nil, nil, err
		}
		return g, func() { _ = g.Close() }, nil
	}
	return attestation.NewMemoryReplayGuard(rc.Retention, rc.Capacity), func() {}, nil
}

// newAnchorReader returns nil when no RPC endpoint is configured.
func (a *App) newAnchorReader(obs *observability.Metrics) anchor.AccountReader {
	ac := a.Config.Anchor
	if ac.RPCURL == "" {
		return nil
	}
	opts := []solana.ClientOption{solana.WithMaxRetries(ac.MaxRetries), solana.WithLogger(a.Logger)}
	if ac.Timeout > 0 {
		opts = append(opts, solana.WithTimeout(ac.Timeout))
	}
	if obs != nil {
		opts = append(opts, solana.WithLatencyHook(func(method string, d time.Duration) {
			obs.RecordRPCLatency(method, d)
		}))
	}
	return solana.NewHTTPClient(ac.RPCURL, opts...)
}
