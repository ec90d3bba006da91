// Package publish fans signed decisions out to downstream consumers.
package publish

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mailru/easyjson"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"cate-trust-layer/internal/domain"
	"cate-trust-layer/internal/wire"
)

// DefaultSubjectPrefix is the subject prefix decisions are published under.
const DefaultSubjectPrefix = "cate.decisions"

// Publisher delivers signed decisions.
type Publisher interface {
	Publish(ctx context.Context, sd domain.SignedDecision) error
	Close() error
}

// NopPublisher discards every decision.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, domain.SignedDecision) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }

// NATSConfig configures NATSPublisher.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	FlushTimeout  time.Duration
}

// DefaultNATSConfig returns default NATS settings.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: DefaultSubjectPrefix,
		MaxReconnects: 60,
		ReconnectWait: 2 * time.Second,
		FlushTimeout:  2 * time.Second,
	}
}

// conn is the subset of *nats.Conn used by NATSPublisher.
type conn interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Drain() error
}

// NATSPublisher publishes each decision as JSON on <prefix>.<asset>.
type NATSPublisher struct {
	conn   conn
	prefix string
	flush  time.Duration
	logger zerolog.Logger
}

// NewNATSPublisher connects to NATS. Connection events are logged on logger.
func NewNATSPublisher(cfg NATSConfig, logger zerolog.Logger) (*NATSPublisher, error) {
	def := DefaultNATSConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = def.ReconnectWait
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = def.FlushTimeout
	}

	logger = logger.With().Str("component", "nats").Logger()

	opts := []nats.Option{
		nats.Name("cate-trust-layer"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return newNATSPublisher(nc, cfg.SubjectPrefix, cfg.FlushTimeout, logger), nil
}

func newNATSPublisher(c conn, prefix string, flush time.Duration, logger zerolog.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{
		conn:   c,
		prefix: strings.TrimSuffix(prefix, "."),
		flush:  flush,
		logger: logger,
	}
}

// Subject returns the subject a decision for assetID is published on.
func (p *NATSPublisher) Subject(assetID string) string {
	return p.prefix + "." + subjectToken(assetID)
}

// Publish sends sd and waits up to the flush timeout for the server to
// accept it. The context deadline, when earlier, bounds the wait.
func (p *NATSPublisher) Publish(ctx context.Context, sd domain.SignedDecision) error {
	data, err := easyjson.Marshal(wire.FromDomain(sd))
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}

	subject := p.Subject(sd.Payload.AssetID)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}

	if p.flush > 0 {
		timeout := p.flush
		if dl, ok := ctx.Deadline(); ok {
			if left := time.Until(dl); left < timeout {
				timeout = left
			}
		}
		if timeout <= 0 {
			return fmt.Errorf("publish to %s: %w", subject, context.DeadlineExceeded)
		}
		if err := p.conn.FlushTimeout(timeout); err != nil {
			return fmt.Errorf("flush %s: %w", subject, err)
		}
	}

	p.logger.Debug().
		Str("subject", subject).
		Str("action", sd.Payload.Action.String()).
		Uint64("nonce", sd.Payload.Nonce).
		Msg("decision published")
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// subjectToken makes assetID safe as a single NATS subject token.
func subjectToken(assetID string) string {
	if assetID == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, assetID)
}

var (
	_ Publisher = NopPublisher{}
	_ Publisher = (*NATSPublisher)(nil)
)
