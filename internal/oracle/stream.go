package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"cate-trust-layer/internal/domain"
)

// ErrReconnectExhausted is returned by Run once MaxReconnectAttempts
// consecutive connection attempts have failed.
var ErrReconnectExhausted = errors.New("oracle stream: reconnect attempts exhausted")

// State is the connection state of a StreamClient.
type State int32

// Connection states.
const (
	StateConnecting State = iota
	StateConnected
	StateReconnecting
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateError:
		return "ERROR"
	case StateClosed:
		return "CLOSED"
	}
	return "UNKNOWN"
}

// StreamConfig configures StreamClient behavior.
type StreamConfig struct {
	// Endpoint is the websocket URL, e.g. wss://hermes.pyth.network/ws.
	Endpoint string
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the exponential backoff.
	MaxReconnectDelay time.Duration
	// MaxReconnectAttempts is the number of consecutive failed attempts
	// before the client enters StateError. Zero means retry forever.
	MaxReconnectAttempts int
	// PingInterval is the interval for ping frames.
	PingInterval time.Duration
	// ReadTimeout is the read deadline; silence beyond it forces a reconnect.
	ReadTimeout time.Duration
	// WriteTimeout is the write deadline.
	WriteTimeout time.Duration
	// BufferSize is the capacity of the samples channel.
	BufferSize int
}

// DefaultStreamConfig returns default stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		ReconnectDelay:       1 * time.Second,
		MaxReconnectDelay:    30 * time.Second,
		MaxReconnectAttempts: 10,
		PingInterval:         30 * time.Second,
		ReadTimeout:          60 * time.Second,
		WriteTimeout:         10 * time.Second,
		BufferSize:           1024,
	}
}

// StreamClient subscribes to price updates over a websocket and emits
// LIVE samples. Run owns the connection and reconnects with exponential
// backoff until the attempt budget is spent.
type StreamClient struct {
	cfg    StreamConfig
	feeds  *FeedMap
	logger zerolog.Logger

	state   atomic.Int32
	onState func(State)

	connMu sync.Mutex
	conn   *websocket.Conn

	samples chan domain.OracleSample
	dropped atomic.Uint64
}

// StreamOption configures StreamClient.
type StreamOption func(*StreamClient)

// WithStateHook registers a callback invoked on every state change.
func WithStateHook(fn func(State)) StreamOption {
	return func(c *StreamClient) {
		c.onState = fn
	}
}

// NewStreamClient creates a stream client. It does not connect until Run.
func NewStreamClient(cfg StreamConfig, feeds *FeedMap, logger zerolog.Logger, opts ...StreamOption) *StreamClient {
	def := DefaultStreamConfig()
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.MaxReconnectDelay <= 0 {
		cfg.MaxReconnectDelay = def.MaxReconnectDelay
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}

	c := &StreamClient{
		cfg:     cfg,
		feeds:   feeds,
		logger:  logger.With().Str("component", "oracle_stream").Logger(),
		samples: make(chan domain.OracleSample, cfg.BufferSize),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state.Store(int32(StateConnecting))
	return c
}

// Samples returns the channel of decoded samples. It is closed when Run returns.
func (c *StreamClient) Samples() <-chan domain.OracleSample {
	return c.samples
}

// State returns the current connection state.
func (c *StreamClient) State() State {
	return State(c.state.Load())
}

// Dropped returns the number of updates that could not be decoded.
func (c *StreamClient) Dropped() uint64 {
	return c.dropped.Load()
}

func (c *StreamClient) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	c.logger.Info().Str("state", s.String()).Msg("stream state changed")
	if c.onState != nil {
		c.onState(s)
	}
}

// Run connects, subscribes and reads until ctx is cancelled or the
// reconnect budget is exhausted. Samples is closed on return.
func (c *StreamClient) Run(ctx context.Context) error {
	defer close(c.samples)

	delay := c.cfg.ReconnectDelay
	attempts := 0

	for {
		err := c.session(ctx, func() {
			// A session that got as far as subscribing resets the backoff.
			attempts = 0
			delay = c.cfg.ReconnectDelay
		})
		if ctx.Err() != nil {
			c.setState(StateClosed)
			return ctx.Err()
		}

		attempts++
		if c.cfg.MaxReconnectAttempts > 0 && attempts > c.cfg.MaxReconnectAttempts {
			c.setState(StateError)
			c.logger.Error().Err(err).Int("attempts", attempts-1).Msg("stream giving up")
			return fmt.Errorf("%w: %v", ErrReconnectExhausted, err)
		}

		c.setState(StateReconnecting)
		c.logger.Warn().Err(err).Int("attempt", attempts).Dur("delay", delay).Msg("stream reconnecting")

		select {
		case <-ctx.Done():
			c.setState(StateClosed)
			return ctx.Err()
		case <-time.After(delay):
		}

		// Exponential backoff
		delay *= 2
		if delay > c.cfg.MaxReconnectDelay {
			delay = c.cfg.MaxReconnectDelay
		}
	}
}

// session runs one connection until it fails.
func (c *StreamClient) session(ctx context.Context, onSubscribed func()) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.cfg.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	defer func() {
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		conn.Close()
	}()

	if err := c.write(subscribeRequest{Type: "subscribe", IDs: c.feeds.FeedIDs()}); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	c.setState(StateConnected)
	onSubscribed()

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.pingLoop(sessionCtx)
	}()
	// Unblock ReadMessage on cancellation.
	go func() {
		<-sessionCtx.Done()
		conn.SetReadDeadline(time.Now())
	}()

	err = c.readLoop(ctx, conn)
	cancel()
	wg.Wait()
	return err
}

func (c *StreamClient) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if err := c.handleMessage(ctx, message); err != nil {
			return err
		}
	}
}

func (c *StreamClient) handleMessage(ctx context.Context, message []byte) error {
	var msg streamMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.dropped.Add(1)
		c.logger.Warn().Err(err).Msg("undecodable stream message")
		return nil
	}

	switch msg.Type {
	case "response":
		if msg.Status == "error" {
			return fmt.Errorf("subscribe rejected: %s", msg.Error)
		}
	case "price_update":
		if msg.PriceFeed == nil {
			c.dropped.Add(1)
			return nil
		}
		sample, err := c.feeds.toSample(msg.PriceFeed, domain.SourceLive)
		if err != nil {
			c.dropped.Add(1)
			c.logger.Warn().Err(err).Str("feed_id", msg.PriceFeed.ID).Msg("dropping price update")
			return nil
		}
		// Block until consumed: samples are never dropped silently.
		select {
		case c.samples <- sample:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (c *StreamClient) write(v interface{}) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return errors.New("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteJSON(v)
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (c *StreamClient) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					c.logger.Debug().Err(err).Msg("ping failed")
				}
			}
			c.connMu.Unlock()
		}
	}
}
