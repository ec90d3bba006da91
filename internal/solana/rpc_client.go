package solana

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
	"github.com/rs/zerolog"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
	DefaultCommitment  = "confirmed"

	maxResponseBody = 4 << 20
)

// HTTPClient implements RPCClient over HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	commitment  string
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
	onLatency   func(method string, d time.Duration)
	logger      zerolog.Logger
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets the initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay caps the retry backoff.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithCommitment sets the commitment level of account reads.
func WithCommitment(level string) ClientOption {
	return func(c *HTTPClient) {
		c.commitment = level
	}
}

// WithLatencyHook registers a callback receiving the duration of every call,
// retries included.
func WithLatencyHook(fn func(method string, d time.Duration)) ClientOption {
	return func(c *HTTPClient) {
		c.onLatency = fn
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *HTTPClient) {
		c.logger = logger.With().Str("component", "solana_rpc").Logger()
	}
}

// NewHTTPClient creates a Solana RPC client for endpoint.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		commitment:  DefaultCommitment,
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RPCError is an error object returned by the node. It is never retried.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// statusError is a non-200 HTTP response.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

// retryable reports whether err may succeed on another attempt.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= http.StatusInternalServerError
	}
	return true
}

// call performs method with retries and exponential backoff. params writes
// the elements of the params array; decode reads the result value.
func (c *HTTPClient) call(ctx context.Context, method string, params func(*jwriter.Writer), decode func(*jlexer.Lexer)) error {
	id := c.requestID.Add(1)
	body, err := encodeRequest(id, method, params)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	if c.onLatency != nil {
		start := time.Now()
		defer func() { c.onLatency(method, time.Since(start)) }()
	}

	delay := c.retryDelay
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug().Err(lastErr).Str("method", method).Int("attempt", attempt).Dur("delay", delay).Msg("retrying rpc call")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		raw, err := c.post(ctx, body)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if !retryable(err) {
				return err
			}
			continue
		}

		resp, err := decodeResponse(raw)
		if err != nil {
			lastErr = fmt.Errorf("decode response: %w", err)
			continue
		}
		if resp.err != nil {
			return resp.err
		}
		if resp.id != id {
			return fmt.Errorf("response id %d does not match request %d", resp.id, id)
		}
		if decode != nil && resp.result != nil {
			in := jlexer.Lexer{Data: resp.result}
			decode(&in)
			if err := in.Error(); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *HTTPClient) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode, body: string(data)}
	}
	return data, nil
}

// AccountInfo is a decoded Solana account.
type AccountInfo struct {
	Lamports   uint64
	Owner      string
	Data       []byte
	Executable bool
	RentEpoch  uint64
}

// GetAccountInfo retrieves an account, or nil if it does not exist.
func (c *HTTPClient) GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error) {
	var (
		info    *AccountInfo
		dataErr error
	)
	err := c.call(ctx, "getAccountInfo",
		func(w *jwriter.Writer) {
			w.String(pubkey)
			w.RawString(`,{"encoding":"base64","commitment":`)
			w.String(c.commitment)
			w.RawByte('}')
		},
		func(in *jlexer.Lexer) {
			info, dataErr = decodeAccountInfoResult(in)
		},
	)
	if err != nil {
		return nil, err
	}
	if dataErr != nil {
		return nil, dataErr
	}
	return info, nil
}

// AccountData returns the data of an account, or (nil, nil) when the account
// does not exist.
func (c *HTTPClient) AccountData(ctx context.Context, address string) ([]byte, error) {
	info, err := c.GetAccountInfo(ctx, address)
	if err != nil || info == nil {
		return nil, err
	}
	return info.Data, nil
}

// GetSlot retrieves the current slot.
func (c *HTTPClient) GetSlot(ctx context.Context) (int64, error) {
	var slot int64
	err := c.call(ctx, "getSlot",
		func(w *jwriter.Writer) {
			w.RawString(`{"commitment":`)
			w.String(c.commitment)
			w.RawByte('}')
		},
		func(in *jlexer.Lexer) { slot = in.Int64() },
	)
	return slot, err
}

// GetHealth returns nil when the node reports "ok".
func (c *HTTPClient) GetHealth(ctx context.Context) error {
	var status string
	if err := c.call(ctx, "getHealth", nil, func(in *jlexer.Lexer) { status = in.String() }); err != nil {
		return err
	}
	if status != "ok" {
		return fmt.Errorf("node unhealthy: %s", status)
	}
	return nil
}
