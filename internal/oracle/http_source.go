package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cate-trust-layer/internal/domain"
)

// Default HTTP source configuration values.
const (
	DefaultHTTPTimeout     = 10 * time.Second
	DefaultHTTPMaxRetries  = 2
	DefaultHTTPRetryDelay  = 500 * time.Millisecond
	DefaultHTTPMaxDelay    = 5 * time.Second
	DefaultHTTPBackoffMult = 2.0
)

// HTTPSource polls the latest prices over REST. Samples are tagged FALLBACK.
type HTTPSource struct {
	baseURL     string
	feeds       *FeedMap
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// HTTPOption configures HTTPSource.
type HTTPOption func(*HTTPSource)

// WithHTTPTimeout sets HTTP client timeout.
func WithHTTPTimeout(d time.Duration) HTTPOption {
	return func(s *HTTPSource) {
		s.client.Timeout = d
	}
}

// WithHTTPRetries sets maximum retry attempts and the initial retry delay.
func WithHTTPRetries(n int, delay time.Duration) HTTPOption {
	return func(s *HTTPSource) {
		s.maxRetries = n
		s.retryDelay = delay
	}
}

// WithHTTPDoer sets a custom http.Client.
func WithHTTPDoer(client *http.Client) HTTPOption {
	return func(s *HTTPSource) {
		s.client = client
	}
}

// NewHTTPSource creates a REST fallback source for baseURL.
func NewHTTPSource(baseURL string, feeds *FeedMap, opts ...HTTPOption) *HTTPSource {
	s := &HTTPSource{
		baseURL:     strings.TrimRight(baseURL, "/"),
		feeds:       feeds,
		client:      &http.Client{Timeout: DefaultHTTPTimeout},
		maxRetries:  DefaultHTTPMaxRetries,
		retryDelay:  DefaultHTTPRetryDelay,
		maxDelay:    DefaultHTTPMaxDelay,
		backoffMult: DefaultHTTPBackoffMult,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Latest fetches the latest sample of every asset in assetIDs. Assets
// without a feed mapping are skipped.
func (s *HTTPSource) Latest(ctx context.Context, assetIDs []string) ([]domain.OracleSample, error) {
	q := url.Values{}
	for _, a := range assetIDs {
		if id, ok := s.feeds.FeedID(a); ok {
			q.Add("ids[]", id)
		}
	}
	if len(q) == 0 {
		return nil, nil
	}
	q.Set("parsed", "true")
	endpoint := s.baseURL + "/v2/updates/price/latest?" + q.Encode()

	body, err := s.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var resp latestResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal latest prices: %w", err)
	}

	out := make([]domain.OracleSample, 0, len(resp.Parsed))
	for i := range resp.Parsed {
		sample, err := s.feeds.toSample(&resp.Parsed[i], domain.SourceFallback)
		if err != nil {
			return nil, err
		}
		out = append(out, sample)
	}
	return out, nil
}

// get performs a GET with retries and exponential backoff.
func (s *HTTPSource) get(ctx context.Context, endpoint string) ([]byte, error) {
	delay := s.retryDelay
	var lastErr error

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * s.backoffMult)
			if delay > s.maxDelay {
				delay = s.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("unexpected status %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			// Client errors are not retried
			return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
		}
		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
