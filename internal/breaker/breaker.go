// Package breaker implements the fail-closed circuit breaker that gates
// decision signing globally and per asset.
package breaker

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"cate-trust-layer/internal/domain"
)

// Gate errors.
var (
	// ErrCircuitOpen is returned while the global circuit is OPEN.
	ErrCircuitOpen = errors.New("circuit open")
	// ErrAssetBlocked is returned while an asset is blocked.
	ErrAssetBlocked = errors.New("asset blocked")
)

// Config configures the breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int `mapstructure:"failure_threshold"`
	// SuccessThreshold is the number of HALF_OPEN successes that closes it.
	SuccessThreshold int `mapstructure:"success_threshold"`
	// ResetTimeout is how long the circuit stays OPEN before probing.
	ResetTimeout time.Duration `mapstructure:"reset_timeout"`
	// Debounce is the minimum time between transitions, except into OPEN.
	Debounce time.Duration `mapstructure:"debounce"`
	// HalfOpenMaxAttempts is the probe budget while HALF_OPEN.
	HalfOpenMaxAttempts int `mapstructure:"half_open_max_attempts"`
	// AssetFailureLimit is the number of consecutive asset failures that blocks it.
	AssetFailureLimit int `mapstructure:"asset_failure_limit"`
}

// DefaultConfig returns default breaker configuration.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		SuccessThreshold:    3,
		ResetTimeout:        30 * time.Second,
		Debounce:            time.Second,
		HalfOpenMaxAttempts: 5,
		AssetFailureLimit:   3,
	}
}

// StateChangeFunc observes global transitions.
type StateChangeFunc func(from, to domain.CircuitState, reason string)

type assetState struct {
	consecutiveFailures int
	blocked             bool
	healthScore         float64
	lastValid           time.Time
	lastReason          string
}

// Breaker is the global plus per-asset circuit breaker.
// All methods are safe for concurrent use.
type Breaker struct {
	cfg      Config
	now      func() time.Time
	onChange StateChangeFunc

	mu               sync.Mutex
	state            domain.CircuitState
	failureCount     int
	successCount     int
	halfOpenAttempts int
	lastChange       time.Time
	reason           string
	latched          bool // set by EmergencyStop, cleared by Reset
	assets           map[string]*assetState
}

// Option configures Breaker.
type Option func(*Breaker)

// WithClock sets the breaker clock.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		b.now = now
	}
}

// WithStateChange registers a transition observer. It is called with the
// breaker lock held and must not call back into the breaker.
func WithStateChange(fn StateChangeFunc) Option {
	return func(b *Breaker) {
		b.onChange = fn
	}
}

// New creates a breaker in the CLOSED state.
func New(cfg Config, opts ...Option) *Breaker {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.Debounce < 0 {
		cfg.Debounce = 0
	}
	if cfg.HalfOpenMaxAttempts <= 0 {
		cfg.HalfOpenMaxAttempts = def.HalfOpenMaxAttempts
	}
	if cfg.AssetFailureLimit <= 0 {
		cfg.AssetFailureLimit = def.AssetFailureLimit
	}

	b := &Breaker{
		cfg:    cfg,
		now:    time.Now,
		state:  domain.CircuitClosed,
		assets: make(map[string]*assetState),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.lastChange = b.now()
	return b
}

// IsAllowed is the single gate consulted before signing a decision for assetID.
// Returns ErrCircuitOpen or ErrAssetBlocked when the decision must be BLOCK.
func (b *Breaker) IsAllowed(assetID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	if b.state == domain.CircuitOpen {
		if b.latched || now.Sub(b.lastChange) < b.cfg.ResetTimeout || !b.debounced(now) {
			return fmt.Errorf("%w: %s", ErrCircuitOpen, b.reason)
		}
		b.transition(domain.CircuitHalfOpen, "reset timeout elapsed", now)
	}

	// Asset block is checked before a probe is consumed.
	if a, ok := b.assets[assetID]; ok && a.blocked {
		return fmt.Errorf("%w: %s: %s", ErrAssetBlocked, assetID, a.lastReason)
	}

	if b.state == domain.CircuitHalfOpen {
		// Recovery already proven; only the debounce is pending.
		if b.successCount >= b.cfg.SuccessThreshold {
			if b.debounced(now) {
				b.transition(domain.CircuitClosed, "recovered", now)
			}
			return nil
		}
		if b.halfOpenAttempts >= b.cfg.HalfOpenMaxAttempts {
			b.transition(domain.CircuitOpen, "half-open probe budget exhausted", now)
			return fmt.Errorf("%w: %s", ErrCircuitOpen, b.reason)
		}
		b.halfOpenAttempts++
	}

	return nil
}

// RecordSuccess records a clean sample for assetID.
func (b *Breaker) RecordSuccess(assetID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	a := b.asset(assetID)
	a.consecutiveFailures = 0
	a.blocked = false
	a.lastValid = now
	a.lastReason = ""
	a.healthScore = min(100, a.healthScore+10)

	switch b.state {
	case domain.CircuitClosed:
		b.failureCount = 0
	case domain.CircuitHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold && b.debounced(now) {
			b.transition(domain.CircuitClosed, "recovered", now)
		}
	}
}

// RecordFailure records a failed or rejected sample for assetID.
func (b *Breaker) RecordFailure(assetID, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	a := b.asset(assetID)
	a.consecutiveFailures++
	a.lastReason = reason
	a.healthScore = max(0, a.healthScore-100/float64(b.cfg.AssetFailureLimit))
	if a.consecutiveFailures >= b.cfg.AssetFailureLimit {
		a.blocked = true
	}

	switch b.state {
	case domain.CircuitClosed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.transition(domain.CircuitOpen,
				fmt.Sprintf("%d consecutive failures, last: %s", b.failureCount, reason), now)
		}
	case domain.CircuitHalfOpen:
		b.failureCount++
		b.transition(domain.CircuitOpen, "failure while half-open: "+reason, now)
	case domain.CircuitOpen:
		b.failureCount++
	}
}

// EmergencyStop forces the circuit OPEN until Reset is called.
func (b *Breaker) EmergencyStop(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.latched = true
	b.transition(domain.CircuitOpen, "emergency stop: "+reason, b.now())
}

// Reset forces the circuit CLOSED and clears every asset block.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.latched = false
	b.transition(domain.CircuitClosed, "manual reset", b.now())
	for _, a := range b.assets {
		a.consecutiveFailures = 0
		a.blocked = false
	}
}

// Status returns a snapshot of the global circuit.
func (b *Breaker) Status() domain.CircuitStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	return domain.CircuitStatus{
		State:           b.state,
		FailureCount:    b.failureCount,
		SuccessCount:    b.successCount,
		LastStateChange: b.lastChange.UnixMilli(),
		Reason:          b.reason,
	}
}

// AssetStatus returns a snapshot of the asset's circuit.
func (b *Breaker) AssetStatus(assetID string) domain.AssetCircuitStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	a, ok := b.assets[assetID]
	if !ok {
		return domain.AssetCircuitStatus{AssetID: assetID, HealthScore: 100}
	}
	return snapshot(assetID, a)
}

// Assets returns snapshots of all known assets sorted by id.
func (b *Breaker) Assets() []domain.AssetCircuitStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]domain.AssetCircuitStatus, 0, len(b.assets))
	for id, a := range b.assets {
		out = append(out, snapshot(id, a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out
}

func snapshot(id string, a *assetState) domain.AssetCircuitStatus {
	s := domain.AssetCircuitStatus{
		AssetID:             id,
		Blocked:             a.blocked,
		ConsecutiveFailures: a.consecutiveFailures,
		HealthScore:         a.healthScore,
		LastFailureReason:   a.lastReason,
	}
	if !a.lastValid.IsZero() {
		s.LastValidData = a.lastValid.UnixMilli()
	}
	return s
}

func (b *Breaker) asset(assetID string) *assetState {
	a, ok := b.assets[assetID]
	if !ok {
		a = &assetState{healthScore: 100}
		b.assets[assetID] = a
	}
	return a
}

// debounced reports whether enough time passed since the last transition.
func (b *Breaker) debounced(now time.Time) bool {
	return now.Sub(b.lastChange) >= b.cfg.Debounce
}

// transition moves to state. Caller holds mu.
func (b *Breaker) transition(to domain.CircuitState, reason string, now time.Time) {
	from := b.state
	b.state = to
	b.reason = reason
	b.lastChange = now
	b.successCount = 0
	b.halfOpenAttempts = 0
	if to == domain.CircuitClosed {
		b.failureCount = 0
	}
	if b.onChange != nil && from != to {
		b.onChange(from, to, reason)
	}
}
