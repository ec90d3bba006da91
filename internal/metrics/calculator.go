// Package metrics derives rolling-window oracle statistics per asset.
//
// The confidence z-score compares a sample against the 1h window as it stood
// before the sample was appended: the current point never contributes to its
// own baseline. Replaying the same sample sequence always yields the same
// metrics.
package metrics

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"cate-trust-layer/internal/domain"
)

// ErrInvalidSample is returned when a sample has a non-positive price or a
// negative confidence.
var ErrInvalidSample = errors.New("invalid sample")

// Window names.
const (
	Window1m  = "1m"
	Window5m  = "5m"
	Window15m = "15m"
	Window1h  = "1h"
)

// HoursPerYear is used to annualize hourly statistics.
const HoursPerYear = 365 * 24

// WindowSpec bounds a rolling window by age and length.
type WindowSpec struct {
	Name      string
	MaxAge    time.Duration
	MaxPoints int
}

// Config configures the Calculator.
type Config struct {
	Windows []WindowSpec

	// StddevFloor is the minimum stddev used for the z-score.
	StddevFloor float64
	// PeriodsPerYear is the number of 1h windows per year.
	PeriodsPerYear float64
	// ExpectedUpdateInterval is the nominal feed cadence used for the
	// update-frequency quality component.
	ExpectedUpdateInterval time.Duration
	// MaxFreshness is the age at which the freshness quality component hits 0.
	MaxFreshness time.Duration
}

// DefaultConfig returns default calculator configuration.
func DefaultConfig() Config {
	return Config{
		Windows: []WindowSpec{
			{Name: Window1m, MaxAge: time.Minute, MaxPoints: 60},
			{Name: Window5m, MaxAge: 5 * time.Minute, MaxPoints: 300},
			{Name: Window15m, MaxAge: 15 * time.Minute, MaxPoints: 900},
			{Name: Window1h, MaxAge: time.Hour, MaxPoints: 3600},
		},
		StddevFloor:            0.01,
		PeriodsPerYear:         HoursPerYear,
		ExpectedUpdateInterval: time.Second,
		MaxFreshness:           60 * time.Second,
	}
}

// Quality blend weights.
const (
	weightFreshness  = 0.4
	weightConfidence = 0.4
	weightFrequency  = 0.2
)

// point is one window entry.
type point struct {
	price      float64
	confidence float64
	ratio      float64
	timestamp  int64 // Unix seconds
}

// rollingWindow is an ordered, age and count bounded sequence of points.
type rollingWindow struct {
	spec   WindowSpec
	points []point
}

// append adds p and evicts points older than p.timestamp - MaxAge, then
// trims the oldest points beyond MaxPoints.
func (w *rollingWindow) append(p point) {
	w.points = append(w.points, p)
	w.evict(p.timestamp)
}

func (w *rollingWindow) evict(now int64) {
	cutoff := now - int64(w.spec.MaxAge/time.Second)
	drop := 0
	for drop < len(w.points) && w.points[drop].timestamp < cutoff {
		drop++
	}
	if over := len(w.points) - drop - w.spec.MaxPoints; w.spec.MaxPoints > 0 && over > 0 {
		drop += over
	}
	if drop > 0 {
		w.points = append(w.points[:0], w.points[drop:]...)
	}
}

func (w *rollingWindow) prices() []float64 {
	out := make([]float64, len(w.points))
	for i, p := range w.points {
		out[i] = p.price
	}
	return out
}

func (w *rollingWindow) ratios() []float64 {
	out := make([]float64, len(w.points))
	for i, p := range w.points {
		out[i] = p.ratio
	}
	return out
}

func (w *rollingWindow) lastTimestamp() (int64, bool) {
	if len(w.points) == 0 {
		return 0, false
	}
	return w.points[len(w.points)-1].timestamp, true
}

// assetWindows holds all windows of one asset.
type assetWindows struct {
	windows map[string]*rollingWindow
}

// Calculator maintains rolling windows per asset and derives OracleMetrics.
// Safe for concurrent use; the pipeline serializes samples per asset.
type Calculator struct {
	cfg Config
	now func() time.Time

	mu     sync.Mutex
	assets map[string]*assetWindows
}

// Option configures Calculator.
type Option func(*Calculator)

// WithClock sets the clock used for freshness.
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) {
		c.now = now
	}
}

// NewCalculator creates a new Calculator.
func NewCalculator(cfg Config, opts ...Option) *Calculator {
	def := DefaultConfig()
	if len(cfg.Windows) == 0 {
		cfg.Windows = def.Windows
	}
	if cfg.StddevFloor <= 0 {
		cfg.StddevFloor = def.StddevFloor
	}
	if cfg.PeriodsPerYear <= 0 {
		cfg.PeriodsPerYear = def.PeriodsPerYear
	}
	if cfg.ExpectedUpdateInterval <= 0 {
		cfg.ExpectedUpdateInterval = def.ExpectedUpdateInterval
	}
	if cfg.MaxFreshness <= 0 {
		cfg.MaxFreshness = def.MaxFreshness
	}

	c := &Calculator{
		cfg:    cfg,
		now:    time.Now,
		assets: make(map[string]*assetWindows),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Append validates the sample, appends it to the asset's windows and returns
// the derived metrics. A sample whose PublishTime is not newer than the last
// stored point (a cached re-emit) is scored but not appended again.
func (c *Calculator) Append(sample domain.OracleSample) (domain.OracleMetrics, error) {
	if err := validateSample(sample); err != nil {
		return domain.OracleMetrics{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	aw := c.windowsFor(sample.AssetID)
	hour := c.primaryWindow(aw)

	ratio := sample.Confidence / sample.Price * 100
	p := point{
		price:      sample.Price,
		confidence: sample.Confidence,
		ratio:      ratio,
		timestamp:  sample.PublishTime,
	}

	// Baseline excludes the current sample.
	hour.evict(sample.PublishTime)
	baseline := hour.ratios()
	zscore := computeZscore(ratio, baseline, c.cfg.StddevFloor)

	last, hasLast := hour.lastTimestamp()
	if !hasLast || sample.PublishTime > last {
		for _, w := range aw.windows {
			w.append(p)
		}
	}

	now := c.now()
	freshness := now.Unix() - sample.PublishTime
	if freshness < 0 {
		freshness = 0
	}

	m := domain.OracleMetrics{
		AssetID:              sample.AssetID,
		Price:                sample.Price,
		Confidence:           sample.Confidence,
		ConfidenceRatio:      ratio,
		ConfidenceZscore:     zscore,
		VolatilityRealized:   computeRealizedVolatility(hour.prices(), c.cfg.PeriodsPerYear),
		VolatilityExpected:   ratio * math.Sqrt(HoursPerYear),
		DataFreshnessSeconds: freshness,
		PublisherCount:       sample.PublisherCount,
		Timestamp:            sample.PublishTime,
		SampleCount:          len(hour.points),
	}
	m.DataQualityScore = c.qualityScore(aw, ratio, freshness)

	return m, nil
}

// WindowLen returns the number of points held in the named window for asset.
func (c *Calculator) WindowLen(assetID, window string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	aw, ok := c.assets[assetID]
	if !ok {
		return 0
	}
	w, ok := aw.windows[window]
	if !ok {
		return 0
	}
	return len(w.points)
}

// Reset drops all windows of asset.
func (c *Calculator) Reset(assetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.assets, assetID)
}

func (c *Calculator) windowsFor(assetID string) *assetWindows {
	aw, ok := c.assets[assetID]
	if ok {
		return aw
	}
	aw = &assetWindows{windows: make(map[string]*rollingWindow, len(c.cfg.Windows))}
	for _, spec := range c.cfg.Windows {
		aw.windows[spec.Name] = &rollingWindow{spec: spec}
	}
	if _, ok := aw.windows[Window1h]; !ok {
		aw.windows[Window1h] = &rollingWindow{spec: WindowSpec{Name: Window1h, MaxAge: time.Hour, MaxPoints: 3600}}
	}
	c.assets[assetID] = aw
	return aw
}

func (c *Calculator) primaryWindow(aw *assetWindows) *rollingWindow {
	return aw.windows[Window1h]
}

// qualityScore blends freshness, confidence and update frequency into [0, 100].
func (c *Calculator) qualityScore(aw *assetWindows, ratio float64, freshness int64) float64 {
	maxFresh := c.cfg.MaxFreshness.Seconds()
	freshComponent := clamp(100*(1-float64(freshness)/maxFresh), 0, 100)

	confComponent := clamp(100-ratio*20, 0, 100)

	freqComponent := 0.0
	if w, ok := aw.windows[Window1m]; ok {
		expected := w.spec.MaxAge.Seconds() / c.cfg.ExpectedUpdateInterval.Seconds()
		if expected > 0 {
			freqComponent = clamp(float64(len(w.points))/expected*100, 0, 100)
		}
	}

	score := weightFreshness*freshComponent + weightConfidence*confComponent + weightFrequency*freqComponent
	return clamp(score, 0, 100)
}

func validateSample(s domain.OracleSample) error {
	if s.AssetID == "" {
		return fmt.Errorf("%w: empty asset id", ErrInvalidSample)
	}
	if math.IsNaN(s.Price) || math.IsInf(s.Price, 0) || s.Price <= 0 {
		return fmt.Errorf("%w: price must be positive, got %v", ErrInvalidSample, s.Price)
	}
	if math.IsNaN(s.Confidence) || math.IsInf(s.Confidence, 0) || s.Confidence < 0 {
		return fmt.Errorf("%w: confidence must be non-negative, got %v", ErrInvalidSample, s.Confidence)
	}
	return nil
}
