package metrics

import (
	"math"
	"testing"
)

func TestComputeStddev_SampleFormula(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	mean := computeMean(values)
	if mean != 5 {
		t.Fatalf("expected mean 5, got %f", mean)
	}

	// Sum of squared deviations = 32, n-1 = 7
	want := math.Sqrt(32.0 / 7.0)
	got := computeStddev(values, mean)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("expected stddev %f, got %f", want, got)
	}
}

func TestComputeStddev_FewerThanTwo(t *testing.T) {
	if got := computeStddev(nil, 0); got != 0 {
		t.Errorf("expected 0 for empty input, got %f", got)
	}
	if got := computeStddev([]float64{42}, 42); got != 0 {
		t.Errorf("expected 0 for single value, got %f", got)
	}
}

func TestComputeZscore_StddevFloor(t *testing.T) {
	// Flat baseline has stddev 0, floor 0.01 applies
	baseline := []float64{0.2, 0.2, 0.2}
	got := computeZscore(0.21, baseline, 0.01)
	if math.Abs(got-1.0) > 1e-9 {
		t.Errorf("expected z=1.0 with floored stddev, got %f", got)
	}
}

func TestComputeZscore_ShortBaseline(t *testing.T) {
	if got := computeZscore(5, []float64{1}, 0.01); got != 0 {
		t.Errorf("expected 0 for baseline < 2 points, got %f", got)
	}
}

func TestComputeRealizedVolatility_ConstantPrice(t *testing.T) {
	prices := []float64{100, 100, 100, 100}
	if got := computeRealizedVolatility(prices, HoursPerYear); got != 0 {
		t.Errorf("expected 0 volatility for constant price, got %f", got)
	}
}

func TestComputeRealizedVolatility_Annualized(t *testing.T) {
	prices := []float64{100, 101, 100, 101}
	returns := computeLogReturns(prices)
	if len(returns) != 3 {
		t.Fatalf("expected 3 returns, got %d", len(returns))
	}

	stddev := computeStddev(returns, computeMean(returns))
	// Scaled by the window's sample count, not the return count.
	want := stddev * math.Sqrt(HoursPerYear*4) * 100
	got := computeRealizedVolatility(prices, HoursPerYear)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("expected %f, got %f", want, got)
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		v, lo, hi, want float64
	}{
		{-1, 0, 1, 0},
		{0.5, 0, 1, 0.5},
		{2, 0, 1, 1},
	}
	for _, tt := range tests {
		if got := clamp(tt.v, tt.lo, tt.hi); got != tt.want {
			t.Errorf("clamp(%v, %v, %v) = %v, want %v", tt.v, tt.lo, tt.hi, got, tt.want)
		}
	}
}
