package metrics

import "math"

// computeMean calculates arithmetic mean of values.
func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0 // Need at least 2 samples for sample stddev
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computeLogReturns returns ln(p[i]/p[i-1]) for consecutive prices.
// Non-positive prices are skipped; callers reject them before append.
func computeLogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 || prices[i] <= 0 {
			continue
		}
		returns = append(returns, math.Log(prices[i]/prices[i-1]))
	}
	return returns
}

// computeRealizedVolatility annualizes the per-sample stddev of log returns.
// The per-sample deviation is scaled by sqrt(periodsPerYear * n), where n is
// the number of price samples in the window. Result is in percent.
func computeRealizedVolatility(prices []float64, periodsPerYear float64) float64 {
	returns := computeLogReturns(prices)
	stddev := computeStddev(returns, computeMean(returns))
	if stddev == 0 {
		return 0
	}
	return stddev * math.Sqrt(periodsPerYear*float64(len(prices))) * 100
}

// computeZscore scores value against the baseline distribution.
// Returns 0 when the baseline has fewer than 2 points.
func computeZscore(value float64, baseline []float64, floor float64) float64 {
	if len(baseline) < 2 {
		return 0
	}
	mean := computeMean(baseline)
	stddev := computeStddev(baseline, mean)
	if stddev < floor {
		stddev = floor
	}
	return (value - mean) / stddev
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
