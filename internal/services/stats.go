package services

import (
	"math"
	"sort"
)

// Percentile computes the p-th percentile (0-100) with linear interpolation
// between closest ranks. Empty input yields 0.
func Percentile(values []float64, p float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}

	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// Mean returns the arithmetic mean, 0 for empty input.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Std returns the population standard deviation.
func Std(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	mean := Mean(values)
	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n))
}

// Median is the 50th percentile.
func Median(values []float64) float64 {
	return Percentile(values, 50)
}

// MinMax returns the extremes of the slice, (0, 0) for empty input.
func MinMax(values []float64) (min, max float64) {
	if len(values) == 0 {
		return 0, 0
	}
	min, max = values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// LinearRegression fits y = slope*x + intercept by least squares over index
// positions 0..n-1. Fewer than two points yield a flat fit.
func LinearRegression(values []float64) (slope, intercept float64) {
	n := len(values)
	if n < 2 {
		if n == 1 {
			return 0, values[0]
		}
		return 0, 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return 0, Mean(values)
	}
	slope = (fn*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / fn
	return slope, intercept
}

// zScoreForInterval maps a two-sided interval width (e.g. 0.95) to the
// corresponding standard-normal quantile.
func zScoreForInterval(width float64) float64 {
	switch {
	case width >= 0.99:
		return 2.576
	case width >= 0.98:
		return 2.326
	case width >= 0.95:
		return 1.96
	case width >= 0.90:
		return 1.645
	case width >= 0.80:
		return 1.282
	default:
		return 1.0
	}
}
