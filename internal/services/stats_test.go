package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentile(t *testing.T) {
	values := []float64{15, 20, 35, 40, 50}

	assert.Equal(t, 35.0, Percentile(values, 50))
	assert.Equal(t, 15.0, Percentile(values, 0))
	assert.Equal(t, 50.0, Percentile(values, 100))
	assert.InDelta(t, 29.0, Percentile(values, 40), 1e-9, "linear interpolation between ranks")
	assert.Equal(t, 0.0, Percentile(nil, 50))
}

func TestMeanStdMedian(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	assert.Equal(t, 5.0, Mean(values))
	assert.InDelta(t, 2.0, Std(values), 1e-9)
	assert.Equal(t, 4.5, Median(values))

	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 0.0, Std(nil))
}

func TestMinMax(t *testing.T) {
	min, max := MinMax([]float64{3, -1, 7, 2})
	assert.Equal(t, -1.0, min)
	assert.Equal(t, 7.0, max)

	min, max = MinMax(nil)
	assert.Equal(t, 0.0, min)
	assert.Equal(t, 0.0, max)
}

func TestLinearRegression(t *testing.T) {
	slope, intercept := LinearRegression([]float64{1, 3, 5, 7})
	assert.InDelta(t, 2.0, slope, 1e-9)
	assert.InDelta(t, 1.0, intercept, 1e-9)

	slope, _ = LinearRegression([]float64{5, 5, 5, 5})
	assert.InDelta(t, 0.0, slope, 1e-9)

	slope, intercept = LinearRegression([]float64{42})
	assert.Equal(t, 0.0, slope)
	assert.Equal(t, 42.0, intercept)
}

func TestZScoreForInterval(t *testing.T) {
	assert.Equal(t, 1.96, zScoreForInterval(0.95))
	assert.Equal(t, 2.576, zScoreForInterval(0.99))
	assert.Equal(t, 1.645, zScoreForInterval(0.90))
}
