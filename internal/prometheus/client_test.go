package prometheus

import (
	"testing"
	"time"

	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrixToSeriesMergesAndSorts(t *testing.T) {
	base := model.TimeFromUnix(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC).Unix())

	matrix := model.Matrix{
		&model.SampleStream{
			Values: []model.SamplePair{
				{Timestamp: base.Add(10 * time.Minute), Value: 30},
				{Timestamp: base.Add(20 * time.Minute), Value: 40},
			},
		},
		&model.SampleStream{
			Values: []model.SamplePair{
				{Timestamp: base, Value: 20},
			},
		},
	}

	series := matrixToSeries("acme", "/api/v1/orders", matrix)

	require.Equal(t, 3, series.Len())
	assert.Equal(t, "acme", series.Partner)
	assert.Equal(t, "/api/v1/orders", series.Path)
	assert.Equal(t, []float64{20, 30, 40}, series.Values(), "points from all streams sorted by timestamp")
}

func TestMatrixToSeriesEmptyMatrix(t *testing.T) {
	series := matrixToSeries("acme", "/api/v1/orders", model.Matrix{})
	assert.True(t, series.Empty())
}

func TestVectorSum(t *testing.T) {
	vector := model.Vector{
		&model.Sample{Value: 100.6},
		&model.Sample{Value: 250},
	}
	assert.Equal(t, int64(350), vectorSum(vector))

	assert.Equal(t, int64(0), vectorSum(model.Matrix{}), "non-vector results count as zero")
}
