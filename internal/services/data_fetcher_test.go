package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litansh/TrendMaster-AI/internal/models"
)

type fakeSource struct {
	series    *models.TrafficSeries
	breakdown map[string]int64
	err       error
	calls     int
}

func (s *fakeSource) FetchTrafficSeries(ctx context.Context, partner, path string, start, end time.Time) (*models.TrafficSeries, error) {
	s.calls++
	return s.series, s.err
}

func (s *fakeSource) FetchCacheBreakdown(ctx context.Context, partner, path string, window time.Duration) (map[string]int64, error) {
	s.calls++
	return s.breakdown, s.err
}

func newFetcher(t *testing.T, source TrafficSource) *DataFetcher {
	cfg := testConfig(t)
	return NewDataFetcher(cfg, testLogger(), source, nil, NewTimeoutManager(nil, testLogger()))
}

func TestFetchSeriesDelegatesToSource(t *testing.T) {
	want := hourlySeries(10, func(int) float64 { return 100 })
	source := &fakeSource{series: want}

	got, err := newFetcher(t, source).FetchSeries(context.Background(), "acme", "/api/v1/orders")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, source.calls)
}

func TestFetchSeriesSourceErrorPropagates(t *testing.T) {
	source := &fakeSource{err: errors.New("prometheus down")}

	_, err := newFetcher(t, source).FetchSeries(context.Background(), "acme", "/api/v1/orders")
	assert.Error(t, err)
}

func TestFetchSeriesDryRunSynthesizes(t *testing.T) {
	cfg := testConfig(t)
	cfg.DryRun = true
	source := &fakeSource{}
	fetcher := NewDataFetcher(cfg, testLogger(), source, nil, NewTimeoutManager(nil, testLogger()))

	series, err := fetcher.FetchSeries(context.Background(), "acme", "/api/v1/orders")
	require.NoError(t, err)
	assert.Greater(t, series.Len(), 1000, "a week at 5m resolution")
	assert.Equal(t, 0, source.calls, "dry run never touches the source")
}

func TestSynthesizeSeriesIsDeterministic(t *testing.T) {
	fetcher := newFetcher(t, nil)
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)

	first := fetcher.SynthesizeSeries("acme", "/api/v1/orders", start, end)
	second := fetcher.SynthesizeSeries("acme", "/api/v1/orders", start, end)
	assert.Equal(t, first, second)

	other := fetcher.SynthesizeSeries("globex", "/api/v1/orders", start, end)
	assert.NotEqual(t, first.Values(), other.Values(), "different pairs get different traffic shapes")
}

func TestSynthesizeSeriesShape(t *testing.T) {
	fetcher := newFetcher(t, nil)
	// A Monday, to keep the weekend factor out of the comparison.
	start := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	series := fetcher.SynthesizeSeries("acme", "/api/v1/orders", start, start.Add(24*time.Hour))

	var evening, night []float64
	for _, point := range series.Points {
		switch h := point.Timestamp.Hour(); {
		case h >= 19 && h <= 22:
			evening = append(evening, point.Value)
		case h >= 2 && h <= 4:
			night = append(night, point.Value)
		}
	}

	assert.Greater(t, Mean(evening), Mean(night), "evening prime hours outweigh the night trough")
	for _, v := range series.Values() {
		assert.GreaterOrEqual(t, v, 0.0)
	}
}

func TestFetchCacheBreakdownDryRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.DryRun = true
	fetcher := NewDataFetcher(cfg, testLogger(), nil, nil, NewTimeoutManager(nil, testLogger()))

	breakdown, err := fetcher.FetchCacheBreakdown(context.Background(), "acme", "/api/v1/orders")
	require.NoError(t, err)

	var total int64
	for _, count := range breakdown {
		total += count
	}
	assert.Greater(t, total, int64(0))
	assert.Contains(t, breakdown, CacheStatusHit)
	assert.Contains(t, breakdown, CacheStatusMiss)
}

func TestFetchCacheBreakdownDelegates(t *testing.T) {
	want := map[string]int64{CacheStatusHit: 100, CacheStatusMiss: 50}
	source := &fakeSource{breakdown: want}

	got, err := newFetcher(t, source).FetchCacheBreakdown(context.Background(), "acme", "/api/v1/orders")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestValidateQuality(t *testing.T) {
	cfg := testConfig(t)
	cfg.Prometheus.Step = time.Hour
	fetcher := NewDataFetcher(cfg, testLogger(), nil, nil, NewTimeoutManager(nil, testLogger()))

	healthy := hourlySeries(200, func(int) float64 { return 100 })
	report := fetcher.ValidateQuality(healthy)
	assert.True(t, report.OK)
	assert.Equal(t, 0, report.Gaps)
	assert.Equal(t, 0.0, report.ZeroShare)
	assert.False(t, report.ExtremeTail)

	dead := hourlySeries(100, func(i int) float64 {
		if i%2 == 0 {
			return 0
		}
		return 100
	})
	report = fetcher.ValidateQuality(dead)
	assert.InDelta(t, 0.5, report.ZeroShare, 1e-9)
	assert.False(t, report.OK)

	spiked := hourlySeries(300, func(i int) float64 {
		if i == 100 {
			return 100000
		}
		return 100
	})
	report = fetcher.ValidateQuality(spiked)
	assert.True(t, report.ExtremeTail)

	gappy := hourlySeries(50, func(int) float64 { return 100 })
	gappy.Points = append(gappy.Points, models.MetricPoint{
		Timestamp: gappy.Points[49].Timestamp.Add(12 * time.Hour),
		Value:     100,
	})
	report = fetcher.ValidateQuality(gappy)
	assert.Equal(t, 1, report.Gaps)

	report = fetcher.ValidateQuality(&models.TrafficSeries{})
	assert.False(t, report.OK)
}
