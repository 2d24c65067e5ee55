package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litansh/TrendMaster-AI/internal/config"
	"github.com/litansh/TrendMaster-AI/internal/models"
)

func newRecommender(t *testing.T, cfg *config.Config) *Recommender {
	t.Helper()
	logger := testLogger()
	timeouts := NewTimeoutManager(TimeoutConfigFrom(cfg), logger)
	fetcher := NewDataFetcher(cfg, logger, nil, nil, timeouts)
	preparer := NewSeriesPreparer(cfg, logger)
	analyzer := NewTrafficAnalyzer(cfg, logger, timeouts)
	primeDetector := NewPrimeTimeDetector(cfg, logger)
	cacheEstimator := NewCacheImpactEstimator(cfg, logger)
	calculator := NewRateCalculator(cfg, logger, cacheEstimator, primeDetector)
	return NewRecommender(cfg, logger, fetcher, preparer, analyzer, primeDetector, cacheEstimator, calculator)
}

func dryRunConfig(t *testing.T) *config.Config {
	cfg := testConfig(t)
	cfg.DryRun = true
	cfg.Workers = 3
	cfg.Partners.Partners = []string{"acme", "globex"}
	cfg.Partners.APIs = []string{"/api/v1/orders", "/api/v1/users"}
	return cfg
}

func TestRunProducesOneResultPerPair(t *testing.T) {
	cfg := dryRunConfig(t)
	rec := newRecommender(t, cfg)

	output, err := rec.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, output.Results, 4)
	assert.NotEmpty(t, output.RunID)

	for _, result := range output.Results {
		assert.False(t, result.Excluded)
		assert.Equal(t, models.MethodEnhancedFormula, result.CalculationMethod)
		assert.GreaterOrEqual(t, result.RecommendedRateLimit, cfg.RateCalculation.MinRateLimit)
		assert.NotNil(t, result.BaseMetrics)
	}

	// Deterministic ordering by partner then path.
	assert.Equal(t, "acme", output.Results[0].Partner)
	assert.Equal(t, "/api/v1/orders", output.Results[0].Path)
	assert.Equal(t, "globex", output.Results[3].Partner)
	assert.Equal(t, "/api/v1/users", output.Results[3].Path)
}

func TestRunIsDeterministicInDryRun(t *testing.T) {
	cfg := dryRunConfig(t)

	first, err := newRecommender(t, cfg).Run(context.Background())
	require.NoError(t, err)
	second, err := newRecommender(t, cfg).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, second.Results, len(first.Results))
	for i := range first.Results {
		assert.Equal(t, first.Results[i].RecommendedRateLimit, second.Results[i].RecommendedRateLimit)
		assert.Equal(t, first.Results[i].Confidence.Level, second.Results[i].Confidence.Level)
	}
}

func TestRunCountsExclusions(t *testing.T) {
	cfg := dryRunConfig(t)
	cfg.Exclusions.GlobalPartners = []string{"globex"}
	rec := newRecommender(t, cfg)

	output, err := rec.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, output.Summary.Excluded)

	excluded := 0
	for _, result := range output.Results {
		if result.Excluded {
			excluded++
			assert.Equal(t, "globex", result.Partner)
			assert.Equal(t, 0, result.RecommendedRateLimit)
		}
	}
	assert.Equal(t, 2, excluded)
}

func TestRunSummaryRates(t *testing.T) {
	cfg := dryRunConfig(t)
	output, err := newRecommender(t, cfg).Run(context.Background())
	require.NoError(t, err)

	summary := output.Summary
	assert.Equal(t, 4, summary.TotalPairs)
	assert.Greater(t, summary.AvgRate, 0.0)
	assert.GreaterOrEqual(t, summary.MaxRate, summary.MinRate)
	assert.Greater(t, summary.MinRate, 0)
	assert.NotEmpty(t, summary.ByConfidence)
	assert.Equal(t, cfg.Environment, summary.Environment)
}

func TestRunRequiresPartnersAndAPIs(t *testing.T) {
	cfg := dryRunConfig(t)
	cfg.Partners.Partners = nil
	_, err := newRecommender(t, cfg).Run(context.Background())
	assert.Error(t, err)

	cfg = dryRunConfig(t)
	cfg.Partners.APIs = nil
	_, err = newRecommender(t, cfg).Run(context.Background())
	assert.Error(t, err)
}

func TestValidResultsFiltersExcludedAndZero(t *testing.T) {
	rec := newRecommender(t, dryRunConfig(t))

	results := []*models.RateCalculationResult{
		{Partner: "a", Path: "/p", RecommendedRateLimit: 400},
		{Partner: "b", Path: "/p", Excluded: true},
		{Partner: "c", Path: "/p", RecommendedRateLimit: 0},
	}

	valid := rec.ValidResults(results)
	require.Len(t, valid, 1)
	assert.Equal(t, "a", valid[0].Partner)
}
