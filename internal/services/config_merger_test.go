package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litansh/TrendMaster-AI/internal/models"
)

func existingRateLimitConfig() *models.RateLimitConfig {
	return &models.RateLimitConfig{
		Domain: "global-ratelimit",
		Descriptors: []models.PartnerDescriptor{
			{
				Key:   models.DescriptorKeyPartner,
				Value: "acme",
				Descriptors: []models.PathDescriptor{
					{Key: models.DescriptorKeyPath, Value: "/api/v1/orders",
						RateLimit: &models.RateLimitSpec{Unit: models.RateLimitUnitMinute, RequestsPerUnit: 300}},
					{Key: models.DescriptorKeyPath, Value: "/api/v1/users",
						RateLimit: &models.RateLimitSpec{Unit: models.RateLimitUnitMinute, RequestsPerUnit: 500}},
				},
			},
		},
	}
}

func mergeResults() []*models.RateCalculationResult {
	return []*models.RateCalculationResult{
		{Partner: "acme", Path: "/api/v1/orders", RecommendedRateLimit: 400},
		{Partner: "acme", Path: "/api/v1/users", RecommendedRateLimit: 500},
		{Partner: "globex", Path: "/api/v1/orders", RecommendedRateLimit: 1200},
	}
}

func TestSelectiveMergeOnlyUpdatesExisting(t *testing.T) {
	merger := NewConfigMerger(testConfig(t), testLogger())
	existing := existingRateLimitConfig()

	merged, report := merger.Merge(existing, mergeResults(), true)

	flat := merged.Flatten()
	require.Len(t, flat, 2, "selective mode never adds entries")
	assert.Equal(t, 400, flat[models.ConfigKey{Partner: "acme", Path: "/api/v1/orders"}])
	assert.Equal(t, 500, flat[models.ConfigKey{Partner: "acme", Path: "/api/v1/users"}])

	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, report.Added)
	require.Len(t, report.Modified, 1)
	assert.Equal(t, "/api/v1/orders", report.Modified[0].Path)
	assert.InDelta(t, 33.33, report.Modified[0].ChangePercent, 0.01)
	assert.Equal(t, 1, report.Unchanged)
}

func TestFullMergeAppendsNewEntries(t *testing.T) {
	merger := NewConfigMerger(testConfig(t), testLogger())

	merged, report := merger.Merge(existingRateLimitConfig(), mergeResults(), false)

	flat := merged.Flatten()
	require.Len(t, flat, 3)
	assert.Equal(t, 1200, flat[models.ConfigKey{Partner: "globex", Path: "/api/v1/orders"}])

	require.Len(t, report.Added, 1)
	assert.Equal(t, "globex", report.Added[0].Partner)
	assert.Equal(t, 0, report.Skipped)

	// New partner descriptors carry the wire-format keys.
	pi := merged.FindPartner("globex")
	require.GreaterOrEqual(t, pi, 0)
	assert.Equal(t, models.DescriptorKeyPartner, merged.Descriptors[pi].Key)
	assert.Equal(t, models.DescriptorKeyPath, merged.Descriptors[pi].Descriptors[0].Key)
}

func TestFullMergeAppendsPathUnderExistingPartner(t *testing.T) {
	merger := NewConfigMerger(testConfig(t), testLogger())
	results := []*models.RateCalculationResult{
		{Partner: "acme", Path: "/api/v1/reports", RecommendedRateLimit: 200},
	}

	merged, report := merger.Merge(existingRateLimitConfig(), results, false)

	require.Len(t, merged.Descriptors, 1, "no duplicate partner descriptor")
	assert.Len(t, merged.Descriptors[0].Descriptors, 3)
	assert.Len(t, report.Added, 1)
}

func TestMergeWithNilExistingBuildsFreshTree(t *testing.T) {
	cfg := testConfig(t)
	merger := NewConfigMerger(cfg, testLogger())

	merged, report := merger.Merge(nil, mergeResults(), false)

	assert.Equal(t, cfg.Output.Domain, merged.Domain)
	assert.Len(t, merged.Flatten(), 3)
	assert.Len(t, report.Added, 3)

	merged, report = merger.Merge(nil, mergeResults(), true)
	assert.Empty(t, merged.Flatten(), "selective merge against nothing skips everything")
	assert.Equal(t, 3, report.Skipped)
}

func TestMergeDoesNotMutateExisting(t *testing.T) {
	merger := NewConfigMerger(testConfig(t), testLogger())
	existing := existingRateLimitConfig()

	_, _ = merger.Merge(existing, mergeResults(), false)

	assert.Equal(t, 300, existing.Descriptors[0].Descriptors[0].RateLimit.RequestsPerUnit)
	assert.Len(t, existing.Descriptors, 1)
}

func TestMergeOutputIsSorted(t *testing.T) {
	merger := NewConfigMerger(testConfig(t), testLogger())
	results := []*models.RateCalculationResult{
		{Partner: "zeta", Path: "/b", RecommendedRateLimit: 100},
		{Partner: "alpha", Path: "/z", RecommendedRateLimit: 100},
		{Partner: "alpha", Path: "/a", RecommendedRateLimit: 100},
	}

	merged, _ := merger.Merge(nil, results, false)

	require.Len(t, merged.Descriptors, 2)
	assert.Equal(t, "alpha", merged.Descriptors[0].Value)
	assert.Equal(t, "/a", merged.Descriptors[0].Descriptors[0].Value)
	assert.Equal(t, "zeta", merged.Descriptors[1].Value)
}
