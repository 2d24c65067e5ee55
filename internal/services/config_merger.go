package services

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/litansh/TrendMaster-AI/internal/config"
	"github.com/litansh/TrendMaster-AI/internal/models"
)

// ConfigMerger folds rate recommendations into a descriptor tree. Selective
// mode only updates pairs that already exist in the applied configuration;
// full mode also appends new ones. Merge skips are a policy outcome distinct
// from calculator exclusions and are counted separately.
type ConfigMerger struct {
	cfg    *config.Config
	logger *logrus.Logger
}

func NewConfigMerger(cfg *config.Config, logger *logrus.Logger) *ConfigMerger {
	return &ConfigMerger{cfg: cfg, logger: logger}
}

// Merge applies the results to a copy of the existing configuration and
// reports what changed. A nil existing config merges into an empty tree
// under the configured domain.
func (m *ConfigMerger) Merge(existing *models.RateLimitConfig, results []*models.RateCalculationResult, selective bool) (*models.RateLimitConfig, *models.ChangeReport) {
	merged := cloneConfig(existing)
	if merged.Domain == "" {
		merged.Domain = m.cfg.Output.Domain
	}

	oldFlat := existing.Flatten()
	report := &models.ChangeReport{}

	for _, result := range results {
		applied := m.applyResult(merged, result, selective)
		if !applied {
			report.Skipped++
			m.logger.WithFields(logrus.Fields{
				"partner": result.Partner,
				"path":    result.Path,
				"rate":    result.RecommendedRateLimit,
			}).Info("Selective merge skipped recommendation with no existing entry")
		}
	}

	merged.SortDescriptors()

	newFlat := merged.Flatten()
	for key, newRate := range newFlat {
		oldRate, existed := oldFlat[key]
		switch {
		case !existed:
			report.Added = append(report.Added, models.RateChange{
				Partner:       key.Partner,
				Path:          key.Path,
				NewLimit:      newRate,
				ChangePercent: models.PercentChange(0, newRate),
			})
		case oldRate != newRate:
			report.Modified = append(report.Modified, models.RateChange{
				Partner:       key.Partner,
				Path:          key.Path,
				OldLimit:      oldRate,
				NewLimit:      newRate,
				ChangePercent: models.PercentChange(oldRate, newRate),
			})
		default:
			report.Unchanged++
		}
	}
	for key, oldRate := range oldFlat {
		if _, kept := newFlat[key]; !kept {
			report.Removed = append(report.Removed, models.RateChange{
				Partner:       key.Partner,
				Path:          key.Path,
				OldLimit:      oldRate,
				ChangePercent: -100,
			})
		}
	}

	sortChanges(report.Added)
	sortChanges(report.Modified)
	sortChanges(report.Removed)

	m.logger.WithFields(logrus.Fields{
		"added":     len(report.Added),
		"modified":  len(report.Modified),
		"removed":   len(report.Removed),
		"unchanged": report.Unchanged,
		"skipped":   report.Skipped,
		"selective": selective,
	}).Info("Merged rate recommendations")

	return merged, report
}

// applyResult updates or inserts one (partner, path) entry. It reports false
// when selective mode refuses to insert a new pair.
func (m *ConfigMerger) applyResult(merged *models.RateLimitConfig, result *models.RateCalculationResult, selective bool) bool {
	spec := &models.RateLimitSpec{
		Unit:            models.RateLimitUnitMinute,
		RequestsPerUnit: result.RecommendedRateLimit,
	}

	pi := merged.FindPartner(result.Partner)
	if pi >= 0 {
		if qi := merged.Descriptors[pi].FindPath(result.Path); qi >= 0 {
			merged.Descriptors[pi].Descriptors[qi].RateLimit = spec
			return true
		}
		if selective {
			return false
		}
		merged.Descriptors[pi].Descriptors = append(merged.Descriptors[pi].Descriptors, models.PathDescriptor{
			Key:       models.DescriptorKeyPath,
			Value:     result.Path,
			RateLimit: spec,
		})
		return true
	}

	if selective {
		return false
	}
	merged.Descriptors = append(merged.Descriptors, models.PartnerDescriptor{
		Key:   models.DescriptorKeyPartner,
		Value: result.Partner,
		Descriptors: []models.PathDescriptor{{
			Key:       models.DescriptorKeyPath,
			Value:     result.Path,
			RateLimit: spec,
		}},
	})
	return true
}

func cloneConfig(existing *models.RateLimitConfig) *models.RateLimitConfig {
	clone := &models.RateLimitConfig{}
	if existing == nil {
		return clone
	}
	clone.Domain = existing.Domain
	for _, partner := range existing.Descriptors {
		copied := models.PartnerDescriptor{Key: partner.Key, Value: partner.Value}
		for _, path := range partner.Descriptors {
			pathCopy := models.PathDescriptor{Key: path.Key, Value: path.Value}
			if path.RateLimit != nil {
				spec := *path.RateLimit
				pathCopy.RateLimit = &spec
			}
			copied.Descriptors = append(copied.Descriptors, pathCopy)
		}
		clone.Descriptors = append(clone.Descriptors, copied)
	}
	return clone
}

func sortChanges(changes []models.RateChange) {
	sort.Slice(changes, func(i, j int) bool {
		if changes[i].Partner != changes[j].Partner {
			return changes[i].Partner < changes[j].Partner
		}
		return changes[i].Path < changes[j].Path
	})
}
