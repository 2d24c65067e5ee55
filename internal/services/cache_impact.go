package services

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/litansh/TrendMaster-AI/internal/config"
	"github.com/litansh/TrendMaster-AI/internal/models"
)

// Cache status label values as they appear in the metrics source.
const (
	CacheStatusHit     = "HIT"
	CacheStatusMiss    = "MISS"
	CacheStatusBypass  = "BYPASS"
	CacheStatusExpired = "EXPIRED"
	CacheStatusStale   = "STALE"
)

// Efficiency penalty weights for traffic the cache failed to absorb.
const (
	bypassPenaltyWeight  = 0.3
	expiredPenaltyWeight = 0.2
)

// CacheImpactEstimator turns a cache-status breakdown into CacheMetrics and
// the rate multiplier that accounts for traffic absorbed by the cache.
type CacheImpactEstimator struct {
	cfg    *config.Config
	logger *logrus.Logger
}

func NewCacheImpactEstimator(cfg *config.Config, logger *logrus.Logger) *CacheImpactEstimator {
	return &CacheImpactEstimator{cfg: cfg, logger: logger}
}

// Estimate builds CacheMetrics from a status breakdown. A nil or empty
// breakdown yields defaulted metrics with the configured hit ratio.
func (e *CacheImpactEstimator) Estimate(partner, path string, breakdown map[string]int64, window time.Duration) *models.CacheMetrics {
	var total int64
	for _, count := range breakdown {
		total += count
	}

	if total <= 0 {
		e.logger.WithFields(logrus.Fields{
			"partner": partner,
			"path":    path,
		}).Debug("No cache breakdown available, using defaults")
		return &models.CacheMetrics{
			Partner:   partner,
			Path:      path,
			HitRatio:  e.cfg.Cache.DefaultHitRatio,
			MissRatio: 1 - e.cfg.Cache.DefaultHitRatio,
			Window:    window,
			Defaulted: true,
		}
	}

	metrics := &models.CacheMetrics{
		Partner:       partner,
		Path:          path,
		TotalRequests: total,
		Hits:          breakdown[CacheStatusHit],
		Misses:        breakdown[CacheStatusMiss],
		Bypasses:      breakdown[CacheStatusBypass],
		Expired:       breakdown[CacheStatusExpired],
		Stale:         breakdown[CacheStatusStale],
		Window:        window,
	}
	metrics.HitRatio = float64(metrics.Hits) / float64(total)
	metrics.MissRatio = float64(metrics.Misses) / float64(total)
	metrics.BypassRatio = float64(metrics.Bypasses) / float64(total)

	return metrics
}

// Multiplier returns the cache adjustment factor: a measured hit ratio above
// the threshold earns a proportional boost, anything else gets the flat
// configured default.
func (e *CacheImpactEstimator) Multiplier(metrics *models.CacheMetrics) float64 {
	if metrics != nil && !metrics.Defaulted && metrics.HitRatio >= e.cfg.Cache.HitRatioThreshold {
		return 1.0 + metrics.HitRatio*e.cfg.Cache.MaxBoost
	}
	return e.cfg.Cache.DefaultFactor
}

// EfficiencyScore grades how well the cache absorbs traffic: the hit ratio
// penalized for bypassed and expired/stale responses, clamped to [0, 1].
func (e *CacheImpactEstimator) EfficiencyScore(metrics *models.CacheMetrics) float64 {
	if metrics == nil {
		return 0
	}

	score := metrics.HitRatio - bypassPenaltyWeight*metrics.BypassRatio
	if metrics.TotalRequests > 0 {
		staleShare := float64(metrics.Expired+metrics.Stale) / float64(metrics.TotalRequests)
		score -= expiredPenaltyWeight * staleShare
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
