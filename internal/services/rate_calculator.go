package services

import (
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/litansh/TrendMaster-AI/internal/config"
	"github.com/litansh/TrendMaster-AI/internal/models"
)

// Confidence sub-score weights: data volume, stability, method, prime coverage.
const (
	confidenceWeightVolume    = 0.25
	confidenceWeightStability = 0.30
	confidenceWeightMethod    = 0.25
	confidenceWeightCoverage  = 0.20

	confidenceHighFloor   = 0.80
	confidenceMediumFloor = 0.65
)

// neverBelowPeakHeadroom is the forced headroom over the observed peak when
// the bounded rate would otherwise throttle current traffic.
const neverBelowPeakHeadroom = 1.2

// RateCalculator turns a prepared series plus its analysis, prime-time and
// cache context into one recommended rate limit. Every (partner, path)
// calculation independently succeeds or degrades; nothing propagates out.
type RateCalculator struct {
	cfg            *config.Config
	logger         *logrus.Logger
	cacheEstimator *CacheImpactEstimator
	primeDetector  *PrimeTimeDetector
}

func NewRateCalculator(cfg *config.Config, logger *logrus.Logger, cacheEstimator *CacheImpactEstimator, primeDetector *PrimeTimeDetector) *RateCalculator {
	return &RateCalculator{
		cfg:            cfg,
		logger:         logger,
		cacheEstimator: cacheEstimator,
		primeDetector:  primeDetector,
	}
}

// Calculate runs the formula. Excluded pairs short-circuit with rate 0, an
// empty series yields the default fallback, and any internal failure is
// recovered into an error fallback result.
func (c *RateCalculator) Calculate(
	series *models.TrafficSeries,
	analysis *models.AnalysisResult,
	primeTime *models.PrimeTimeResult,
	cacheMetrics *models.CacheMetrics,
) (result *models.RateCalculationResult) {
	partner, path := series.Partner, series.Path

	if excluded, reason := c.IsExcluded(partner, path); excluded {
		return &models.RateCalculationResult{
			Partner:           partner,
			Path:              path,
			CalculationMethod: models.MethodExcluded,
			Confidence:        models.Confidence{Overall: 1, Level: models.ConfidenceHigh},
			Rationale:         reason,
			Environment:       c.cfg.Environment,
			Excluded:          true,
		}
	}

	if series.Empty() {
		return &models.RateCalculationResult{
			Partner:              partner,
			Path:                 path,
			RecommendedRateLimit: c.cfg.RateCalculation.MinRateLimit,
			CalculationMethod:    models.MethodDefaultFallback,
			Confidence:           models.Confidence{Overall: 0.3, Level: models.ConfidenceLow},
			Rationale:            "no traffic data available, using configured minimum",
			Environment:          c.cfg.Environment,
		}
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.WithFields(logrus.Fields{
				"partner": partner,
				"path":    path,
				"panic":   r,
			}).Error("Rate calculation failed, emitting error fallback")
			result = &models.RateCalculationResult{
				Partner:              partner,
				Path:                 path,
				RecommendedRateLimit: c.cfg.RateCalculation.MinRateLimit,
				CalculationMethod:    models.MethodErrorFallback,
				Confidence:           models.Confidence{Overall: 0.2, Level: models.ConfidenceLow},
				Rationale:            "calculation failed, using configured minimum",
				Environment:          c.cfg.Environment,
				Error:                fmt.Sprintf("%v", r),
			}
		}
	}()

	base := c.ComputeBaseMetrics(series, primeTime)

	rc := c.cfg.RateCalculation
	baseRate := base.EffectivePeak * rc.PeakMultiplier

	cacheMultiplier := c.cacheEstimator.Multiplier(cacheMetrics)
	adjusted := baseRate * cacheMultiplier

	patternMult := c.patternMultiplier(base.Pattern)
	adjusted *= patternMult

	trendMult := c.trendMultiplier(analysis, base.PrimeMean)
	adjusted *= trendMult

	adjusted *= c.partnerMultiplier(partner)
	adjusted *= c.pathMultiplier(path)

	withMargin := adjusted * rc.SafetyMargin

	bounded := math.Min(math.Max(withMargin, float64(rc.MinRateLimit)), float64(rc.MaxRateLimit))
	if bounded < base.EffectivePeak {
		bounded = math.Max(bounded, base.EffectivePeak*neverBelowPeakHeadroom)
	}

	finalRate := c.roundRate(bounded)

	confidence := c.scoreConfidence(base, analysis)

	return &models.RateCalculationResult{
		Partner:              partner,
		Path:                 path,
		RecommendedRateLimit: finalRate,
		BaseMetrics:          base,
		CalculationMethod:    models.MethodEnhancedFormula,
		Confidence:           confidence,
		CacheRatioApplied:    cacheMultiplier,
		SafetyMarginApplied:  rc.SafetyMargin,
		Rationale: fmt.Sprintf(
			"peak %.0f x%.1f, cache x%.2f, %s pattern x%.2f, trend x%.2f, safety x%.1f -> %d",
			base.EffectivePeak, rc.PeakMultiplier, cacheMultiplier,
			base.Pattern, patternMult, trendMult, rc.SafetyMargin, finalRate),
		Environment: c.cfg.Environment,
	}
}

// IsExcluded applies, in order: global partner exclusions, global path
// exclusions, environment-conditional exclusions, then the partner and API
// allow-lists. The first matching rule wins regardless of traffic.
func (c *RateCalculator) IsExcluded(partner, path string) (bool, string) {
	for _, excluded := range c.cfg.Exclusions.GlobalPartners {
		if excluded == partner {
			return true, fmt.Sprintf("partner %s is globally excluded", partner)
		}
	}
	for _, excluded := range c.cfg.Exclusions.GlobalPaths {
		if strings.Contains(path, excluded) {
			return true, fmt.Sprintf("path matches global exclusion %s", excluded)
		}
	}
	if byPartner, ok := c.cfg.Exclusions.Conditional[c.cfg.Environment]; ok {
		for _, excluded := range byPartner[partner] {
			if strings.Contains(path, excluded) {
				return true, fmt.Sprintf("path matches %s exclusion %s for partner %s",
					c.cfg.Environment, excluded, partner)
			}
		}
	}
	if len(c.cfg.Partners.Partners) > 0 && !containsString(c.cfg.Partners.Partners, partner) {
		return true, fmt.Sprintf("partner %s is not in the configured partner list", partner)
	}
	if len(c.cfg.Partners.APIs) > 0 {
		matched := false
		for _, api := range c.cfg.Partners.APIs {
			if strings.Contains(path, api) {
				matched = true
				break
			}
		}
		if !matched {
			return true, fmt.Sprintf("path %s matches no configured API", path)
		}
	}
	return false, ""
}

// ComputeBaseMetrics snapshots the statistics the formula needs. The prime
// subset comes from slicing the series to the detected prime hours.
func (c *RateCalculator) ComputeBaseMetrics(series *models.TrafficSeries, primeTime *models.PrimeTimeResult) *models.BaseMetrics {
	values := series.Values()
	primeValues := values
	if primeTime != nil {
		sliced := c.primeDetector.PrimeTimeSlice(series, primeTime)
		if !sliced.Empty() {
			primeValues = sliced.Values()
		}
	}

	overallMin, overallMax := MinMax(values)
	primeMin, primeMax := MinMax(primeValues)

	base := &models.BaseMetrics{
		OverallMean:   Mean(values),
		OverallMedian: Median(values),
		OverallStd:    Std(values),
		OverallMin:    overallMin,
		OverallMax:    overallMax,
		OverallCount:  len(values),
		OverallP75:    Percentile(values, 75),
		OverallP90:    Percentile(values, 90),
		OverallP95:    Percentile(values, 95),
		OverallP99:    Percentile(values, 99),

		PrimeMean:   Mean(primeValues),
		PrimeMedian: Median(primeValues),
		PrimeStd:    Std(primeValues),
		PrimeMin:    primeMin,
		PrimeMax:    primeMax,
		PrimeCount:  len(primeValues),
		PrimeP75:    Percentile(primeValues, 75),
		PrimeP90:    Percentile(primeValues, 90),
		PrimeP95:    Percentile(primeValues, 95),
		PrimeP99:    Percentile(primeValues, 99),
	}

	base.EffectivePeak = math.Max(base.OverallP90, base.PrimeP90)
	if peakAt, ok := series.PeakTimestamp(); ok {
		base.PeakTime = peakAt
	}
	if base.OverallMean > 0 {
		base.CoefficientOfVariation = base.OverallStd / base.OverallMean
		base.PeakToMeanRatio = base.OverallMax / base.OverallMean
	}
	if base.OverallCount > 0 {
		base.PrimeToOverallRatio = float64(base.PrimeCount) / float64(base.OverallCount)
	}
	base.Pattern = c.classifyPattern(base.PeakToMeanRatio, base.CoefficientOfVariation, base.OverallMean)

	return base
}

// classifyPattern grades spikiness from peak-to-mean ratio and coefficient
// of variation against the configured thresholds.
func (c *RateCalculator) classifyPattern(peakToMean, cv, mean float64) models.TrafficPattern {
	if mean == 0 {
		return models.PatternStable
	}
	t := c.cfg.RateCalculation.PatternThresholds
	switch {
	case peakToMean > t.VerySpikyRatio && cv > t.VerySpikyCV:
		return models.PatternVerySpiky
	case peakToMean > t.ModeratelySpikyRatio && cv > t.ModeratelySpikyCV:
		return models.PatternModeratelySpiky
	case peakToMean > t.VariableRatio || cv > t.VariableCV:
		return models.PatternVariable
	default:
		return models.PatternStable
	}
}

func (c *RateCalculator) patternMultiplier(pattern models.TrafficPattern) float64 {
	m := c.cfg.RateCalculation.PatternMultipliers
	switch pattern {
	case models.PatternVerySpiky:
		return m.VerySpiky
	case models.PatternModeratelySpiky:
		return m.ModeratelySpiky
	case models.PatternVariable:
		return m.Variable
	default:
		return m.Stable
	}
}

// trendMultiplier scales up for a rising trend proportional to slope over
// the prime mean, capped, and scales down by a fixed floor when falling.
func (c *RateCalculator) trendMultiplier(analysis *models.AnalysisResult, primeMean float64) float64 {
	if analysis == nil {
		return 1.0
	}
	rc := c.cfg.RateCalculation
	switch analysis.Trend.Direction {
	case models.TrendIncreasing:
		if primeMean <= 0 {
			return 1.1
		}
		boost := 1.0 + (analysis.Trend.Slope/primeMean)*rc.TrendSlopeFactor
		return math.Min(rc.TrendMaxBoost, boost)
	case models.TrendDecreasing:
		return rc.TrendDecreaseFloor
	default:
		return 1.0
	}
}

func (c *RateCalculator) partnerMultiplier(partner string) float64 {
	if m, ok := c.cfg.Partners.PartnerMultipliers[partner]; ok {
		return m
	}
	return 1.0
}

// pathMultiplier walks the ordered substring table; the first match wins and
// matches never combine.
func (c *RateCalculator) pathMultiplier(path string) float64 {
	for _, entry := range c.cfg.Partners.PathMultipliers {
		if strings.Contains(path, entry.Pattern) {
			return entry.Multiplier
		}
	}
	return 1.0
}

// roundRate rounds to the configured granularity with a floor at that
// granularity, so rounding can never produce zero.
func (c *RateCalculator) roundRate(rate float64) int {
	var granularity float64
	switch c.cfg.RateCalculation.Rounding {
	case config.RoundNearestHundred:
		granularity = 100
	case config.RoundNearestFifty:
		granularity = 50
	case config.RoundNearestTen:
		granularity = 10
	default:
		granularity = 1
	}

	rounded := math.Round(rate/granularity) * granularity
	if rounded < granularity {
		rounded = granularity
	}
	return int(rounded)
}

func (c *RateCalculator) scoreConfidence(base *models.BaseMetrics, analysis *models.AnalysisResult) models.Confidence {
	volume := volumeScore(base.OverallCount)
	stability := stabilityScore(base.CoefficientOfVariation)
	method := methodScore(analysis)
	coverage := coverageScore(base.PrimeToOverallRatio)

	overall := confidenceWeightVolume*volume +
		confidenceWeightStability*stability +
		confidenceWeightMethod*method +
		confidenceWeightCoverage*coverage

	level := models.ConfidenceLow
	switch {
	case overall >= confidenceHighFloor:
		level = models.ConfidenceHigh
	case overall >= confidenceMediumFloor:
		level = models.ConfidenceMedium
	}

	return models.Confidence{
		Overall: overall,
		Level:   level,
		Factors: map[string]float64{
			"data_volume":    volume,
			"stability":      stability,
			"method":         method,
			"prime_coverage": coverage,
		},
	}
}

func volumeScore(count int) float64 {
	switch {
	case count >= 2000:
		return 0.95
	case count >= 1000:
		return 0.85
	case count >= 500:
		return 0.75
	case count >= 100:
		return 0.65
	default:
		return 0.45
	}
}

func stabilityScore(cv float64) float64 {
	switch {
	case cv < 0.2:
		return 0.95
	case cv < 0.4:
		return 0.85
	case cv < 0.8:
		return 0.70
	default:
		return 0.50
	}
}

func methodScore(analysis *models.AnalysisResult) float64 {
	if analysis == nil {
		return 0.60
	}
	if analysis.Method == models.MethodModel {
		return 0.90
	}
	return 0.75
}

func coverageScore(primeRatio float64) float64 {
	switch {
	case primeRatio >= 0.3:
		return 0.90
	case primeRatio >= 0.15:
		return 0.75
	default:
		return 0.60
	}
}

func containsString(list []string, target string) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}
