package models

import (
	"encoding/json"
	"time"
)

// MetricPoint is a single observation of request volume at a point in time.
type MetricPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// TrafficSeries holds the ordered request-count series for one partner/path
// combination. After preparation timestamps are non-decreasing and all values
// are finite and non-negative.
type TrafficSeries struct {
	Partner string        `json:"partner"`
	Path    string        `json:"path"`
	Points  []MetricPoint `json:"points"`
}

// Len returns the number of points in the series.
func (s *TrafficSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Points)
}

// Empty reports whether the series has no points.
func (s *TrafficSeries) Empty() bool {
	return s.Len() == 0
}

// Values returns the raw value sequence in series order.
func (s *TrafficSeries) Values() []float64 {
	if s == nil {
		return nil
	}
	values := make([]float64, len(s.Points))
	for i, p := range s.Points {
		values[i] = p.Value
	}
	return values
}

// PeakTimestamp returns the timestamp of the first occurrence of the series
// maximum. Reporting aid only; ties resolve to the earliest point.
func (s *TrafficSeries) PeakTimestamp() (time.Time, bool) {
	if s.Empty() {
		return time.Time{}, false
	}
	best := 0
	for i, p := range s.Points {
		if p.Value > s.Points[best].Value {
			best = i
		}
	}
	return s.Points[best].Timestamp, true
}

// TrafficPattern classifies how spiky a series is, derived solely from the
// peak-to-mean ratio and coefficient of variation.
type TrafficPattern int

const (
	PatternStable TrafficPattern = iota
	PatternVariable
	PatternModeratelySpiky
	PatternVerySpiky
)

func (p TrafficPattern) String() string {
	switch p {
	case PatternStable:
		return "stable"
	case PatternVariable:
		return "variable"
	case PatternModeratelySpiky:
		return "moderately_spiky"
	case PatternVerySpiky:
		return "very_spiky"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the pattern as its string form.
func (p TrafficPattern) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// ConfidenceLevel is the qualitative trust classification of a recommendation.
type ConfidenceLevel int

const (
	ConfidenceLow ConfidenceLevel = iota
	ConfidenceMedium
	ConfidenceHigh
)

func (l ConfidenceLevel) String() string {
	switch l {
	case ConfidenceHigh:
		return "high"
	case ConfidenceMedium:
		return "medium"
	default:
		return "low"
	}
}

// MarshalJSON renders the level as its string form.
func (l ConfidenceLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// Severity grades how far an anomalous point sits outside its expected range.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityHigh:
		return "high"
	case SeverityMedium:
		return "medium"
	default:
		return "low"
	}
}

// MarshalJSON renders the severity as its string form.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// TrendDirection is the sign of the fitted trend slope.
type TrendDirection int

const (
	TrendStable TrendDirection = iota
	TrendIncreasing
	TrendDecreasing
)

func (d TrendDirection) String() string {
	switch d {
	case TrendIncreasing:
		return "increasing"
	case TrendDecreasing:
		return "decreasing"
	default:
		return "stable"
	}
}

// MarshalJSON renders the direction as its string form.
func (d TrendDirection) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// AnalysisMethod records which analysis path produced an AnalysisResult.
type AnalysisMethod int

const (
	MethodStatisticalFallback AnalysisMethod = iota
	MethodModel
)

func (m AnalysisMethod) String() string {
	if m == MethodModel {
		return "model"
	}
	return "statistical_fallback"
}

// MarshalJSON renders the method as its string form.
func (m AnalysisMethod) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// Anomaly is a point that fell outside the model's prediction interval or the
// statistical bounds.
type Anomaly struct {
	Timestamp  time.Time `json:"timestamp"`
	Actual     float64   `json:"actual_value"`
	Predicted  float64   `json:"predicted_value"`
	LowerBound float64   `json:"lower_bound"`
	UpperBound float64   `json:"upper_bound"`
	Severity   Severity  `json:"severity"`
}

// TrendInfo summarizes the fitted trend of a series.
type TrendInfo struct {
	Slope     float64        `json:"slope"`
	Direction TrendDirection `json:"direction"`
	Mean      float64        `json:"mean"`
	Std       float64        `json:"std"`
}

// SeasonalComponent summarizes one seasonal term of the fitted model.
type SeasonalComponent struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// AnalysisResult is the output of one analyzer pass over a series. It is
// produced once per series and consumed once by the rate calculator.
type AnalysisResult struct {
	Partner   string                       `json:"partner"`
	Path      string                       `json:"path"`
	Anomalies []Anomaly                    `json:"anomalies"`
	Trend     TrendInfo                    `json:"trend_info"`
	Method    AnalysisMethod               `json:"analysis_method"`
	Seasonal  map[string]SeasonalComponent `json:"seasonal_components,omitempty"`
}

// AnomalyCountBySeverity tallies anomalies per severity tier.
func (r *AnalysisResult) AnomalyCountBySeverity() map[Severity]int {
	counts := make(map[Severity]int, 3)
	for _, a := range r.Anomalies {
		counts[a.Severity]++
	}
	return counts
}

// CacheMetrics is the hit/miss/bypass breakdown for one partner/path over a
// time window, or configured defaults when no breakdown is available.
type CacheMetrics struct {
	Partner       string        `json:"partner"`
	Path          string        `json:"path"`
	TotalRequests int64         `json:"total_requests"`
	Hits          int64         `json:"cache_hits"`
	Misses        int64         `json:"cache_misses"`
	Bypasses      int64         `json:"cache_bypasses"`
	Expired       int64         `json:"cache_expired"`
	Stale         int64         `json:"cache_stale"`
	HitRatio      float64       `json:"hit_ratio"`
	MissRatio     float64       `json:"miss_ratio"`
	BypassRatio   float64       `json:"bypass_ratio"`
	Window        time.Duration `json:"window"`
	Defaulted     bool          `json:"defaulted"`
}

// BaseMetrics is an immutable statistical snapshot of a cleaned series,
// computed fresh for every rate calculation.
type BaseMetrics struct {
	EffectivePeak float64   `json:"effective_peak"`
	PeakTime      time.Time `json:"peak_time"`

	OverallMean   float64 `json:"overall_mean"`
	OverallMedian float64 `json:"overall_median"`
	OverallStd    float64 `json:"overall_std"`
	OverallMin    float64 `json:"overall_min"`
	OverallMax    float64 `json:"overall_max"`
	OverallCount  int     `json:"overall_count"`
	OverallP75    float64 `json:"overall_p75"`
	OverallP90    float64 `json:"overall_p90"`
	OverallP95    float64 `json:"overall_p95"`
	OverallP99    float64 `json:"overall_p99"`

	PrimeMean   float64 `json:"prime_mean"`
	PrimeMedian float64 `json:"prime_median"`
	PrimeStd    float64 `json:"prime_std"`
	PrimeMin    float64 `json:"prime_min"`
	PrimeMax    float64 `json:"prime_max"`
	PrimeCount  int     `json:"prime_count"`
	PrimeP75    float64 `json:"prime_p75"`
	PrimeP90    float64 `json:"prime_p90"`
	PrimeP95    float64 `json:"prime_p95"`
	PrimeP99    float64 `json:"prime_p99"`

	CoefficientOfVariation float64        `json:"coefficient_of_variation"`
	PeakToMeanRatio        float64        `json:"peak_to_mean_ratio"`
	PrimeToOverallRatio    float64        `json:"prime_to_overall_ratio"`
	Pattern                TrafficPattern `json:"traffic_pattern"`
}

// Confidence carries the weighted confidence score of one recommendation.
type Confidence struct {
	Overall float64            `json:"overall_confidence"`
	Level   ConfidenceLevel    `json:"confidence_level"`
	Factors map[string]float64 `json:"confidence_factors,omitempty"`
}

// Calculation method identifiers carried on RateCalculationResult.
const (
	MethodEnhancedFormula = "enhanced_formula_v3"
	MethodExcluded        = "excluded"
	MethodDefaultFallback = "default_fallback"
	MethodErrorFallback   = "error_fallback"
)

// RateCalculationResult is the terminal output of the pipeline for one
// partner/path pair. Immutable once constructed; a failed or excluded pair
// still yields a complete, well-formed result.
type RateCalculationResult struct {
	Partner              string       `json:"partner"`
	Path                 string       `json:"path"`
	RecommendedRateLimit int          `json:"recommended_rate_limit"`
	BaseMetrics          *BaseMetrics `json:"base_metrics,omitempty"`
	CalculationMethod    string       `json:"calculation_method"`
	Confidence           Confidence   `json:"confidence"`
	CacheRatioApplied    float64      `json:"cache_ratio_applied"`
	SafetyMarginApplied  float64      `json:"safety_margin_applied"`
	Rationale            string       `json:"rationale"`
	Environment          string       `json:"environment,omitempty"`
	Excluded             bool         `json:"excluded"`
	Error                string       `json:"error,omitempty"`
}

// PrimePeriod is one recurring high-traffic window of hours.
type PrimePeriod struct {
	StartHour        int     `json:"start_hour"`
	EndHour          int     `json:"end_hour"`
	DurationHours    int     `json:"duration_hours"`
	AvgTraffic       float64 `json:"avg_traffic"`
	PeakTraffic      float64 `json:"peak_traffic"`
	ConsistencyScore float64 `json:"consistency_score"`
}

// Contains reports whether the given hour-of-day falls inside the period.
func (p PrimePeriod) Contains(hour int) bool {
	return hour >= p.StartHour && hour <= p.EndHour
}

// PrimeTimeResult is the detector output for one series.
type PrimeTimeResult struct {
	Partner  string        `json:"partner"`
	Path     string        `json:"path"`
	Periods  []PrimePeriod `json:"prime_periods"`
	Fallback bool          `json:"fallback"`
}

// TotalPrimeHours sums the durations of all detected periods.
func (r *PrimeTimeResult) TotalPrimeHours() int {
	total := 0
	for _, p := range r.Periods {
		total += p.DurationHours
	}
	return total
}

// ContainsHour reports whether any detected period covers the hour.
func (r *PrimeTimeResult) ContainsHour(hour int) bool {
	for _, p := range r.Periods {
		if p.Contains(hour) {
			return true
		}
	}
	return false
}
