package services

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/sirupsen/logrus"

	"github.com/litansh/TrendMaster-AI/internal/config"
	"github.com/litansh/TrendMaster-AI/internal/models"
)

// Severity thresholds in interval half-widths.
const (
	severityHighRatio   = 3.0
	severityMediumRatio = 1.5
)

// trendDirectionEpsilon is the relative change over the window below which
// the trend counts as flat.
const trendDirectionEpsilon = 0.05

// TrafficAnalyzer detects anomalies and trend in a prepared series. The
// model path is a seasonal decomposition (smoothed trend plus hour-of-day
// and day-of-week indices); when it cannot run or does not finish in time,
// a statistical fallback (IQR + Z-score) takes over.
type TrafficAnalyzer struct {
	cfg      *config.Config
	logger   *logrus.Logger
	timeouts *TimeoutManager
}

func NewTrafficAnalyzer(cfg *config.Config, logger *logrus.Logger, timeouts *TimeoutManager) *TrafficAnalyzer {
	return &TrafficAnalyzer{cfg: cfg, logger: logger, timeouts: timeouts}
}

// Analyze runs the model under its deadline and falls back to the
// statistical path on short series, timeout, or model error. It always
// returns a usable result.
func (a *TrafficAnalyzer) Analyze(ctx context.Context, series *models.TrafficSeries) *models.AnalysisResult {
	if series.Len() < a.cfg.Analysis.MinPointsForModel {
		a.logger.WithFields(logrus.Fields{
			"partner": series.Partner,
			"path":    series.Path,
			"points":  series.Len(),
		}).Debug("Series too short for model, using statistical fallback")
		return a.analyzeStatistical(series)
	}

	operationID := fmt.Sprintf("%s:%s:%s", OpModelFit, series.Partner, series.Path)
	result, err := a.timeouts.ExecuteWithTimeout(ctx, OpModelFit, operationID,
		func(ctx context.Context) (interface{}, error) {
			return a.fitModel(ctx, series)
		})
	if err != nil {
		a.logger.WithError(err).WithFields(logrus.Fields{
			"partner": series.Partner,
			"path":    series.Path,
			"timeout": IsTimeout(err),
		}).Warn("Model fit failed, using statistical fallback")
		return a.analyzeStatistical(series)
	}

	return result.(*models.AnalysisResult)
}

// fitModel decomposes the series into trend, daily and weekly seasonal
// indices, then flags points outside the residual prediction interval.
func (a *TrafficAnalyzer) fitModel(ctx context.Context, series *models.TrafficSeries) (*models.AnalysisResult, error) {
	values := series.Values()
	n := len(values)

	trendLine := a.smoothedTrend(values)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	multiplicative := strings.EqualFold(a.cfg.Analysis.SeasonalityMode, "multiplicative")
	daily, weekly := a.seasonalIndices(series, trendLine, multiplicative)
	neutral := 0.0
	if multiplicative {
		neutral = 1.0
	}
	if !a.cfg.Analysis.DailySeasonality {
		for h := range daily {
			daily[h] = neutral
		}
	}
	if !a.cfg.Analysis.WeeklySeasonality {
		for d := range weekly {
			weekly[d] = neutral
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	predicted := make([]float64, n)
	residuals := make([]float64, n)
	for i, point := range series.Points {
		hour := point.Timestamp.Hour()
		dow := int(point.Timestamp.Weekday())
		if multiplicative {
			predicted[i] = trendLine[i] * daily[hour] * weekly[dow]
		} else {
			predicted[i] = trendLine[i] + daily[hour] + weekly[dow]
		}
		residuals[i] = values[i] - predicted[i]
	}

	sigma := Std(residuals)
	halfWidth := zScoreForInterval(a.cfg.Analysis.IntervalWidth) * sigma

	result := &models.AnalysisResult{
		Partner: series.Partner,
		Path:    series.Path,
		Method:  models.MethodModel,
	}

	if halfWidth > 0 {
		for i, point := range series.Points {
			deviation := math.Abs(values[i] - predicted[i])
			if deviation <= halfWidth {
				continue
			}
			result.Anomalies = append(result.Anomalies, models.Anomaly{
				Timestamp:  point.Timestamp,
				Actual:     values[i],
				Predicted:  predicted[i],
				LowerBound: predicted[i] - halfWidth,
				UpperBound: predicted[i] + halfWidth,
				Severity:   severityForRatio(deviation / halfWidth),
			})
		}
	}

	slope, _ := LinearRegression(trendLine)
	result.Trend = models.TrendInfo{
		Slope:     slope,
		Direction: directionForSlope(slope, n, Mean(values)),
		Mean:      Mean(values),
		Std:       Std(values),
	}

	result.Seasonal = make(map[string]models.SeasonalComponent, 2)
	if a.cfg.Analysis.DailySeasonality {
		result.Seasonal["daily"] = summarizeComponent(daily[:])
	}
	if a.cfg.Analysis.WeeklySeasonality {
		result.Seasonal["weekly"] = summarizeComponent(weekly[:])
	}

	a.logger.WithFields(logrus.Fields{
		"partner":   series.Partner,
		"path":      series.Path,
		"anomalies": len(result.Anomalies),
		"slope":     slope,
	}).Debug("Model analysis complete")

	return result, nil
}

// smoothedTrend computes a centered moving average aligned back to the
// series length; edges hold the nearest computed value.
func (a *TrafficAnalyzer) smoothedTrend(values []float64) []float64 {
	n := len(values)
	period := a.cfg.Analysis.TrendWindow
	if period < 2 {
		period = 2
	}
	if period > n {
		period = n
	}

	sma := trend.NewSmaWithPeriod[float64](period)
	smoothed := helper.ChanToSlice(sma.Compute(helper.SliceToChan(values)))

	// Trailing SMA output starts at index period-1; recenter by half the
	// window so each smoothed value sits over the middle of its span.
	aligned := make([]float64, n)
	offset := (period - 1) / 2
	for i := range aligned {
		j := i - offset
		switch {
		case j < 0:
			aligned[i] = smoothed[0]
		case j >= len(smoothed):
			aligned[i] = smoothed[len(smoothed)-1]
		default:
			aligned[i] = smoothed[j]
		}
	}
	return aligned
}

// seasonalIndices computes hour-of-day and day-of-week indices over the
// detrended series. Hours or days without samples get the neutral index.
func (a *TrafficAnalyzer) seasonalIndices(series *models.TrafficSeries, trendLine []float64, multiplicative bool) (daily [24]float64, weekly [7]float64) {
	neutral := 0.0
	if multiplicative {
		neutral = 1.0
	}

	detrended := make([]float64, len(series.Points))
	for i, point := range series.Points {
		if multiplicative {
			if trendLine[i] != 0 {
				detrended[i] = point.Value / trendLine[i]
			} else {
				detrended[i] = neutral
			}
		} else {
			detrended[i] = point.Value - trendLine[i]
		}
	}

	var hourSum [24]float64
	var hourCount [24]int
	for i, point := range series.Points {
		h := point.Timestamp.Hour()
		hourSum[h] += detrended[i]
		hourCount[h]++
	}
	for h := 0; h < 24; h++ {
		if hourCount[h] > 0 {
			daily[h] = hourSum[h] / float64(hourCount[h])
		} else {
			daily[h] = neutral
		}
	}

	var daySum [7]float64
	var dayCount [7]int
	for i, point := range series.Points {
		d := int(point.Timestamp.Weekday())
		residual := detrended[i]
		if multiplicative {
			if daily[point.Timestamp.Hour()] != 0 {
				residual = detrended[i] / daily[point.Timestamp.Hour()]
			} else {
				residual = neutral
			}
		} else {
			residual = detrended[i] - daily[point.Timestamp.Hour()]
		}
		daySum[d] += residual
		dayCount[d]++
	}
	for d := 0; d < 7; d++ {
		if dayCount[d] > 0 {
			weekly[d] = daySum[d] / float64(dayCount[d])
		} else {
			weekly[d] = neutral
		}
	}

	return daily, weekly
}

// analyzeStatistical flags points outside the IQR bounds or beyond the
// Z-score threshold. Violating both grades high, one grades medium.
func (a *TrafficAnalyzer) analyzeStatistical(series *models.TrafficSeries) *models.AnalysisResult {
	result := &models.AnalysisResult{
		Partner: series.Partner,
		Path:    series.Path,
		Method:  models.MethodStatisticalFallback,
	}
	if series.Empty() {
		return result
	}

	values := series.Values()
	mean := Mean(values)
	std := Std(values)

	q1 := Percentile(values, 25)
	q3 := Percentile(values, 75)
	iqr := q3 - q1
	lowerIQR := q1 - a.cfg.Analysis.IQRMultiplier*iqr
	upperIQR := q3 + a.cfg.Analysis.IQRMultiplier*iqr

	zThreshold := a.cfg.Analysis.ZScoreThreshold
	for _, point := range series.Points {
		violatesIQR := point.Value < lowerIQR || point.Value > upperIQR
		violatesZ := std > 0 && math.Abs(point.Value-mean)/std > zThreshold
		if !violatesIQR && !violatesZ {
			continue
		}

		severity := models.SeverityMedium
		if violatesIQR && violatesZ {
			severity = models.SeverityHigh
		}
		result.Anomalies = append(result.Anomalies, models.Anomaly{
			Timestamp:  point.Timestamp,
			Actual:     point.Value,
			Predicted:  mean,
			LowerBound: lowerIQR,
			UpperBound: upperIQR,
			Severity:   severity,
		})
	}

	slope, _ := LinearRegression(values)
	result.Trend = models.TrendInfo{
		Slope:     slope,
		Direction: directionForSlope(slope, len(values), mean),
		Mean:      mean,
		Std:       std,
	}

	return result
}

// FilterAnomalies returns a copy of the series without points flagged at
// one of the given severities. A nil severity set means the configured
// default (high only).
func (a *TrafficAnalyzer) FilterAnomalies(series *models.TrafficSeries, analysis *models.AnalysisResult, severities map[models.Severity]bool) *models.TrafficSeries {
	if severities == nil {
		severities = severitySet(a.cfg.Analysis.FilterSeverities)
	}

	flagged := make(map[int64]bool, len(analysis.Anomalies))
	for _, anomaly := range analysis.Anomalies {
		if severities[anomaly.Severity] {
			flagged[anomaly.Timestamp.UnixNano()] = true
		}
	}

	filtered := &models.TrafficSeries{Partner: series.Partner, Path: series.Path}
	for _, point := range series.Points {
		if flagged[point.Timestamp.UnixNano()] {
			continue
		}
		filtered.Points = append(filtered.Points, point)
	}

	if removed := series.Len() - filtered.Len(); removed > 0 {
		a.logger.WithFields(logrus.Fields{
			"partner": series.Partner,
			"path":    series.Path,
			"removed": removed,
		}).Debug("Filtered anomalous points before metric computation")
	}

	return filtered
}

func severitySet(names []string) map[models.Severity]bool {
	set := make(map[models.Severity]bool, len(names))
	for _, name := range names {
		switch strings.ToLower(name) {
		case "high":
			set[models.SeverityHigh] = true
		case "medium":
			set[models.SeverityMedium] = true
		case "low":
			set[models.SeverityLow] = true
		}
	}
	return set
}

func severityForRatio(ratio float64) models.Severity {
	switch {
	case ratio > severityHighRatio:
		return models.SeverityHigh
	case ratio > severityMediumRatio:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// directionForSlope treats a projected change of under 5% of the mean over
// the whole window as flat.
func directionForSlope(slope float64, n int, mean float64) models.TrendDirection {
	if n < 2 || mean == 0 {
		return models.TrendStable
	}
	relative := slope * float64(n-1) / mean
	switch {
	case relative > trendDirectionEpsilon:
		return models.TrendIncreasing
	case relative < -trendDirectionEpsilon:
		return models.TrendDecreasing
	default:
		return models.TrendStable
	}
}

func summarizeComponent(values []float64) models.SeasonalComponent {
	min, max := MinMax(values)
	return models.SeasonalComponent{
		Mean: Mean(values),
		Std:  Std(values),
		Min:  min,
		Max:  max,
	}
}
