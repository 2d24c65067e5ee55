package services

import (
	"github.com/sirupsen/logrus"

	"github.com/litansh/TrendMaster-AI/internal/config"
	"github.com/litansh/TrendMaster-AI/internal/models"
)

// PrimeTimeDetector finds the recurring high-traffic hours of a series.
// Hours whose mean traffic reaches the configured percentile of all hourly
// means qualify; contiguous qualifying hours merge into periods which must
// then hold up across days.
type PrimeTimeDetector struct {
	cfg    *config.Config
	logger *logrus.Logger
}

func NewPrimeTimeDetector(cfg *config.Config, logger *logrus.Logger) *PrimeTimeDetector {
	return &PrimeTimeDetector{cfg: cfg, logger: logger}
}

// Detect returns the prime periods of a series, or the configured fixed
// fallback window when nothing qualifies.
func (d *PrimeTimeDetector) Detect(series *models.TrafficSeries) *models.PrimeTimeResult {
	result := &models.PrimeTimeResult{Partner: series.Partner, Path: series.Path}

	eligible := d.eligiblePoints(series)
	if len(eligible) == 0 {
		return d.fallback(result, "no points above traffic threshold")
	}

	hourlyMeans, observedHours := hourlyMeansOf(eligible)
	if len(observedHours) == 0 {
		return d.fallback(result, "no observed hours")
	}

	cutoff := Percentile(observedHours, d.cfg.PrimeTime.HourPercentile)

	qualifying := make([]bool, 24)
	for hour, mean := range hourlyMeans {
		if mean >= cutoff {
			qualifying[hour] = true
		}
	}

	periods := mergeContiguousHours(qualifying)

	// Round up so a partial-hour minimum still rules out shorter periods.
	minHours := (d.cfg.PrimeTime.MinDurationMinutes + 59) / 60
	if minHours < 1 {
		minHours = 1
	}

	var survivors []models.PrimePeriod
	for _, period := range periods {
		if period.DurationHours < minHours {
			continue
		}
		period = d.annotatePeriod(period, eligible)
		if period.ConsistencyScore < d.cfg.PrimeTime.ConsistencyThreshold {
			continue
		}
		survivors = append(survivors, period)
	}

	if len(survivors) == 0 {
		return d.fallback(result, "no period met duration and consistency requirements")
	}

	result.Periods = survivors
	d.logger.WithFields(logrus.Fields{
		"partner": series.Partner,
		"path":    series.Path,
		"periods": len(survivors),
		"hours":   result.TotalPrimeHours(),
	}).Debug("Detected prime-time periods")

	return result
}

// PrimeTimeSlice returns the subset of the series that falls inside the
// detected prime hours.
func (d *PrimeTimeDetector) PrimeTimeSlice(series *models.TrafficSeries, primeTime *models.PrimeTimeResult) *models.TrafficSeries {
	sliced := &models.TrafficSeries{Partner: series.Partner, Path: series.Path}
	for _, point := range series.Points {
		if primeTime.ContainsHour(point.Timestamp.Hour()) {
			sliced.Points = append(sliced.Points, point)
		}
	}
	return sliced
}

// eligiblePoints drops points below the traffic threshold so maintenance
// windows and dead hours do not drag the hourly means down.
func (d *PrimeTimeDetector) eligiblePoints(series *models.TrafficSeries) []models.MetricPoint {
	var eligible []models.MetricPoint
	for _, point := range series.Points {
		if point.Value >= d.cfg.PrimeTime.MinTrafficThreshold {
			eligible = append(eligible, point)
		}
	}
	return eligible
}

func (d *PrimeTimeDetector) fallback(result *models.PrimeTimeResult, reason string) *models.PrimeTimeResult {
	start := d.cfg.PrimeTime.FallbackStartHour
	end := d.cfg.PrimeTime.FallbackEndHour
	result.Fallback = true
	result.Periods = []models.PrimePeriod{{
		StartHour:        start,
		EndHour:          end,
		DurationHours:    end - start + 1,
		ConsistencyScore: 0,
	}}

	d.logger.WithFields(logrus.Fields{
		"partner": result.Partner,
		"path":    result.Path,
		"reason":  reason,
	}).Debug("Using fallback prime-time window")

	return result
}

// annotatePeriod fills in traffic stats and the cross-day consistency score:
// the share of observed days whose in-period mean reaches that day's overall
// mean. Fewer than two distinct days score 1.
func (d *PrimeTimeDetector) annotatePeriod(period models.PrimePeriod, points []models.MetricPoint) models.PrimePeriod {
	var inPeriod []float64
	dayAll := make(map[string][]float64)
	dayIn := make(map[string][]float64)

	for _, point := range points {
		day := point.Timestamp.Format("2006-01-02")
		dayAll[day] = append(dayAll[day], point.Value)
		if period.Contains(point.Timestamp.Hour()) {
			inPeriod = append(inPeriod, point.Value)
			dayIn[day] = append(dayIn[day], point.Value)
		}
	}

	period.AvgTraffic = Mean(inPeriod)
	_, period.PeakTraffic = MinMax(inPeriod)

	if len(dayAll) < 2 {
		period.ConsistencyScore = 1
		return period
	}

	consistent := 0
	for day, all := range dayAll {
		in, ok := dayIn[day]
		if !ok {
			continue
		}
		if Mean(in) >= Mean(all) {
			consistent++
		}
	}
	period.ConsistencyScore = float64(consistent) / float64(len(dayAll))
	return period
}

func hourlyMeansOf(points []models.MetricPoint) (map[int]float64, []float64) {
	var sums [24]float64
	var counts [24]int
	for _, point := range points {
		h := point.Timestamp.Hour()
		sums[h] += point.Value
		counts[h]++
	}

	means := make(map[int]float64)
	var observed []float64
	for h := 0; h < 24; h++ {
		if counts[h] == 0 {
			continue
		}
		mean := sums[h] / float64(counts[h])
		means[h] = mean
		observed = append(observed, mean)
	}
	return means, observed
}

func mergeContiguousHours(qualifying []bool) []models.PrimePeriod {
	var periods []models.PrimePeriod
	start := -1
	for hour := 0; hour < 24; hour++ {
		if qualifying[hour] {
			if start == -1 {
				start = hour
			}
			continue
		}
		if start != -1 {
			periods = append(periods, models.PrimePeriod{
				StartHour:     start,
				EndHour:       hour - 1,
				DurationHours: hour - start,
			})
			start = -1
		}
	}
	if start != -1 {
		periods = append(periods, models.PrimePeriod{
			StartHour:     start,
			EndHour:       23,
			DurationHours: 24 - start,
		})
	}
	return periods
}
