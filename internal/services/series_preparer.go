package services

import (
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/litansh/TrendMaster-AI/internal/config"
	"github.com/litansh/TrendMaster-AI/internal/models"
)

// extremeTrimMinPoints is the minimum series length before the extreme-value
// trim kicks in; short series keep every point.
const extremeTrimMinPoints = 100

// SeriesPreparer normalizes raw traffic series before analysis: invalid
// values out, timestamps ordered, extreme outliers above the 99.9th
// percentile trimmed on long series.
type SeriesPreparer struct {
	cfg    *config.Config
	logger *logrus.Logger
}

func NewSeriesPreparer(cfg *config.Config, logger *logrus.Logger) *SeriesPreparer {
	return &SeriesPreparer{cfg: cfg, logger: logger}
}

// Prepare returns a cleaned copy of the series. An empty input yields an
// empty series, never an error.
func (p *SeriesPreparer) Prepare(series *models.TrafficSeries) *models.TrafficSeries {
	cleaned := &models.TrafficSeries{Partner: series.Partner, Path: series.Path}
	if series.Empty() {
		return cleaned
	}

	dropped := 0
	for _, point := range series.Points {
		if math.IsNaN(point.Value) || math.IsInf(point.Value, 0) || point.Value < 0 {
			dropped++
			continue
		}
		cleaned.Points = append(cleaned.Points, point)
	}

	sort.Slice(cleaned.Points, func(i, j int) bool {
		return cleaned.Points[i].Timestamp.Before(cleaned.Points[j].Timestamp)
	})

	trimmed := 0
	if len(cleaned.Points) > extremeTrimMinPoints {
		cutoff := Percentile(cleaned.Values(), 99.9)
		kept := cleaned.Points[:0]
		for _, point := range cleaned.Points {
			if point.Value > cutoff {
				trimmed++
				continue
			}
			kept = append(kept, point)
		}
		cleaned.Points = kept
	}

	if dropped > 0 || trimmed > 0 {
		p.logger.WithFields(logrus.Fields{
			"partner": series.Partner,
			"path":    series.Path,
			"dropped": dropped,
			"trimmed": trimmed,
			"kept":    len(cleaned.Points),
		}).Debug("Prepared traffic series")
	}

	return cleaned
}
