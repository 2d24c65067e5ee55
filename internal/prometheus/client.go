package prometheus

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"github.com/sirupsen/logrus"

	"github.com/litansh/TrendMaster-AI/internal/config"
	"github.com/litansh/TrendMaster-AI/internal/models"
)

// Client fetches traffic series and cache-status breakdowns from the
// Prometheus HTTP API.
type Client struct {
	api    v1.API
	cfg    *config.Config
	logger *logrus.Logger
}

func NewClient(cfg *config.Config, logger *logrus.Logger) (*Client, error) {
	promClient, err := api.NewClient(api.Config{Address: cfg.Prometheus.URL})
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus client: %w", err)
	}

	return &Client{
		api:    v1.NewAPI(promClient),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// FetchTrafficSeries runs the configured range query for one partner/path and
// returns the merged series. An empty matrix yields an empty series, not an
// error.
func (c *Client) FetchTrafficSeries(ctx context.Context, partner, path string, start, end time.Time) (*models.TrafficSeries, error) {
	query := fmt.Sprintf(c.cfg.Prometheus.TrafficQuery, partner, path)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Prometheus.Timeout)
	defer cancel()

	result, warnings, err := c.api.QueryRange(ctx, query, v1.Range{
		Start: start,
		End:   end,
		Step:  c.cfg.Prometheus.Step,
	})
	if err != nil {
		return nil, fmt.Errorf("range query for %s %s failed: %w", partner, path, err)
	}
	if len(warnings) > 0 {
		c.logger.WithFields(logrus.Fields{
			"partner":  partner,
			"path":     path,
			"warnings": warnings,
		}).Warn("Prometheus returned warnings for traffic query")
	}

	matrix, ok := result.(model.Matrix)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %s for range query", result.Type())
	}

	series := matrixToSeries(partner, path, matrix)
	c.logger.WithFields(logrus.Fields{
		"partner": partner,
		"path":    path,
		"points":  series.Len(),
	}).Debug("Fetched traffic series")

	return series, nil
}

// FetchCacheBreakdown queries the request count per cache status over the
// window and returns the status -> count mapping. Statuses with no samples
// are reported as zero.
func (c *Client) FetchCacheBreakdown(ctx context.Context, partner, path string, window time.Duration) (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Prometheus.Timeout)
	defer cancel()

	windowStr := model.Duration(window).String()
	breakdown := make(map[string]int64, len(c.cfg.Prometheus.CacheStatuses))

	for _, status := range c.cfg.Prometheus.CacheStatuses {
		query := fmt.Sprintf(c.cfg.Prometheus.CacheQuery, partner, path, status, windowStr)

		result, _, err := c.api.Query(ctx, query, time.Now())
		if err != nil {
			return nil, fmt.Errorf("cache query for %s %s status %s failed: %w", partner, path, status, err)
		}

		breakdown[status] = vectorSum(result)
	}

	return breakdown, nil
}

func matrixToSeries(partner, path string, matrix model.Matrix) *models.TrafficSeries {
	series := &models.TrafficSeries{Partner: partner, Path: path}

	for _, stream := range matrix {
		for _, sample := range stream.Values {
			series.Points = append(series.Points, models.MetricPoint{
				Timestamp: sample.Timestamp.Time(),
				Value:     float64(sample.Value),
			})
		}
	}

	sort.Slice(series.Points, func(i, j int) bool {
		return series.Points[i].Timestamp.Before(series.Points[j].Timestamp)
	})

	return series
}

func vectorSum(result model.Value) int64 {
	vector, ok := result.(model.Vector)
	if !ok {
		return 0
	}
	var total float64
	for _, sample := range vector {
		total += float64(sample.Value)
	}
	return int64(total)
}
