package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/litansh/TrendMaster-AI/internal/config"
	"github.com/litansh/TrendMaster-AI/internal/models"
)

// RunSummary aggregates one recommendation run.
type RunSummary struct {
	RunID        string         `json:"run_id"`
	Environment  string         `json:"environment"`
	StartedAt    time.Time      `json:"started_at"`
	Duration     time.Duration  `json:"duration"`
	TotalPairs   int            `json:"total_pairs"`
	Excluded     int            `json:"excluded"`
	Errors       int            `json:"errors"`
	ByConfidence map[string]int `json:"by_confidence"`
	AvgRate      float64        `json:"avg_rate"`
	MinRate      int            `json:"min_rate"`
	MaxRate      int            `json:"max_rate"`
}

// RunOutput is everything one run produced.
type RunOutput struct {
	RunID   string                          `json:"run_id"`
	Results []*models.RateCalculationResult `json:"results"`
	Summary RunSummary                      `json:"summary"`
}

// Recommender drives the pipeline for every configured partner/API pair
// through a bounded worker pool. Workers collect into private slices which
// the caller aggregates, so no result collection is shared while hot.
type Recommender struct {
	cfg            *config.Config
	logger         *logrus.Logger
	fetcher        *DataFetcher
	preparer       *SeriesPreparer
	analyzer       *TrafficAnalyzer
	primeDetector  *PrimeTimeDetector
	cacheEstimator *CacheImpactEstimator
	calculator     *RateCalculator
}

func NewRecommender(
	cfg *config.Config,
	logger *logrus.Logger,
	fetcher *DataFetcher,
	preparer *SeriesPreparer,
	analyzer *TrafficAnalyzer,
	primeDetector *PrimeTimeDetector,
	cacheEstimator *CacheImpactEstimator,
	calculator *RateCalculator,
) *Recommender {
	return &Recommender{
		cfg:            cfg,
		logger:         logger,
		fetcher:        fetcher,
		preparer:       preparer,
		analyzer:       analyzer,
		primeDetector:  primeDetector,
		cacheEstimator: cacheEstimator,
		calculator:     calculator,
	}
}

type pair struct {
	partner string
	path    string
}

// Run computes one recommendation per configured (partner, API) pair. Only
// missing global configuration aborts; every per-pair failure degrades into
// a well-formed fallback result.
func (r *Recommender) Run(ctx context.Context) (*RunOutput, error) {
	if len(r.cfg.Partners.Partners) == 0 {
		return nil, fmt.Errorf("no partners configured")
	}
	if len(r.cfg.Partners.APIs) == 0 {
		return nil, fmt.Errorf("no APIs configured")
	}

	runID := uuid.New().String()
	started := time.Now()

	var pairs []pair
	for _, partner := range r.cfg.Partners.Partners {
		for _, api := range r.cfg.Partners.APIs {
			pairs = append(pairs, pair{partner: partner, path: api})
		}
	}

	r.logger.WithFields(logrus.Fields{
		"run_id":  runID,
		"pairs":   len(pairs),
		"workers": r.cfg.Workers,
		"dry_run": r.cfg.DryRun,
	}).Info("Starting recommendation run")

	jobs := make(chan pair)
	perWorker := make(chan []*models.RateCalculationResult, r.cfg.Workers)

	var wg sync.WaitGroup
	for w := 0; w < r.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var local []*models.RateCalculationResult
			for p := range jobs {
				local = append(local, r.processPair(ctx, p.partner, p.path))
			}
			perWorker <- local
		}()
	}

	for _, p := range pairs {
		select {
		case jobs <- p:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			close(perWorker)
			return nil, ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()
	close(perWorker)

	var results []*models.RateCalculationResult
	for local := range perWorker {
		results = append(results, local...)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Partner != results[j].Partner {
			return results[i].Partner < results[j].Partner
		}
		return results[i].Path < results[j].Path
	})

	output := &RunOutput{
		RunID:   runID,
		Results: results,
		Summary: r.summarize(runID, started, results),
	}

	r.logger.WithFields(logrus.Fields{
		"run_id":   runID,
		"results":  len(results),
		"excluded": output.Summary.Excluded,
		"errors":   output.Summary.Errors,
		"duration": output.Summary.Duration,
	}).Info("Recommendation run complete")

	return output, nil
}

// ValidResults filters to results the merger should see: computed,
// non-excluded recommendations.
func (r *Recommender) ValidResults(results []*models.RateCalculationResult) []*models.RateCalculationResult {
	var valid []*models.RateCalculationResult
	for _, result := range results {
		if result.Excluded || result.RecommendedRateLimit <= 0 {
			continue
		}
		valid = append(valid, result)
	}
	return valid
}

func (r *Recommender) processPair(ctx context.Context, partner, path string) *models.RateCalculationResult {
	log := r.logger.WithFields(logrus.Fields{"partner": partner, "path": path})

	// Excluded pairs never hit the metrics store.
	if excluded, _ := r.calculator.IsExcluded(partner, path); excluded {
		return r.calculator.Calculate(&models.TrafficSeries{Partner: partner, Path: path}, nil, nil, nil)
	}

	raw, err := r.fetcher.FetchSeries(ctx, partner, path)
	if err != nil {
		log.WithError(err).Warn("Series fetch failed, treating as no data")
		raw = &models.TrafficSeries{Partner: partner, Path: path}
	}

	prepared := r.preparer.Prepare(raw)

	quality := r.fetcher.ValidateQuality(prepared)
	if !quality.OK {
		log.WithFields(logrus.Fields{
			"points":     quality.Points,
			"gaps":       quality.Gaps,
			"zero_share": quality.ZeroShare,
		}).Debug("Series quality below expectations")
	}

	analysis := r.analyzer.Analyze(ctx, prepared)
	filtered := r.analyzer.FilterAnomalies(prepared, analysis, nil)
	primeTime := r.primeDetector.Detect(filtered)

	breakdown, err := r.fetcher.FetchCacheBreakdown(ctx, partner, path)
	if err != nil {
		log.WithError(err).Warn("Cache breakdown fetch failed, using defaults")
		breakdown = nil
	}
	cacheMetrics := r.cacheEstimator.Estimate(partner, path, breakdown, r.fetcher.lookback())

	return r.calculator.Calculate(filtered, analysis, primeTime, cacheMetrics)
}

func (r *Recommender) summarize(runID string, started time.Time, results []*models.RateCalculationResult) RunSummary {
	summary := RunSummary{
		RunID:        runID,
		Environment:  r.cfg.Environment,
		StartedAt:    started,
		Duration:     time.Since(started),
		TotalPairs:   len(results),
		ByConfidence: make(map[string]int),
	}

	var sum float64
	counted := 0
	for _, result := range results {
		if result.Excluded {
			summary.Excluded++
			continue
		}
		if result.Error != "" {
			summary.Errors++
		}
		summary.ByConfidence[result.Confidence.Level.String()]++

		rate := result.RecommendedRateLimit
		sum += float64(rate)
		counted++
		if summary.MinRate == 0 || rate < summary.MinRate {
			summary.MinRate = rate
		}
		if rate > summary.MaxRate {
			summary.MaxRate = rate
		}
	}
	if counted > 0 {
		summary.AvgRate = sum / float64(counted)
	}

	return summary
}
