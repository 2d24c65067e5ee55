package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/litansh/TrendMaster-AI/internal/cache"
	"github.com/litansh/TrendMaster-AI/internal/config"
	"github.com/litansh/TrendMaster-AI/internal/logging"
	"github.com/litansh/TrendMaster-AI/internal/models"
	"github.com/litansh/TrendMaster-AI/internal/output"
	"github.com/litansh/TrendMaster-AI/internal/prometheus"
	"github.com/litansh/TrendMaster-AI/internal/services"
)

func main() {
	// Optional .env for local runs; absence is fine.
	_ = godotenv.Load()

	var (
		configPath   = flag.String("config", "", "path to config.yaml (default: ./configs/config.yaml)")
		partners     = flag.String("partners", "", "comma-separated partner override")
		apis         = flag.String("apis", "", "comma-separated API path override")
		existingPath = flag.String("existing", "", "path to the currently applied rate limit ConfigMap")
		outputDir    = flag.String("output", "", "output directory override")
		dryRun       = flag.Bool("dry-run", false, "synthesize traffic instead of querying the metrics store")
		full         = flag.Bool("full", false, "full merge: add new entries instead of selective update")
		validateOnly = flag.Bool("validate", false, "load and validate configuration, then exit")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *partners != "" {
		cfg.Partners.Partners = splitList(*partners)
	}
	if *apis != "" {
		cfg.Partners.APIs = splitList(*apis)
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *dryRun {
		cfg.DryRun = true
	}
	if *full {
		cfg.Output.SelectiveUpdate = false
	}

	logger := logging.New(cfg.LogLevel, cfg.Environment)

	if *validateOnly {
		logger.WithField("environment", cfg.Environment).Info("Configuration is valid")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info("Shutting down")
		cancel()
	}()

	timeouts := services.NewTimeoutManager(services.TimeoutConfigFrom(cfg), logger)
	defer timeouts.CancelAllOperations()

	var source services.TrafficSource
	if !cfg.DryRun {
		promClient, err := prometheus.NewClient(cfg, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Prometheus client")
		}
		source = promClient
	}

	var breakdownCache *cache.BreakdownCache
	if cfg.Redis.Enabled && !cfg.DryRun {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		breakdownCache = cache.NewBreakdownCache(redisClient, cfg.Redis.TTL, logger)
	}

	fetcher := services.NewDataFetcher(cfg, logger, source, breakdownCache, timeouts)
	preparer := services.NewSeriesPreparer(cfg, logger)
	analyzer := services.NewTrafficAnalyzer(cfg, logger, timeouts)
	primeDetector := services.NewPrimeTimeDetector(cfg, logger)
	cacheEstimator := services.NewCacheImpactEstimator(cfg, logger)
	calculator := services.NewRateCalculator(cfg, logger, cacheEstimator, primeDetector)
	recommender := services.NewRecommender(cfg, logger, fetcher, preparer, analyzer, primeDetector, cacheEstimator, calculator)

	run, err := recommender.Run(ctx)
	if err != nil {
		logger.WithError(err).Fatal("Recommendation run failed")
	}

	var existing *models.RateLimitConfig
	if *existingPath != "" {
		existing, err = output.ReadExisting(*existingPath)
		if err != nil {
			logger.WithError(err).Fatal("Failed to read existing configuration")
		}
	}

	merger := services.NewConfigMerger(cfg, logger)
	merged, changes := merger.Merge(existing, recommender.ValidResults(run.Results), cfg.Output.SelectiveUpdate)

	writer := output.NewWriter(cfg, logger)
	artifactPath, err := writer.WriteConfigMap(merged, run.RunID)
	if err != nil {
		logger.WithError(err).Fatal("Failed to write ConfigMap artifact")
	}

	reportWriter := output.NewReportWriter(cfg.Output.Dir, logger)
	reportPath, err := reportWriter.Write(run, changes)
	if err != nil {
		logger.WithError(err).Fatal("Failed to write analysis report")
	}

	logger.WithFields(logrus.Fields{
		"artifact": artifactPath,
		"report":   reportPath,
		"results":  len(run.Results),
	}).Info("Done")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
