package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	DryRun      bool   `mapstructure:"dry_run"`
	Workers     int    `mapstructure:"workers"`

	Prometheus      PrometheusConfig      `mapstructure:"prometheus"`
	Redis           RedisConfig           `mapstructure:"redis"`
	Analysis        AnalysisConfig        `mapstructure:"analysis"`
	PrimeTime       PrimeTimeConfig       `mapstructure:"prime_time"`
	Cache           CacheConfig           `mapstructure:"cache"`
	RateCalculation RateCalculationConfig `mapstructure:"rate_calculation"`
	Partners        PartnersConfig        `mapstructure:"partners"`
	Exclusions      ExclusionsConfig      `mapstructure:"exclusions"`
	Output          OutputConfig          `mapstructure:"output"`
}

type PrometheusConfig struct {
	URL           string        `mapstructure:"url"`
	Step          time.Duration `mapstructure:"step"`
	LookbackDays  int           `mapstructure:"lookback_days"`
	Timeout       time.Duration `mapstructure:"timeout"`
	TrafficQuery  string        `mapstructure:"traffic_query"`
	CacheQuery    string        `mapstructure:"cache_query"`
	PartnerLabel  string        `mapstructure:"partner_label"`
	PathLabel     string        `mapstructure:"path_label"`
	CacheStatuses []string      `mapstructure:"cache_statuses"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type AnalysisConfig struct {
	MinPointsForModel int           `mapstructure:"min_points_for_model"`
	IntervalWidth     float64       `mapstructure:"interval_width"`
	ModelTimeout      time.Duration `mapstructure:"model_timeout"`
	SeasonalityMode   string        `mapstructure:"seasonality_mode"`
	DailySeasonality  bool          `mapstructure:"daily_seasonality"`
	WeeklySeasonality bool          `mapstructure:"weekly_seasonality"`
	TrendWindow       int           `mapstructure:"trend_window"`
	IQRMultiplier     float64       `mapstructure:"iqr_multiplier"`
	ZScoreThreshold   float64       `mapstructure:"z_score_threshold"`
	FilterSeverities  []string      `mapstructure:"filter_severities"`
}

type PrimeTimeConfig struct {
	MinTrafficThreshold  float64 `mapstructure:"min_traffic_threshold"`
	HourPercentile       float64 `mapstructure:"hour_percentile"`
	MinDurationMinutes   int     `mapstructure:"min_duration_minutes"`
	ConsistencyThreshold float64 `mapstructure:"consistency_threshold"`
	FallbackStartHour    int     `mapstructure:"fallback_start_hour"`
	FallbackEndHour      int     `mapstructure:"fallback_end_hour"`
}

type CacheConfig struct {
	DefaultHitRatio   float64 `mapstructure:"default_hit_ratio"`
	HitRatioThreshold float64 `mapstructure:"hit_ratio_threshold"`
	MaxBoost          float64 `mapstructure:"max_boost"`
	DefaultFactor     float64 `mapstructure:"default_factor"`
}

type RateCalculationConfig struct {
	PeakMultiplier float64 `mapstructure:"peak_multiplier"`
	SafetyMargin   float64 `mapstructure:"safety_margin"`
	MinRateLimit   int     `mapstructure:"min_rate_limit"`
	MaxRateLimit   int     `mapstructure:"max_rate_limit"`
	Rounding       string  `mapstructure:"rounding"`

	PatternMultipliers PatternMultipliers `mapstructure:"pattern_multipliers"`
	PatternThresholds  PatternThresholds  `mapstructure:"pattern_thresholds"`
	TrendMaxBoost      float64            `mapstructure:"trend_max_boost"`
	TrendSlopeFactor   float64            `mapstructure:"trend_slope_factor"`
	TrendDecreaseFloor float64            `mapstructure:"trend_decrease_floor"`
}

type PatternMultipliers struct {
	Stable          float64 `mapstructure:"stable"`
	Variable        float64 `mapstructure:"variable"`
	ModeratelySpiky float64 `mapstructure:"moderately_spiky"`
	VerySpiky       float64 `mapstructure:"very_spiky"`
}

type PatternThresholds struct {
	VerySpikyRatio       float64 `mapstructure:"very_spiky_ratio"`
	VerySpikyCV          float64 `mapstructure:"very_spiky_cv"`
	ModeratelySpikyRatio float64 `mapstructure:"moderately_spiky_ratio"`
	ModeratelySpikyCV    float64 `mapstructure:"moderately_spiky_cv"`
	VariableRatio        float64 `mapstructure:"variable_ratio"`
	VariableCV           float64 `mapstructure:"variable_cv"`
}

// PathMultiplier pairs a path substring with its multiplier. Order matters:
// the first matching entry wins.
type PathMultiplier struct {
	Pattern    string  `mapstructure:"pattern"`
	Multiplier float64 `mapstructure:"multiplier"`
}

type PartnersConfig struct {
	Partners           []string           `mapstructure:"partners"`
	APIs               []string           `mapstructure:"apis"`
	PartnerMultipliers map[string]float64 `mapstructure:"partner_multipliers"`
	PathMultipliers    []PathMultiplier   `mapstructure:"path_multipliers"`
}

type ExclusionsConfig struct {
	GlobalPartners []string `mapstructure:"global_partners"`
	GlobalPaths    []string `mapstructure:"global_paths"`
	// Conditional maps environment -> partner -> excluded paths.
	Conditional map[string]map[string][]string `mapstructure:"conditional"`
}

type OutputConfig struct {
	Domain          string `mapstructure:"domain"`
	Dir             string `mapstructure:"dir"`
	ConfigMapName   string `mapstructure:"configmap_name"`
	Namespace       string `mapstructure:"namespace"`
	SelectiveUpdate bool   `mapstructure:"selective_update"`
}

// Rounding granularity names accepted by rate_calculation.rounding.
const (
	RoundNearestHundred = "nearest_hundred"
	RoundNearestFifty   = "nearest_fifty"
	RoundNearestTen     = "nearest_ten"
	RoundNone           = "none"
)

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")
	return load(v)
}

// LoadFile loads configuration from an explicit file path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("TRENDMASTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects configurations that would make calculations meaningless.
func (c *Config) Validate() error {
	if c.RateCalculation.MinRateLimit <= 0 {
		return fmt.Errorf("rate_calculation.min_rate_limit must be positive, got %d", c.RateCalculation.MinRateLimit)
	}
	if c.RateCalculation.MaxRateLimit < c.RateCalculation.MinRateLimit {
		return fmt.Errorf("rate_calculation.max_rate_limit %d is below min_rate_limit %d",
			c.RateCalculation.MaxRateLimit, c.RateCalculation.MinRateLimit)
	}
	switch c.RateCalculation.Rounding {
	case RoundNearestHundred, RoundNearestFifty, RoundNearestTen, RoundNone:
	default:
		return fmt.Errorf("rate_calculation.rounding %q is not a known granularity", c.RateCalculation.Rounding)
	}
	if c.Cache.DefaultFactor <= 1.0 {
		return fmt.Errorf("cache.default_factor must exceed 1.0, got %v", c.Cache.DefaultFactor)
	}
	if c.Analysis.IntervalWidth <= 0 || c.Analysis.IntervalWidth >= 1 {
		return fmt.Errorf("analysis.interval_width must be in (0, 1), got %v", c.Analysis.IntervalWidth)
	}
	if c.PrimeTime.FallbackStartHour < 0 || c.PrimeTime.FallbackEndHour > 23 ||
		c.PrimeTime.FallbackStartHour > c.PrimeTime.FallbackEndHour {
		return fmt.Errorf("prime_time fallback window %d-%d is not a valid hour range",
			c.PrimeTime.FallbackStartHour, c.PrimeTime.FallbackEndHour)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	return nil
}

// IsDevelopment reports whether the environment is a local/dev one.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "local"
}

func setDefaults(v *viper.Viper) {
	// Environment
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("dry_run", false)
	v.SetDefault("workers", 4)

	// Prometheus
	v.SetDefault("prometheus.url", "http://localhost:9090")
	v.SetDefault("prometheus.step", "5m")
	v.SetDefault("prometheus.lookback_days", 7)
	v.SetDefault("prometheus.timeout", "30s")
	v.SetDefault("prometheus.traffic_query",
		`sum(rate(istio_requests_total{destination_service_namespace="default",request_partner="%s",request_path=~"%s.*"}[5m])) * 60`)
	v.SetDefault("prometheus.cache_query",
		`sum(increase(istio_requests_total{request_partner="%s",request_path=~"%s.*",cache_status="%s"}[%s]))`)
	v.SetDefault("prometheus.partner_label", "request_partner")
	v.SetDefault("prometheus.path_label", "request_path")
	v.SetDefault("prometheus.cache_statuses", []string{"HIT", "MISS", "BYPASS", "EXPIRED", "STALE"})

	// Redis
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "6h")

	// Analysis
	v.SetDefault("analysis.min_points_for_model", 10)
	v.SetDefault("analysis.interval_width", 0.95)
	v.SetDefault("analysis.model_timeout", "30s")
	v.SetDefault("analysis.seasonality_mode", "additive")
	v.SetDefault("analysis.daily_seasonality", true)
	v.SetDefault("analysis.weekly_seasonality", true)
	v.SetDefault("analysis.trend_window", 24)
	v.SetDefault("analysis.iqr_multiplier", 1.5)
	v.SetDefault("analysis.z_score_threshold", 3.0)
	v.SetDefault("analysis.filter_severities", []string{"high"})

	// Prime time
	v.SetDefault("prime_time.min_traffic_threshold", 100.0)
	v.SetDefault("prime_time.hour_percentile", 75.0)
	v.SetDefault("prime_time.min_duration_minutes", 60)
	v.SetDefault("prime_time.consistency_threshold", 0.6)
	v.SetDefault("prime_time.fallback_start_hour", 9)
	v.SetDefault("prime_time.fallback_end_hour", 18)

	// Cache impact
	v.SetDefault("cache.default_hit_ratio", 0.15)
	v.SetDefault("cache.hit_ratio_threshold", 0.1)
	v.SetDefault("cache.max_boost", 0.3)
	v.SetDefault("cache.default_factor", 1.2)

	// Rate calculation
	v.SetDefault("rate_calculation.peak_multiplier", 2.5)
	v.SetDefault("rate_calculation.safety_margin", 1.2)
	v.SetDefault("rate_calculation.min_rate_limit", 100)
	v.SetDefault("rate_calculation.max_rate_limit", 50000)
	v.SetDefault("rate_calculation.rounding", RoundNearestHundred)
	v.SetDefault("rate_calculation.pattern_multipliers.stable", 1.2)
	v.SetDefault("rate_calculation.pattern_multipliers.variable", 1.1)
	v.SetDefault("rate_calculation.pattern_multipliers.moderately_spiky", 1.0)
	v.SetDefault("rate_calculation.pattern_multipliers.very_spiky", 0.9)
	v.SetDefault("rate_calculation.pattern_thresholds.very_spiky_ratio", 8.0)
	v.SetDefault("rate_calculation.pattern_thresholds.very_spiky_cv", 1.0)
	v.SetDefault("rate_calculation.pattern_thresholds.moderately_spiky_ratio", 4.0)
	v.SetDefault("rate_calculation.pattern_thresholds.moderately_spiky_cv", 0.6)
	v.SetDefault("rate_calculation.pattern_thresholds.variable_ratio", 2.0)
	v.SetDefault("rate_calculation.pattern_thresholds.variable_cv", 0.3)
	v.SetDefault("rate_calculation.trend_max_boost", 1.3)
	v.SetDefault("rate_calculation.trend_slope_factor", 0.2)
	v.SetDefault("rate_calculation.trend_decrease_floor", 0.95)

	// Partners
	v.SetDefault("partners.partners", []string{})
	v.SetDefault("partners.apis", []string{})
	v.SetDefault("partners.partner_multipliers", map[string]float64{})

	// Exclusions
	v.SetDefault("exclusions.global_partners", []string{})
	v.SetDefault("exclusions.global_paths", []string{})

	// Output
	v.SetDefault("output.domain", "global-ratelimit")
	v.SetDefault("output.dir", "./output")
	v.SetDefault("output.configmap_name", "ratelimit-config")
	v.SetDefault("output.namespace", "istio-system")
	v.SetDefault("output.selective_update", true)
}
