package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string         `mapstructure:"environment"`
	LogLevel    string         `mapstructure:"log_level"`
	Server      ServerConfig   `mapstructure:"server"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Scraper     ScraperConfig  `mapstructure:"scraper"`
	Analysis    AnalysisConfig `mapstructure:"analysis"`
	Scoring     ScoringConfig  `mapstructure:"scoring"`
	Oracle      OracleConfig   `mapstructure:"oracle"`
	Backfill    BackfillConfig `mapstructure:"backfill"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SourceConfig is one scrapeable results site. Sources are tried in
// priority order within their tier, primary tier before secondary.
type SourceConfig struct {
	Name      string `mapstructure:"name"`
	URL       string `mapstructure:"url"`
	ParserID  string `mapstructure:"parser_id"`
	Secondary bool   `mapstructure:"secondary"`
}

type ScraperConfig struct {
	Sources        []SourceConfig `mapstructure:"sources"`
	ArchiveURL     string         `mapstructure:"archive_url"`
	Proxies        []string       `mapstructure:"proxies"`
	FetchTimeout   string         `mapstructure:"fetch_timeout"`
	MaxRetries     int            `mapstructure:"max_retries"`
	TodayCacheTTL  string         `mapstructure:"today_cache_ttl"`
	ProximityChars int            `mapstructure:"proximity_chars"`
}

type AnalysisConfig struct {
	MinHistoryRecords int `mapstructure:"min_history_records"`
}

type ScoringConfig struct {
	RecentWeight  float64 `mapstructure:"recent_weight"`
	TotalWeight   float64 `mapstructure:"total_weight"`
	AbsenceWeight float64 `mapstructure:"absence_weight"`
	ScoreCacheTTL string  `mapstructure:"score_cache_ttl"`
}

type OracleConfig struct {
	URL     string `mapstructure:"url"`
	Timeout string `mapstructure:"timeout"`
}

type BackfillConfig struct {
	MaxPages    int    `mapstructure:"max_pages"`
	MinInterval string `mapstructure:"min_interval"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// Set default values
	setDefaults()

	// Enable environment variable support
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(cfg *Config) error {
	for _, field := range []struct {
		name  string
		value string
	}{
		{"scraper.fetch_timeout", cfg.Scraper.FetchTimeout},
		{"scraper.today_cache_ttl", cfg.Scraper.TodayCacheTTL},
		{"scoring.score_cache_ttl", cfg.Scoring.ScoreCacheTTL},
		{"oracle.timeout", cfg.Oracle.Timeout},
		{"backfill.min_interval", cfg.Backfill.MinInterval},
	} {
		if field.value == "" {
			continue
		}
		if _, err := time.ParseDuration(field.value); err != nil {
			return fmt.Errorf("invalid %s duration: %w", field.name, err)
		}
	}

	if cfg.Scraper.MaxRetries < 1 {
		return fmt.Errorf("scraper.max_retries must be at least 1, got %d", cfg.Scraper.MaxRetries)
	}
	if cfg.Analysis.MinHistoryRecords < 1 {
		return fmt.Errorf("analysis.min_history_records must be at least 1, got %d", cfg.Analysis.MinHistoryRecords)
	}
	if cfg.Scoring.RecentWeight < 0 || cfg.Scoring.TotalWeight < 0 || cfg.Scoring.AbsenceWeight < 0 {
		return fmt.Errorf("scoring weights must be non-negative")
	}
	return nil
}

// Duration parses a config duration string, falling back when the value
// is unset. Load already rejects malformed values; the fallback also
// covers configs assembled by hand in tests.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func setDefaults() {
	// Environment
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Redis
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Scraper
	viper.SetDefault("scraper.archive_url", "")
	viper.SetDefault("scraper.proxies", []string{})
	viper.SetDefault("scraper.fetch_timeout", "15s")
	viper.SetDefault("scraper.max_retries", 3)
	viper.SetDefault("scraper.today_cache_ttl", "3m")
	viper.SetDefault("scraper.proximity_chars", 200)

	// Analysis
	viper.SetDefault("analysis.min_history_records", 10)

	// Scoring
	viper.SetDefault("scoring.recent_weight", 0.5)
	viper.SetDefault("scoring.total_weight", 0.3)
	viper.SetDefault("scoring.absence_weight", 0.2)
	viper.SetDefault("scoring.score_cache_ttl", "10m")

	// Oracle
	viper.SetDefault("oracle.url", "")
	viper.SetDefault("oracle.timeout", "30s")

	// Backfill
	viper.SetDefault("backfill.max_pages", 10)
	viper.SetDefault("backfill.min_interval", "168h")
}
