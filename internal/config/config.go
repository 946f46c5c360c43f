package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Scraper  ScraperConfig
	API      APIConfig
	Checker  CheckerConfig
	Monitor  MonitorConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type ScraperConfig struct {
	Timeout       time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	BackoffFactor int
	MinDelay      time.Duration
	MaxDelay      time.Duration
	VerifySSL     bool
	UserAgent     string
	UseProxy      bool
	ProxyFile     string
	Domains       []string
	ShortDomains  []string
}

// APIConfig holds the supplier gateway credentials. All three must be
// set for the authenticated tier to be used.
type APIConfig struct {
	Key        string
	Secret     string
	SupplierID string
	BaseURL    string
	PublicURL  string
}

type CheckerConfig struct {
	Enabled      bool
	Interval     time.Duration
	ProductDelay time.Duration
}

type MonitorConfig struct {
	Enabled      bool
	Interval     time.Duration
	SnapshotFile string
	ProbeURLs    []string
	AlertStream  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	MaxConns int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Scraper: ScraperConfig{
			Timeout:       getDurationOrDefault("SCRAPER_TIMEOUT", 15*time.Second),
			MaxRetries:    getIntOrDefault("SCRAPER_MAX_RETRIES", 3),
			RetryDelay:    getDurationOrDefault("SCRAPER_RETRY_DELAY", time.Second),
			BackoffFactor: getIntOrDefault("SCRAPER_BACKOFF_FACTOR", 2),
			MinDelay:      getDurationOrDefault("SCRAPER_MIN_DELAY", time.Second),
			MaxDelay:      getDurationOrDefault("SCRAPER_MAX_DELAY", 3*time.Second),
			VerifySSL:     getBoolOrDefault("SCRAPER_VERIFY_SSL", true),
			UserAgent:     getEnvOrDefault("SCRAPER_USER_AGENT", ""),
			UseProxy:      getBoolOrDefault("SCRAPER_USE_PROXY", false),
			ProxyFile:     getEnvOrDefault("SCRAPER_PROXY_FILE", "proxies.txt"),
			Domains:       getStringSliceOrDefault("SCRAPER_DOMAINS", nil),
			ShortDomains:  getStringSliceOrDefault("SCRAPER_SHORT_DOMAINS", nil),
		},
		API: APIConfig{
			Key:        getEnvOrDefault("TRENDYOL_API_KEY", ""),
			Secret:     getEnvOrDefault("TRENDYOL_API_SECRET", ""),
			SupplierID: getEnvOrDefault("TRENDYOL_SUPPLIER_ID", ""),
			BaseURL:    getEnvOrDefault("TRENDYOL_API_URL", ""),
			PublicURL:  getEnvOrDefault("TRENDYOL_PUBLIC_URL", ""),
		},
		Checker: CheckerConfig{
			Enabled:      getBoolOrDefault("CHECKER_ENABLED", true),
			Interval:     getDurationOrDefault("CHECKER_INTERVAL", time.Hour),
			ProductDelay: getDurationOrDefault("CHECKER_PRODUCT_DELAY", time.Second),
		},
		Monitor: MonitorConfig{
			Enabled:      getBoolOrDefault("MONITOR_ENABLED", true),
			Interval:     getDurationOrDefault("MONITOR_INTERVAL", 48*time.Hour),
			SnapshotFile: getEnvOrDefault("MONITOR_SNAPSHOT_FILE", "data/site_structure.json"),
			ProbeURLs:    getStringSliceOrDefault("MONITOR_PROBE_URLS", nil),
			AlertStream:  getEnvOrDefault("MONITOR_ALERT_STREAM", ""),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "trendcord"),
			MaxConns: getIntOrDefault("DB_MAX_CONNS", 10),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.MaxRetries < 0 {
		return fmt.Errorf("SCRAPER_MAX_RETRIES cannot be negative")
	}

	if c.Scraper.MinDelay > c.Scraper.MaxDelay {
		return fmt.Errorf("SCRAPER_MIN_DELAY cannot be greater than SCRAPER_MAX_DELAY")
	}

	if c.Scraper.BackoffFactor < 1 {
		return fmt.Errorf("SCRAPER_BACKOFF_FACTOR must be at least 1")
	}

	if c.Checker.Enabled && c.Checker.Interval < time.Minute {
		return fmt.Errorf("CHECKER_INTERVAL must be at least 1m")
	}

	// Partial credentials are a config mistake, not a degraded mode.
	set := 0
	for _, v := range []string{c.API.Key, c.API.Secret, c.API.SupplierID} {
		if v != "" {
			set++
		}
	}
	if set != 0 && set != 3 {
		return fmt.Errorf("TRENDYOL_API_KEY, TRENDYOL_API_SECRET and TRENDYOL_SUPPLIER_ID must be set together")
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
