package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// MaxForecastDays is the longest horizon the forecast provider serves.
const MaxForecastDays = 16

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Store selects the persistence backend: "postgres" (default) or "memory"
	Store string
	// SitesFile seeds the site directory of the memory store (YAML)
	SitesFile string

	Database  DatabaseConfig
	Redis     RedisConfig
	Weather   WeatherConfig
	Models    ModelsConfig
	Pipeline  PipelineConfig
	Scheduler SchedulerConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// WeatherConfig holds the forecast provider settings
type WeatherConfig struct {
	BaseURL      string
	ForecastDays int
	Timeout      time.Duration
	MaxRetries   int
	RetryDelay   time.Duration
	RateLimit    int // requests per second, 0 disables the shared limiter
}

// ModelsConfig points at the model manifest
type ModelsConfig struct {
	ManifestPath string
}

// PipelineConfig controls run execution
type PipelineConfig struct {
	Concurrency    int           // sites processed in parallel during a sweep
	SitesPerSecond float64       // pacing of sweep starts
	PersistTimeout time.Duration // budget for the persist transaction once started
	LockTTL        time.Duration // distributed per-site lock lifetime
}

// SchedulerConfig holds cron expressions (with seconds) for sweeps
type SchedulerConfig struct {
	SolarSweep string
	WindSweep  string
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port:  getEnv("PORT", "8089"),
		Env:   getEnv("ENV", "development"),
		Store: getEnv("STORE", "postgres"),

		SitesFile: getEnv("SITES_FILE", ""),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Weather: WeatherConfig{
			BaseURL:      getEnv("WEATHER_BASE_URL", "https://api.open-meteo.com/v1"),
			ForecastDays: getEnvAsInt("WEATHER_FORECAST_DAYS", 5),
			Timeout:      getEnvAsDuration("WEATHER_TIMEOUT", "15s"),
			MaxRetries:   getEnvAsInt("WEATHER_MAX_RETRIES", 1),
			RetryDelay:   getEnvAsDuration("WEATHER_RETRY_DELAY", "2s"),
			RateLimit:    getEnvAsInt("WEATHER_RATE_LIMIT", 5),
		},

		Models: ModelsConfig{
			ManifestPath: getEnv("MODELS_MANIFEST", "models/models.yaml"),
		},

		Pipeline: PipelineConfig{
			Concurrency:    getEnvAsInt("PIPELINE_CONCURRENCY", 4),
			SitesPerSecond: getEnvAsFloat("PIPELINE_SITES_PER_SECOND", 2),
			PersistTimeout: getEnvAsDuration("PIPELINE_PERSIST_TIMEOUT", "60s"),
			LockTTL:        getEnvAsDuration("PIPELINE_LOCK_TTL", "5m"),
		},

		Scheduler: SchedulerConfig{
			SolarSweep: getEnv("SCHEDULE_SOLAR_SWEEP", "0 0 */6 * * *"),
			WindSweep:  getEnv("SCHEDULE_WIND_SWEEP", "0 30 */6 * * *"),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// UsesMemoryStore reports whether persistence is kept in process memory
func (c *Config) UsesMemoryStore() bool {
	return c.Store == "memory"
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Store != "postgres" && c.Store != "memory" {
		return fmt.Errorf("STORE must be one of: postgres, memory")
	}

	if c.Store == "postgres" && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Weather.ForecastDays < 1 || c.Weather.ForecastDays > MaxForecastDays {
		return fmt.Errorf("WEATHER_FORECAST_DAYS must be between 1 and %d", MaxForecastDays)
	}

	if c.Weather.MaxRetries < 0 {
		return fmt.Errorf("WEATHER_MAX_RETRIES must not be negative")
	}

	if c.Pipeline.Concurrency < 1 {
		return fmt.Errorf("PIPELINE_CONCURRENCY must be at least 1")
	}

	return nil
}

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
