package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: every environment variable is read here and nowhere else
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Tiers
	Engine EngineConfig
	LLM    LLMConfig

	// Local quant engine tunables
	Simulation SimulationConfig
	Annealing  AnnealingConfig

	// Redis (optional distributed rate limiting)
	Redis RedisConfig

	// Market data snapshot source
	MarketDataURL string
	SnapshotCache SnapshotCacheConfig

	// Optional YAML tuning file, overrides Simulation/Annealing when set
	TuningFile string

	// Logging
	LogLevel  string
	LogFormat string
}

// EngineConfig holds the remote quantitative service settings
type EngineConfig struct {
	URL              string        // base URL, empty disables the remote tier
	Timeout          time.Duration // hard bound on a single /optimize call
	RateLimit        float64       // requests per second
	LocalTierEnabled bool          // run the in-process engine between remote and qualitative
}

// LLMConfig holds the generative reasoning collaborator settings
type LLMConfig struct {
	APIKey  string // empty disables the qualitative tier
	Model   string
	BaseURL string
	Timeout time.Duration
}

// SimulationConfig holds Monte Carlo tunables
type SimulationConfig struct {
	Runs    int
	Workers int
}

// AnnealingConfig holds simulated annealing tunables
type AnnealingConfig struct {
	Steps              int
	Chains             int
	InitialTemperature float64
	CoolingRate        float64
	Seed               int64 // 0 = time seeded
}

// SnapshotCacheConfig holds caching of the remote market data source
type SnapshotCacheConfig struct {
	TTL             time.Duration // serve without refetching while younger than this
	MaxStale        time.Duration // serve after a failed refresh while younger than this
	RefreshSchedule string        // cron expression (seconds first), empty disables background refresh
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// Load reads configuration from environment variables
// ⭐ SSOT: the only function that calls os.Getenv()
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8000"),
		Env:  getEnv("ENV", "development"),

		Engine: EngineConfig{
			URL:              getEnv("ENGINE_URL", ""),
			Timeout:          getEnvAsDuration("REMOTE_TIMEOUT", "10s"),
			RateLimit:        getEnvAsFloat("REMOTE_RATE_LIMIT", 5),
			LocalTierEnabled: getEnvAsBool("LOCAL_TIER_ENABLED", true),
		},

		LLM: LLMConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			Model:   getEnv("OPENAI_MODEL", "gpt-4o"),
			BaseURL: getEnv("OPENAI_BASE_URL", ""),
			Timeout: getEnvAsDuration("LLM_TIMEOUT", "60s"),
		},

		Simulation: SimulationConfig{
			Runs:    getEnvAsInt("SIM_RUNS", 2000),
			Workers: getEnvAsInt("SIM_WORKERS", 4),
		},

		Annealing: AnnealingConfig{
			Steps:              getEnvAsInt("ANNEAL_STEPS", 1000),
			Chains:             getEnvAsInt("ANNEAL_CHAINS", 4),
			InitialTemperature: getEnvAsFloat("ANNEAL_INITIAL_TEMP", 100),
			CoolingRate:        getEnvAsFloat("ANNEAL_COOLING_RATE", 0.95),
			Seed:               getEnvAsInt64("RANDOM_SEED", 0),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		MarketDataURL: getEnv("MARKET_DATA_URL", ""),
		SnapshotCache: SnapshotCacheConfig{
			TTL:             getEnvAsDuration("SNAPSHOT_CACHE_TTL", "1m"),
			MaxStale:        getEnvAsDuration("SNAPSHOT_MAX_STALE", "15m"),
			RefreshSchedule: getEnv("SNAPSHOT_REFRESH_SCHEDULE", "0 */1 * * * *"),
		},
		TuningFile: getEnv("TUNING_FILE", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if configuration values are usable
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Engine.Timeout <= 0 {
		return fmt.Errorf("REMOTE_TIMEOUT must be positive")
	}

	if c.Engine.RateLimit <= 0 {
		return fmt.Errorf("REMOTE_RATE_LIMIT must be positive")
	}

	if c.Simulation.Runs < 2 {
		return fmt.Errorf("SIM_RUNS must be at least 2")
	}

	if c.Annealing.Steps < 0 {
		return fmt.Errorf("ANNEAL_STEPS must not be negative")
	}

	if c.Annealing.CoolingRate <= 0 || c.Annealing.CoolingRate >= 1 {
		return fmt.Errorf("ANNEAL_COOLING_RATE must be in (0, 1)")
	}

	if c.SnapshotCache.TTL < 0 || c.SnapshotCache.MaxStale < 0 {
		return fmt.Errorf("SNAPSHOT_CACHE_TTL and SNAPSHOT_MAX_STALE must not be negative")
	}

	// at least one tier must be able to answer
	if c.Engine.URL == "" && !c.Engine.LocalTierEnabled && c.LLM.APIKey == "" {
		return fmt.Errorf("no allocation tier configured: set ENGINE_URL, LOCAL_TIER_ENABLED or OPENAI_API_KEY")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
	}

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
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
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
