// internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults
const (
	DefaultPort          = "8080"
	DefaultAPIBaseURL    = "http://localhost:8000/api/v1"
	DefaultAPITimeout    = 5 * time.Minute
	DefaultAPIRateLimit  = 5.0
	DefaultAPIRateBurst  = 10
	DefaultCacheTTL      = 5 * time.Minute
	DefaultCacheCapacity = 256
	DefaultSessionTTL    = 2 * time.Hour
	DefaultLogLevel      = "info"

	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config holds the application configuration
type Config struct {
	Port      string
	LogDir    string
	LogLevel  string
	DebugMode bool

	// story API
	APIBaseURL   string
	APITimeout   time.Duration
	APIRateLimit float64 // requests per second, 0 disables throttling
	APIRateBurst int

	// response cache
	CacheTTL      time.Duration
	CacheCapacity int
	CacheBackend  string
	RedisURL      string

	SessionTTL          time.Duration
	CompensateOnFailure bool
}

// Load reads the configuration from the environment
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	config := &Config{
		Port:      getEnv("PORT", DefaultPort),
		LogDir:    getEnvPath("LOG_DIR", "logs"),
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", DefaultLogLevel)),
		DebugMode: getEnvBool("DEBUG_MODE", true),

		APIBaseURL:   strings.TrimRight(getEnv("API_BASE_URL", DefaultAPIBaseURL), "/"),
		APITimeout:   getEnvDuration("API_TIMEOUT", DefaultAPITimeout),
		APIRateLimit: getEnvFloat("API_RATE_LIMIT", DefaultAPIRateLimit),
		APIRateBurst: getEnvInt("API_RATE_BURST", DefaultAPIRateBurst),

		CacheTTL:      getEnvDuration("CACHE_TTL", DefaultCacheTTL),
		CacheCapacity: getEnvInt("CACHE_CAPACITY", DefaultCacheCapacity),
		CacheBackend:  strings.ToLower(getEnv("CACHE_BACKEND", CacheBackendMemory)),
		RedisURL:      getEnv("REDIS_URL", ""),

		SessionTTL:          getEnvDuration("SESSION_TTL", DefaultSessionTTL),
		CompensateOnFailure: getEnvBool("COMPENSATE_ON_FAILURE", false),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the values that cannot be defaulted sensibly
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid API_BASE_URL %q", c.APIBaseURL)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got %s", c.CacheTTL)
	}
	if c.CacheCapacity <= 0 {
		return fmt.Errorf("CACHE_CAPACITY must be positive, got %d", c.CacheCapacity)
	}
	switch c.CacheBackend {
	case CacheBackendMemory:
	case CacheBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("CACHE_BACKEND=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", c.CacheBackend)
	}
	if c.APIRateLimit < 0 {
		return fmt.Errorf("API_RATE_LIMIT must not be negative")
	}
	return nil
}

// getEnv returns the variable or defaultValue when unset
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath returns a directory from the environment, creating it if needed
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			fmt.Printf("warning: could not create directory %s: %v\n", path, err)
		}
	}

	return path
}

// getEnvBool returns a boolean variable
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		fmt.Printf("warning: %s=%q is not an integer, using %d\n", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		fmt.Printf("warning: %s=%q is not a number, using %g\n", key, value, defaultValue)
		return defaultValue
	}
	return f
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		fmt.Printf("warning: %s=%q is not a duration, using %s\n", key, value, defaultValue)
		return defaultValue
	}
	return d
}
