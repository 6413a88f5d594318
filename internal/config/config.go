package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Store backends selectable with STORE_BACKEND.
const (
	BackendMemory = "memory"
	BackendMongo  = "mongo"
)

// Config holds all application configuration
type Config struct {
	Port        string
	Environment string

	// Document store
	StoreBackend string // "memory" or "mongo"
	MongoURI     string

	// Redis is optional; when empty, job locks are process-local no-ops
	RedisURL string

	// Identity tokens
	JWTSecret string
	JWTIssuer string

	// Admin configuration
	AdminUserIDs []string // user ids allowed to trigger operator jobs

	// Deadline sweeper
	SweepCron    string
	SweepOnStart bool
	SweepWorkers int

	// Mirror reconciler; zero disables the periodic job
	ReconcileInterval time.Duration

	// Project read cache; zero disables caching
	ProjectCacheTTL time.Duration

	// Location used to truncate deadlines and "today" to a calendar day
	Location *time.Location

	AllowedOrigins string
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	// Parse admin user IDs (comma-separated)
	var adminUserIDs []string
	if adminEnv := getEnv("ADMIN_USER_IDS", ""); adminEnv != "" {
		for _, id := range strings.Split(adminEnv, ",") {
			if id = strings.TrimSpace(id); id != "" {
				adminUserIDs = append(adminUserIDs, id)
			}
		}
	}

	return &Config{
		Port:        getEnv("PORT", "3001"),
		Environment: strings.ToLower(getEnv("ENVIRONMENT", "development")),

		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		MongoURI:     getEnv("MONGODB_URI", "mongodb://localhost:27017/teamup"),

		RedisURL:  getEnv("REDIS_URL", ""),
		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", ""),

		AdminUserIDs: adminUserIDs,

		SweepCron:    getEnv("SWEEP_CRON", "5 0 * * *"),
		SweepOnStart: getBoolEnv("SWEEP_ON_START", true),
		SweepWorkers: getIntEnv("SWEEP_WORKERS", 8),

		ReconcileInterval: getDurationEnv("RECONCILE_INTERVAL", 30*time.Minute),
		ProjectCacheTTL:   getDurationEnv("PROJECT_CACHE_TTL", 30*time.Second),

		Location: getLocationEnv("TIMEZONE"),

		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "*"),
	}
}

// IsProduction reports whether ENVIRONMENT=production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Validate checks settings that would otherwise fail late, at first use.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory:
	case BackendMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required when STORE_BACKEND=%s", BackendMongo)
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (want %q or %q)", c.StoreBackend, BackendMemory, BackendMongo)
	}

	if _, err := cron.ParseStandard(c.SweepCron); err != nil {
		return fmt.Errorf("invalid SWEEP_CRON %q: %w", c.SweepCron, err)
	}
	if c.SweepWorkers < 1 {
		return fmt.Errorf("SWEEP_WORKERS must be at least 1, got %d", c.SweepWorkers)
	}
	if c.ReconcileInterval < 0 || c.ProjectCacheTTL < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if c.IsProduction() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getDurationEnv accepts Go durations ("30s", "1h") and a bare "0".
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if value == "0" {
			return 0
		}
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getLocationEnv(key string) *time.Location {
	value := os.Getenv(key)
	if value == "" || value == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(value)
	if err != nil {
		// Unknown zone names fall back to the server zone
		return time.Local
	}
	return loc
}
