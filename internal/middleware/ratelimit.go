package middleware

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	// Global limits (per IP)
	GlobalAPIMax        int           // Max requests per minute for all API endpoints
	GlobalAPIExpiration time.Duration // Expiration window

	// Write limits (per user ID): apply, save, create, delete
	WriteMax        int
	WriteExpiration time.Duration

	// Change feed subscriptions (per IP)
	WebSocketMax        int
	WebSocketExpiration time.Duration
}

// DefaultRateLimitConfig returns production-safe defaults
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		// Global: 200/min = ~3.3 req/sec
		GlobalAPIMax:        200,
		GlobalAPIExpiration: 1 * time.Minute,

		// Writes: 60/min = 1 req/sec average
		WriteMax:        60,
		WriteExpiration: 1 * time.Minute,

		// WebSocket: 20 connections/min
		WebSocketMax:        20,
		WebSocketExpiration: 1 * time.Minute,
	}
}

// LoadRateLimitConfig loads config from environment variables with defaults
func LoadRateLimitConfig(environment string) *RateLimitConfig {
	config := DefaultRateLimitConfig()

	config.GlobalAPIMax = positiveIntEnv("RATE_LIMIT_GLOBAL_API", config.GlobalAPIMax)
	config.WriteMax = positiveIntEnv("RATE_LIMIT_WRITE", config.WriteMax)
	config.WebSocketMax = positiveIntEnv("RATE_LIMIT_WEBSOCKET", config.WebSocketMax)

	// Development mode: more lenient limits
	if environment == "development" {
		config.GlobalAPIMax = 1000
		config.WebSocketMax = 100
		log.Println("⚠️  [RATE-LIMIT] Development mode: using relaxed rate limits")
	}

	return config
}

func positiveIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// GlobalAPIRateLimiter creates a rate limiter for all API requests
func GlobalAPIRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.GlobalAPIMax,
		Expiration: config.GlobalAPIExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "global:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] Global limit reached for IP: %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many requests. Please slow down.",
				"retry_after": int(config.GlobalAPIExpiration.Seconds()),
			})
		},
	})
}

// WriteRateLimiter limits mutating requests per caller (uses user ID).
// Reads pass through untouched.
func WriteRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.WriteMax,
		Expiration: config.WriteExpiration,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodGet || c.Method() == fiber.MethodHead
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			if userID, ok := c.Locals("user_id").(string); ok && userID != "" {
				return "write:" + userID
			}
			return "write-ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			userID, _ := c.Locals("user_id").(string)
			log.Printf("⚠️  [RATE-LIMIT] Write limit reached for user: %s on %s", userID, c.Path())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many requests. Please wait before trying again.",
				"retry_after": int(config.WriteExpiration.Seconds()),
			})
		},
	})
}

// WebSocketRateLimiter for change feed connection attempts
func WebSocketRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.WebSocketMax,
		Expiration: config.WebSocketExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "ws:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] WebSocket connection limit reached for IP: %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many connection attempts. Please wait before reconnecting.",
				"retry_after": int(config.WebSocketExpiration.Seconds()),
			})
		},
	})
}
