package health

import (
	"context"
	"time"
)

// Status represents the health state of a dependency
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// Component tracks the health of one backing dependency (document store,
// Redis, ...)
type Component struct {
	Name          string    `json:"name"`
	Status        Status    `json:"status"`
	LastChecked   time.Time `json:"last_checked,omitempty"`
	LastSuccessAt time.Time `json:"last_success_at,omitempty"`
	FailureCount  int       `json:"failure_count"`
	LastError     string    `json:"last_error,omitempty"`
	LatencyMs     int64     `json:"latency_ms"`
}

// CheckFunc performs a lightweight liveness check of a dependency
type CheckFunc func(ctx context.Context) error
