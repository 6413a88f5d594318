package preflight

import (
	"context"
	"fmt"
	"log"

	"teamup/internal/config"
	"teamup/internal/database"
)

// CheckResult represents the result of a preflight check
type CheckResult struct {
	Name    string
	Status  string // "pass", "fail", "warning"
	Message string
	Error   error
}

// Checker performs pre-flight checks before server starts
type Checker struct {
	cfg   *config.Config
	mongo *database.MongoDB // nil with the in-memory store
}

// NewChecker creates a new preflight checker
func NewChecker(cfg *config.Config, mongo *database.MongoDB) *Checker {
	return &Checker{cfg: cfg, mongo: mongo}
}

// RunAll runs all preflight checks and returns results
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	log.Println("🔍 Running pre-flight checks...")

	results := []CheckResult{
		c.checkStoreConnection(ctx),
		c.checkTransactions(ctx),
		c.checkIdentity(),
		c.checkAdmins(),
	}

	// Print summary
	passed := 0
	failed := 0
	warnings := 0

	for _, result := range results {
		switch result.Status {
		case "pass":
			log.Printf("   ✅ %s: %s", result.Name, result.Message)
			passed++
		case "fail":
			log.Printf("   ❌ %s: %s", result.Name, result.Message)
			if result.Error != nil {
				log.Printf("      Error: %v", result.Error)
			}
			failed++
		case "warning":
			log.Printf("   ⚠️  %s: %s", result.Name, result.Message)
			warnings++
		}
	}

	log.Printf("📊 Pre-flight summary: %d passed, %d failed, %d warnings", passed, failed, warnings)

	return results
}

// HasFailures returns true if any check failed
func HasFailures(results []CheckResult) bool {
	for _, result := range results {
		if result.Status == "fail" {
			return true
		}
	}
	return false
}

// checkStoreConnection verifies document store connectivity
func (c *Checker) checkStoreConnection(ctx context.Context) CheckResult {
	if c.mongo == nil {
		return CheckResult{
			Name:    "Document Store",
			Status:  "pass",
			Message: "In-memory store",
		}
	}
	if err := c.mongo.Ping(ctx); err != nil {
		return CheckResult{
			Name:    "Document Store",
			Status:  "fail",
			Message: "Cannot connect to MongoDB",
			Error:   err,
		}
	}

	return CheckResult{
		Name:    "Document Store",
		Status:  "pass",
		Message: "MongoDB connection successful",
	}
}

// checkTransactions verifies that atomic batches can run. Cascading
// deletion, apply and wishlist writes all depend on them.
func (c *Checker) checkTransactions(ctx context.Context) CheckResult {
	if c.mongo == nil {
		return CheckResult{
			Name:    "Atomic Batches",
			Status:  "pass",
			Message: "In-memory store transactions",
		}
	}

	ok, err := c.mongo.SupportsTransactions(ctx)
	if err != nil {
		return CheckResult{
			Name:    "Atomic Batches",
			Status:  "fail",
			Message: "Cannot determine MongoDB topology",
			Error:   err,
		}
	}
	if !ok {
		return CheckResult{
			Name:    "Atomic Batches",
			Status:  "fail",
			Message: "MongoDB is a standalone server; a replica set is required for transactions",
		}
	}

	return CheckResult{
		Name:    "Atomic Batches",
		Status:  "pass",
		Message: "MongoDB supports transactions",
	}
}

// checkIdentity verifies identity tokens can be verified
func (c *Checker) checkIdentity() CheckResult {
	if c.cfg.JWTSecret != "" {
		return CheckResult{
			Name:    "Identity",
			Status:  "pass",
			Message: "Token verification configured",
		}
	}
	if c.cfg.IsProduction() {
		return CheckResult{
			Name:    "Identity",
			Status:  "fail",
			Message: "JWT_SECRET is required in production",
		}
	}

	return CheckResult{
		Name:    "Identity",
		Status:  "warning",
		Message: "JWT_SECRET not set (running in development mode)",
	}
}

// checkAdmins warns when nobody can trigger operator jobs over HTTP
func (c *Checker) checkAdmins() CheckResult {
	if len(c.cfg.AdminUserIDs) == 0 {
		return CheckResult{
			Name:    "Admin Users",
			Status:  "warning",
			Message: "ADMIN_USER_IDS not set; operator endpoints are unreachable",
		}
	}

	return CheckResult{
		Name:    "Admin Users",
		Status:  "pass",
		Message: fmt.Sprintf("%d admin user(s) configured", len(c.cfg.AdminUserIDs)),
	}
}
