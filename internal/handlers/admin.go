package handlers

import (
	"context"
	"errors"
	"log"

	"teamup/internal/jobs"
	"teamup/internal/models"

	"github.com/gofiber/fiber/v2"
)

// JobRunner runs registered jobs under their locks
type JobRunner interface {
	RunWith(ctx context.Context, name string, fn func(ctx context.Context) error) error
	Status() map[string]jobs.JobStatus
}

// AdminHandler handles operator endpoints
type AdminHandler struct {
	runner     JobRunner
	sweeper    *jobs.DeadlineSweeper
	reconciler *jobs.MirrorReconciler
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(runner JobRunner, sweeper *jobs.DeadlineSweeper, reconciler *jobs.MirrorReconciler) *AdminHandler {
	return &AdminHandler{runner: runner, sweeper: sweeper, reconciler: reconciler}
}

// Sweep closes expired projects now
// POST /api/admin/sweep
func (h *AdminHandler) Sweep(c *fiber.Ctx) error {
	adminUserID, _ := c.Locals("user_id").(string)
	log.Printf("🔧 Admin %s triggered deadline sweep", adminUserID)

	var result *models.SweepResult
	err := h.runner.RunWith(c.UserContext(), jobs.DeadlineSweeperName, func(ctx context.Context) error {
		var err error
		result, err = h.sweeper.Sweep(ctx)
		return err
	})
	return h.jobResponse(c, result, result != nil, err)
}

// Reconcile repairs application mirrors now
// POST /api/admin/reconcile
func (h *AdminHandler) Reconcile(c *fiber.Ctx) error {
	adminUserID, _ := c.Locals("user_id").(string)
	log.Printf("🔧 Admin %s triggered mirror reconciliation", adminUserID)

	var result *models.ReconcileResult
	err := h.runner.RunWith(c.UserContext(), jobs.MirrorReconcilerName, func(ctx context.Context) error {
		var err error
		result, err = h.reconciler.Reconcile(ctx)
		return err
	})
	return h.jobResponse(c, result, result != nil, err)
}

// Jobs lists registered jobs and their schedules
// GET /api/admin/jobs
func (h *AdminHandler) Jobs(c *fiber.Ctx) error {
	return c.JSON(h.runner.Status())
}

func (h *AdminHandler) jobResponse(c *fiber.Ctx, result interface{}, hasResult bool, err error) error {
	switch {
	case err == nil:
		return c.JSON(result)
	case errors.Is(err, jobs.ErrJobRunning):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Job is already running. Try again later.",
		})
	case errors.Is(err, jobs.ErrUnknownJob):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	case hasResult:
		// Some items failed; the counts are still meaningful
		log.Printf("⚠️  Admin job finished with errors: %v", err)
		return c.Status(fiber.StatusMultiStatus).JSON(fiber.Map{
			"result": result,
			"error":  "Some items failed. Retry to finish.",
		})
	default:
		return respondError(c, err)
	}
}
