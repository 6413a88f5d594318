package handlers

import (
	"errors"
	"fmt"
	"log"

	"teamup/internal/middleware"
	"teamup/internal/models"
	"teamup/internal/services"

	"github.com/gofiber/fiber/v2"
)

// errNotOwner is returned when the caller does not own the target project
var errNotOwner = errors.New("only the project owner can do this")

// respondError maps service errors onto HTTP statuses. Store failures get a
// generic retry message; their cause is only logged.
func respondError(c *fiber.Ctx, err error) error {
	var partial *services.PartialFailureError
	switch {
	case errors.As(err, &partial):
		log.Printf("⚠️  %s %s partially applied: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":     "Operation partially completed. Retry to finish it.",
			"completed": partial.Completed,
		})
	case errors.Is(err, services.ErrMissingField), errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrAlreadyExists):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, errNotOwner):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrStoreUnavailable):
		log.Printf("❌ %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Service temporarily unavailable. Please retry.",
		})
	default:
		log.Printf("❌ %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal server error",
		})
	}
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": "Authentication required",
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": message})
}

// requireOwner loads a project and checks that userID created it
func requireOwner(c *fiber.Ctx, projects *services.ProjectStore, projectID, userID string) (*models.Project, error) {
	project, err := projects.Get(c.UserContext(), projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("project %s: %w", projectID, services.ErrNotFound)
	}
	if project.CreatorID != userID {
		return nil, errNotOwner
	}
	return project, nil
}

// currentUser returns the authenticated caller
func currentUser(c *fiber.Ctx) (models.Identity, bool) {
	return middleware.GetIdentity(c)
}

// nonNil keeps empty lists encoded as [] rather than null
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
