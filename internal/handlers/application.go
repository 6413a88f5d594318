package handlers

import (
	"fmt"

	"teamup/internal/models"
	"teamup/internal/services"

	"github.com/gofiber/fiber/v2"
)

// ApplicationHandler handles applying to projects and reviewing applicants
type ApplicationHandler struct {
	apps     *services.ApplicationService
	projects *services.ProjectStore
}

// NewApplicationHandler creates a new application handler
func NewApplicationHandler(apps *services.ApplicationService, projects *services.ProjectStore) *ApplicationHandler {
	return &ApplicationHandler{apps: apps, projects: projects}
}

// Apply records the caller's application to a project. Applying twice
// returns the existing application.
// POST /api/projects/:id/applications
func (h *ApplicationHandler) Apply(c *fiber.Ctx) error {
	user, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	projectID := c.Params("id")

	project, err := h.projects.Get(c.UserContext(), projectID)
	if err != nil {
		return respondError(c, err)
	}
	if project == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Project not found",
		})
	}
	if project.Status == models.ProjectStatusClosed {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Project is no longer accepting applications",
		})
	}

	result, err := h.apps.ApplyForProject(c.UserContext(), projectID, user)
	if err != nil {
		return respondError(c, err)
	}
	status := fiber.StatusCreated
	if result.AlreadyApplied {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(result)
}

// ListForProject returns a project's applicants to its owner
// GET /api/projects/:id/applications
func (h *ApplicationHandler) ListForProject(c *fiber.Ctx) error {
	user, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	projectID := c.Params("id")
	if _, err := requireOwner(c, h.projects, projectID, user.UserID); err != nil {
		return respondError(c, err)
	}

	apps, err := h.apps.GetApplicationsByProject(c.UserContext(), projectID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"applications": nonNil(apps),
		"count":        len(apps),
	})
}

// Mine reports whether the caller has applied to a project
// GET /api/projects/:id/applications/me
func (h *ApplicationHandler) Mine(c *fiber.Ctx) error {
	user, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}

	app, err := h.apps.HasUserApplied(c.UserContext(), user.UserID, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"applied":     app != nil,
		"application": app,
	})
}

// ListMine returns every application the caller made
// GET /api/me/applications
func (h *ApplicationHandler) ListMine(c *fiber.Ctx) error {
	user, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}

	apps, err := h.apps.GetApplicationsByUser(c.UserContext(), user.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"applications": nonNil(apps),
		"count":        len(apps),
	})
}

// UpdateStatusRequest is the body of a status change
type UpdateStatusRequest struct {
	Status models.ApplicationStatus `json:"status"`
}

// UpdateStatus moves an application to a new review state. Only the owner
// of the application's project may do this.
// PATCH /api/applications/:id/status
func (h *ApplicationHandler) UpdateStatus(c *fiber.Ctx) error {
	user, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	applicationID := c.Params("id")

	var req UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	app, err := h.apps.GetApplication(c.UserContext(), applicationID)
	if err != nil {
		return respondError(c, err)
	}
	if app == nil {
		return respondError(c, fmt.Errorf("application %s: %w", applicationID, services.ErrNotFound))
	}
	if _, err := requireOwner(c, h.projects, app.ProjectID, user.UserID); err != nil {
		return respondError(c, err)
	}

	if err := h.apps.UpdateApplicationStatus(c.UserContext(), applicationID, req.Status); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"id":     applicationID,
		"status": req.Status,
	})
}
