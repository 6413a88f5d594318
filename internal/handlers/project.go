package handlers

import (
	"log"

	"teamup/internal/models"
	"teamup/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// ProjectHandler handles project listing endpoints
type ProjectHandler struct {
	projects *services.ProjectStore
	deletion *services.DeletionService
}

// NewProjectHandler creates a new project handler
func NewProjectHandler(projects *services.ProjectStore, deletion *services.DeletionService) *ProjectHandler {
	return &ProjectHandler{projects: projects, deletion: deletion}
}

// Create publishes a new project owned by the caller
// POST /api/projects
func (h *ProjectHandler) Create(c *fiber.Ctx) error {
	user, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}

	var project models.Project
	if err := c.BodyParser(&project); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if project.ID == "" {
		project.ID = uuid.New().String()
	}
	project.CreatorID = user.UserID
	project.CreatorName = user.Name
	project.CreatorUsername = user.Username
	project.CreatorImage = user.Image

	if err := h.projects.Create(c.UserContext(), &project); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(project)
}

// List returns every project, newest first
// GET /api/projects
func (h *ProjectHandler) List(c *fiber.Ctx) error {
	projects, err := h.projects.ListAll(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"projects": nonNil(projects),
		"count":    len(projects),
	})
}

// ListByCreator returns the projects a user created
// GET /api/users/:id/projects
func (h *ProjectHandler) ListByCreator(c *fiber.Ctx) error {
	projects, err := h.projects.ListByCreator(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"projects": nonNil(projects),
		"count":    len(projects),
	})
}

// Get returns one project
// GET /api/projects/:id
func (h *ProjectHandler) Get(c *fiber.Ctx) error {
	project, err := h.projects.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	if project == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Project not found",
		})
	}
	return c.JSON(project)
}

// Update applies a partial edit from the project owner
// PATCH /api/projects/:id
func (h *ProjectHandler) Update(c *fiber.Ctx) error {
	user, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	projectID := c.Params("id")
	if _, err := requireOwner(c, h.projects, projectID, user.UserID); err != nil {
		return respondError(c, err)
	}

	var update models.ProjectUpdate
	if err := c.BodyParser(&update); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := h.projects.Update(c.UserContext(), projectID, &update); err != nil {
		return respondError(c, err)
	}

	project, err := h.projects.Get(c.UserContext(), projectID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(project)
}

// Delete removes a project with its applications, mirrors and wishlist entries
// DELETE /api/projects/:id
func (h *ProjectHandler) Delete(c *fiber.Ctx) error {
	user, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	projectID := c.Params("id")
	if _, err := requireOwner(c, h.projects, projectID, user.UserID); err != nil {
		return respondError(c, err)
	}

	result, err := h.deletion.DeleteProjectCompletely(c.UserContext(), projectID)
	if err != nil {
		return respondError(c, err)
	}
	log.Printf("🗑️  Project %s deleted by %s (%d applications, %d wishlists)",
		projectID, user.UserID, result.DeletedApplicationCount, result.ScrubbedWishlistCount)
	return c.JSON(result)
}
