package handlers

import (
	"teamup/internal/services"

	"github.com/gofiber/fiber/v2"
)

// WishlistHandler handles the caller's saved projects
type WishlistHandler struct {
	wishlist *services.WishlistService
}

// NewWishlistHandler creates a new wishlist handler
func NewWishlistHandler(wishlist *services.WishlistService) *WishlistHandler {
	return &WishlistHandler{wishlist: wishlist}
}

// List returns the caller's saved projects that still exist
// GET /api/me/saved
func (h *WishlistHandler) List(c *fiber.Ctx) error {
	user, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}

	projects, err := h.wishlist.GetSavedProjects(c.UserContext(), user.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"projects": nonNil(projects),
		"count":    len(projects),
	})
}

// Save adds a project to the caller's wishlist
// PUT /api/me/saved/:projectId
func (h *WishlistHandler) Save(c *fiber.Ctx) error {
	user, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	projectID := c.Params("projectId")

	if err := h.wishlist.SaveProject(c.UserContext(), user.UserID, projectID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"project_id": projectID, "saved": true})
}

// Unsave removes a project from the caller's wishlist
// DELETE /api/me/saved/:projectId
func (h *WishlistHandler) Unsave(c *fiber.Ctx) error {
	user, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	projectID := c.Params("projectId")

	if err := h.wishlist.UnsaveProject(c.UserContext(), user.UserID, projectID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"project_id": projectID, "saved": false})
}

// ToggleRequest optionally carries the membership the client last saw
type ToggleRequest struct {
	Saved *bool `json:"saved"`
}

// Toggle flips a project's membership in the caller's wishlist
// POST /api/me/saved/:projectId/toggle
func (h *WishlistHandler) Toggle(c *fiber.Ctx) error {
	user, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	projectID := c.Params("projectId")

	var req ToggleRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
	}

	saved, err := h.wishlist.ToggleSave(c.UserContext(), user.UserID, projectID, req.Saved)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"project_id": projectID, "saved": saved})
}
