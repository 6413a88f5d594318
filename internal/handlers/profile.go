package handlers

import (
	"teamup/internal/models"
	"teamup/internal/services"

	"github.com/gofiber/fiber/v2"
)

// ProfileHandler handles user profiles
type ProfileHandler struct {
	users *services.UserService
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(users *services.UserService) *ProfileHandler {
	return &ProfileHandler{users: users}
}

// Me returns the caller's profile, creating it on first sight
// GET /api/me/profile
func (h *ProfileHandler) Me(c *fiber.Ctx) error {
	user, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}

	profile, err := h.users.EnsureProfile(c.UserContext(), user)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(profile)
}

// UpdateMe edits the caller's profile
// PATCH /api/me/profile
func (h *ProfileHandler) UpdateMe(c *fiber.Ctx) error {
	user, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}

	var update models.ProfileUpdate
	if err := c.BodyParser(&update); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if _, err := h.users.EnsureProfile(c.UserContext(), user); err != nil {
		return respondError(c, err)
	}
	if err := h.users.UpdateProfile(c.UserContext(), user.UserID, &update); err != nil {
		return respondError(c, err)
	}

	profile, err := h.users.GetProfile(c.UserContext(), user.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(profile)
}

// GetByUsername returns a public profile
// GET /api/profiles/:username
func (h *ProfileHandler) GetByUsername(c *fiber.Ctx) error {
	profile, err := h.users.GetProfileByUsername(c.UserContext(), c.Params("username"))
	if err != nil {
		return respondError(c, err)
	}
	if profile == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Profile not found",
		})
	}
	// The wishlist is private to its owner
	profile.Wishlist = nil
	return c.JSON(profile)
}
