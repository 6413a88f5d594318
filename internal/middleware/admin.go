package middleware

import (
	"github.com/gofiber/fiber/v2"
)

// AdminMiddleware restricts operator endpoints to the configured admin user ids
func AdminMiddleware(adminUserIDs []string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, ok := GetIdentity(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}

		if !IsAdmin(identity.UserID, adminUserIDs) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Admin access required",
			})
		}
		return c.Next()
	}
}

// IsAdmin reports whether userID is in the admin list
func IsAdmin(userID string, adminUserIDs []string) bool {
	for _, adminID := range adminUserIDs {
		if adminID == userID {
			return true
		}
	}
	return false
}
