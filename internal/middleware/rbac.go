package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pedagolab/stepflow-api/internal/utils"
)

// RequireRole limits an endpoint to the listed roles. It must run after
// JWTProtected so the user_role local is populated.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		role, _ := c.Locals("user_role").(string)
		if role == "" {
			return utils.SendError(c, fiber.StatusForbidden, "role missing from token")
		}
		if _, ok := allowed[role]; !ok {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}
