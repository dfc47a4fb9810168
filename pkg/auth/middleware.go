package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const usernameKey = "username"

func NewAuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized: missed header"})
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized: Invalid header format"})
		}

		claims, err := ValidateToken(parts[1], secret)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized: Invalid token"})
		}

		c.Locals(usernameKey, claims.User())
		return c.Next()
	}
}

// Username returns the authenticated caller, or "" outside the middleware.
func Username(c *fiber.Ctx) string {
	name, _ := c.Locals(usernameKey).(string)
	return name
}
