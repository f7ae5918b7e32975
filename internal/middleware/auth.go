package middleware

import (
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/config"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/dto"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
)

// AdminJWT verifies a bearer token when ADMIN_JWT_SECRET is set. Requests
// carrying X-Admin-Token skip it and are checked by AdminRequired instead.
func AdminJWT(cfg *config.Config) fiber.Handler {
	if cfg.AdminJWTSecret == "" {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{Key: []byte(cfg.AdminJWTSecret)},
		Filter: func(c *fiber.Ctx) bool {
			return c.Get(AdminTokenHeader) != ""
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error:   true,
				Message: "Unauthorized: invalid or expired token",
			})
		},
	})
}
