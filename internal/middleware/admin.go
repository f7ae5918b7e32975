package middleware

import (
	"strings"

	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/config"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/dto"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const AdminTokenHeader = "X-Admin-Token"

// AdminRequired accepts either:
// 1. X-Admin-Token matching ADMIN_TOKEN or the bcrypt ADMIN_TOKEN_HASH
// 2. A verified JWT (see AdminJWT) with role=admin or the admin email
func AdminRequired(cfg *config.Config) fiber.Handler {
	adminEmails := parseCSV(cfg.AdminEmail)
	auth := services.NewAdminAuthService(cfg)

	return func(c *fiber.Ctx) error {
		if token := c.Get(AdminTokenHeader); token != "" {
			if auth.VerifyToken(token) {
				return c.Next()
			}
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Invalid admin token",
			})
		}

		token, ok := c.Locals("user").(*jwt.Token)
		if !ok || token == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Unauthorized",
			})
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Invalid claims",
			})
		}

		role, _ := claims["role"].(string)
		email, _ := claims["email"].(string)
		if role == "admin" || (email != "" && contains(adminEmails, email)) {
			return c.Next()
		}

		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
			Error: true, Message: "Admin access required",
		})
	}
}

func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func contains(list []string, val string) bool {
	for _, item := range list {
		if strings.EqualFold(item, val) {
			return true
		}
	}
	return false
}
