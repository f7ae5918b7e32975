package handlers

import (
	"errors"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/dto"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/services"
	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	authService *services.AdminAuthService
}

func NewAuthHandler(authService *services.AdminAuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Login exchanges the admin token for a bearer JWT.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.AdminLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: validationMessage(err),
		})
	}

	token, expiresAt, err := h.authService.Login(req.Token)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidCredentials):
			slog.Warn("admin login failed", "ip", c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		case errors.Is(err, services.ErrJWTDisabled):
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		slog.Error("admin token signing failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Internal server error",
		})
	}

	slog.Info("admin logged in", "ip", c.IP(), "expires_at", expiresAt)
	return c.JSON(dto.AdminLoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
	})
}
