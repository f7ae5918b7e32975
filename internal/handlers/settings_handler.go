package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/dto"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/logging"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/mapping"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/settings"
	"github.com/gofiber/fiber/v2"
)

// SettingsStore is the persisted option set the admin API edits.
type SettingsStore interface {
	Snapshot() settings.Settings
	Update(ctx context.Context, fn func(*settings.Settings) error) (settings.Settings, error)
}

type SettingsHandler struct {
	store SettingsStore
}

func NewSettingsHandler(store SettingsStore) *SettingsHandler {
	return &SettingsHandler{store: store}
}

// GetSettings returns the current options with secrets masked.
func (h *SettingsHandler) GetSettings(c *fiber.Ctx) error {
	return c.JSON(h.store.Snapshot().Masked())
}

// UpdateSettings changes the options present in the body.
func (h *SettingsHandler) UpdateSettings(c *fiber.Ctx) error {
	var req dto.SettingsUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error:   true,
			Message: "Invalid request body",
		})
	}
	trimSettings(&req)
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error:   true,
			Message: validationMessage(err),
		})
	}

	ctx := logging.WithRequestID(c.UserContext(), requestID(c))
	updated, err := h.store.Update(ctx, func(s *settings.Settings) error {
		if req.WebhookSecret != nil {
			s.WebhookSecret = *req.WebhookSecret
		}
		if req.APIKey != nil {
			s.APIKey = *req.APIKey
		}
		if req.BaseURL != nil {
			s.BaseURL = strings.TrimRight(*req.BaseURL, "/")
		}
		if req.AdminEmail != nil {
			s.AdminEmail = *req.AdminEmail
		}
		if req.LogDays != nil {
			s.LogDays = *req.LogDays
		}
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to save settings", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error:   true,
			Message: "Failed to save settings",
		})
	}

	slog.InfoContext(ctx, "settings updated")
	return c.JSON(fiber.Map{
		"error":    false,
		"message":  "Settings updated successfully",
		"settings": updated.Masked(),
	})
}

// GetMappings returns the mapping table and the product ids claimed twice.
func (h *SettingsHandler) GetMappings(c *fiber.Ctx) error {
	entries := h.store.Snapshot().Mappings
	if entries == nil {
		entries = []mapping.Entry{}
	}
	overlaps := mapping.FindOverlaps(entries)
	if overlaps == nil {
		overlaps = []mapping.Overlap{}
	}
	return c.JSON(fiber.Map{
		"mappings": entries,
		"active":   mapping.Table(entries).Active(),
		"overlaps": overlaps,
	})
}

// ReplaceMappings validates and stores a new mapping table. Product ids are
// normalized the same way the startup migration does.
func (h *SettingsHandler) ReplaceMappings(c *fiber.Ctx) error {
	var req dto.MappingsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error:   true,
			Message: "Invalid request body",
		})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error:   true,
			Message: validationMessage(err),
		})
	}

	entries, _ := mapping.Migrate(req.Mappings)
	for i, e := range entries {
		entries[i].ProductIDs = mapping.ProductIDs(e.Products())
		if e.PaymentType == "" {
			entries[i].PaymentType = mapping.PaymentAny
		}
		if len(e.Products()) == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error:   true,
				Message: fmt.Sprintf("Mapping %d has no ThriveCart product IDs", i+1),
			})
		}
	}

	ctx := logging.WithRequestID(c.UserContext(), requestID(c))
	updated, err := h.store.Update(ctx, func(s *settings.Settings) error {
		s.Mappings = entries
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to save mappings", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error:   true,
			Message: "Failed to save mappings",
		})
	}

	overlaps := mapping.FindOverlaps(updated.Mappings)
	if overlaps == nil {
		overlaps = []mapping.Overlap{}
	}
	slog.InfoContext(ctx, "mappings replaced", "count", len(updated.Mappings), "overlaps", len(overlaps))
	return c.JSON(fiber.Map{
		"error":    false,
		"message":  "Mappings saved successfully",
		"mappings": updated.Mappings,
		"overlaps": overlaps,
	})
}

// trimSettings strips surrounding whitespace so pasted values pass validation.
func trimSettings(req *dto.SettingsUpdateRequest) {
	for _, field := range []*string{req.WebhookSecret, req.APIKey, req.BaseURL, req.AdminEmail} {
		if field != nil {
			*field = strings.TrimSpace(*field)
		}
	}
}
