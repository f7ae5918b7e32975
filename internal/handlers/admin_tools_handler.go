package handlers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/dto"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/logging"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/services"
	"github.com/gofiber/fiber/v2"
)

// CancellationSimulator runs the cancellation path without a webhook.
type CancellationSimulator interface {
	SimulateCancellation(ctx context.Context, email string, membershipID int64) services.SyncResult
}

type AdminToolsHandler struct {
	simulator CancellationSimulator
	logs      logging.Store
}

func NewAdminToolsHandler(simulator CancellationSimulator, logs logging.Store) *AdminToolsHandler {
	return &AdminToolsHandler{simulator: simulator, logs: logs}
}

// SimulateCancel cancels a member's access to one membership as if ThriveCart
// had sent a cancellation.
func (h *AdminToolsHandler) SimulateCancel(c *fiber.Ctx) error {
	var req dto.SimulateCancelRequest
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

	ctx := logging.WithRequestID(c.UserContext(), requestID(c))
	slog.InfoContext(ctx, "simulating cancellation", "email", req.Email, "membership_id", req.MembershipID)

	result := h.simulator.SimulateCancellation(ctx, req.Email, req.MembershipID)
	if !result.OK && errors.Is(result.Err(), services.ErrValidation) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(result)
	}
	return c.JSON(result)
}

// ListLogs returns the most recent persisted log rows, newest first.
func (h *AdminToolsHandler) ListLogs(c *fiber.Ctx) error {
	q := logging.Query{
		Level: c.Query("level"),
		Email: c.Query("email"),
		Event: c.Query("event"),
		Limit: c.QueryInt("limit", 0),
	}

	rows, err := h.logs.Recent(c.UserContext(), q)
	if err != nil {
		slog.Error("failed to list sync logs", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error:   true,
			Message: "Failed to fetch logs",
		})
	}
	return c.JSON(dto.LogsResponse{Logs: rows, Count: len(rows)})
}
