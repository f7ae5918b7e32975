package handlers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/dto"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/logging"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/services"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/thrivecart"
	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/gofiber/fiber/v2"
)

// EventProcessor runs one webhook delivery.
type EventProcessor interface {
	Process(ctx context.Context, p thrivecart.Payload) services.SyncResult
}

type WebhookHandler struct {
	processor EventProcessor
}

func NewWebhookHandler(processor EventProcessor) *WebhookHandler {
	return &WebhookHandler{processor: processor}
}

// Probe answers GET with the capability document.
func (h *WebhookHandler) Probe(c *fiber.Ctx) error {
	return c.JSON(dto.DefaultCapabilities())
}

// Head answers HEAD with a bare 200.
func (h *WebhookHandler) Head(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).Send(nil)
}

// Receive processes a ThriveCart delivery. The status is always 200 so the
// sender never retries a rejected or malformed event.
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	start := time.Now()
	ctx := logging.WithRequestID(c.UserContext(), requestID(c))

	payload, err := thrivecart.ParseForm(c.Body())
	if err != nil {
		slog.WarnContext(ctx, "invalid webhook body", "error", err, "content_type", c.Get(fiber.HeaderContentType))
		return c.JSON(services.SyncResult{OK: false, Error: "Invalid payload"})
	}

	result := h.processor.Process(ctx, payload)
	latency := time.Since(start).Milliseconds()

	if result.Rejected() {
		slog.WarnContext(ctx, "webhook rejected", "event", payload.Event(), "ip", c.IP(), "latency_ms", latency)
		return c.Status(fiber.StatusOK).Send(nil)
	}

	if err := result.Err(); err != nil && !errors.Is(err, services.ErrValidation) {
		report(c, err, payload)
	}

	slog.InfoContext(ctx, "webhook handled",
		"event", payload.Event(),
		"ok", result.OK,
		"action_type", result.ActionType,
		"error", result.Error,
		"latency_ms", latency,
	)
	return c.JSON(result)
}

func report(c *fiber.Ctx, err error, p thrivecart.Payload) {
	hub := sentryfiber.GetHubFromContext(c)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("event", p.Event())
		scope.SetContext("payload", sentry.Context{"fields": p.Redacted()})
		hub.CaptureException(err)
	})
}

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals("requestid").(string)
	if id == "" {
		id = c.GetRespHeader(fiber.HeaderXRequestID)
	}
	return id
}
