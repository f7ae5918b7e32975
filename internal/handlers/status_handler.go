package handlers

import (
	"errors"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/dto"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/logging"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/mapping"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/memberpress"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/services"
	"github.com/gofiber/fiber/v2"
)

type StatusHandler struct {
	settings  services.SettingsSource
	newClient services.ClientFactory
}

func NewStatusHandler(src services.SettingsSource, newClient services.ClientFactory) *StatusHandler {
	return &StatusHandler{settings: src, newClient: newClient}
}

// Status probes the MemberPress API live and summarizes the configuration.
func (h *StatusHandler) Status(c *fiber.Ctx) error {
	ctx := logging.WithRequestID(c.UserContext(), requestID(c))
	cfg := h.settings.Snapshot()

	resp := dto.StatusResponse{
		SecretConfigured: cfg.WebhookSecret != "",
		ActiveMappings:   mapping.Table(cfg.Mappings).Active(),
		MappingOverlaps:  mapping.FindOverlaps(cfg.Mappings),
		Options: dto.StatusOptions{
			LogDays:    cfg.LogDays,
			AdminEmail: cfg.AdminEmail,
		},
	}
	if resp.MappingOverlaps == nil {
		resp.MappingOverlaps = []mapping.Overlap{}
	}

	apiDetail := "API key not configured"
	if cfg.APIKey != "" && cfg.BaseURL != "" {
		err := h.newClient(cfg).Ping(ctx)
		switch {
		case err == nil:
			resp.MemberPressDetected = true
			resp.APIConnected = true
			apiDetail = "connected"
		case memberpress.StatusCode(err) > 0:
			// The site answered, so MemberPress is there; the key was refused.
			resp.MemberPressDetected = true
			apiDetail = memberpress.Message(err)
		case errors.Is(err, memberpress.ErrTransport):
			apiDetail = "MemberPress unreachable"
		default:
			apiDetail = err.Error()
		}
		if err != nil {
			slog.WarnContext(ctx, "memberpress status probe failed", "error", err)
		}
	} else if cfg.BaseURL == "" {
		apiDetail = "MemberPress URL not configured"
	}

	resp.Checks = []dto.StatusCheck{
		{Name: "memberpress_detected", OK: resp.MemberPressDetected},
		{Name: "secret_configured", OK: resp.SecretConfigured},
		{Name: "api_connected", OK: resp.APIConnected, Detail: apiDetail},
		{Name: "active_mappings", OK: resp.ActiveMappings > 0},
		{Name: "mapping_overlaps", OK: len(resp.MappingOverlaps) == 0},
	}
	resp.OK = resp.MemberPressDetected && resp.SecretConfigured && resp.APIConnected && resp.ActiveMappings > 0

	return c.JSON(resp)
}
