package routes

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/config"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type Handlers struct {
	Auth     *handlers.AuthHandler
	Health   *handlers.HealthHandler
	Webhook  *handlers.WebhookHandler
	Status   *handlers.StatusHandler
	Settings *handlers.SettingsHandler
	Tools    *handlers.AdminToolsHandler
}

func Setup(app *fiber.App, cfg *config.Config, h Handlers) {
	api := app.Group("/api")

	api.Get("/health", h.Health.Check)

	// Webhooks: ThriveCart authenticates in the body, so no middleware auth.
	// Refund batches arrive in bursts from a single IP; the limit is generous.
	webhooks := api.Group("/webhooks", limiter.New(limiter.Config{
		Max:               300,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))
	// HEAD first: Get also registers HEAD.
	webhooks.Head("/thrivecart", h.Webhook.Head)
	webhooks.Get("/thrivecart", h.Webhook.Probe)
	webhooks.Post("/thrivecart", h.Webhook.Receive)

	// Admin login: 10 req/min per IP (stricter), exchanges the admin token for a JWT
	api.Post("/admin/login", limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}), h.Auth.Login)

	// Admin: 60 req/min per IP, X-Admin-Token or admin JWT
	admin := api.Group("/admin",
		limiter.New(limiter.Config{
			Max:               60,
			Expiration:        1 * time.Minute,
			LimiterMiddleware: limiter.SlidingWindow{},
			KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
		}),
		middleware.AdminJWT(cfg),
		middleware.AdminRequired(cfg),
	)
	admin.Get("/status", h.Status.Status)
	admin.Get("/settings", h.Settings.GetSettings)
	admin.Put("/settings", h.Settings.UpdateSettings)
	admin.Get("/mappings", h.Settings.GetMappings)
	admin.Put("/mappings", h.Settings.ReplaceMappings)
	admin.Post("/tools/simulate-cancel", h.Tools.SimulateCancel)
	admin.Get("/logs", h.Tools.ListLogs)
}
