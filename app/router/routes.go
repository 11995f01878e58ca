// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/app/dto"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/app/handlers"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/app/middleware"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/app/services"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/config"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
	"go.uber.org/zap"
)

// HealthCheck reports whether one dependency is reachable
type HealthCheck func(ctx context.Context) error

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app            *fiber.App
	cfg            config.ServerConfig
	metrics        config.MetricsConfig
	campaign       handlers.CampaignHandlerInterface
	webhook        handlers.WebhookHandlerInterface
	authMiddleware *middleware.AuthMiddleware
	checks         map[string]HealthCheck
	logger         *zap.Logger
}

// NewFiberRouter creates a new Fiber router; checks are run by the health endpoint
func NewFiberRouter(
	cfg config.ServerConfig,
	metrics config.MetricsConfig,
	campaign handlers.CampaignHandlerInterface,
	webhook handlers.WebhookHandlerInterface,
	authMiddleware *middleware.AuthMiddleware,
	checks map[string]HealthCheck,
	logger *zap.Logger,
) Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")

	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = 1024 * 1024
	}

	app := fiber.New(fiber.Config{
		AppName:      "LAD Campaigns",
		ErrorHandler: errorHandler(logger),
		BodyLimit:    cfg.BodyLimit,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	return &FiberRouter{
		app:            app,
		cfg:            cfg,
		metrics:        metrics,
		campaign:       campaign,
		webhook:        webhook,
		authMiddleware: authMiddleware,
		checks:         checks,
		logger:         logger,
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	r.setupMiddleware()

	if r.metrics.Enabled {
		r.app.Get(utils.FirstNonEmpty(r.metrics.Path, "/metrics"), adaptor.HTTPHandler(promhttp.Handler()))
	}

	api := r.app.Group("/api/v1")
	api.Get("/health", r.healthCheck)

	api.Use(limiter.New(limiter.Config{
		Max:        600,
		Expiration: time.Minute,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c fiber.Ctx) error {
			return handlers.ErrorResponse(c, fiber.StatusTooManyRequests, "Too many requests. Please try again later.", "RATE_LIMIT_EXCEEDED", nil)
		},
		Next: func(c fiber.Ctx) bool {
			return c.Path() == "/api/v1/health"
		},
	}))

	campaigns := api.Group("/campaigns", r.authMiddleware.Authenticate(services.ScopeCampaignsWrite))
	campaigns.Post("/", r.campaign.CreateCampaign)
	campaigns.Get("/:uuid", r.campaign.GetCampaign)
	campaigns.Get("/:uuid/stats", r.campaign.GetCampaignStats)
	campaigns.Post("/:uuid/start", r.campaign.StartCampaign)
	campaigns.Post("/:uuid/pause", r.campaign.PauseCampaign)
	campaigns.Post("/:uuid/stop", r.campaign.StopCampaign)
	campaigns.Post("/:uuid/run", r.campaign.RunNow)
	campaigns.Post("/:uuid/send-now", r.campaign.SendNow)

	webhooks := api.Group("/webhooks", r.authMiddleware.Authenticate(services.ScopeWebhooks))
	webhooks.Post("/linkedin/connections", r.webhook.LinkedInConnections)

	r.app.Use(r.notFoundHandler)

	r.logger.Info("routes configured", zap.Bool("metrics", r.metrics.Enabled))
}

// setupMiddleware configures global middleware
func (r *FiberRouter) setupMiddleware() {
	r.app.Use(requestid.New(requestid.Config{
		Header:    "X-Request-ID",
		Generator: uuid.NewString,
	}))

	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		ReferrerPolicy:     "no-referrer",
	}))

	if len(r.cfg.AllowedOrigins) > 0 {
		r.app.Use(cors.New(cors.Config{
			AllowOrigins: r.cfg.AllowedOrigins,
			AllowMethods: []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
			MaxAge:       utils.CORSMaxAge,
		}))
	}

	r.app.Use(middleware.Metrics())

	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			r.logger.Error("panic while serving request",
				zap.Any("panic", e),
				zap.String("request_id", requestid.FromContext(c)),
				zap.String("method", c.Method()),
				zap.String("path", c.Path()))
		},
	}))
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	r.logger.Info("starting server", zap.String("address", address))
	return r.app.Listen(address, fiber.ListenConfig{DisableStartupMessage: true})
}

// GetApp returns the Fiber app instance
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

// healthCheck pings every registered dependency
func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
	defer cancel()

	status := fiber.StatusOK
	deps := make(fiber.Map, len(r.checks))
	for name, check := range r.checks {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			status = fiber.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	overall := "ok"
	if status != fiber.StatusOK {
		overall = "degraded"
	}

	return c.Status(status).JSON(dto.APIResponse{
		Success: status == fiber.StatusOK,
		Message: "Service health",
		Data: fiber.Map{
			"status":       overall,
			"timestamp":    utils.UTCNow().Unix(),
			"dependencies": deps,
		},
	})
}

// notFoundHandler answers unmatched routes
func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return handlers.ErrorResponse(c, fiber.StatusNotFound, "The requested resource was not found", "NOT_FOUND", fiber.Map{
		"path":       c.Path(),
		"method":     c.Method(),
		"request_id": requestid.FromContext(c),
	})
}

// errorHandler renders errors that escaped the handlers
func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "An internal server error occurred"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		}
		if code >= fiber.StatusInternalServerError {
			logger.Error("request failed", zap.Int("status", code), zap.String("path", c.Path()), zap.Error(err))
		}

		return handlers.ErrorResponse(c, code, message, "INTERNAL_ERROR", fiber.Map{
			"timestamp":  utils.UTCNow().Unix(),
			"request_id": requestid.FromContext(c),
		})
	}
}
