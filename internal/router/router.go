package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pedagolab/stepflow-api/internal/config"
	"github.com/pedagolab/stepflow-api/internal/handler"
	"github.com/pedagolab/stepflow-api/internal/middleware"
	"github.com/pedagolab/stepflow-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	EvaluationHandler *handler.EvaluationHandler
	SummaryHandler    *handler.SummaryHandler
	ProviderHandler   *handler.ProviderHandler
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
//
// Polling the evaluation status only needs a valid token; everything that
// queues provider calls, deletes jobs, or applies grades is teacher/admin only.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	staffOnly := middleware.RequireRole("teacher", "admin")

	if deps.EvaluationHandler != nil {
		deps.EvaluationHandler.Register(api.Group("/evaluations", jwtMiddleware), staffOnly)
	}

	if deps.SummaryHandler != nil {
		deps.SummaryHandler.Register(api.Group("/summaries", jwtMiddleware, staffOnly))
	}

	if deps.ProviderHandler != nil {
		providers := api.Group("/providers", jwtMiddleware, staffOnly)
		deps.ProviderHandler.Register(providers)
	}
}
