package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/openlearn/lms-api/internal/config"
	"github.com/openlearn/lms-api/internal/handler"
	"github.com/openlearn/lms-api/internal/middleware"
	"github.com/openlearn/lms-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AssignmentHandler   *handler.AssignmentHandler
	SubmissionHandler   *handler.SubmissionHandler
	QuizHandler         *handler.QuizHandler
	GradingHandler      *handler.GradingHandler
	NotificationHandler *handler.NotificationHandler
	ActivityHandler     *handler.ActivityHandler
	JWTMiddleware       fiber.Handler
	SubmitLimiter       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
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

	submitLimiter := deps.SubmitLimiter
	if submitLimiter == nil {
		submitLimiter = func(c *fiber.Ctx) error { return c.Next() }
	}

	// Assignment authoring, submission intake and quiz taking all hang off
	// the assignment scope.
	if deps.AssignmentHandler != nil {
		assignments := api.Group("/assignments", jwtMiddleware)
		deps.AssignmentHandler.Register(assignments)

		if deps.SubmissionHandler != nil {
			deps.SubmissionHandler.Register(assignments, submitLimiter)
		}
		if deps.QuizHandler != nil {
			deps.QuizHandler.Register(assignments, submitLimiter)
		}
	}

	if deps.SubmissionHandler != nil {
		submissions := api.Group("/submissions", jwtMiddleware)
		deps.SubmissionHandler.RegisterSubmissionRoutes(submissions)

		if deps.GradingHandler != nil {
			deps.GradingHandler.Register(submissions)
		}
	}

	if deps.QuizHandler != nil {
		results := api.Group("/quiz-results", jwtMiddleware)
		deps.QuizHandler.RegisterResultRoutes(results)
	}

	if deps.NotificationHandler != nil {
		notifications := api.Group("/notifications", jwtMiddleware)
		deps.NotificationHandler.Register(notifications)
	}

	if deps.ActivityHandler != nil {
		activity := api.Group("/activity", jwtMiddleware, middleware.RequireRole("teacher", "admin"))
		deps.ActivityHandler.Register(activity)
	}
}
