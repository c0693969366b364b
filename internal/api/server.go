package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"tutor-tasks/internal/logger"
	"tutor-tasks/internal/repository"
)

// NewApp builds the fiber application with every route registered.
func NewApp(h *Handler, secret string, users *repository.UserRepository, log logger.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "tutor-tasks",
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
	})
	app.Use(recover.New())
	app.Use(requestLogger(log))
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	SetupRoutes(app, h, Verify(secret, users))
	return app
}

func SetupRoutes(app *fiber.App, h *Handler, auth fiber.Handler) {
	api := app.Group("/api", auth)

	templates := api.Group("/templates")
	templates.Get("/", h.ListTemplates)
	templates.Post("/", h.CreateTemplate)
	templates.Get("/:id", h.GetTemplate)
	templates.Put("/:id", h.UpdateTemplate)
	templates.Delete("/:id", h.DeleteTemplate)
	templates.Post("/:id/assign", h.AssignTemplate)
	templates.Get("/:id/tasks", h.ListTemplateTasks)

	tasks := api.Group("/tasks")
	tasks.Get("/me", h.ListMyTasks)
	tasks.Get("/:id", h.GetTask)
	tasks.Put("/:id/metrics", h.SetMetrics)
	tasks.Post("/:id/metrics/increment", h.IncrementMetric)
	tasks.Put("/:id/status", h.SetTaskStatus)
	tasks.Delete("/:id", h.DeleteTask)

	api.Get("/users/:id/tasks", h.ListUserTasks)
	api.Post("/renewals/run", h.RunRenewal)
}

func requestLogger(log logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.Debug("http request", logger.Fields{
			"method":   c.Method(),
			"path":     c.Path(),
			"status":   c.Response().StatusCode(),
			"duration": time.Since(start).String(),
		})
		return err
	}
}
