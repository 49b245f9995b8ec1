package handlers

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Job    *JobHandler
	Status *StatusHandler
	Result *ResultHandler
	Index  *IndexHandler
	Notify *NotifyHandler
}

func RegisterRoutes(app *fiber.App, h Handlers) {
	api := app.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now(),
		})
	})

	api.Post("/jobs", h.Job.HandleCreate)
	api.Post("/jobs/:id/match", h.Job.HandleMatch)
	api.Get("/jobs/:id/status", h.Status.HandleGetStatus)
	api.Get("/jobs/:id/matches", h.Result.HandleGetMatches)
	api.Post("/jobs/:id/notify", h.Notify.HandleNotify)
	api.Post("/index/rebuild", h.Index.HandleRebuild)

	app.Get("/ws/jobs/:id", h.Status.Upgrade, websocket.New(h.Status.HandleStream))
}
