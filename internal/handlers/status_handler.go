package handlers

import (
	"context"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"alfredoptarigan/consultant-matcher/internal/models"
	ws "alfredoptarigan/consultant-matcher/internal/websocket"
)

// StatusReader returns the status of every stage of a job.
type StatusReader interface {
	Get(ctx context.Context, jobID uuid.UUID) (map[models.Stage]models.AgentStatus, error)
}

type StatusHandler struct {
	tracker StatusReader
	hub     *ws.Hub
}

func NewStatusHandler(tracker StatusReader, hub *ws.Hub) *StatusHandler {
	return &StatusHandler{tracker: tracker, hub: hub}
}

// HandleGetStatus handles GET /jobs/:id/status
func (h *StatusHandler) HandleGetStatus(c *fiber.Ctx) error {
	jobID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid job ID format")
	}

	statuses, err := h.tracker.Get(c.UserContext(), jobID)
	if err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "status store unavailable")
	}

	response := models.StatusResponse{
		JobID:  jobID.String(),
		Stages: make(map[models.Stage]models.StageStatusResponse, len(statuses)),
	}
	for stage, s := range statuses {
		entry := models.StageStatusResponse{
			State:    s.State,
			Progress: s.Progress,
			Message:  s.Message,
		}
		if !s.UpdatedAt.IsZero() {
			entry.UpdatedAt = s.UpdatedAt.Format(time.RFC3339)
		}
		response.Stages[stage] = entry
	}

	return c.JSON(response)
}

// Upgrade rejects non-websocket requests on the stream routes.
func (h *StatusHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	jobID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid job ID format")
	}

	statuses, err := h.tracker.Get(c.UserContext(), jobID)
	if err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "status store unavailable")
	}

	initial := make([]models.AgentStatus, 0, len(models.Stages))
	for _, stage := range models.Stages {
		if s, ok := statuses[stage]; ok {
			initial = append(initial, s)
		}
	}
	c.Locals("initial", initial)
	return c.Next()
}

// HandleStream handles GET /ws/jobs/:id
func (h *StatusHandler) HandleStream(c *websocket.Conn) {
	initial, _ := c.Locals("initial").([]models.AgentStatus)
	h.hub.HandleConnection(c, c.Params("id"), initial)
}
