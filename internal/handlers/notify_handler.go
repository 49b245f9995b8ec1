package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"alfredoptarigan/consultant-matcher/internal/matching"
	"alfredoptarigan/consultant-matcher/internal/models"
	"alfredoptarigan/consultant-matcher/internal/repositories"
)

// NotificationResender repeats the notification of a stored match record.
type NotificationResender interface {
	Resend(ctx context.Context, job *models.JobDescription, record *models.MatchRecord) (*models.MatchRecord, error)
}

type NotifyHandler struct {
	jobs     repositories.JobRepository
	matches  repositories.MatchRepository
	resender NotificationResender
}

func NewNotifyHandler(jobs repositories.JobRepository, matches repositories.MatchRepository, resender NotificationResender) *NotifyHandler {
	return &NotifyHandler{
		jobs:     jobs,
		matches:  matches,
		resender: resender,
	}
}

// HandleNotify handles POST /jobs/:id/notify and resends the notification of
// the job's latest match record.
func (h *NotifyHandler) HandleNotify(c *fiber.Ctx) error {
	jobID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid job ID format")
	}

	job, err := h.jobs.FindByID(c.UserContext(), jobID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "job not found")
		}
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load job")
	}

	record, err := h.matches.FindLatestByJob(c.UserContext(), jobID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "no match record for this job")
		}
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load match record")
	}

	updated, err := h.resender.Resend(c.UserContext(), job, record)
	switch {
	case err == nil:
	case errors.Is(err, matching.ErrNotificationPending), errors.Is(err, repositories.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, "notification for this record is still in flight")
	case errors.Is(err, matching.ErrNotification) && updated != nil:
		resp, rerr := recordResponse(updated)
		if rerr != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "corrupt match record")
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":  err.Error(),
			"code":   fiber.StatusBadGateway,
			"record": resp,
		})
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "failed to resend notification")
	}

	resp, err := recordResponse(updated)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "corrupt match record")
	}
	return c.JSON(resp)
}
