package handlers

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"alfredoptarigan/consultant-matcher/internal/models"
	"alfredoptarigan/consultant-matcher/internal/repositories"
	"alfredoptarigan/consultant-matcher/internal/services"
)

// MatchEnqueuer schedules a matching run for a job.
type MatchEnqueuer interface {
	Enqueue(ctx context.Context, jobID uuid.UUID) error
}

type JobHandler struct {
	jobs      repositories.JobRepository
	queue     MatchEnqueuer
	validator *validator.Validate
}

func NewJobHandler(jobs repositories.JobRepository, queue MatchEnqueuer, v *validator.Validate) *JobHandler {
	return &JobHandler{
		jobs:      jobs,
		queue:     queue,
		validator: v,
	}
}

// HandleCreate handles POST /jobs
func (h *JobHandler) HandleCreate(c *fiber.Ctx) error {
	var job models.JobDescription
	if err := c.BodyParser(&job); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request payload")
	}

	if err := h.validator.Struct(&job); err != nil {
		return validationError(c, err)
	}

	job.ID = uuid.New()
	job.Status = models.JobStatusOpen
	if err := h.jobs.Create(c.UserContext(), &job); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to create job")
	}

	return c.Status(fiber.StatusCreated).JSON(job)
}

// HandleMatch handles POST /jobs/:id/match
func (h *JobHandler) HandleMatch(c *fiber.Ctx) error {
	jobID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid job ID format")
	}

	if _, err := h.jobs.FindByID(c.UserContext(), jobID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "job not found")
		}
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load job")
	}

	if err := h.queue.Enqueue(c.UserContext(), jobID); err != nil {
		if errors.Is(err, services.ErrAlreadyQueued) {
			return fiber.NewError(fiber.StatusConflict, "a matching run for this job is already queued")
		}
		return fiber.NewError(fiber.StatusInternalServerError, "failed to enqueue matching run")
	}

	return c.Status(fiber.StatusAccepted).JSON(models.MatchResponse{
		JobID:  jobID.String(),
		Status: "queued",
	})
}
