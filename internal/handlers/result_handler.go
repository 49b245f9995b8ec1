package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"alfredoptarigan/consultant-matcher/internal/models"
	"alfredoptarigan/consultant-matcher/internal/repositories"
)

type ResultHandler struct {
	matches repositories.MatchRepository
}

func NewResultHandler(matches repositories.MatchRepository) *ResultHandler {
	return &ResultHandler{
		matches: matches,
	}
}

// HandleGetMatches handles GET /jobs/:id/matches and returns the latest record,
// or every record newest first with ?all=true.
func (h *ResultHandler) HandleGetMatches(c *fiber.Ctx) error {
	jobID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid job ID format")
	}

	if c.QueryBool("all") {
		return h.history(c, jobID)
	}

	record, err := h.matches.FindLatestByJob(c.UserContext(), jobID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "no match record for this job")
		}
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load match record")
	}

	resp, err := recordResponse(record)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "corrupt match record")
	}
	return c.JSON(resp)
}

func (h *ResultHandler) history(c *fiber.Ctx, jobID uuid.UUID) error {
	records, err := h.matches.ListByJob(c.UserContext(), jobID)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load match records")
	}

	resp := models.MatchHistoryResponse{
		JobID:   jobID.String(),
		Records: make([]models.MatchRecordResponse, 0, len(records)),
	}
	for n := range records {
		r, err := recordResponse(&records[n])
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "corrupt match record")
		}
		resp.Records = append(resp.Records, r)
	}
	return c.JSON(resp)
}

func recordResponse(record *models.MatchRecord) (models.MatchRecordResponse, error) {
	top, err := record.Matches()
	if err != nil {
		return models.MatchRecordResponse{}, err
	}

	return models.MatchRecordResponse{
		ID:                     record.ID.String(),
		JobID:                  record.JobID.String(),
		OverallScore:           record.OverallScore,
		CandidatesScored:       record.CandidatesScored,
		IndexVersion:           record.IndexVersion,
		TopMatches:             top,
		NotificationKind:       record.NotificationKind,
		NotificationStatus:     record.NotificationStatus,
		NotificationRecipients: record.NotificationRecipients,
		CreatedAt:              record.CreatedAt.Format(time.RFC3339),
	}, nil
}
