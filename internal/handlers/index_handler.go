package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"alfredoptarigan/consultant-matcher/internal/index"
	"alfredoptarigan/consultant-matcher/internal/models"
	"alfredoptarigan/consultant-matcher/internal/repositories"
)

// IndexEnsurer makes sure the current snapshot covers the given corpus.
type IndexEnsurer interface {
	Ensure(ctx context.Context, profiles []models.ConsultantProfile) (*index.Snapshot, bool, error)
}

type IndexHandler struct {
	profiles repositories.ProfileRepository
	index    IndexEnsurer
}

func NewIndexHandler(profiles repositories.ProfileRepository, idx IndexEnsurer) *IndexHandler {
	return &IndexHandler{profiles: profiles, index: idx}
}

// HandleRebuild handles POST /index/rebuild
func (h *IndexHandler) HandleRebuild(c *fiber.Ctx) error {
	profiles, err := h.profiles.ListAvailable(c.UserContext())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load profiles")
	}

	if len(profiles) == 0 {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "no available profiles to index")
	}

	snap, rebuilt, err := h.index.Ensure(c.UserContext(), profiles)
	if err != nil {
		if errors.Is(err, index.ErrIndexBuild) {
			return fiber.NewError(fiber.StatusBadGateway, err.Error())
		}
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(models.RebuildResponse{
		Version:  snap.Version,
		Size:     snap.Size,
		Rebuilt:  rebuilt,
		Profiles: len(profiles),
	})
}
