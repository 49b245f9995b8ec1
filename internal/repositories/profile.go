package repositories

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"alfredoptarigan/consultant-matcher/internal/models"
)

type ProfileRepository interface {
	// ListAvailable returns the profiles open for assignment in a stable order.
	ListAvailable(ctx context.Context) ([]models.ConsultantProfile, error)
	// UpsertByEmail inserts the profiles, replacing existing ones with the same email.
	UpsertByEmail(ctx context.Context, profiles []models.ConsultantProfile) error
}

type profileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) ListAvailable(ctx context.Context) ([]models.ConsultantProfile, error) {
	var profiles []models.ConsultantProfile
	err := r.db.WithContext(ctx).
		Where("available = ?", true).
		Order("created_at ASC, id ASC").
		Find(&profiles).Error

	if err != nil {
		return nil, fmt.Errorf("failed to list available profiles: %w", err)
	}

	return profiles, nil
}

func (r *profileRepository) UpsertByEmail(ctx context.Context, profiles []models.ConsultantProfile) error {
	if len(profiles) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "skills", "education", "experience", "summary", "available", "updated_at"}),
		}).
		Create(&profiles).Error

	if err != nil {
		return fmt.Errorf("failed to upsert profiles: %w", err)
	}

	return nil
}
