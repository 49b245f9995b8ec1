package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"alfredoptarigan/consultant-matcher/internal/models"
)

type MatchRepository interface {
	Create(ctx context.Context, record *models.MatchRecord) error
	UpdateNotification(ctx context.Context, id uuid.UUID, status models.NotificationStatus) error
	FindLatestByJob(ctx context.Context, jobID uuid.UUID) (*models.MatchRecord, error)
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.MatchRecord, error)
	ReopenNotification(ctx context.Context, record *models.MatchRecord, from models.NotificationStatus) error
}

type matchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(db *gorm.DB) MatchRepository {
	return &matchRepository{db: db}
}

func (r *matchRepository) Create(ctx context.Context, record *models.MatchRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create match record: %w", err)
	}
	return nil
}

// UpdateNotification writes the notification outcome once; records that already
// left the pending state are not touched.
func (r *matchRepository) UpdateNotification(ctx context.Context, id uuid.UUID, status models.NotificationStatus) error {
	result := r.db.WithContext(ctx).
		Model(&models.MatchRecord{}).
		Where("id = ? AND notification_status = ?", id, models.NotificationPending).
		Update("notification_status", status)

	if result.Error != nil {
		return fmt.Errorf("failed to update notification status: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("pending match record %s: %w", id, ErrNotFound)
	}

	return nil
}

func (r *matchRepository) FindLatestByJob(ctx context.Context, jobID uuid.UUID) (*models.MatchRecord, error) {
	var record models.MatchRecord
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at DESC").
		First(&record).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("match record for job %s: %w", jobID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find match record: %w", err)
	}

	return &record, nil
}

// ListByJob returns every record of the job, newest first.
func (r *matchRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.MatchRecord, error) {
	var records []models.MatchRecord
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at DESC").
		Find(&records).Error

	if err != nil {
		return nil, fmt.Errorf("failed to list match records: %w", err)
	}

	return records, nil
}

// ReopenNotification puts a settled record back to pending with the
// notification kind and recipients now on record. It only succeeds while
// the stored status still equals from, so one resend at a time wins.
func (r *matchRepository) ReopenNotification(ctx context.Context, record *models.MatchRecord, from models.NotificationStatus) error {
	result := r.db.WithContext(ctx).
		Model(&models.MatchRecord{}).
		Where("id = ? AND notification_status = ?", record.ID, from).
		Updates(map[string]interface{}{
			"notification_kind":       record.NotificationKind,
			"notification_recipients": record.NotificationRecipients,
			"notification_status":     models.NotificationPending,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to reopen notification: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("match record %s is no longer %s: %w", record.ID, from, ErrConflict)
	}

	record.NotificationStatus = models.NotificationPending
	return nil
}
