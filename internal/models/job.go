package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type JobStatus string

const (
	JobStatusOpen     JobStatus = "open"
	JobStatusMatching JobStatus = "matching"
	JobStatusMatched  JobStatus = "matched"
	JobStatusError    JobStatus = "error"
)

// JobDescription is the requirement a matching run is executed against.
type JobDescription struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Title              string         `gorm:"type:text;not null" json:"title" validate:"required"`
	Department         string         `gorm:"type:text" json:"department"`
	Description        string         `gorm:"type:text" json:"description"`
	Skills             pq.StringArray `gorm:"type:text[]" json:"skills"`
	ExperienceRequired int            `gorm:"not null;default:0" json:"experience_required" validate:"min=0"`
	RequesterEmail     string         `gorm:"type:text" json:"requester_email" validate:"omitempty,email"`
	Status             JobStatus      `gorm:"type:text;not null;default:'open'" json:"status"`
	CreatedAt          time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (JobDescription) TableName() string {
	return "job_descriptions"
}
