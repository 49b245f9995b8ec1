package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ConsultantProfile is one entry of the corpus the candidate index is built from.
type ConsultantProfile struct {
	ID         uuid.UUID      `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id" validate:"required"`
	Name       string         `gorm:"type:text;not null" json:"name" validate:"required"`
	Email      string         `gorm:"type:text;uniqueIndex;not null" json:"email" validate:"required,email"`
	Skills     pq.StringArray `gorm:"type:text[]" json:"skills"`
	Education  string         `gorm:"type:text" json:"education"`
	Experience int            `gorm:"not null;default:0" json:"experience" validate:"min=0"`
	Summary    string         `gorm:"type:text" json:"summary"`
	Available  bool           `gorm:"not null;default:true" json:"available"`
	CreatedAt  time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (ConsultantProfile) TableName() string {
	return "consultant_profiles"
}
