package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// FallbackReasoning is used for candidates the language model gave no usable assessment for.
const FallbackReasoning = "analysis unavailable"

// ScoredCandidate is the per-run assessment of a single shortlisted profile.
type ScoredCandidate struct {
	ProfileID      uuid.UUID `json:"profile_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Experience     int       `json:"experience"`
	Similarity     float64   `json:"similarity"`
	Score          float64   `json:"score"`
	MatchingSkills []string  `json:"matching_skills"`
	MissingSkills  []string  `json:"missing_skills"`
	Reasoning      string    `json:"reasoning"`
	Fallback       bool      `json:"fallback,omitempty"`
}

type NotificationKind string

const (
	NotificationMatches   NotificationKind = "send_matches"
	NotificationNoMatches NotificationKind = "send_no_matches"
)

type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// MatchRecord is the persisted outcome of one matching run. Re-running the
// pipeline creates a new record instead of updating an old one.
type MatchRecord struct {
	ID                     uuid.UUID          `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	JobID                  uuid.UUID          `gorm:"type:uuid;not null;index" json:"job_id"`
	TopMatches             datatypes.JSON     `gorm:"type:jsonb" json:"top_matches"`
	OverallScore           float64            `gorm:"not null;default:0" json:"overall_score"`
	CandidatesScored       int                `gorm:"not null;default:0" json:"candidates_scored"`
	IndexVersion           string             `gorm:"type:text" json:"index_version"`
	NotificationKind       NotificationKind   `gorm:"type:text" json:"notification_kind"`
	NotificationStatus     NotificationStatus `gorm:"type:text;not null;default:'pending'" json:"notification_status"`
	NotificationRecipients pq.StringArray     `gorm:"type:text[]" json:"notification_recipients"`
	CreatedAt              time.Time          `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	CompletedAt            time.Time          `json:"completed_at"`
}

func (MatchRecord) TableName() string {
	return "match_records"
}

// SetTopMatches encodes the ranked candidates into the JSON column.
func (m *MatchRecord) SetTopMatches(top []ScoredCandidate) error {
	if top == nil {
		top = []ScoredCandidate{}
	}
	data, err := json.Marshal(top)
	if err != nil {
		return fmt.Errorf("failed to encode top matches: %w", err)
	}
	m.TopMatches = datatypes.JSON(data)
	return nil
}

// Matches decodes the ranked candidates stored on the record.
func (m *MatchRecord) Matches() ([]ScoredCandidate, error) {
	if len(m.TopMatches) == 0 {
		return []ScoredCandidate{}, nil
	}
	var top []ScoredCandidate
	if err := json.Unmarshal(m.TopMatches, &top); err != nil {
		return nil, fmt.Errorf("failed to decode top matches: %w", err)
	}
	return top, nil
}

// Notification is the structured content handed to the notification collaborator.
type Notification struct {
	Kind         NotificationKind  `json:"kind"`
	JobID        uuid.UUID         `json:"job_id"`
	JobTitle     string            `json:"job_title"`
	Recipients   []string          `json:"recipients"`
	Subject      string            `json:"subject"`
	OverallScore float64           `json:"overall_score"`
	Matches      []ScoredCandidate `json:"matches,omitempty"`
}
