package models

import (
	"time"

	"github.com/google/uuid"
)

type Stage string

const (
	StageRetrieval    Stage = "retrieval"
	StageScoring      Stage = "scoring"
	StageRanking      Stage = "ranking"
	StageNotification Stage = "notification"
)

// Stages lists the pipeline stages in execution order.
var Stages = []Stage{StageRetrieval, StageScoring, StageRanking, StageNotification}

type StageState string

const (
	StateIdle       StageState = "idle"
	StateInProgress StageState = "in_progress"
	StateCompleted  StageState = "completed"
	StateError      StageState = "error"
)

// Terminal reports whether no further transition is allowed within a run.
func (s StageState) Terminal() bool {
	return s == StateCompleted || s == StateError
}

// AgentStatus is the progress record of one stage of one job.
type AgentStatus struct {
	JobID     uuid.UUID  `json:"job_id"`
	Stage     Stage      `json:"stage"`
	State     StageState `json:"state"`
	Progress  float64    `json:"progress"`
	Message   string     `json:"message,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// IdleStatus is what a stage reports before it was entered.
func IdleStatus(jobID uuid.UUID, stage Stage) AgentStatus {
	return AgentStatus{JobID: jobID, Stage: stage, State: StateIdle}
}
