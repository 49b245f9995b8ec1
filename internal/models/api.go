package models

type MatchResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type StageStatusResponse struct {
	State     StageState `json:"state"`
	Progress  float64    `json:"progress"`
	Message   string     `json:"message,omitempty"`
	UpdatedAt string     `json:"updated_at,omitempty"`
}

type StatusResponse struct {
	JobID  string                         `json:"job_id"`
	Stages map[Stage]StageStatusResponse `json:"stages"`
}

type MatchRecordResponse struct {
	ID                     string             `json:"id"`
	JobID                  string             `json:"job_id"`
	OverallScore           float64            `json:"overall_score"`
	CandidatesScored       int                `json:"candidates_scored"`
	IndexVersion           string             `json:"index_version"`
	TopMatches             []ScoredCandidate  `json:"top_matches"`
	NotificationKind       NotificationKind   `json:"notification_kind"`
	NotificationStatus     NotificationStatus `json:"notification_status"`
	NotificationRecipients []string           `json:"notification_recipients"`
	CreatedAt              string             `json:"created_at"`
}

type RebuildResponse struct {
	Version  string `json:"version"`
	Size     int    `json:"size"`
	Rebuilt  bool   `json:"rebuilt"`
	Profiles int    `json:"profiles"`
}

type MatchHistoryResponse struct {
	JobID   string                `json:"job_id"`
	Records []MatchRecordResponse `json:"records"`
}
