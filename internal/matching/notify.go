package matching

import (
	"context"
	"strings"

	"alfredoptarigan/consultant-matcher/internal/models"
)

const DefaultThreshold = 70

// Notifier hands a notification to its delivery channel. A false result
// without an error means the channel refused it.
type Notifier interface {
	Send(ctx context.Context, n models.Notification) (bool, error)
}

type NotificationPolicy struct {
	Threshold float64
	// DefaultRequester receives matches for jobs without a requester address.
	DefaultRequester string
	OpsContacts      []string
}

// Decide picks who hears about a finished run and with what.
func (p NotificationPolicy) Decide(job *models.JobDescription, top []models.ScoredCandidate, overall float64) models.Notification {
	n := models.Notification{
		JobID:        job.ID,
		JobTitle:     job.Title,
		OverallScore: overall,
	}

	if overall >= p.Threshold && len(top) > 0 {
		requester := strings.TrimSpace(job.RequesterEmail)
		if requester == "" {
			requester = strings.TrimSpace(p.DefaultRequester)
		}
		n.Kind = models.NotificationMatches
		n.Subject = "Matching Results for " + job.Title
		n.Matches = top
		if requester != "" {
			n.Recipients = []string{requester}
		}
		return n
	}

	n.Kind = models.NotificationNoMatches
	n.Subject = "No Matches Found for " + job.Title
	n.Recipients = append([]string(nil), p.OpsContacts...)
	return n
}
