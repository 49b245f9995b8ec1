package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"alfredoptarigan/consultant-matcher/internal/logger"
	"alfredoptarigan/consultant-matcher/internal/models"
)

// ErrNotificationPending means the record's notification has not settled yet.
var ErrNotificationPending = errors.New("notification still pending")

// ResendStore is the part of the match store a resend writes through.
type ResendStore interface {
	ReopenNotification(ctx context.Context, record *models.MatchRecord, from models.NotificationStatus) error
	UpdateNotification(ctx context.Context, id uuid.UUID, status models.NotificationStatus) error
}

// Resender repeats the notification step for an already stored record.
type Resender struct {
	matches     ResendStore
	notifier    Notifier
	policy      NotificationPolicy
	callTimeout time.Duration
	log         *zap.Logger
}

func NewResender(matches ResendStore, notifier Notifier, policy NotificationPolicy, callTimeout time.Duration, log *zap.Logger) *Resender {
	return &Resender{
		matches:     matches,
		notifier:    notifier,
		policy:      policy,
		callTimeout: callTimeout,
		log:         logger.OrNop(log),
	}
}

// Resend decides the notification again from the record's stored ranking and
// sends it. The record is returned with its new outcome whenever that outcome
// was written, including when delivery failed.
func (r *Resender) Resend(ctx context.Context, job *models.JobDescription, record *models.MatchRecord) (*models.MatchRecord, error) {
	if record.NotificationStatus == models.NotificationPending {
		return nil, fmt.Errorf("%w: record %s", ErrNotificationPending, record.ID)
	}

	top, err := record.Matches()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	n := r.policy.Decide(job, top, record.OverallScore)

	reopened := *record
	reopened.NotificationKind = n.Kind
	reopened.NotificationRecipients = pq.StringArray(n.Recipients)
	if err := r.withTimeout(ctx, func(ctx context.Context) error {
		return r.matches.ReopenNotification(ctx, &reopened, record.NotificationStatus)
	}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	log := logger.WithJob(r.log, job.ID)
	sendErr := deliver(ctx, r.notifier, n, r.callTimeout)

	outcome := models.NotificationSent
	if sendErr != nil {
		outcome = models.NotificationFailed
	}
	if err := r.withTimeout(ctx, func(ctx context.Context) error {
		return r.matches.UpdateNotification(ctx, reopened.ID, outcome)
	}); err != nil {
		log.Error("failed to record resent notification outcome", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	reopened.NotificationStatus = outcome

	log.Info("notification resent",
		zap.String("record_id", reopened.ID.String()),
		zap.String("notification", string(n.Kind)),
		zap.String("outcome", string(outcome)),
	)

	return &reopened, sendErr
}

func (r *Resender) withTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
	}
	return fn(ctx)
}
