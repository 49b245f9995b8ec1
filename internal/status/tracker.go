// Package status records per-job per-stage progress of matching runs.
package status

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"alfredoptarigan/consultant-matcher/internal/logger"
	"alfredoptarigan/consultant-matcher/internal/models"
)

var (
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrProgressRegression = errors.New("progress must not decrease")
)

// Store persists the latest status of every (job, stage) pair.
type Store interface {
	Put(ctx context.Context, s models.AgentStatus) error
	Get(ctx context.Context, jobID uuid.UUID, stage models.Stage) (models.AgentStatus, bool, error)
	All(ctx context.Context, jobID uuid.UUID) ([]models.AgentStatus, error)
	Clear(ctx context.Context, jobID uuid.UUID) error
}

// Observer is notified after every accepted update. Implementations must not block.
type Observer interface {
	StatusChanged(s models.AgentStatus)
}

type Tracker struct {
	// mu guards locks; updates of one job are serialized, other jobs proceed
	mu        sync.Mutex
	locks     map[uuid.UUID]*jobLock
	store     Store
	observers []Observer
	log       *zap.Logger
	now       func() time.Time
}

func NewTracker(store Store, log *zap.Logger, observers ...Observer) *Tracker {
	return &Tracker{
		locks:     make(map[uuid.UUID]*jobLock),
		store:     store,
		observers: observers,
		log:       logger.OrNop(log),
		now:       time.Now,
	}
}

// Reset returns every stage of the job to idle, as at the start of a new run.
func (t *Tracker) Reset(ctx context.Context, jobID uuid.UUID) error {
	defer t.lock(jobID)()

	if err := t.store.Clear(ctx, jobID); err != nil {
		return fmt.Errorf("failed to reset status of job %s: %w", jobID, err)
	}
	for _, stage := range models.Stages {
		t.notify(models.IdleStatus(jobID, stage))
	}
	return nil
}

// Enter starts a fresh in-progress record for the stage.
func (t *Tracker) Enter(ctx context.Context, jobID uuid.UUID, stage models.Stage) error {
	defer t.lock(jobID)()

	return t.put(ctx, models.AgentStatus{
		JobID:    jobID,
		Stage:    stage,
		State:    models.StateInProgress,
		Progress: 0,
	})
}

// Advance moves the progress of an in-progress stage forward.
func (t *Tracker) Advance(ctx context.Context, jobID uuid.UUID, stage models.Stage, progress float64, message string) error {
	defer t.lock(jobID)()

	cur, err := t.current(ctx, jobID, stage)
	if err != nil {
		return err
	}
	if cur.State != models.StateInProgress {
		return fmt.Errorf("%w: cannot advance %s from %s", ErrInvalidTransition, stage, cur.State)
	}

	progress = clampProgress(progress)
	if progress < cur.Progress {
		return fmt.Errorf("%w: %s from %.1f to %.1f", ErrProgressRegression, stage, cur.Progress, progress)
	}

	cur.Progress = progress
	if message != "" {
		cur.Message = message
	}
	return t.put(ctx, cur)
}

// Finish marks an in-progress stage completed.
func (t *Tracker) Finish(ctx context.Context, jobID uuid.UUID, stage models.Stage) error {
	defer t.lock(jobID)()

	cur, err := t.current(ctx, jobID, stage)
	if err != nil {
		return err
	}
	if cur.State != models.StateInProgress {
		return fmt.Errorf("%w: cannot finish %s from %s", ErrInvalidTransition, stage, cur.State)
	}

	cur.State = models.StateCompleted
	cur.Progress = 100
	return t.put(ctx, cur)
}

// Fail marks a stage as errored with the given message.
func (t *Tracker) Fail(ctx context.Context, jobID uuid.UUID, stage models.Stage, message string) error {
	defer t.lock(jobID)()

	cur, err := t.current(ctx, jobID, stage)
	if err != nil {
		return err
	}
	if cur.State.Terminal() {
		return fmt.Errorf("%w: cannot fail %s from %s", ErrInvalidTransition, stage, cur.State)
	}

	cur.State = models.StateError
	cur.Message = message
	return t.put(ctx, cur)
}

// Get returns the status of every stage of the job; stages never entered report idle.
func (t *Tracker) Get(ctx context.Context, jobID uuid.UUID) (map[models.Stage]models.AgentStatus, error) {
	stored, err := t.store.All(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load status of job %s: %w", jobID, err)
	}

	out := make(map[models.Stage]models.AgentStatus, len(models.Stages))
	for _, stage := range models.Stages {
		out[stage] = models.IdleStatus(jobID, stage)
	}
	for _, s := range stored {
		out[s.Stage] = s
	}
	return out, nil
}

type jobLock struct {
	mu   sync.Mutex
	refs int
}

// lock serializes updates of jobID and returns the unlock func. Entries are
// removed once no caller holds or waits on them.
func (t *Tracker) lock(jobID uuid.UUID) func() {
	t.mu.Lock()
	l, ok := t.locks[jobID]
	if !ok {
		l = &jobLock{}
		t.locks[jobID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, jobID)
		}
		t.mu.Unlock()
	}
}

func (t *Tracker) current(ctx context.Context, jobID uuid.UUID, stage models.Stage) (models.AgentStatus, error) {
	cur, ok, err := t.store.Get(ctx, jobID, stage)
	if err != nil {
		return models.AgentStatus{}, fmt.Errorf("failed to load %s status: %w", stage, err)
	}
	if !ok {
		return models.IdleStatus(jobID, stage), nil
	}
	return cur, nil
}

func (t *Tracker) put(ctx context.Context, s models.AgentStatus) error {
	s.UpdatedAt = t.now()
	if err := t.store.Put(ctx, s); err != nil {
		return fmt.Errorf("failed to store %s status: %w", s.Stage, err)
	}

	t.log.Debug("stage status updated",
		zap.String(logger.FieldJobID, s.JobID.String()),
		zap.String(logger.FieldStage, string(s.Stage)),
		zap.String("state", string(s.State)),
		zap.Float64("progress", s.Progress),
	)
	t.notify(s)
	return nil
}

func (t *Tracker) notify(s models.AgentStatus) {
	for _, o := range t.observers {
		o.StatusChanged(s)
	}
}

func clampProgress(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
