package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"alfredoptarigan/consultant-matcher/internal/logger"
	"alfredoptarigan/consultant-matcher/internal/models"
	"alfredoptarigan/consultant-matcher/internal/repositories"
)

const TaskTypeMatch = "match:run"

// ErrAlreadyQueued is returned when a run for the job is already waiting or running.
var ErrAlreadyQueued = errors.New("matching run already queued")

type matchPayload struct {
	JobID uuid.UUID `json:"jobId"`
}

func NewMatchTask(jobID uuid.UUID) (*asynq.Task, error) {
	data, err := json.Marshal(matchPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeMatch, data), nil
}

// MatchRunner executes one matching run.
type MatchRunner interface {
	Run(ctx context.Context, job *models.JobDescription, corpus []models.ConsultantProfile) (*models.MatchRecord, error)
}

// MatchQueue enqueues matching runs for the worker.
type MatchQueue struct {
	client    *asynq.Client
	queue     string
	uniqueFor time.Duration
}

func NewMatchQueue(client *asynq.Client, queue string, uniqueFor time.Duration) *MatchQueue {
	return &MatchQueue{client: client, queue: queue, uniqueFor: uniqueFor}
}

func (q *MatchQueue) Enqueue(ctx context.Context, jobID uuid.UUID) error {
	task, err := NewMatchTask(jobID)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	opts := []asynq.Option{
		asynq.Queue(q.queue),
		asynq.MaxRetry(0),
		asynq.Retention(24 * time.Hour),
	}
	if q.uniqueFor > 0 {
		opts = append(opts, asynq.Unique(q.uniqueFor))
	}

	if _, err := q.client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			return ErrAlreadyQueued
		}
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// MatchWorker processes queued matching runs.
type MatchWorker struct {
	jobs     repositories.JobRepository
	profiles repositories.ProfileRepository
	runner   MatchRunner
	log      *zap.Logger
}

func NewMatchWorker(jobs repositories.JobRepository, profiles repositories.ProfileRepository, runner MatchRunner, log *zap.Logger) *MatchWorker {
	return &MatchWorker{
		jobs:     jobs,
		profiles: profiles,
		runner:   runner,
		log:      logger.OrNop(log),
	}
}

// ProcessTask handles match task processing
func (w *MatchWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload matchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w: %w", err, asynq.SkipRetry)
	}

	_, err := w.Match(ctx, payload.JobID)
	return err
}

// Match loads the job and the available corpus and runs the pipeline, keeping
// the job status in step with the outcome.
func (w *MatchWorker) Match(ctx context.Context, jobID uuid.UUID) (*models.MatchRecord, error) {
	log := logger.WithJob(w.log, jobID)

	job, err := w.jobs.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return nil, err
	}

	corpus, err := w.profiles.ListAvailable(ctx)
	if err != nil {
		return nil, err
	}

	if err := w.jobs.UpdateStatus(ctx, jobID, models.JobStatusMatching); err != nil {
		return nil, err
	}
	log.Info("matching run started", zap.Int("corpus", len(corpus)))

	record, runErr := w.runner.Run(ctx, job, corpus)

	final := models.JobStatusMatched
	if runErr != nil {
		final = models.JobStatusError
	}
	if err := w.jobs.UpdateStatus(context.WithoutCancel(ctx), jobID, final); err != nil {
		log.Error("failed to update job status", zap.String("status", string(final)), zap.Error(err))
	}

	return record, runErr
}
