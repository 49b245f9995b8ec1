package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"alfredoptarigan/consultant-matcher/internal/index"
	"alfredoptarigan/consultant-matcher/internal/logger"
	"alfredoptarigan/consultant-matcher/internal/models"
	"alfredoptarigan/consultant-matcher/internal/status"
)

// IndexManager provides the snapshot a run is pinned to. The snapshot stays
// queryable until the returned release func is called.
type IndexManager interface {
	Searcher
	Acquire(ctx context.Context, profiles []models.ConsultantProfile) (*index.Snapshot, bool, func(), error)
}

// MatchStore persists the outcome of a run.
type MatchStore interface {
	Create(ctx context.Context, record *models.MatchRecord) error
	UpdateNotification(ctx context.Context, id uuid.UUID, status models.NotificationStatus) error
}

type Options struct {
	K             int
	MinSimilarity float64
	TopN          int
	BatchSize     int
	Policy        NotificationPolicy
	CallTimeout   time.Duration
	LLMTimeout    time.Duration
}

type Pipeline struct {
	index     IndexManager
	retriever *Retriever
	scorer    *Scorer
	tracker   *status.Tracker
	matches   MatchStore
	notifier  Notifier
	opts      Options
	log       *zap.Logger
	now       func() time.Time
}

func NewPipeline(
	idx IndexManager,
	embedder Embedder,
	completer Completer,
	tracker *status.Tracker,
	matches MatchStore,
	notifier Notifier,
	opts Options,
	log *zap.Logger,
) *Pipeline {
	log = logger.OrNop(log)
	if opts.K <= 0 {
		opts.K = 10
	}
	if opts.TopN <= 0 {
		opts.TopN = DefaultTopN
	}

	return &Pipeline{
		index:     idx,
		retriever: NewRetriever(idx, embedder, opts.CallTimeout, log),
		scorer:    NewScorer(completer, opts.BatchSize, opts.LLMTimeout, log),
		tracker:   tracker,
		matches:   matches,
		notifier:  notifier,
		opts:      opts,
		log:       log,
		now:       time.Now,
	}
}

// run carries the intermediate results of one execution.
type run struct {
	job    *models.JobDescription
	corpus []models.ConsultantProfile
	log    *zap.Logger

	snapshot   *index.Snapshot
	release    func()
	candidates []Candidate
	scored     []models.ScoredCandidate
	top        []models.ScoredCandidate
	overall    float64
	record     *models.MatchRecord
}

type step func(ctx context.Context, r *run) error

func (p *Pipeline) steps() map[models.Stage]step {
	return map[models.Stage]step{
		models.StageRetrieval:    p.retrieve,
		models.StageScoring:      p.score,
		models.StageRanking:      p.rank,
		models.StageNotification: p.notify,
	}
}

// next returns the stage that follows stage, or "" after the last one.
func next(stage models.Stage) models.Stage {
	for n, s := range models.Stages {
		if s == stage && n+1 < len(models.Stages) {
			return models.Stages[n+1]
		}
	}
	return ""
}

// Run matches the job against corpus. The match record is returned whenever
// it was persisted, including when the notification afterwards failed.
func (p *Pipeline) Run(ctx context.Context, job *models.JobDescription, corpus []models.ConsultantProfile) (*models.MatchRecord, error) {
	r := &run{job: job, corpus: corpus, log: logger.WithJob(p.log, job.ID)}
	started := p.now()
	defer func() {
		if r.release != nil {
			r.release()
		}
	}()

	if err := p.tracker.Reset(ctx, job.ID); err != nil {
		return nil, err
	}

	steps := p.steps()
	for stage := models.Stages[0]; stage != ""; stage = next(stage) {
		if err := p.tracker.Enter(ctx, job.ID, stage); err != nil {
			return r.record, &StageError{Stage: stage, Err: err}
		}

		if err := steps[stage](ctx, r); err != nil {
			if ferr := p.tracker.Fail(ctx, job.ID, stage, err.Error()); ferr != nil {
				r.log.Error("failed to record stage error", zap.String(logger.FieldStage, string(stage)), zap.Error(ferr))
			}
			r.log.Error("matching run aborted", zap.String(logger.FieldStage, string(stage)), zap.Error(err))
			return r.record, &StageError{Stage: stage, Err: err}
		}

		if err := p.tracker.Finish(ctx, job.ID, stage); err != nil {
			return r.record, &StageError{Stage: stage, Err: err}
		}
	}

	r.log.Info("matching run completed",
		zap.Int("candidates", len(r.candidates)),
		zap.Int("ranked", len(r.top)),
		zap.Float64("overall_score", r.overall),
		zap.String("notification", string(r.record.NotificationKind)),
		zap.Duration("took", p.now().Sub(started)),
	)

	return r.record, nil
}

func (p *Pipeline) retrieve(ctx context.Context, r *run) error {
	p.advance(ctx, r, models.StageRetrieval, 10, "preparing candidate index")

	snap, rebuilt, release, err := p.index.Acquire(ctx, r.corpus)
	if err != nil {
		return err
	}
	r.snapshot, r.release = snap, release
	p.advance(ctx, r, models.StageRetrieval, 50, fmt.Sprintf("index %s ready (rebuilt: %t)", snap.Version, rebuilt))

	candidates, err := p.retriever.Retrieve(ctx, r.job, snap, r.corpus, p.opts.K, p.opts.MinSimilarity)
	if err != nil {
		return err
	}
	r.candidates = candidates
	p.advance(ctx, r, models.StageRetrieval, 100, fmt.Sprintf("%d candidates shortlisted", len(candidates)))
	return nil
}

func (p *Pipeline) score(ctx context.Context, r *run) error {
	if len(r.candidates) == 0 {
		r.scored = []models.ScoredCandidate{}
		p.advance(ctx, r, models.StageScoring, 100, "no candidates to score")
		return nil
	}

	scored, err := p.scorer.Score(ctx, r.job, r.candidates, func(done, total int) {
		p.advance(ctx, r, models.StageScoring, float64(done)*100/float64(total),
			fmt.Sprintf("%d of %d candidates scored", done, total))
	})
	if err != nil {
		return err
	}
	r.scored = scored
	return nil
}

func (p *Pipeline) rank(ctx context.Context, r *run) error {
	for _, c := range r.scored {
		if c.Score < 0 || c.Score > 100 {
			return fmt.Errorf("%w: score %.2f of profile %s out of range", ErrRanking, c.Score, c.ProfileID)
		}
	}

	r.top = Rank(r.scored, p.opts.TopN)
	r.overall = OverallScore(r.top)
	p.advance(ctx, r, models.StageRanking, 100, fmt.Sprintf("overall score %.1f", r.overall))
	return nil
}

func (p *Pipeline) notify(ctx context.Context, r *run) error {
	n := p.opts.Policy.Decide(r.job, r.top, r.overall)

	record := &models.MatchRecord{
		ID:                     uuid.New(),
		JobID:                  r.job.ID,
		OverallScore:           r.overall,
		CandidatesScored:       len(r.scored),
		IndexVersion:           r.snapshot.Version,
		NotificationKind:       n.Kind,
		NotificationStatus:     models.NotificationPending,
		NotificationRecipients: pq.StringArray(n.Recipients),
		CompletedAt:            p.now(),
	}
	if err := record.SetTopMatches(r.top); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if err := p.withTimeout(ctx, func(ctx context.Context) error {
		return p.matches.Create(ctx, record)
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	r.record = record
	p.advance(ctx, r, models.StageNotification, 40, "match record stored")

	sendErr := deliver(ctx, p.notifier, n, p.opts.CallTimeout)

	outcome := models.NotificationSent
	if sendErr != nil {
		outcome = models.NotificationFailed
	}
	updateErr := p.withTimeout(ctx, func(ctx context.Context) error {
		return p.matches.UpdateNotification(ctx, record.ID, outcome)
	})
	if updateErr == nil {
		record.NotificationStatus = outcome
	}

	switch {
	case sendErr != nil && updateErr != nil:
		r.log.Error("failed to record notification outcome", zap.Error(updateErr))
		return sendErr
	case sendErr != nil:
		return sendErr
	case updateErr != nil:
		return fmt.Errorf("%w: %v", ErrPersistence, updateErr)
	}

	p.advance(ctx, r, models.StageNotification, 100, fmt.Sprintf("%s sent to %d recipients", n.Kind, len(n.Recipients)))
	return nil
}

// deliver sends n and reports a refusal or transport failure as ErrNotification.
func deliver(ctx context.Context, notifier Notifier, n models.Notification, timeout time.Duration) error {
	if len(n.Recipients) == 0 {
		return fmt.Errorf("%w: no recipients for %s", ErrNotification, n.Kind)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	delivered, err := notifier.Send(ctx, n)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotification, err)
	}
	if !delivered {
		return fmt.Errorf("%w: %s was not accepted", ErrNotification, n.Kind)
	}
	return nil
}

func (p *Pipeline) withTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.CallTimeout)
		defer cancel()
	}
	return fn(ctx)
}

// advance reports progress; a rejected update never aborts the run.
func (p *Pipeline) advance(ctx context.Context, r *run, stage models.Stage, progress float64, message string) {
	if err := p.tracker.Advance(ctx, r.job.ID, stage, progress, message); err != nil {
		level := r.log.Warn
		if errors.Is(err, status.ErrProgressRegression) {
			level = r.log.Debug
		}
		level("status update rejected", zap.String(logger.FieldStage, string(stage)), zap.Error(err))
	}
}
