package matching

import (
	"context"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"alfredoptarigan/consultant-matcher/internal/logger"
	"alfredoptarigan/consultant-matcher/internal/models"
)

const (
	DefaultBatchSize = 10
	maxLogLength     = 200
)

// Completer sends a prompt to the language model. With strict set the model is
// constrained to answer with the scoring JSON schema.
type Completer interface {
	Complete(ctx context.Context, prompt string, strict bool) (string, error)
}

// ProgressFunc receives the number of candidates scored so far.
type ProgressFunc func(done, total int)

type Scorer struct {
	completer  Completer
	prompts    *PromptBuilder
	batchSize  int
	llmTimeout time.Duration
	log        *zap.Logger
}

func NewScorer(completer Completer, batchSize int, llmTimeout time.Duration, log *zap.Logger) *Scorer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Scorer{
		completer:  completer,
		prompts:    NewPromptBuilder(),
		batchSize:  batchSize,
		llmTimeout: llmTimeout,
		log:        logger.OrNop(log),
	}
}

// Score assesses every shortlisted candidate, in shortlist order. Unusable
// model output degrades to fallback records; only a failed call is an error.
func (s *Scorer) Score(ctx context.Context, job *models.JobDescription, shortlist []Candidate, progress ProgressFunc) ([]models.ScoredCandidate, error) {
	scored := make([]models.ScoredCandidate, 0, len(shortlist))
	log := logger.WithJob(s.log, job.ID)

	for start := 0; start < len(shortlist); start += s.batchSize {
		batch := shortlist[start:min(start+s.batchSize, len(shortlist))]

		results, err := s.scoreBatch(ctx, log, job, batch)
		if err != nil {
			return nil, err
		}
		scored = append(scored, results...)

		if progress != nil {
			progress(len(scored), len(shortlist))
		}
	}

	return scored, nil
}

func (s *Scorer) scoreBatch(ctx context.Context, log *zap.Logger, job *models.JobDescription, batch []Candidate) ([]models.ScoredCandidate, error) {
	raw, err := s.complete(ctx, log, s.prompts.BuildScoringPrompt(job, batch), false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScoring, err)
	}

	items, err := parseScores(raw, batch)
	if err != nil {
		log.Warn("scoring response unusable, retrying with schema", zap.Error(err), zap.Int("batch_size", len(batch)))

		raw, err = s.complete(ctx, log, s.prompts.BuildStrictScoringPrompt(job, batch), true)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrScoring, err)
		}

		retried, perr := parseScores(raw, batch)
		for pos, item := range retried {
			if _, ok := items[pos]; !ok {
				items[pos] = item
			}
		}
		if perr != nil {
			log.Warn("scoring degraded to fallback",
				zap.Error(perr),
				zap.Int("fallback", len(batch)-len(items)),
				zap.Int("batch_size", len(batch)),
			)
		}
	}

	out := make([]models.ScoredCandidate, len(batch))
	for n, c := range batch {
		item, ok := items[n]
		if !ok {
			out[n] = Fallback(c)
			continue
		}
		out[n] = newScored(c, item.Score, item.MatchingSkills, item.MissingSkills, item.Reasoning)
	}
	return out, nil
}

func (s *Scorer) complete(ctx context.Context, log *zap.Logger, prompt string, strict bool) (string, error) {
	if s.llmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.llmTimeout)
		defer cancel()
	}

	log.Debug("scoring request",
		zap.Bool("strict", strict),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", logger.TruncateForLog(prompt, maxLogLength)),
	)

	raw, err := s.completer.Complete(ctx, prompt, strict)
	if err != nil {
		return "", err
	}

	log.Debug("scoring response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", logger.TruncateForLog(raw, maxLogLength)),
	)
	return raw, nil
}

// Fallback is the record used when the model gave nothing usable for c.
func Fallback(c Candidate) models.ScoredCandidate {
	sc := newScored(c, clampScore(math.Round(c.Similarity)), []string{}, []string{}, models.FallbackReasoning)
	sc.Fallback = true
	return sc
}

func newScored(c Candidate, score float64, matching, missing []string, reasoning string) models.ScoredCandidate {
	return models.ScoredCandidate{
		ProfileID:      c.Profile.ID,
		Name:           c.Profile.Name,
		Email:          c.Profile.Email,
		Experience:     c.Profile.Experience,
		Similarity:     c.Similarity,
		Score:          score,
		MatchingSkills: matching,
		MissingSkills:  missing,
		Reasoning:      reasoning,
	}
}
