package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"alfredoptarigan/consultant-matcher/internal/index"
	"alfredoptarigan/consultant-matcher/internal/logger"
	"alfredoptarigan/consultant-matcher/internal/models"
)

// Embedder turns text into a vector in the same space the index was built in.
type Embedder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

// Searcher answers nearest-neighbour queries against a pinned snapshot.
type Searcher interface {
	Query(ctx context.Context, snap *index.Snapshot, vector []float32, k int) ([]index.Neighbor, error)
}

// Candidate is a shortlisted profile with its retrieval scores.
type Candidate struct {
	Profile    models.ConsultantProfile
	Distance   float64
	Similarity float64
}

type Retriever struct {
	searcher    Searcher
	embedder    Embedder
	callTimeout time.Duration
	log         *zap.Logger
}

func NewRetriever(searcher Searcher, embedder Embedder, callTimeout time.Duration, log *zap.Logger) *Retriever {
	return &Retriever{
		searcher:    searcher,
		embedder:    embedder,
		callTimeout: callTimeout,
		log:         logger.OrNop(log),
	}
}

// Similarity converts a squared distance into a 0-100-ish similarity. It is
// not normalized: far vectors can go negative.
func Similarity(distance float64) float64 {
	return 100 - distance
}

// Retrieve shortlists up to k profiles of corpus for the job. An empty
// shortlist is a valid result.
func (r *Retriever) Retrieve(
	ctx context.Context,
	job *models.JobDescription,
	snap *index.Snapshot,
	corpus []models.ConsultantProfile,
	k int,
	minSimilarity float64,
) ([]Candidate, error) {
	vector, err := r.encode(ctx, JobText(job))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed job %s: %v", ErrRetrieval, job.ID, err)
	}

	neighbors, err := r.searcher.Query(ctx, snap, vector, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrieval, err)
	}

	byID := make(map[uuid.UUID]models.ConsultantProfile, len(corpus))
	for _, p := range corpus {
		byID[p.ID] = p
	}

	candidates := make([]Candidate, 0, len(neighbors))
	for _, n := range neighbors {
		profile, ok := byID[n.ProfileID]
		if !ok {
			r.log.Warn("index returned a profile outside the corpus",
				zap.String("profile_id", n.ProfileID.String()),
				zap.String("version", snap.Version),
			)
			continue
		}
		sim := Similarity(n.Distance)
		if sim < minSimilarity {
			continue
		}
		candidates = append(candidates, Candidate{Profile: profile, Distance: n.Distance, Similarity: sim})
	}

	r.log.Debug("candidates retrieved",
		zap.String(logger.FieldJobID, job.ID.String()),
		zap.Int("neighbors", len(neighbors)),
		zap.Int("shortlisted", len(candidates)),
	)

	return candidates, nil
}

func (r *Retriever) encode(ctx context.Context, text string) ([]float32, error) {
	if r.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
	}
	return r.embedder.Encode(ctx, text)
}
