package matching

import (
	"errors"
	"fmt"

	"alfredoptarigan/consultant-matcher/internal/models"
)

var (
	ErrRetrieval = errors.New("retrieval failed")
	// ErrScoringParse marks an unusable language-model response. It is recovered
	// inside the scorer and never returned from a run.
	ErrScoringParse = errors.New("scoring response could not be parsed")
	ErrScoring      = errors.New("scoring failed")
	ErrRanking      = errors.New("ranking failed")
	ErrPersistence  = errors.New("failed to persist match record")
	ErrNotification = errors.New("notification failed")
)

// StageError reports the stage a run was aborted in.
type StageError struct {
	Stage models.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
