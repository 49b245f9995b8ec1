package status

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"alfredoptarigan/consultant-matcher/internal/models"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, ttl), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t, time.Hour)
	job := uuid.New()

	want := models.AgentStatus{
		JobID:     job,
		Stage:     models.StageScoring,
		State:     models.StateInProgress,
		Progress:  25,
		Message:   "batch 1/4",
		UpdatedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := store.Put(ctx, want); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	got, ok, err := store.Get(ctx, job, models.StageScoring)
	if err != nil || !ok {
		t.Fatalf("Get returned ok=%v err=%v", ok, err)
	}
	if got.State != want.State || got.Progress != want.Progress || got.Message != want.Message || !got.UpdatedAt.Equal(want.UpdatedAt) {
		t.Fatalf("Get = %+v, want %+v", got, want)
	}

	if _, ok, err := store.Get(ctx, job, models.StageRanking); err != nil || ok {
		t.Fatalf("expected missing ranking status, ok=%v err=%v", ok, err)
	}

	if ttl := mr.TTL(statusKey(job)); ttl != time.Hour {
		t.Fatalf("expected ttl of one hour, got %v", ttl)
	}
}

func TestRedisStoreAllAndClear(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t, 0)
	job := uuid.New()

	for _, stage := range []models.Stage{models.StageRanking, models.StageRetrieval} {
		if err := store.Put(ctx, models.AgentStatus{JobID: job, Stage: stage, State: models.StateCompleted, Progress: 100}); err != nil {
			t.Fatalf("Put returned error: %v", err)
		}
	}

	all, err := store.All(ctx, job)
	if err != nil {
		t.Fatalf("All returned error: %v", err)
	}
	if len(all) != 2 || all[0].Stage != models.StageRetrieval || all[1].Stage != models.StageRanking {
		t.Fatalf("expected stages in pipeline order, got %+v", all)
	}

	if err := store.Clear(ctx, job); err != nil {
		t.Fatalf("Clear returned error: %v", err)
	}
	if mr.Exists(statusKey(job)) {
		t.Fatalf("expected status key to be removed")
	}
}

func TestTrackerWithRedisStore(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t, time.Minute)
	tr := NewTracker(store, nil)
	job := uuid.New()

	if err := tr.Enter(ctx, job, models.StageRetrieval); err != nil {
		t.Fatalf("Enter returned error: %v", err)
	}
	if err := tr.Advance(ctx, job, models.StageRetrieval, 60, "index ready"); err != nil {
		t.Fatalf("Advance returned error: %v", err)
	}

	reopened := NewTracker(store, nil)
	if err := reopened.Advance(ctx, job, models.StageRetrieval, 10, ""); err == nil {
		t.Fatalf("expected regression to be detected from durable state")
	}
	if err := reopened.Finish(ctx, job, models.StageRetrieval); err != nil {
		t.Fatalf("Finish returned error: %v", err)
	}

	all, err := reopened.Get(ctx, job)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if all[models.StageRetrieval].State != models.StateCompleted {
		t.Fatalf("unexpected status %+v", all[models.StageRetrieval])
	}
}
