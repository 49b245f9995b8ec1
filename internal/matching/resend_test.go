package matching

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"alfredoptarigan/consultant-matcher/internal/models"
)

func storedRecord(t *testing.T, store *memoryMatchStore, job *models.JobDescription, overall float64, status models.NotificationStatus) *models.MatchRecord {
	t.Helper()
	record := &models.MatchRecord{
		ID:                 uuid.New(),
		JobID:              job.ID,
		OverallScore:       overall,
		CandidatesScored:   1,
		NotificationKind:   models.NotificationMatches,
		NotificationStatus: status,
	}
	if err := record.SetTopMatches([]models.ScoredCandidate{{ProfileID: uuid.New(), Name: "Ann", Score: overall}}); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(context.Background(), record); err != nil {
		t.Fatal(err)
	}
	return record
}

func TestResend(t *testing.T) {
	policy := NotificationPolicy{Threshold: 70, OpsContacts: []string{"ops@example.com"}}

	tests := []struct {
		name      string
		overall   float64
		status    models.NotificationStatus
		stale     bool
		accepted  bool
		threshold float64
		want      error
		wantKind  models.NotificationKind
		outcome   models.NotificationStatus
		sent      int
	}{
		{
			name:     "failed send retried",
			overall:  85,
			status:   models.NotificationFailed,
			accepted: true,
			wantKind: models.NotificationMatches,
			outcome:  models.NotificationSent,
			sent:     1,
		},
		{
			name:      "decision follows current policy",
			overall:   75,
			status:    models.NotificationSent,
			accepted:  true,
			threshold: 80,
			wantKind:  models.NotificationNoMatches,
			outcome:   models.NotificationSent,
			sent:      1,
		},
		{
			name:     "refused again",
			overall:  85,
			status:   models.NotificationFailed,
			want:     ErrNotification,
			wantKind: models.NotificationMatches,
			outcome:  models.NotificationFailed,
			sent:     1,
		},
		{
			name:     "still pending",
			overall:  85,
			status:   models.NotificationPending,
			accepted: true,
			want:     ErrNotificationPending,
			outcome:  models.NotificationPending,
		},
		{
			name:     "lost to a concurrent resend",
			overall:  85,
			status:   models.NotificationFailed,
			stale:    true,
			accepted: true,
			want:     errStaleRecord,
			outcome:  models.NotificationPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemoryMatchStore()
			notifier := &fakeNotifier{accepted: tt.accepted}
			job := goJob()
			record := storedRecord(t, store, job, tt.overall, tt.status)
			if tt.stale {
				store.records[record.ID].NotificationStatus = models.NotificationPending
			}

			p := policy
			if tt.threshold > 0 {
				p.Threshold = tt.threshold
			}
			r := NewResender(store, notifier, p, time.Second, nil)

			got, err := r.Resend(context.Background(), job, record)
			if tt.want == nil && err != nil {
				t.Fatalf("Resend returned error: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if len(notifier.sent) != tt.sent {
				t.Fatalf("expected %d notifications, got %d", tt.sent, len(notifier.sent))
			}

			stored := store.records[record.ID]
			if stored.NotificationStatus != tt.outcome {
				t.Fatalf("stored status = %s, want %s", stored.NotificationStatus, tt.outcome)
			}
			if tt.sent == 0 {
				if store.updates != 0 {
					t.Fatalf("no outcome should be written")
				}
				return
			}

			if store.updates != 1 {
				t.Fatalf("outcome written %d times, want once", store.updates)
			}
			if got == nil || got.NotificationStatus != tt.outcome || got.NotificationKind != tt.wantKind {
				t.Fatalf("unexpected returned record %+v", got)
			}
			if stored.NotificationKind != tt.wantKind {
				t.Fatalf("stored kind = %s, want %s", stored.NotificationKind, tt.wantKind)
			}
			if notifier.sent[0].Kind != tt.wantKind {
				t.Fatalf("sent kind = %s, want %s", notifier.sent[0].Kind, tt.wantKind)
			}
			if record.NotificationStatus != tt.status {
				t.Fatalf("caller's record must not be mutated")
			}
		})
	}
}
