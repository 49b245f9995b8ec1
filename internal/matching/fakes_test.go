package matching

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"alfredoptarigan/consultant-matcher/internal/models"
)

// keywordEmbedder returns the vector of the first rule whose keyword occurs in the text.
// Texts containing block hang until ctx is done.
type keywordEmbedder struct {
	rules []embedRule
	err   error
	block string
}

type embedRule struct {
	keyword string
	vector  []float32
}

func (k *keywordEmbedder) Encode(ctx context.Context, text string) ([]float32, error) {
	if k.block != "" && strings.Contains(text, k.block) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if k.err != nil {
		return nil, k.err
	}
	for _, r := range k.rules {
		if strings.Contains(text, r.keyword) {
			return r.vector, nil
		}
	}
	return nil, errors.New("no vector for text")
}

type scriptedCompleter struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	prompts   []string
	strict    []bool
	// block makes every call hang until ctx is done
	block bool
}

func (s *scriptedCompleter) Complete(ctx context.Context, prompt string, strict bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.block {
		s.prompts = append(s.prompts, prompt)
		<-ctx.Done()
		return "", ctx.Err()
	}
	n := len(s.prompts)
	s.prompts = append(s.prompts, prompt)
	s.strict = append(s.strict, strict)
	if n < len(s.errs) && s.errs[n] != nil {
		return "", s.errs[n]
	}
	if n < len(s.responses) {
		return s.responses[n], nil
	}
	return "", nil
}

type fakeNotifier struct {
	sent     []models.Notification
	accepted bool
	err      error
}

func (f *fakeNotifier) Send(_ context.Context, n models.Notification) (bool, error) {
	f.sent = append(f.sent, n)
	return f.accepted, f.err
}

var errStaleRecord = errors.New("record changed concurrently")

type memoryMatchStore struct {
	records   map[uuid.UUID]*models.MatchRecord
	createErr error
	updateErr error
	updates   int
}

func newMemoryMatchStore() *memoryMatchStore {
	return &memoryMatchStore{records: make(map[uuid.UUID]*models.MatchRecord)}
}

func (m *memoryMatchStore) Create(_ context.Context, record *models.MatchRecord) error {
	if m.createErr != nil {
		return m.createErr
	}
	copied := *record
	m.records[record.ID] = &copied
	return nil
}

func (m *memoryMatchStore) UpdateNotification(_ context.Context, id uuid.UUID, status models.NotificationStatus) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	rec, ok := m.records[id]
	if !ok || rec.NotificationStatus != models.NotificationPending {
		return errors.New("pending record not found")
	}
	rec.NotificationStatus = status
	m.updates++
	return nil
}

func (m *memoryMatchStore) ReopenNotification(_ context.Context, record *models.MatchRecord, from models.NotificationStatus) error {
	rec, ok := m.records[record.ID]
	if !ok || rec.NotificationStatus != from {
		return errStaleRecord
	}
	rec.NotificationKind = record.NotificationKind
	rec.NotificationRecipients = record.NotificationRecipients
	rec.NotificationStatus = models.NotificationPending
	record.NotificationStatus = models.NotificationPending
	return nil
}

func consultant(name string, skills ...string) models.ConsultantProfile {
	return models.ConsultantProfile{
		ID:         uuid.New(),
		Name:       name,
		Email:      strings.ToLower(name) + "@example.com",
		Skills:     skills,
		Experience: 5,
		Available:  true,
	}
}

func candidate(name string, similarity float64) Candidate {
	return Candidate{Profile: consultant(name), Similarity: similarity, Distance: 100 - similarity}
}

func goJob() *models.JobDescription {
	return &models.JobDescription{
		ID:                 uuid.New(),
		Title:              "Backend Engineer",
		Department:         "Platform",
		Description:        "Build services",
		Skills:             []string{"Go"},
		ExperienceRequired: 3,
		RequesterEmail:     "requester@example.com",
	}
}
