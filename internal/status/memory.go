package status

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"alfredoptarigan/consultant-matcher/internal/models"
)

type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]map[models.Stage]models.AgentStatus
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[uuid.UUID]map[models.Stage]models.AgentStatus)}
}

func (m *MemoryStore) Put(_ context.Context, s models.AgentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.jobs[s.JobID] == nil {
		m.jobs[s.JobID] = make(map[models.Stage]models.AgentStatus)
	}
	m.jobs[s.JobID][s.Stage] = s
	return nil
}

func (m *MemoryStore) Get(_ context.Context, jobID uuid.UUID, stage models.Stage) (models.AgentStatus, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.jobs[jobID][stage]
	return s, ok, nil
}

func (m *MemoryStore) All(_ context.Context, jobID uuid.UUID) ([]models.AgentStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.AgentStatus, 0, len(m.jobs[jobID]))
	for _, stage := range models.Stages {
		if s, ok := m.jobs[jobID][stage]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemoryStore) Clear(_ context.Context, jobID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, jobID)
	return nil
}
