package index

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type memorySnapshot struct {
	meta    Snapshot
	entries []Entry
}

// MemoryBackend is a flat exhaustive L2 index held in process memory.
type MemoryBackend struct {
	mu        sync.RWMutex
	snapshots map[string]*memorySnapshot
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{snapshots: make(map[string]*memorySnapshot)}
}

func (m *MemoryBackend) Publish(_ context.Context, snap *Snapshot, entries []Entry) error {
	copied := make([]Entry, len(entries))
	for n, e := range entries {
		copied[n] = Entry{ProfileID: e.ProfileID, Vector: append([]float32(nil), e.Vector...)}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snapshots[snap.Version]; ok {
		return fmt.Errorf("version %s already published", snap.Version)
	}
	m.snapshots[snap.Version] = &memorySnapshot{meta: *snap, entries: copied}
	return nil
}

func (m *MemoryBackend) Search(ctx context.Context, snap *Snapshot, vector []float32, k int) ([]Neighbor, error) {
	m.mu.RLock()
	stored, ok := m.snapshots[snap.Version]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVersion, snap.Version)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	neighbors := make([]Neighbor, len(stored.entries))
	for n, e := range stored.entries {
		neighbors[n] = Neighbor{ProfileID: e.ProfileID, Distance: SquaredL2(vector, e.Vector)}
	}
	sort.SliceStable(neighbors, func(a, b int) bool {
		return neighbors[a].Distance < neighbors[b].Distance
	})

	if k < len(neighbors) {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}

func (m *MemoryBackend) Drop(_ context.Context, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, version)
	return nil
}

func (m *MemoryBackend) Latest(_ context.Context) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *Snapshot
	for _, s := range m.snapshots {
		if latest == nil || s.meta.Version > latest.Version {
			meta := s.meta
			latest = &meta
		}
	}
	return latest, nil
}

// Versions lists the versions currently held, oldest first.
func (m *MemoryBackend) Versions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.snapshots))
	for v := range m.snapshots {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// SquaredL2 is the squared Euclidean distance between two equal-length vectors.
func SquaredL2(a, b []float32) float64 {
	var sum float64
	for n := range a {
		d := float64(a[n]) - float64(b[n])
		sum += d * d
	}
	return sum
}
