package index

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fluxcd/provisioner/pkg/release"
)

type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]Row
}

var _ Store = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: map[string]Row{}}
}

func (m *MemoryStore) Upsert(ctx context.Context, row Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[row.ReleaseID] = row
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, status release.Status, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil
	}
	row.Status = status
	row.UpdatedAt = at
	m.rows[id] = row
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *MemoryStore) Candidates(ctx context.Context, statuses []release.Status, tags []string) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wantStatus := map[release.Status]bool{}
	for _, s := range statuses {
		wantStatus[s] = true
	}
	wantTag := map[string]bool{}
	for _, t := range tags {
		wantTag[t] = true
	}

	var rows []Row
	for _, row := range m.rows {
		if wantStatus[row.Status] && wantTag[row.Tag] {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ReleaseID < rows[j].ReleaseID })
	return rows, nil
}

// Get returns the row for a release, if there is one.
func (m *MemoryStore) Get(id string) (Row, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[id]
	return row, ok
}
