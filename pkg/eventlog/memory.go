package eventlog

import (
	"context"
	"sync"

	"github.com/fluxcd/provisioner/pkg/release"
)

// MemoryStore keeps the log and offsets in memory. It is used in
// tests, and when the provisioner runs with a memory:// database.
type MemoryStore struct {
	tags Tags

	mu      sync.RWMutex
	records []Record
	byID    map[string][]int
	offsets map[string]int64
}

var (
	_ Store       = &MemoryStore{}
	_ OffsetStore = &MemoryStore{}
)

func NewMemoryStore(tags Tags) *MemoryStore {
	return &MemoryStore{
		tags:    tags,
		byID:    map[string][]int{},
		offsets: map[string]int64{},
	}
}

func (m *MemoryStore) Append(ctx context.Context, id string, expectedSeq int64, events ...release.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if int64(len(m.byID[id])) != expectedSeq {
		return ErrConflict
	}
	tag := m.tags.For(id)
	for i, e := range events {
		m.records = append(m.records, Record{
			Position:  int64(len(m.records) + 1),
			ReleaseID: id,
			Seq:       expectedSeq + int64(i) + 1,
			Tag:       tag,
			Event:     e,
		})
		m.byID[id] = append(m.byID[id], len(m.records)-1)
	}
	return nil
}

func (m *MemoryStore) Load(ctx context.Context, id string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx := m.byID[id]
	records := make([]Record, len(idx))
	for i, j := range idx {
		records[i] = m.records[j]
	}
	return records, nil
}

func (m *MemoryStore) ReadTag(ctx context.Context, tag string, after int64, limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var records []Record
	// positions are 1-based indices into records
	for i := int(after); i < len(m.records); i++ {
		if i < 0 {
			continue
		}
		if m.records[i].Tag != tag {
			continue
		}
		records = append(records, m.records[i])
		if limit > 0 && len(records) >= limit {
			break
		}
	}
	return records, nil
}

func (m *MemoryStore) Offset(ctx context.Context, consumer, tag string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.offsets[consumer+"/"+tag], nil
}

func (m *MemoryStore) SetOffset(ctx context.Context, consumer, tag string, position int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offsets[consumer+"/"+tag] = position
	return nil
}
