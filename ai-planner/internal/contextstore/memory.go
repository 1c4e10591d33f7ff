package contextstore

import (
	"context"
	"sort"
	"sync"

	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/models"
)

// MemoryStore is the in-process store. Key assignment happens under the write
// lock so concurrent Store calls never collide; reads share the read lock.
type MemoryStore struct {
	mu      sync.RWMutex
	lastKey models.ContextKey
	records map[models.ContextKey]models.PlanRecord
	// order holds live keys ascending; appends keep it sorted.
	order []models.ContextKey
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: map[models.ContextKey]models.PlanRecord{},
	}
}

func (m *MemoryStore) Store(ctx context.Context, rec models.PlanRecord) (models.ContextKey, error) {
	stored := rec.Clone()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastKey++
	key := m.lastKey
	m.records[key] = stored
	m.order = append(m.order, key)
	return key, nil
}

func (m *MemoryStore) Retrieve(ctx context.Context, key models.ContextKey) (models.PlanRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key]
	if !ok {
		return models.PlanRecord{}, ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) Recent(ctx context.Context, limit int) ([]models.StoredPlan, error) {
	if limit <= 0 {
		return []models.StoredPlan{}, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit > len(m.order) {
		limit = len(m.order)
	}
	out := make([]models.StoredPlan, 0, limit)
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		key := m.order[i]
		out = append(out, models.StoredPlan{Key: key, Record: m.records[key].Clone()})
	}
	return out, nil
}

func (m *MemoryStore) Purge(ctx context.Context, policy RetentionPolicy) (int, error) {
	if !policy.Enabled() {
		return 0, nil
	}
	cutoff, byAge := policy.cutoff()
	m.mu.Lock()
	defer m.mu.Unlock()

	keep := make([]models.ContextKey, 0, len(m.order))
	removed := 0
	for i, key := range m.order {
		newer := len(m.order) - i
		tooMany := policy.MaxRecords > 0 && newer > policy.MaxRecords
		tooOld := byAge && m.records[key].CreatedAt.Before(cutoff)
		if tooMany || tooOld {
			delete(m.records, key)
			removed++
			continue
		}
		keep = append(keep, key)
	}
	m.order = keep
	return removed, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Keys returns the live keys in ascending order.
func (m *MemoryStore) Keys() []models.ContextKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]models.ContextKey(nil), m.order...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
