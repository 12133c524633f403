package memory

import (
	"context"
	"sort"
	"sync"

	audit "stagegate/pkg/platform/audit"
)

// InMemoryStore is an audit.Sink for tests and single-process development.
// Appends are idempotent on record ID.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []audit.TransitionRecord
	seen    map[string]struct{}
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{seen: make(map[string]struct{})}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.seen = make(map[string]struct{})
}

func (s *InMemoryStore) Append(_ context.Context, record audit.TransitionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID != "" {
		if _, dup := s.seen[record.ID]; dup {
			return nil
		}
		s.seen[record.ID] = struct{}{}
	}
	s.records = append(s.records, record)
	return nil
}

// ListByEntity returns every record for entityID, newest first.
func (s *InMemoryStore) ListByEntity(_ context.Context, entityID string) ([]audit.TransitionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.TransitionRecord
	for _, r := range s.records {
		if r.EntityID == entityID {
			out = append(out, r)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// ListRecent returns the most recent limit records across all entities.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.TransitionRecord, error) {
	s.mu.RLock()
	out := append([]audit.TransitionRecord{}, s.records...)
	s.mu.RUnlock()

	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortNewestFirst(records []audit.TransitionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
}
