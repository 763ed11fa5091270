package exam

import (
	"context"
	"sort"
	"sync"
)

// Store is the local test catalog.
type Store interface {
	PutTest(ctx context.Context, t Test) error
	GetTest(ctx context.Context, slug string) (*Test, error) // full definition, answers included
	ListTests(ctx context.Context, typ TestType) ([]TestSummary, error)
}

type memoryStore struct {
	mu    sync.RWMutex
	tests map[string]Test
}

func NewInMemoryStore() Store {
	return &memoryStore{tests: map[string]Test{}}
}

func (m *memoryStore) PutTest(_ context.Context, t Test) error {
	if err := Validate(&t); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tests[t.Slug] = t
	return nil
}

func (m *memoryStore) GetTest(_ context.Context, slug string) (*Test, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tests[slug]
	if !ok {
		return nil, ErrTestNotFound
	}
	return &t, nil
}

func (m *memoryStore) ListTests(_ context.Context, typ TestType) ([]TestSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TestSummary, 0, len(m.tests))
	for _, t := range m.tests {
		if typ != "" && t.Type != typ {
			continue
		}
		out = append(out, t.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}
