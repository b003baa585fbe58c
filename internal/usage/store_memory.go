package usage

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu     sync.Mutex
	counts map[string]Usage
	now    func() time.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{counts: make(map[string]Usage), now: time.Now}
}

func (m *memoryStore) Get(ctx context.Context, userID string) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[userID], nil
}

func (m *memoryStore) Increment(ctx context.Context, userID string, n int) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.counts[userID]
	if n > 0 {
		u.ContractsAnalyzed += n
		u.UpdatedAt = m.now().UTC()
	}
	m.counts[userID] = u
	return u, nil
}
