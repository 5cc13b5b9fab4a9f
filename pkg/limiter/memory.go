package limiter

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	value    int64
	deadline time.Time // zero until a TTL is armed
}

// MemoryCounterStore is an in-process CounterStore backed by a Go map. It is
// useful for unit tests, local development, and single-instance deployments.
// Because its state is local to the process, it does not enforce a global
// limit across replicas; use RedisCounterStore for that.
//
// Expired counters are dropped lazily, on the next access to their key.
type MemoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]*counter
	now      func() time.Time
}

// NewMemoryCounterStore builds an empty in-process store.
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{
		counters: make(map[string]*counter),
		now:      time.Now,
	}
}

func (m *MemoryCounterStore) Increment(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.live(key)
	if c == nil {
		c = &counter{}
		m.counters[key] = c
	}
	c.value++
	return c.value, nil
}

func (m *MemoryCounterStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c := m.live(key); c != nil {
		c.deadline = m.now().Add(ttl)
	}
	return nil
}

func (m *MemoryCounterStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.live(key)
	if c == nil || c.deadline.IsZero() {
		return 0, nil
	}
	return c.deadline.Sub(m.now()), nil
}

func (m *MemoryCounterStore) Get(ctx context.Context, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.live(key)
	if c == nil {
		return 0, false, nil
	}
	return c.value, true, nil
}

func (m *MemoryCounterStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.counters, key)
	return nil
}

// live returns the counter for key, evicting it first if its TTL has lapsed.
// Callers must hold m.mu.
func (m *MemoryCounterStore) live(key string) *counter {
	c, ok := m.counters[key]
	if !ok {
		return nil
	}
	if !c.deadline.IsZero() && !m.now().Before(c.deadline) {
		delete(m.counters, key)
		return nil
	}
	return c
}
