package limiter

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryCounterStore(t *testing.T) {
	ctx := context.Background()

	t.Run("IncrementCreatesAtOne", func(t *testing.T) {
		m := NewMemoryCounterStore()
		n, err := m.Increment(ctx, "k")
		if err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("First increment should return 1, got %d", n)
		}
		n, _ = m.Increment(ctx, "k")
		if n != 2 {
			t.Errorf("Second increment should return 2, got %d", n)
		}
	})

	t.Run("NoImplicitTTL", func(t *testing.T) {
		m := NewMemoryCounterStore()
		m.Increment(ctx, "k")
		ttl, err := m.TTL(ctx, "k")
		if err != nil {
			t.Fatal(err)
		}
		if ttl != 0 {
			t.Errorf("Increment must not attach a TTL, got %v", ttl)
		}
	})

	t.Run("TTLDecaysWithTime", func(t *testing.T) {
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		m := NewMemoryCounterStore()
		m.now = func() time.Time { return now }

		m.Increment(ctx, "k")
		m.Expire(ctx, "k", 60*time.Second)

		now = now.Add(15 * time.Second)
		ttl, _ := m.TTL(ctx, "k")
		if ttl != 45*time.Second {
			t.Errorf("Expected 45s remaining, got %v", ttl)
		}
	})

	t.Run("ExpiryDeletesKey", func(t *testing.T) {
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		m := NewMemoryCounterStore()
		m.now = func() time.Time { return now }

		m.Increment(ctx, "k")
		m.Expire(ctx, "k", 60*time.Second)
		now = now.Add(61 * time.Second)

		if _, ok, _ := m.Get(ctx, "k"); ok {
			t.Error("Key should be gone after its TTL lapses")
		}
		if ttl, _ := m.TTL(ctx, "k"); ttl != 0 {
			t.Errorf("Expired key should report zero TTL, got %v", ttl)
		}
		if n, _ := m.Increment(ctx, "k"); n != 1 {
			t.Errorf("Increment after expiry should restart at 1, got %d", n)
		}
	})

	t.Run("GetMissingKey", func(t *testing.T) {
		m := NewMemoryCounterStore()
		n, ok, err := m.Get(ctx, "absent")
		if err != nil {
			t.Fatal(err)
		}
		if ok || n != 0 {
			t.Errorf("Expected (0, false) for an absent key, got (%d, %v)", n, ok)
		}
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		m := NewMemoryCounterStore()
		m.Increment(ctx, "k")
		if err := m.Delete(ctx, "k"); err != nil {
			t.Fatal(err)
		}
		if err := m.Delete(ctx, "k"); err != nil {
			t.Errorf("Deleting an absent key should not error: %v", err)
		}
	})

	t.Run("ConcurrentIncrements", func(t *testing.T) {
		m := NewMemoryCounterStore()
		const n = 200
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				m.Increment(ctx, "k")
			}()
		}
		wg.Wait()

		v, ok, _ := m.Get(ctx, "k")
		if !ok || v != n {
			t.Errorf("Expected count %d, got %d (ok=%v)", n, v, ok)
		}
	})
}
