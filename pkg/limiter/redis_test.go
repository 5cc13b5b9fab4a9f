package limiter

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRedisCounterStore_Integration(t *testing.T) {
	opts := &redis.Options{
		Addr: "localhost:6379",
	}
	client := redis.NewClient(opts)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping integration test: Redis not available (%v)", err)
	}

	store, err := NewRedisCounterStore(client)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	t.Run("IncrementExpireTTL", func(t *testing.T) {
		key := fmt.Sprintf("it_counter_%d", time.Now().UnixNano())
		defer client.Del(ctx, key)

		n, err := store.Increment(ctx, key)
		if err != nil {
			t.Fatalf("Increment failed: %v", err)
		}
		if n != 1 {
			t.Errorf("Expected 1, got %d", n)
		}

		// No TTL until one is armed explicitly.
		if ttl, _ := store.TTL(ctx, key); ttl != 0 {
			t.Errorf("INCR must not attach a TTL, got %v", ttl)
		}

		if err := store.Expire(ctx, key, 60*time.Second); err != nil {
			t.Fatalf("Expire failed: %v", err)
		}
		ttl, err := store.TTL(ctx, key)
		if err != nil {
			t.Fatal(err)
		}
		if ttl <= 0 || ttl > 60*time.Second {
			t.Errorf("Expected a TTL in (0, 60s], got %v", ttl)
		}

		if n, _ = store.Increment(ctx, key); n != 2 {
			t.Errorf("Expected 2, got %d", n)
		}
	})

	t.Run("GetAndDelete", func(t *testing.T) {
		key := fmt.Sprintf("it_get_%d", time.Now().UnixNano())
		defer client.Del(ctx, key)

		if _, ok, _ := store.Get(ctx, key); ok {
			t.Error("Absent key should report ok=false")
		}
		store.Increment(ctx, key)
		v, ok, err := store.Get(ctx, key)
		if err != nil {
			t.Fatal(err)
		}
		if !ok || v != 1 {
			t.Errorf("Expected (1, true), got (%d, %v)", v, ok)
		}
		if err := store.Delete(ctx, key); err != nil {
			t.Fatal(err)
		}
		if err := store.Delete(ctx, key); err != nil {
			t.Errorf("Deleting an absent key should not error: %v", err)
		}
	})

	t.Run("SharedAcrossInstances", func(t *testing.T) {
		// Two stores over the same Redis see one counter, the way two
		// service replicas would.
		storeB, err := NewRedisCounterStore(client)
		if err != nil {
			t.Fatal(err)
		}
		key := fmt.Sprintf("it_shared_%d", time.Now().UnixNano())
		defer client.Del(ctx, key)

		store.Increment(ctx, key)
		n, err := storeB.Increment(ctx, key)
		if err != nil {
			t.Fatal(err)
		}
		if n != 2 {
			t.Errorf("Instance B should observe instance A's increment, got %d", n)
		}
	})

	t.Run("EngineEndToEnd", func(t *testing.T) {
		tenant := fmt.Sprintf("it_tenant_%d", time.Now().UnixNano())
		quota := Quota{ConfigID: "cfg1", TenantID: tenant, MaxRequests: 2, WindowSeconds: 60}
		engine := NewEngine(
			NewResolver(&staticQuotas{quotas: map[string][]Quota{tenant: {quota}}}),
			store,
		)
		defer client.Del(ctx, CounterKey(tenant, "cfg1", "", ""))

		sub := Subject{TenantID: tenant}
		for i := 1; i <= 2; i++ {
			res, err := engine.Check(ctx, sub)
			if err != nil {
				t.Fatalf("Check %d failed: %v", i, err)
			}
			if !res.Allowed {
				t.Errorf("Check %d should be allowed", i)
			}
		}
		res, err := engine.Check(ctx, sub)
		if err != nil {
			t.Fatal(err)
		}
		if res.Allowed {
			t.Error("Third check should be denied")
		}
		if res.ResetIn <= 0 {
			t.Errorf("Expected a live window, got resetIn=%v", res.ResetIn)
		}

		if err := engine.Reset(ctx, sub); err != nil {
			t.Fatal(err)
		}
		res, _ = engine.Check(ctx, sub)
		if !res.Allowed || res.Remaining != 1 {
			t.Errorf("After reset the counter should restart at 1, got allowed=%v remaining=%d", res.Allowed, res.Remaining)
		}
	})
}

func TestRedisCounterStore_ContextCancellation(t *testing.T) {
	opt, _ := redis.ParseURL("redis://localhost:6379")
	client := redis.NewClient(opt)
	defer client.Close()

	store, err := NewRedisCounterStore(client)
	if err != nil {
		t.Skipf("Skipping test: Redis not available (%v)", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.Increment(ctx, "cancelled_key")
	if err == nil {
		t.Fatal("Expected an error due to cancelled context, but got nil")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected error to be context.Canceled, but got: %v", err)
	}
}
