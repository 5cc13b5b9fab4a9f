package limiter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type staticQuotas struct {
	mu     sync.Mutex
	quotas map[string][]Quota
	err    error
	calls  int
}

func (s *staticQuotas) ActiveQuotas(ctx context.Context, tenantID string) ([]Quota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.quotas[tenantID], nil
}

type capturingRecorder struct {
	mu     sync.Mutex
	events []CheckEvent
}

func (r *capturingRecorder) RecordCheck(ev CheckEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// testEngine wires an engine over a memory store with a controllable clock.
func testEngine(t *testing.T, quotas map[string][]Quota) (*Engine, *MemoryCounterStore, *time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mem := NewMemoryCounterStore()
	mem.now = func() time.Time { return now }
	engine := NewEngine(
		NewResolver(&staticQuotas{quotas: quotas}),
		mem,
		WithClock(func() time.Time { return now }),
	)
	return engine, mem, &now
}

func TestEngine_Check(t *testing.T) {
	ctx := context.Background()
	tenant := Quota{ConfigID: "cfg1", TenantID: "t1", MaxRequests: 3, WindowSeconds: 60}

	t.Run("FirstRequestOpensWindow", func(t *testing.T) {
		engine, _, _ := testEngine(t, map[string][]Quota{"t1": {tenant}})
		sub := Subject{TenantID: "t1", Resource: "api/v1/users"}

		res, err := engine.Check(ctx, sub)
		if err != nil {
			t.Fatalf("Check failed: %v", err)
		}
		if !res.Allowed {
			t.Error("Expected first request to be allowed")
		}
		if res.Remaining != 2 {
			t.Errorf("Expected 2 remaining, got %d", res.Remaining)
		}
		if res.Limit != 3 {
			t.Errorf("Expected limit 3, got %d", res.Limit)
		}
		if res.ResetIn != 60*time.Second {
			t.Errorf("Expected resetIn 60s, got %v", res.ResetIn)
		}
		if res.ResetAt.IsZero() {
			t.Error("Expected a non-zero reset time while a window is active")
		}
	})

	t.Run("InclusiveBoundary", func(t *testing.T) {
		engine, _, _ := testEngine(t, map[string][]Quota{"t1": {tenant}})
		sub := Subject{TenantID: "t1"}

		// Requests 1..3 reach the limit and are all allowed.
		for i := 1; i <= 3; i++ {
			res, err := engine.Check(ctx, sub)
			if err != nil {
				t.Fatalf("Check %d failed: %v", i, err)
			}
			if !res.Allowed {
				t.Errorf("Request %d should be allowed (limit 3)", i)
			}
		}

		// Request 4 exceeds it.
		res, err := engine.Check(ctx, sub)
		if err != nil {
			t.Fatal(err)
		}
		if res.Allowed {
			t.Error("Request past the limit should be denied")
		}
		if res.Remaining != 0 {
			t.Errorf("Expected 0 remaining when denied, got %d", res.Remaining)
		}
	})

	t.Run("LimitOne", func(t *testing.T) {
		quota := Quota{ConfigID: "cfg1", TenantID: "t1", MaxRequests: 1, WindowSeconds: 60}
		engine, _, _ := testEngine(t, map[string][]Quota{"t1": {quota}})
		sub := Subject{TenantID: "t1"}

		res, _ := engine.Check(ctx, sub)
		if !res.Allowed || res.Remaining != 0 {
			t.Errorf("First check: want allowed=true remaining=0, got allowed=%v remaining=%d", res.Allowed, res.Remaining)
		}
		res, _ = engine.Check(ctx, sub)
		if res.Allowed || res.Remaining != 0 {
			t.Errorf("Second check: want allowed=false remaining=0, got allowed=%v remaining=%d", res.Allowed, res.Remaining)
		}
	})

	t.Run("IndependentCountersPerResource", func(t *testing.T) {
		quota := Quota{ConfigID: "cfg1", TenantID: "t1", MaxRequests: 1, WindowSeconds: 60}
		engine, _, _ := testEngine(t, map[string][]Quota{"t1": {quota}})

		res, _ := engine.Check(ctx, Subject{TenantID: "t1", Resource: "a"})
		if !res.Allowed {
			t.Error("First check on resource a should be allowed")
		}
		res, _ = engine.Check(ctx, Subject{TenantID: "t1", Resource: "b"})
		if !res.Allowed {
			t.Error("Resource b has its own counter and should be allowed")
		}
		res, _ = engine.Check(ctx, Subject{TenantID: "t1", Resource: "a", SubjectID: "u1"})
		if !res.Allowed {
			t.Error("Distinct subject gets an independent counter")
		}
	})

	t.Run("TTLArmedOnce", func(t *testing.T) {
		engine, mem, now := testEngine(t, map[string][]Quota{"t1": {tenant}})
		sub := Subject{TenantID: "t1"}

		if _, err := engine.Check(ctx, sub); err != nil {
			t.Fatal(err)
		}

		// 20 seconds into the window, further checks must not push the
		// deadline out.
		*now = now.Add(20 * time.Second)
		res, err := engine.Check(ctx, sub)
		if err != nil {
			t.Fatal(err)
		}
		if res.ResetIn != 40*time.Second {
			t.Errorf("TTL should only decay with elapsed time, got %v", res.ResetIn)
		}

		key := CounterKey("t1", "cfg1", "", "")
		ttl, _ := mem.TTL(ctx, key)
		if ttl != 40*time.Second {
			t.Errorf("Expected 40s left on the window, got %v", ttl)
		}
	})

	t.Run("WindowExpiryStartsFresh", func(t *testing.T) {
		engine, _, now := testEngine(t, map[string][]Quota{"t1": {tenant}})
		sub := Subject{TenantID: "t1"}

		for i := 0; i < 4; i++ {
			engine.Check(ctx, sub)
		}
		res, _ := engine.Check(ctx, sub)
		if res.Allowed {
			t.Fatal("Expected saturation before expiry")
		}

		*now = now.Add(61 * time.Second)
		res, err := engine.Check(ctx, sub)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Allowed {
			t.Error("A fresh window should allow again")
		}
		if res.Remaining != 2 {
			t.Errorf("Count should restart at 1, got remaining=%d", res.Remaining)
		}
	})

	t.Run("StoreErrorYieldsNoDecision", func(t *testing.T) {
		boom := errors.New("connection refused")
		engine := NewEngine(
			NewResolver(&staticQuotas{quotas: map[string][]Quota{"t1": {tenant}}}),
			failingStore{err: boom},
		)

		_, err := engine.Check(ctx, Subject{TenantID: "t1"})
		if err == nil {
			t.Fatal("Expected an error when the store is down")
		}
		if !errors.Is(err, boom) {
			t.Errorf("Store error should propagate unchanged, got: %v", err)
		}
	})
}

func TestEngine_Status(t *testing.T) {
	ctx := context.Background()
	quota := Quota{ConfigID: "cfg1", TenantID: "t1", MaxRequests: 3, WindowSeconds: 60}

	t.Run("FreshKey", func(t *testing.T) {
		engine, _, _ := testEngine(t, map[string][]Quota{"t1": {quota}})

		res, err := engine.Status(ctx, Subject{TenantID: "t1"})
		if err != nil {
			t.Fatal(err)
		}
		if !res.Allowed {
			t.Error("Status on a fresh key should be allowed")
		}
		if res.Remaining != 3 {
			t.Errorf("Expected full budget, got %d", res.Remaining)
		}
		if !res.ResetAt.IsZero() || res.ResetIn != 0 {
			t.Errorf("No active window should report zero reset, got resetAt=%v resetIn=%v", res.ResetAt, res.ResetIn)
		}
	})

	t.Run("DoesNotConsume", func(t *testing.T) {
		engine, _, _ := testEngine(t, map[string][]Quota{"t1": {quota}})
		sub := Subject{TenantID: "t1"}

		engine.Check(ctx, sub)
		for i := 0; i < 5; i++ {
			res, err := engine.Status(ctx, sub)
			if err != nil {
				t.Fatal(err)
			}
			if res.Remaining != 2 {
				t.Fatalf("Status must not consume budget, got remaining=%d", res.Remaining)
			}
		}
	})

	t.Run("StrictBoundary", func(t *testing.T) {
		engine, _, _ := testEngine(t, map[string][]Quota{"t1": {quota}})
		sub := Subject{TenantID: "t1"}

		// Two of three consumed: the next request still fits.
		engine.Check(ctx, sub)
		engine.Check(ctx, sub)
		res, _ := engine.Status(ctx, sub)
		if !res.Allowed || res.Remaining != 1 {
			t.Errorf("Want allowed=true remaining=1, got allowed=%v remaining=%d", res.Allowed, res.Remaining)
		}

		// The third check is itself allowed (inclusive), but afterwards
		// status reports no room for a fourth (strict).
		chk, _ := engine.Check(ctx, sub)
		if !chk.Allowed {
			t.Error("Check at the limit should be allowed")
		}
		res, _ = engine.Status(ctx, sub)
		if res.Allowed {
			t.Error("Status at the limit should report allowed=false")
		}
		if res.Remaining != 0 {
			t.Errorf("Expected 0 remaining, got %d", res.Remaining)
		}
	})

	t.Run("AfterExpiry", func(t *testing.T) {
		engine, _, now := testEngine(t, map[string][]Quota{"t1": {quota}})
		sub := Subject{TenantID: "t1"}

		engine.Check(ctx, sub)
		*now = now.Add(61 * time.Second)

		res, err := engine.Status(ctx, sub)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Allowed || res.Remaining != 3 {
			t.Errorf("Expired window should look fresh, got allowed=%v remaining=%d", res.Allowed, res.Remaining)
		}
		if !res.ResetAt.IsZero() {
			t.Errorf("Expected zero reset after expiry, got %v", res.ResetAt)
		}
	})
}

func TestEngine_Reset(t *testing.T) {
	ctx := context.Background()
	quota := Quota{ConfigID: "cfg1", TenantID: "t1", MaxRequests: 3, WindowSeconds: 60}
	engine, _, _ := testEngine(t, map[string][]Quota{"t1": {quota}})
	sub := Subject{TenantID: "t1"}

	for i := 0; i < 4; i++ {
		engine.Check(ctx, sub)
	}

	if err := engine.Reset(ctx, sub); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	res, err := engine.Check(ctx, sub)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Allowed || res.Remaining != 2 {
		t.Errorf("Check after reset should behave like a fresh key, got allowed=%v remaining=%d", res.Allowed, res.Remaining)
	}

	// Resetting an absent counter is not an error.
	if err := engine.Reset(ctx, Subject{TenantID: "t1", Resource: "never-used"}); err != nil {
		t.Errorf("Reset of an absent counter should be a no-op, got: %v", err)
	}
}

func TestEngine_ConcurrentChecks(t *testing.T) {
	ctx := context.Background()
	const n, limit = 50, 20
	quota := Quota{ConfigID: "cfg1", TenantID: "t1", MaxRequests: limit, WindowSeconds: 60}
	engine, _, _ := testEngine(t, map[string][]Quota{"t1": {quota}})

	rec := &capturingRecorder{}
	WithRecorder(rec)(engine)

	var wg sync.WaitGroup
	results := make([]Result, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := engine.Check(ctx, Subject{TenantID: "t1"})
			if err != nil {
				t.Errorf("Check failed: %v", err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	allowed := 0
	for _, res := range results {
		if res.Allowed {
			allowed++
		}
	}
	if allowed != limit {
		t.Errorf("Exactly %d of %d racing checks should be allowed, got %d", limit, n, allowed)
	}

	// The observed counts must be a permutation of 1..n: no caller sees a
	// skipped or duplicated value.
	seen := make(map[int64]bool)
	for _, ev := range rec.events {
		if ev.Count < 1 || ev.Count > n {
			t.Errorf("Count %d out of range 1..%d", ev.Count, n)
		}
		if seen[ev.Count] {
			t.Errorf("Count %d handed out twice", ev.Count)
		}
		seen[ev.Count] = true
	}
	if len(seen) != n {
		t.Errorf("Expected %d distinct counts, got %d", n, len(seen))
	}
}

func TestEngine_Recorder(t *testing.T) {
	ctx := context.Background()
	quota := Quota{ConfigID: "cfg1", TenantID: "t1", MaxRequests: 1, WindowSeconds: 60}

	t.Run("EventPerCheck", func(t *testing.T) {
		engine, _, _ := testEngine(t, map[string][]Quota{"t1": {quota}})
		rec := &capturingRecorder{}
		WithRecorder(rec)(engine)

		sub := Subject{TenantID: "t1", Resource: "api/v1/users", SubjectID: "u1"}
		engine.Check(ctx, sub)
		engine.Check(ctx, sub)

		if len(rec.events) != 2 {
			t.Fatalf("Expected 2 events, got %d", len(rec.events))
		}
		first, second := rec.events[0], rec.events[1]
		if first.TenantID != "t1" || first.Resource != "api/v1/users" || first.SubjectID != "u1" {
			t.Errorf("Event identity mismatch: %+v", first)
		}
		if first.Count != 1 || first.Limited {
			t.Errorf("First event: want count=1 limited=false, got %+v", first)
		}
		if second.Count != 2 || !second.Limited {
			t.Errorf("Second event: want count=2 limited=true, got %+v", second)
		}
	})

	t.Run("StatusDoesNotRecord", func(t *testing.T) {
		engine, _, _ := testEngine(t, map[string][]Quota{"t1": {quota}})
		rec := &capturingRecorder{}
		WithRecorder(rec)(engine)

		engine.Status(ctx, Subject{TenantID: "t1"})
		if len(rec.events) != 0 {
			t.Errorf("Status must not emit events, got %d", len(rec.events))
		}
	})

	t.Run("PanickingRecorderDoesNotFailCheck", func(t *testing.T) {
		engine, _, _ := testEngine(t, map[string][]Quota{"t1": {quota}})
		WithRecorder(panicRecorder{})(engine)

		res, err := engine.Check(ctx, Subject{TenantID: "t1"})
		if err != nil {
			t.Fatalf("Recorder failure must not surface: %v", err)
		}
		if !res.Allowed {
			t.Error("Decision should stand despite the recorder")
		}
	})
}

type panicRecorder struct{}

func (panicRecorder) RecordCheck(ev CheckEvent) { panic("sink unavailable") }

type failingStore struct {
	err error
}

func (s failingStore) Increment(ctx context.Context, key string) (int64, error) { return 0, s.err }
func (s failingStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.err
}
func (s failingStore) TTL(ctx context.Context, key string) (time.Duration, error) { return 0, s.err }
func (s failingStore) Get(ctx context.Context, key string) (int64, bool, error) {
	return 0, false, s.err
}
func (s failingStore) Delete(ctx context.Context, key string) error { return s.err }
