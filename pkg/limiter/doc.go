// Package limiter provides per-tenant fixed-window rate limiting backed by a
// shared atomic counter store.
//
// The primary entry point is the Engine:
//
//	res, err := engine.Check(ctx, limiter.Subject{TenantID: "t1", Resource: "api/v1/users"})
//
// The returned Result contains whether the request is allowed, how much of
// the window's budget remains, and when the window resets (for callers that
// want to set rate-limit headers).
//
// # Overview
//
// This package implements a fixed window:
//
//   - Each (tenant, config, resource, subject) combination has a counter.
//   - The first request in a window creates the counter and arms a TTL equal
//     to the quota's window length.
//   - Every request increments the counter; the request that brings the count
//     past the quota is denied.
//   - When the TTL lapses the store drops the counter and the next request
//     opens a fresh window.
//
// Windows are aligned to first use, not to wall-clock boundaries. Unlike a
// token bucket, a fixed window does not smooth bursts; it only accepts or
// rejects, which keeps every decision a handful of O(1) store operations.
//
// # Core Types
//
// Quota defines the policy: MaxRequests per WindowSeconds, resolved per
// tenant by a QuotaResolver. The bundled Resolver picks the tenant's
// earliest-created active config and falls back to 100 requests per 60
// seconds when none exist.
//
// Subject defines "who" is being limited: the tenant, plus optional resource
// and subject (end-user) refinements. Distinct refinements get independent
// counters.
//
// # Backends
//
// Two CounterStore implementations share the same contract:
//
//   - MemoryCounterStore: an in-process store backed by a Go map, for unit
//     tests, local development, and single-instance deployments. Its state is
//     process-local, so it cannot enforce a global limit across replicas.
//
//   - RedisCounterStore: a distributed store backed by Redis INCR/EXPIRE.
//     Redis guarantees the increment is atomic across instances, so N racing
//     checks on one key observe the counts 1..N with no gaps or duplicates
//     regardless of which process issued them.
//
// # Window Semantics
//
// The engine arms the TTL only on the increment that created the counter
// (count == 1) and never re-arms it afterwards. This ordering matters in both
// directions: arming the TTL before the first increment could leak a counter
// with no expiration if the process dies between the two calls, and re-arming
// on every increment would slide the window forward under sustained traffic
// so the limit would never reset.
//
// # Check versus Status
//
// Check consumes budget and uses an inclusive boundary: the request that
// makes the count exactly equal to the limit is still allowed. Status is
// non-consuming and uses a strict boundary: it answers "is there room for one
// more request", so at exactly the limit it reports allowed=false. The
// asymmetry is deliberate; the two operations answer different questions.
//
// # Context and Error Policy
//
// Every operation takes a context.Context, which flows through to the store
// so callers can enforce deadlines. If the store is unreachable the engine
// returns a non-nil error and no decision: substituting "allowed" would
// silently disable the limiter and substituting "denied" would turn a store
// outage into a full lockout. Whether to fail open or fail closed is the
// caller's policy.
//
// # Metrics
//
// A CheckRecorder injected with WithRecorder receives one CheckEvent per
// Check, dispatched after the decision is finalized. Recorder failures are
// logged, never surfaced; a recorder panic cannot fail an admission.
package limiter
