package limiter

import (
	"context"
	"time"
)

// Quota is the policy applied to one tenant's counters: at most MaxRequests
// admissions per fixed window of WindowSeconds.
type Quota struct {
	// ConfigID identifies the configuration record the quota came from. It
	// is part of the counter key, so two configs never share a counter.
	ConfigID string

	TenantID      string
	MaxRequests   int64
	WindowSeconds int64
}

// Window returns the quota window as a duration.
func (q Quota) Window() time.Duration {
	return time.Duration(q.WindowSeconds) * time.Second
}

// Subject identifies "who" a check applies to. TenantID is required.
// Resource and SubjectID are optional refinements: distinct values get
// independent counters under the same tenant and quota.
type Subject struct {
	TenantID  string
	Resource  string
	SubjectID string
}

// Result is the outcome of a Check or Status call.
type Result struct {
	// Allowed reports the admission decision. For Check it answers "is this
	// request allowed"; for Status it answers "would the next request be
	// allowed".
	Allowed bool

	// Remaining is the number of further requests the window can absorb,
	// floored at zero.
	Remaining int64

	// Limit echoes the resolved quota's MaxRequests.
	Limit int64

	// ResetAt is when the current window expires and the counter resets.
	// Zero when no window is active.
	ResetAt time.Time

	// ResetIn is the time left until ResetAt, zero when no window is active.
	ResetIn time.Duration
}

// CounterStore is the shared mutable state behind the engine: keyed integer
// counters with expiration. Every method is a single atomic round trip to the
// backing service; errors propagate to the caller unchanged and the engine
// never substitutes a decision for a failed round trip.
//
// Implementations must guarantee that concurrent Increment calls on one key
// hand out a gap-free, duplicate-free sequence of counts.
type CounterStore interface {
	// Increment creates key with value 1 if absent, otherwise atomically adds
	// 1, and returns the post-increment value. It never attaches a TTL.
	Increment(ctx context.Context, key string) (int64, error)

	// Expire arms a TTL on an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTL reports the remaining lifetime of key, or 0 when the key does not
	// exist or has no TTL armed.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Get reads the current value without mutating it. The second return is
	// false when the key does not exist.
	Get(ctx context.Context, key string) (int64, bool, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
