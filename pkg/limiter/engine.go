package limiter

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Engine drives the fixed-window protocol against a CounterStore. It holds no
// mutable state of its own; all shared state lives in the store, so any number
// of goroutines and processes may call one logical engine concurrently.
type Engine struct {
	resolver QuotaResolver
	store    CounterStore
	recorder CheckRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecorder injects a recorder that receives one CheckEvent per Check.
func WithRecorder(rec CheckRecorder) Option {
	return func(e *Engine) {
		if rec != nil {
			e.recorder = rec
		}
	}
}

// WithLogger sets the logger used for non-fatal engine noise (recorder
// failures). Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine builds an Engine over resolver and store.
func NewEngine(resolver QuotaResolver, store CounterStore, opts ...Option) *Engine {
	e := &Engine{
		resolver: resolver,
		store:    store,
		recorder: NoopCheckRecorder{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Check consumes one unit of the subject's quota and reports whether the
// request is admitted. The boundary is inclusive: the request that brings the
// count exactly to the limit is still allowed, the first one past it is
// denied.
//
// The store sequence is increment first, then arm the TTL only on the call
// that created the window (count == 1). Arming unconditionally would slide
// the window forward on every request and the counter would never reset under
// sustained load.
//
// On any store error Check returns no decision. Fail-open versus fail-closed
// is the caller's policy, not the engine's.
func (e *Engine) Check(ctx context.Context, sub Subject) (Result, error) {
	quota, err := e.resolver.Resolve(ctx, sub.TenantID)
	if err != nil {
		return Result{}, err
	}
	key := CounterKey(sub.TenantID, quota.ConfigID, sub.Resource, sub.SubjectID)

	count, err := e.store.Increment(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("increment counter: %w", err)
	}
	if count == 1 {
		if err := e.store.Expire(ctx, key, quota.Window()); err != nil {
			return Result{}, fmt.Errorf("arm window ttl: %w", err)
		}
	}

	ttl, err := e.store.TTL(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("read window ttl: %w", err)
	}

	res := Result{
		Allowed:   count <= quota.MaxRequests,
		Remaining: remaining(quota.MaxRequests, count),
		Limit:     quota.MaxRequests,
		ResetIn:   ttl,
	}
	if ttl > 0 {
		res.ResetAt = e.now().Add(ttl)
	}

	e.record(CheckEvent{
		TenantID:  sub.TenantID,
		Resource:  sub.Resource,
		SubjectID: sub.SubjectID,
		Count:     count,
		Limit:     quota.MaxRequests,
		Limited:   !res.Allowed,
		At:        e.now(),
	})
	return res, nil
}

// Status reports the subject's current window without consuming quota.
// Unlike Check, the boundary is strict: Allowed answers "is there room for
// one more request", so at exactly the limit Status reports false even though
// the check that reached the limit was itself allowed.
func (e *Engine) Status(ctx context.Context, sub Subject) (Result, error) {
	quota, err := e.resolver.Resolve(ctx, sub.TenantID)
	if err != nil {
		return Result{}, err
	}
	key := CounterKey(sub.TenantID, quota.ConfigID, sub.Resource, sub.SubjectID)

	count, ok, err := e.store.Get(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("read counter: %w", err)
	}
	if !ok {
		count = 0
	}

	ttl, err := e.store.TTL(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("read window ttl: %w", err)
	}

	res := Result{
		Allowed:   count < quota.MaxRequests,
		Remaining: remaining(quota.MaxRequests, count),
		Limit:     quota.MaxRequests,
		ResetIn:   ttl,
	}
	// A counter with no TTL reports a zero reset time: no active window.
	if ttl > 0 {
		res.ResetAt = e.now().Add(ttl)
	}
	return res, nil
}

// Reset deletes the subject's current counter so the next check starts a
// fresh window. Resetting an absent counter is a no-op.
func (e *Engine) Reset(ctx context.Context, sub Subject) error {
	quota, err := e.resolver.Resolve(ctx, sub.TenantID)
	if err != nil {
		return err
	}
	key := CounterKey(sub.TenantID, quota.ConfigID, sub.Resource, sub.SubjectID)
	if err := e.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete counter: %w", err)
	}
	return nil
}

func (e *Engine) record(ev CheckEvent) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("check recorder panicked", "tenant", ev.TenantID, "panic", r)
		}
	}()
	e.recorder.RecordCheck(ev)
}

func remaining(limit, count int64) int64 {
	if count >= limit {
		return 0
	}
	return limit - count
}
