package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tenantgate/tenantgate/pkg/limiter"
)

const (
	defaultSinkBuffer = 1024
	sinkInsertTimeout = 5 * time.Second
)

// CheckSink persists engine check events asynchronously. It satisfies
// limiter.CheckRecorder: RecordCheck enqueues and returns immediately, a
// background goroutine does the inserts, and a full buffer drops the event
// rather than stall an admission decision. Insert failures are logged, never
// surfaced.
type CheckSink struct {
	store  *Store
	logger *slog.Logger

	events chan limiter.CheckEvent
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewCheckSink starts a sink writing to st. buffer <= 0 selects a default.
func NewCheckSink(st *Store, logger *slog.Logger, buffer int) *CheckSink {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = defaultSinkBuffer
	}
	s := &CheckSink{
		store:  st,
		logger: logger,
		events: make(chan limiter.CheckEvent, buffer),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// RecordCheck enqueues one event. Never blocks.
func (s *CheckSink) RecordCheck(ev limiter.CheckEvent) {
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("check metric dropped, sink buffer full", "tenant", ev.TenantID)
	}
}

// Close drains buffered events and stops the writer. Safe to call more than
// once; events recorded after Close are dropped once the buffer detaches.
func (s *CheckSink) Close() {
	s.once.Do(func() {
		close(s.quit)
		<-s.done
	})
}

func (s *CheckSink) run() {
	defer close(s.done)
	for {
		select {
		case ev := <-s.events:
			s.insert(ev)
		case <-s.quit:
			// Drain whatever made it into the buffer before shutdown.
			for {
				select {
				case ev := <-s.events:
					s.insert(ev)
				default:
					return
				}
			}
		}
	}
}

func (s *CheckSink) insert(ev limiter.CheckEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), sinkInsertTimeout)
	defer cancel()
	if err := s.store.InsertCheckEvent(ctx, ev); err != nil {
		s.logger.Warn("persist check metric", "tenant", ev.TenantID, "error", err)
	}
}
