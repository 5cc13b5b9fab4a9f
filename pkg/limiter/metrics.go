package limiter

import "time"

// CheckEvent describes one consuming admission check, emitted after the
// decision is finalized.
type CheckEvent struct {
	TenantID  string
	Resource  string
	SubjectID string

	// Count is the post-increment counter value the check observed.
	Count int64

	// Limit is the resolved quota's MaxRequests.
	Limit int64

	// Limited is true when the check was denied.
	Limited bool

	At time.Time
}

// CheckRecorder receives one event per Check call. Implementations must not
// block: recording happens on the admission hot path, after the decision, and
// a slow or failing recorder must never delay or fail the caller. Recorders
// that do real I/O should buffer and write in the background.
type CheckRecorder interface {
	RecordCheck(ev CheckEvent)
}
