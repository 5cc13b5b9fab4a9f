package limiter

// NoopCheckRecorder discards every event. It is the engine's default recorder
// so the hot path never has to check for nil.
type NoopCheckRecorder struct{}

func (NoopCheckRecorder) RecordCheck(ev CheckEvent) {}
