package events

import "log/slog"

// Event represents a structured state change emitted by the marketplace
// engines during a transition.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while
// discarding all events. It is useful when a component wants to optionally
// expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// LogEmitter writes every event to the supplied structured logger.
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter returns an emitter backed by logger. A nil logger falls back
// to the process default.
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

// Emit implements the Emitter interface.
func (e *LogEmitter) Emit(evt Event) {
	if e == nil || e.logger == nil {
		return
	}
	args := make([]any, 0, len(evt.Attributes)*2)
	for k, v := range evt.Attributes {
		args = append(args, slog.String(k, v))
	}
	e.logger.Info(evt.Type, args...)
}
