// Package schema defines the canonical event envelope, handler results, and
// telemetry record shapes shared across the pulsebus stack.
package schema

import (
	"strings"
	"time"

	"github.com/quartzlab/pulsebus/errs"
)

// EventType identifies a workflow taxonomy point on the bus.
type EventType string

// EventTypeWildcard subscribes to every event type.
const EventTypeWildcard EventType = ""

// EventEnvelope is the immutable record delivered to subscribers. The bus
// assigns Timestamp at publish time; Payload and Metadata are treated as
// read-only by convention and are never mutated after construction.
type EventEnvelope struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	Payload   map[string]any `json:"payload"`
	Metadata  map[string]any `json:"metadata"`
}

// NewEnvelope stamps a fresh envelope for the given taxonomy point.
func NewEnvelope(typ EventType, payload map[string]any, source string, metadata map[string]any) (*EventEnvelope, error) {
	trimmed := EventType(strings.TrimSpace(string(typ)))
	if trimmed == EventTypeWildcard {
		return nil, errs.New("schema/envelope", errs.CodeInvalid, errs.WithMessage("event type required"))
	}
	return &EventEnvelope{
		Type:      trimmed,
		Timestamp: time.Now().UTC(),
		Source:    strings.TrimSpace(source),
		Payload:   payload,
		Metadata:  metadata,
	}, nil
}

// HandlerResult reports the outcome of one handler invocation.
type HandlerResult struct {
	Success  bool           `json:"success"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SkippedResult marks a delivery suppressed by a subscription predicate.
func SkippedResult() HandlerResult {
	return HandlerResult{Success: true, Metadata: map[string]any{"skipped": true}}
}

// Skipped reports whether the result came from a predicate gate.
func (r HandlerResult) Skipped() bool {
	if r.Metadata == nil {
		return false
	}
	skipped, ok := r.Metadata["skipped"].(bool)
	return ok && skipped
}

// DispatchResult aggregates per-subscription outcomes for one published event.
// Results are ordered by subscription registration order among the matches.
type DispatchResult struct {
	Event   *EventEnvelope  `json:"event"`
	Results []HandlerResult `json:"results"`
}
