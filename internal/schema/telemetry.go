package schema

import "time"

// HistoryEntry is one remembered event in the telemetry ring buffer.
// Timestamps are serialized as ISO-8601 strings to keep the state file
// readable by dashboard tooling.
type HistoryEntry struct {
	EventType string         `json:"event_type"`
	Timestamp string         `json:"timestamp"`
	Source    string         `json:"source"`
	Payload   map[string]any `json:"payload"`
}

// HistoryEntryFromEnvelope flattens an envelope into its history form.
func HistoryEntryFromEnvelope(evt *EventEnvelope) HistoryEntry {
	if evt == nil {
		return HistoryEntry{}
	}
	return HistoryEntry{
		EventType: string(evt.Type),
		Timestamp: evt.Timestamp.UTC().Format(time.RFC3339Nano),
		Source:    evt.Source,
		Payload:   evt.Payload,
	}
}

// TelemetrySnapshot is a point-in-time aggregate of observed events.
type TelemetrySnapshot struct {
	Counts       map[string]int64 `json:"counts"`
	RecentEvents []HistoryEntry   `json:"recent_events"`
	LastError    *HistoryEntry    `json:"last_error"`
}

// TotalEvents sums every per-type counter.
func (s TelemetrySnapshot) TotalEvents() int64 {
	var total int64
	for _, n := range s.Counts {
		total += n
	}
	return total
}

// RollupEntry is one append-only line in the longitudinal rollup file.
type RollupEntry struct {
	Timestamp   string           `json:"timestamp"`
	Counts      map[string]int64 `json:"counts"`
	TotalEvents int64            `json:"total_events"`
	LastError   *HistoryEntry    `json:"last_error"`
}
