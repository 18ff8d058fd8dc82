// Package telemetry aggregates workflow events observed on the bus into
// counts, bounded history, and last-error state, and owns the background
// tasks that persist snapshots and append periodic rollups.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/quartzlab/pulsebus/internal/observability"
	"github.com/quartzlab/pulsebus/internal/schema"
)

const (
	defaultMaxHistory     = 200
	defaultRollupInterval = time.Minute
)

// Config tunes the collector. Empty StateFile disables snapshot
// persistence; empty RollupFile disables the rollup loop.
type Config struct {
	StateFile      string
	RollupFile     string
	MaxHistory     int
	RollupInterval time.Duration
}

func (c Config) normalize() Config {
	if c.MaxHistory <= 0 {
		c.MaxHistory = defaultMaxHistory
	}
	if c.RollupInterval <= 0 {
		c.RollupInterval = defaultRollupInterval
	}
	return c
}

// Collector is a wildcard subscriber that aggregates event statistics.
// Wire it with bus.SubscribeAll(collector.HandleEvent, ...). Background
// tasks start lazily on the first event and stop in Shutdown.
type Collector struct {
	cfg Config

	mu        sync.Mutex
	counts    map[string]int64
	history   []schema.HistoryEntry
	lastError *schema.HistoryEntry

	persistPending bool
	closed         bool

	rollupOnce   sync.Once
	workerCtx    context.Context
	workerCancel context.CancelFunc
	workerWG     sync.WaitGroup

	observedCounter metric.Int64Counter
	persistFailures metric.Int64Counter
	rollupWrites    metric.Int64Counter
}

// New constructs a collector. The collector owns its background tasks; the
// caller owns calling Shutdown before discarding it.
func New(cfg Config) *Collector {
	ctx, cancel := context.WithCancel(context.Background())
	c := new(Collector)
	c.cfg = cfg.normalize()
	c.counts = make(map[string]int64)
	c.history = make([]schema.HistoryEntry, 0, c.cfg.MaxHistory)
	c.workerCtx = ctx
	c.workerCancel = cancel

	meter := otel.Meter("pulsebus/telemetry")
	c.observedCounter, _ = meter.Int64Counter("telemetry.events.observed",
		metric.WithDescription("Number of events aggregated by the collector"),
		metric.WithUnit("{event}"))
	c.persistFailures, _ = meter.Int64Counter("telemetry.persist.failures",
		metric.WithDescription("Number of failed state-file writes"),
		metric.WithUnit("{error}"))
	c.rollupWrites, _ = meter.Int64Counter("telemetry.rollup.writes",
		metric.WithDescription("Number of rollup lines appended"),
		metric.WithUnit("{write}"))

	return c
}

// HandleEvent is the bus.Handler entry point. It mutates aggregate state
// under the collector lock, schedules a debounced persist, and ensures the
// rollup loop is running. Always succeeds.
func (c *Collector) HandleEvent(ctx context.Context, evt *schema.EventEnvelope) (schema.HandlerResult, error) {
	if evt == nil {
		return schema.HandlerResult{Success: true}, nil
	}
	entry := schema.HistoryEntryFromEnvelope(evt)

	c.mu.Lock()
	c.counts[string(evt.Type)]++
	c.history = append(c.history, entry)
	if len(c.history) > c.cfg.MaxHistory {
		// FIFO eviction; reslice-and-copy keeps the backing array from
		// pinning evicted payloads.
		trimmed := make([]schema.HistoryEntry, c.cfg.MaxHistory)
		copy(trimmed, c.history[len(c.history)-c.cfg.MaxHistory:])
		c.history = trimmed
	}
	if evt.Type == schema.EventTypeWorkflowFailed {
		errEntry := entry
		c.lastError = &errEntry
	}
	schedulePersist := c.cfg.StateFile != "" && !c.persistPending && !c.closed
	if schedulePersist {
		c.persistPending = true
		c.workerWG.Add(1)
	}
	c.mu.Unlock()

	if c.observedCounter != nil {
		c.observedCounter.Add(ctx, 1,
			metric.WithAttributes(observability.EventAttributes(string(evt.Type), evt.Source)...))
	}

	if schedulePersist {
		go c.persistOnce()
	}
	c.ensureRollupLoop()

	return schema.HandlerResult{Success: true}, nil
}

// Snapshot returns a deep, independent copy of the aggregate state.
func (c *Collector) Snapshot() schema.TelemetrySnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	counts := make(map[string]int64, len(c.counts))
	for k, v := range c.counts {
		counts[k] = v
	}
	recent := make([]schema.HistoryEntry, len(c.history))
	for i, entry := range c.history {
		recent[i] = copyHistoryEntry(entry)
	}
	var lastError *schema.HistoryEntry
	if c.lastError != nil {
		copied := copyHistoryEntry(*c.lastError)
		lastError = &copied
	}
	return schema.TelemetrySnapshot{Counts: counts, RecentEvents: recent, LastError: lastError}
}

// Reset clears all aggregate state and best-effort deletes the state file.
func (c *Collector) Reset() {
	c.mu.Lock()
	c.counts = make(map[string]int64)
	c.history = c.history[:0]
	c.lastError = nil
	c.mu.Unlock()

	c.removeStateFile()
}

// Shutdown cancels the persistence and rollup tasks and waits for them to
// finish, bounded by ctx. No background work survives a completed Shutdown.
func (c *Collector) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.workerCancel()

	done := make(chan struct{})
	go func() {
		c.workerWG.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func copyHistoryEntry(entry schema.HistoryEntry) schema.HistoryEntry {
	copied := entry
	if entry.Payload != nil {
		payload := make(map[string]any, len(entry.Payload))
		for k, v := range entry.Payload {
			payload[k] = v
		}
		copied.Payload = payload
	}
	return copied
}
