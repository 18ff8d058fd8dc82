// Package integration exercises the full bridge, bus, and collector pipeline.
package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/quartzlab/pulsebus/internal/bridge"
	"github.com/quartzlab/pulsebus/internal/bus"
	"github.com/quartzlab/pulsebus/internal/schema"
	"github.com/quartzlab/pulsebus/internal/telemetry"
)

func TestConcurrentWorkflowLifecyclesReachCollector(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stateFile := filepath.Join(t.TempDir(), "telemetry.json")
	collector := telemetry.New(telemetry.Config{
		StateFile:  stateFile,
		MaxHistory: 50,
	})

	eventBus := bus.New(bus.Config{})
	defer eventBus.Close()

	_, err := eventBus.SubscribeAll(collector.HandleEvent,
		bus.WithMaxConcurrent(3),
		bus.WithDescription("telemetry collector"))
	require.NoError(t, err)

	workflowBridge := bridge.New(eventBus, "workflow")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			runID := fmt.Sprintf("run-%d", n)
			require.NoError(t, workflowBridge.OnWorkflowStarted(ctx, runID, map[string]any{"index": n}))
			require.NoError(t, workflowBridge.OnStepStarted(ctx, "config", "Load configuration", nil))
			require.NoError(t, workflowBridge.OnStepCompleted(ctx, "config", "Load configuration", map[string]any{"ok": true}, 0.05))
			require.NoError(t, workflowBridge.OnWorkflowCompleted(ctx, runID, map[string]any{"ok": true}, 0.1))
		}(i)
	}
	wg.Wait()

	snap := collector.Snapshot()
	require.Equal(t, int64(5), snap.Counts[string(schema.EventTypeWorkflowStarted)])
	require.Equal(t, int64(5), snap.Counts[string(schema.EventTypeWorkflowCompleted)])
	require.Equal(t, int64(5), snap.Counts[string(schema.EventTypeConfigStarted)])
	require.Equal(t, int64(5), snap.Counts[string(schema.EventTypeConfigCompleted)])
	require.Equal(t, int64(20), snap.TotalEvents())
	require.Nil(t, snap.LastError)

	require.NoError(t, collector.Shutdown(ctx))

	data, err := os.ReadFile(stateFile)
	require.NoError(t, err)

	var persisted struct {
		Counts map[string]int64 `json:"counts"`
	}
	require.NoError(t, json.Unmarshal(data, &persisted))
	require.Equal(t, int64(5), persisted.Counts[string(schema.EventTypeWorkflowCompleted)])
}

func TestFailedWorkflowRecordsLastErrorAndRollup(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dir := t.TempDir()
	rollupFile := filepath.Join(dir, "rollup.jsonl")
	collector := telemetry.New(telemetry.Config{
		RollupFile:     rollupFile,
		RollupInterval: 20 * time.Millisecond,
	})

	eventBus := bus.New(bus.Config{})
	defer eventBus.Close()

	_, err := eventBus.SubscribeAll(collector.HandleEvent, bus.WithDescription("telemetry collector"))
	require.NoError(t, err)

	workflowBridge := bridge.New(eventBus, "workflow")

	require.NoError(t, workflowBridge.OnWorkflowStarted(ctx, "run-err", nil))
	require.NoError(t, workflowBridge.OnStepFailed(ctx, "quality.checks", "Quality checks", "lint exited 1", 0.1))
	require.NoError(t, workflowBridge.OnWorkflowFailed(ctx, "run-err", "lint exited 1", 0.2))

	snap := collector.Snapshot()
	require.NotNil(t, snap.LastError)
	require.Equal(t, string(schema.EventTypeWorkflowFailed), snap.LastError.EventType)

	require.Eventually(t, func() bool {
		data, readErr := os.ReadFile(rollupFile)
		return readErr == nil && len(data) > 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, collector.Shutdown(ctx))

	data, err := os.ReadFile(rollupFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.GreaterOrEqual(t, len(lines), 1)

	var entry schema.RollupEntry
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	require.Equal(t, int64(1), entry.Counts[string(schema.EventTypeWorkflowFailed)])
}

func TestRetryingSubscriberEventuallyObservesEvent(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	eventBus := bus.New(bus.Config{})
	defer eventBus.Close()

	var mu sync.Mutex
	attempts := 0
	_, err := eventBus.Subscribe(schema.EventTypeWorkflowCompleted,
		func(ctx context.Context, evt *schema.EventEnvelope) (schema.HandlerResult, error) {
			mu.Lock()
			attempts++
			failing := attempts < 3
			mu.Unlock()
			if failing {
				return schema.HandlerResult{}, fmt.Errorf("transient sink outage")
			}
			return schema.HandlerResult{Success: true}, nil
		},
		bus.WithMaxRetries(3),
		bus.WithRetryBackoff(time.Millisecond))
	require.NoError(t, err)

	workflowBridge := bridge.New(eventBus, "workflow")
	require.NoError(t, workflowBridge.OnWorkflowCompleted(ctx, "run-retry", nil, 0.05))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 3, attempts)
}
