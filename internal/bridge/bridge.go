// Package bridge translates generic step lifecycle calls from workflow
// orchestration into the bus's event taxonomy. The bridge is stateless; it
// owns no goroutines and no locks.
package bridge

import (
	"context"

	"github.com/quartzlab/pulsebus/internal/schema"
)

// Publisher is the slice of the event bus the bridge needs.
type Publisher interface {
	Publish(ctx context.Context, eventType schema.EventType, payload map[string]any, source string, metadata map[string]any) (*schema.DispatchResult, error)
}

// stepTaxonomy maps a step id onto its started/completed/failed taxonomy
// triple. Steps without an entry fall back to the generic phase pair.
type stepTaxonomy struct {
	started   schema.EventType
	completed schema.EventType
	failed    schema.EventType
}

var stepTypes = map[string]stepTaxonomy{
	"config": {
		started:   schema.EventTypeConfigStarted,
		completed: schema.EventTypeConfigCompleted,
		failed:    schema.EventTypeWorkflowFailed,
	},
	"hooks.strategy": {
		started:   schema.EventTypeHookStrategyStarted,
		completed: schema.EventTypeHookStrategyCompleted,
		failed:    schema.EventTypeHookStrategyFailed,
	},
	"hooks.execution": {
		started:   schema.EventTypeHookExecutionStarted,
		completed: schema.EventTypeHookExecutionCompleted,
		failed:    schema.EventTypeHookExecutionFailed,
	},
	"quality.checks": {
		started:   schema.EventTypeQualityChecksStarted,
		completed: schema.EventTypeQualityChecksCompleted,
		failed:    schema.EventTypeQualityChecksFailed,
	},
}

var fallbackTypes = stepTaxonomy{
	started:   schema.EventTypePhaseStarted,
	completed: schema.EventTypePhaseCompleted,
	failed:    schema.EventTypePhaseFailed,
}

// Bridge adapts workflow/step lifecycle notifications onto the bus.
type Bridge struct {
	bus    Publisher
	source string
}

// New wires a bridge to the given publisher. Events carry source as their
// envelope source; empty defaults to "workflow".
func New(bus Publisher, source string) *Bridge {
	if source == "" {
		source = "workflow"
	}
	return &Bridge{bus: bus, source: source}
}

// OnWorkflowStarted reports the beginning of a workflow run.
func (b *Bridge) OnWorkflowStarted(ctx context.Context, workflowID string, workflowCtx map[string]any) error {
	return b.publish(ctx, schema.EventTypeWorkflowStarted, map[string]any{
		"workflow_id": workflowID,
		"context":     workflowCtx,
	})
}

// OnWorkflowCompleted reports a successful workflow run.
func (b *Bridge) OnWorkflowCompleted(ctx context.Context, workflowID string, result map[string]any, durationSeconds float64) error {
	return b.publish(ctx, schema.EventTypeWorkflowCompleted, map[string]any{
		"workflow_id":      workflowID,
		"result":           result,
		"duration_seconds": durationSeconds,
	})
}

// OnWorkflowFailed reports a failed workflow run.
func (b *Bridge) OnWorkflowFailed(ctx context.Context, workflowID string, failure string, durationSeconds float64) error {
	return b.publish(ctx, schema.EventTypeWorkflowFailed, map[string]any{
		"workflow_id":      workflowID,
		"error":            failure,
		"duration_seconds": durationSeconds,
	})
}

// OnStepStarted reports the beginning of one workflow step.
func (b *Bridge) OnStepStarted(ctx context.Context, stepID, stepName string, stepCtx map[string]any) error {
	return b.publish(ctx, taxonomyFor(stepID).started, map[string]any{
		"step_id":   stepID,
		"step_name": stepName,
		"context":   stepCtx,
	})
}

// OnStepCompleted reports a successful workflow step.
func (b *Bridge) OnStepCompleted(ctx context.Context, stepID, stepName string, result map[string]any, durationSeconds float64) error {
	return b.publish(ctx, taxonomyFor(stepID).completed, map[string]any{
		"step_id":          stepID,
		"step_name":        stepName,
		"result":           result,
		"duration_seconds": durationSeconds,
	})
}

// OnStepFailed reports a failed workflow step.
func (b *Bridge) OnStepFailed(ctx context.Context, stepID, stepName string, failure string, durationSeconds float64) error {
	return b.publish(ctx, taxonomyFor(stepID).failed, map[string]any{
		"step_id":          stepID,
		"step_name":        stepName,
		"error":            failure,
		"duration_seconds": durationSeconds,
	})
}

func (b *Bridge) publish(ctx context.Context, typ schema.EventType, payload map[string]any) error {
	_, err := b.bus.Publish(ctx, typ, payload, b.source, nil)
	return err
}

func taxonomyFor(stepID string) stepTaxonomy {
	if taxonomy, ok := stepTypes[stepID]; ok {
		return taxonomy
	}
	return fallbackTypes
}
