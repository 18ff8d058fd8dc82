package bridge

import (
	"context"
	"testing"

	"github.com/quartzlab/pulsebus/internal/schema"
)

type capturingPublisher struct {
	types    []schema.EventType
	payloads []map[string]any
	sources  []string
}

func (p *capturingPublisher) Publish(_ context.Context, typ schema.EventType, payload map[string]any, source string, _ map[string]any) (*schema.DispatchResult, error) {
	p.types = append(p.types, typ)
	p.payloads = append(p.payloads, payload)
	p.sources = append(p.sources, source)
	return &schema.DispatchResult{Results: []schema.HandlerResult{}}, nil
}

func TestWorkflowLifecycleTranslation(t *testing.T) {
	pub := &capturingPublisher{}
	b := New(pub, "orchestrator")
	ctx := context.Background()

	if err := b.OnWorkflowStarted(ctx, "wf-1", map[string]any{"branch": "main"}); err != nil {
		t.Fatalf("started: %v", err)
	}
	if err := b.OnWorkflowCompleted(ctx, "wf-1", map[string]any{"passed": true}, 1.5); err != nil {
		t.Fatalf("completed: %v", err)
	}
	if err := b.OnWorkflowFailed(ctx, "wf-2", "tests failed", 0.7); err != nil {
		t.Fatalf("failed: %v", err)
	}

	want := []schema.EventType{
		schema.EventTypeWorkflowStarted,
		schema.EventTypeWorkflowCompleted,
		schema.EventTypeWorkflowFailed,
	}
	for i, typ := range want {
		if pub.types[i] != typ {
			t.Fatalf("call %d: expected %s, got %s", i, typ, pub.types[i])
		}
		if pub.sources[i] != "orchestrator" {
			t.Fatalf("call %d: unexpected source %q", i, pub.sources[i])
		}
	}
	if pub.payloads[0]["workflow_id"] != "wf-1" {
		t.Fatalf("expected workflow id in payload, got %+v", pub.payloads[0])
	}
	if pub.payloads[1]["duration_seconds"] != 1.5 {
		t.Fatalf("expected duration in payload, got %+v", pub.payloads[1])
	}
	if pub.payloads[2]["error"] != "tests failed" {
		t.Fatalf("expected error in payload, got %+v", pub.payloads[2])
	}
}

func TestStepTranslationUsesTaxonomyTable(t *testing.T) {
	pub := &capturingPublisher{}
	b := New(pub, "")
	ctx := context.Background()

	cases := []struct {
		stepID string
		want   [3]schema.EventType
	}{
		{"config", [3]schema.EventType{schema.EventTypeConfigStarted, schema.EventTypeConfigCompleted, schema.EventTypeWorkflowFailed}},
		{"hooks.strategy", [3]schema.EventType{schema.EventTypeHookStrategyStarted, schema.EventTypeHookStrategyCompleted, schema.EventTypeHookStrategyFailed}},
		{"hooks.execution", [3]schema.EventType{schema.EventTypeHookExecutionStarted, schema.EventTypeHookExecutionCompleted, schema.EventTypeHookExecutionFailed}},
		{"quality.checks", [3]schema.EventType{schema.EventTypeQualityChecksStarted, schema.EventTypeQualityChecksCompleted, schema.EventTypeQualityChecksFailed}},
	}

	for _, tc := range cases {
		pub.types = nil
		if err := b.OnStepStarted(ctx, tc.stepID, tc.stepID, nil); err != nil {
			t.Fatalf("%s started: %v", tc.stepID, err)
		}
		if err := b.OnStepCompleted(ctx, tc.stepID, tc.stepID, nil, 0.1); err != nil {
			t.Fatalf("%s completed: %v", tc.stepID, err)
		}
		if err := b.OnStepFailed(ctx, tc.stepID, tc.stepID, "boom", 0.1); err != nil {
			t.Fatalf("%s failed: %v", tc.stepID, err)
		}
		for i := 0; i < 3; i++ {
			if pub.types[i] != tc.want[i] {
				t.Fatalf("step %s call %d: expected %s, got %s", tc.stepID, i, tc.want[i], pub.types[i])
			}
		}
	}
}

func TestUnmappedStepFallsBackToPhasePair(t *testing.T) {
	pub := &capturingPublisher{}
	b := New(pub, "")
	ctx := context.Background()

	b.OnStepStarted(ctx, "custom.analysis", "Custom Analysis", nil)
	b.OnStepCompleted(ctx, "custom.analysis", "Custom Analysis", nil, 2.0)
	b.OnStepFailed(ctx, "custom.analysis", "Custom Analysis", "oops", 2.0)

	want := []schema.EventType{
		schema.EventTypePhaseStarted,
		schema.EventTypePhaseCompleted,
		schema.EventTypePhaseFailed,
	}
	for i, typ := range want {
		if pub.types[i] != typ {
			t.Fatalf("call %d: expected %s, got %s", i, typ, pub.types[i])
		}
	}
	if pub.payloads[0]["step_id"] != "custom.analysis" || pub.payloads[0]["step_name"] != "Custom Analysis" {
		t.Fatalf("expected step identity in payload, got %+v", pub.payloads[0])
	}
	if pub.sources[0] != "workflow" {
		t.Fatalf("expected default source, got %q", pub.sources[0])
	}
}
