// Package producer emits synthetic workflow lifecycles through the event
// bridge. It exists for demos and load generation so dashboards and
// telemetry can be exercised without a real quality pipeline attached.
package producer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/quartzlab/pulsebus/internal/bridge"
	"github.com/quartzlab/pulsebus/internal/observability"
)

// Config tunes the synthetic workload.
type Config struct {
	// WorkflowsPerSecond paces full workflow runs. Default: 1.
	WorkflowsPerSecond float64
	// Steps lists the step ids executed per run, in order.
	Steps []string
	// FailEvery injects a step failure on every Nth run; 0 disables
	// failure injection. Deterministic by run counter, not random.
	FailEvery int
}

func (c Config) normalize() Config {
	if c.WorkflowsPerSecond <= 0 {
		c.WorkflowsPerSecond = 1
	}
	if len(c.Steps) == 0 {
		c.Steps = []string{"config", "hooks.strategy", "hooks.execution", "quality.checks"}
	}
	if c.FailEvery < 0 {
		c.FailEvery = 0
	}
	return c
}

// Producer drives workflow lifecycles through a bridge at a bounded rate.
type Producer struct {
	cfg     Config
	bridge  *bridge.Bridge
	limiter *rate.Limiter
	runs    int
}

// New constructs a producer over the given bridge.
func New(b *bridge.Bridge, cfg Config) *Producer {
	cfg = cfg.normalize()
	return &Producer{
		cfg:     cfg,
		bridge:  b,
		limiter: rate.NewLimiter(rate.Limit(cfg.WorkflowsPerSecond), 1),
	}
}

// Run emits workflow lifecycles until ctx is cancelled.
func (p *Producer) Run(ctx context.Context) error {
	for {
		if err := p.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := p.emitWorkflow(ctx); err != nil {
			observability.Log().Error("synthetic workflow emission failed",
				observability.F("error", err))
		}
	}
}

// EmitWorkflow publishes one complete workflow lifecycle immediately,
// bypassing the rate limiter. Used by tests and one-shot tooling.
func (p *Producer) EmitWorkflow(ctx context.Context) error {
	return p.emitWorkflow(ctx)
}

func (p *Producer) emitWorkflow(ctx context.Context) error {
	p.runs++
	failRun := p.cfg.FailEvery > 0 && p.runs%p.cfg.FailEvery == 0

	workflowID := "wf-" + uuid.NewString()
	start := time.Now()
	if err := p.bridge.OnWorkflowStarted(ctx, workflowID, map[string]any{"run": p.runs}); err != nil {
		return err
	}

	for i, stepID := range p.cfg.Steps {
		stepStart := time.Now()
		stepName := fmt.Sprintf("step %d (%s)", i+1, stepID)
		if err := p.bridge.OnStepStarted(ctx, stepID, stepName, nil); err != nil {
			return err
		}
		// Inject the failure on the last step so earlier steps complete.
		if failRun && i == len(p.cfg.Steps)-1 {
			if err := p.bridge.OnStepFailed(ctx, stepID, stepName, "injected failure", time.Since(stepStart).Seconds()); err != nil {
				return err
			}
			return p.bridge.OnWorkflowFailed(ctx, workflowID, "injected failure", time.Since(start).Seconds())
		}
		if err := p.bridge.OnStepCompleted(ctx, stepID, stepName, map[string]any{"ok": true}, time.Since(stepStart).Seconds()); err != nil {
			return err
		}
	}

	return p.bridge.OnWorkflowCompleted(ctx, workflowID, map[string]any{"success": true}, time.Since(start).Seconds())
}
