package schema

// Workflow lifecycle taxonomy published by quality, hook, and test phases.
const (
	EventTypeWorkflowStarted   EventType = "workflow.started"
	EventTypeWorkflowCompleted EventType = "workflow.completed"
	EventTypeWorkflowFailed    EventType = "workflow.failed"

	EventTypeConfigStarted   EventType = "workflow.config.started"
	EventTypeConfigCompleted EventType = "workflow.config.completed"

	EventTypeHookStrategyStarted   EventType = "hooks.strategy.started"
	EventTypeHookStrategyCompleted EventType = "hooks.strategy.completed"
	EventTypeHookStrategyFailed    EventType = "hooks.strategy.failed"

	EventTypeHookExecutionStarted   EventType = "hooks.execution.started"
	EventTypeHookExecutionCompleted EventType = "hooks.execution.completed"
	EventTypeHookExecutionFailed    EventType = "hooks.execution.failed"

	EventTypeQualityChecksStarted   EventType = "quality.checks.started"
	EventTypeQualityChecksCompleted EventType = "quality.checks.completed"
	EventTypeQualityChecksFailed    EventType = "quality.checks.failed"

	// Fallback pair for steps without a dedicated taxonomy point.
	EventTypePhaseStarted   EventType = "workflow.phase.started"
	EventTypePhaseCompleted EventType = "workflow.phase.completed"
	EventTypePhaseFailed    EventType = "workflow.phase.failed"
)
