package bus

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/quartzlab/pulsebus/internal/schema"
)

// SubscriptionID uniquely identifies a bus subscription. IDs are never
// reused for the lifetime of the bus.
type SubscriptionID string

// Handler processes one delivered envelope. A nil error means the delivery
// succeeded; a non-nil error is retried according to the subscription's
// retry policy before being converted into a failed HandlerResult.
type Handler func(ctx context.Context, evt *schema.EventEnvelope) (schema.HandlerResult, error)

// Predicate gates delivery per event. Returning false skips the handler
// without consuming a retry attempt.
type Predicate func(evt *schema.EventEnvelope) bool

// SubscriptionInfo is the read-only view returned by ListSubscriptions.
type SubscriptionInfo struct {
	ID            SubscriptionID
	EventType     schema.EventType
	Description   string
	MaxConcurrent int
}

// subscription is the registry-owned record for one subscriber. The
// semaphore bounds in-flight handler invocations at maxConcurrent.
type subscription struct {
	id            SubscriptionID
	eventType     schema.EventType
	handler       Handler
	predicate     Predicate
	maxConcurrent int
	maxRetries    int
	retryBackoff  time.Duration
	description   string
	seq           uint64
	sem           *semaphore.Weighted
}

// newDeliveryGate builds the counting semaphore bounding in-flight handler
// invocations. Waiters are served in FIFO order, which keeps deliveries to
// one subscription in publish order.
func newDeliveryGate(maxConcurrent int) *semaphore.Weighted {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return semaphore.NewWeighted(int64(maxConcurrent))
}

func (s *subscription) info() SubscriptionInfo {
	return SubscriptionInfo{
		ID:            s.id,
		EventType:     s.eventType,
		Description:   s.description,
		MaxConcurrent: s.maxConcurrent,
	}
}

// SubscribeOption configures a subscription at registration time.
type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	predicate     Predicate
	maxConcurrent int
	maxRetries    int
	retryBackoff  time.Duration
	backoffSet    bool
	description   string
}

// WithPredicate gates delivery with the provided filter.
func WithPredicate(predicate Predicate) SubscribeOption {
	return func(o *subscribeOptions) {
		o.predicate = predicate
	}
}

// WithMaxConcurrent bounds concurrent handler invocations for the
// subscription. Values below 1 fall back to 1.
func WithMaxConcurrent(n int) SubscribeOption {
	return func(o *subscribeOptions) {
		o.maxConcurrent = n
	}
}

// WithMaxRetries sets how many times a failing handler is re-invoked.
// Negative values fall back to 0.
func WithMaxRetries(n int) SubscribeOption {
	return func(o *subscribeOptions) {
		o.maxRetries = n
	}
}

// WithRetryBackoff sets the base delay before the first retry; the delay
// doubles on each subsequent attempt.
func WithRetryBackoff(d time.Duration) SubscribeOption {
	return func(o *subscribeOptions) {
		o.retryBackoff = d
		o.backoffSet = true
	}
}

// WithDescription attaches a human-readable label carried into logs and
// subscription listings.
func WithDescription(description string) SubscribeOption {
	return func(o *subscribeOptions) {
		o.description = description
	}
}
