// Package bus implements the in-process workflow event bus: a subscription
// registry plus a dispatcher that fans published envelopes out to matching
// handlers under per-subscription concurrency and retry policies.
package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/quartzlab/pulsebus/errs"
	"github.com/quartzlab/pulsebus/internal/observability"
	"github.com/quartzlab/pulsebus/internal/schema"
)

// Config tunes bus-wide defaults.
type Config struct {
	// DefaultRetryBackoff is the base retry delay applied to subscriptions
	// registered without an explicit WithRetryBackoff. Default: 500ms.
	DefaultRetryBackoff time.Duration
}

func (c Config) normalize() Config {
	if c.DefaultRetryBackoff <= 0 {
		c.DefaultRetryBackoff = 500 * time.Millisecond
	}
	return c
}

// Bus delivers workflow events to interested subscribers. Handler failures
// are retried per subscription policy and captured into the DispatchResult;
// Publish never returns an error caused by a subscriber.
type Bus struct {
	cfg Config
	reg *registry

	closed atomic.Bool

	loggingMu sync.Mutex
	loggingID SubscriptionID

	eventsPublishedCounter metric.Int64Counter
	subscriberGauge        metric.Int64UpDownCounter
	deliveryErrorCounter   metric.Int64Counter
	handlerRetryCounter    metric.Int64Counter
	fanoutHistogram        metric.Int64Histogram
	publishDuration        metric.Float64Histogram
}

// New constructs an event bus. The bus is an explicitly owned object wired
// into producers and consumers by the caller; it lives until Close.
func New(cfg Config) *Bus {
	b := new(Bus)
	b.cfg = cfg.normalize()
	b.reg = newRegistry()

	meter := otel.Meter("pulsebus/bus")
	b.eventsPublishedCounter, _ = meter.Int64Counter("eventbus.events.published",
		metric.WithDescription("Number of events published to the bus"),
		metric.WithUnit("{event}"))
	b.subscriberGauge, _ = meter.Int64UpDownCounter("eventbus.subscribers",
		metric.WithDescription("Number of active subscriptions"),
		metric.WithUnit("{subscription}"))
	b.deliveryErrorCounter, _ = meter.Int64Counter("eventbus.delivery.errors",
		metric.WithDescription("Number of deliveries that failed after exhausting retries"),
		metric.WithUnit("{error}"))
	b.handlerRetryCounter, _ = meter.Int64Counter("eventbus.handler.retries",
		metric.WithDescription("Number of handler retry attempts"),
		metric.WithUnit("{retry}"))
	b.fanoutHistogram, _ = meter.Int64Histogram("eventbus.fanout.size",
		metric.WithDescription("Number of subscriptions matched per publish"),
		metric.WithUnit("{subscription}"))
	b.publishDuration, _ = meter.Float64Histogram("eventbus.publish.duration",
		metric.WithDescription("Latency of publish fan-out including retries"),
		metric.WithUnit("ms"))

	return b
}

// Subscribe registers a handler for the given event type. The wildcard type
// (schema.EventTypeWildcard) receives every event. Returns a fresh ID,
// never reused for the lifetime of the bus.
func (b *Bus) Subscribe(eventType schema.EventType, handler Handler, opts ...SubscribeOption) (SubscriptionID, error) {
	if b.closed.Load() {
		return "", errs.New("bus/subscribe", errs.CodeUnavailable, errs.WithMessage("bus closed"))
	}
	if handler == nil {
		return "", errs.New("bus/subscribe", errs.CodeInvalid, errs.WithMessage("handler required"))
	}

	options := subscribeOptions{
		predicate:     nil,
		maxConcurrent: 1,
		maxRetries:    0,
		retryBackoff:  b.cfg.DefaultRetryBackoff,
		backoffSet:    false,
		description:   "",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.maxConcurrent < 1 {
		options.maxConcurrent = 1
	}
	if options.maxRetries < 0 {
		options.maxRetries = 0
	}
	if options.backoffSet && options.retryBackoff < 0 {
		options.retryBackoff = b.cfg.DefaultRetryBackoff
	}

	sub := &subscription{
		id:            SubscriptionID("sub-" + uuid.NewString()),
		eventType:     eventType,
		handler:       handler,
		predicate:     options.predicate,
		maxConcurrent: options.maxConcurrent,
		maxRetries:    options.maxRetries,
		retryBackoff:  options.retryBackoff,
		description:   options.description,
		sem:           newDeliveryGate(options.maxConcurrent),
	}
	b.reg.add(sub)

	if b.subscriberGauge != nil {
		b.subscriberGauge.Add(context.Background(), 1, metric.WithAttributes(
			observability.AttrEnvironment.String(observability.Environment()),
			observability.AttrEventType.String(string(eventType))))
	}
	return sub.id, nil
}

// SubscribeAll registers a wildcard subscription.
func (b *Bus) SubscribeAll(handler Handler, opts ...SubscribeOption) (SubscriptionID, error) {
	return b.Subscribe(schema.EventTypeWildcard, handler, opts...)
}

// Unsubscribe removes the subscription, reporting whether it existed.
// Repeated calls with the same id return false.
func (b *Bus) Unsubscribe(id SubscriptionID) bool {
	removed := b.reg.remove(id)
	if removed && b.subscriberGauge != nil {
		b.subscriberGauge.Add(context.Background(), -1, metric.WithAttributes(
			observability.AttrEnvironment.String(observability.Environment())))
	}
	return removed
}

// ListSubscriptions returns a read-only snapshot of active subscriptions.
func (b *Bus) ListSubscriptions() []SubscriptionInfo {
	return b.reg.list()
}

// Publish stamps an envelope and fans it out to every matching
// subscription, waiting for all deliveries (including retries) before
// returning one HandlerResult per match in registration order. Publishing
// with no matching subscribers is not an error. Handler and persistence
// failures never surface here; only bookkeeping defects do.
func (b *Bus) Publish(ctx context.Context, eventType schema.EventType, payload map[string]any, source string, metadata map[string]any) (*schema.DispatchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.closed.Load() {
		return nil, errs.New("bus/publish", errs.CodeUnavailable, errs.WithMessage("bus closed"))
	}

	evt, err := schema.NewEnvelope(eventType, payload, source, metadata)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		if b.publishDuration != nil {
			b.publishDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
				metric.WithAttributes(observability.EventAttributes(string(evt.Type), evt.Source)...))
		}
	}()

	matches := b.reg.resolve(evt.Type)
	if b.fanoutHistogram != nil {
		b.fanoutHistogram.Record(ctx, int64(len(matches)),
			metric.WithAttributes(observability.EventAttributes(string(evt.Type), evt.Source)...))
	}
	if b.eventsPublishedCounter != nil {
		b.eventsPublishedCounter.Add(ctx, 1,
			metric.WithAttributes(observability.EventAttributes(string(evt.Type), evt.Source)...))
	}

	results := make([]schema.HandlerResult, len(matches))
	if len(matches) == 0 {
		return &schema.DispatchResult{Event: evt, Results: results}, nil
	}

	// Independent task per match: a saturated subscription must never
	// block delivery to its siblings.
	var wg conc.WaitGroup
	for idx, match := range matches {
		i := idx
		sub := match
		wg.Go(func() {
			results[i] = b.deliver(ctx, sub, evt)
		})
	}
	wg.Wait()

	return &schema.DispatchResult{Event: evt, Results: results}, nil
}

// RegisterLoggingHandler installs a single wildcard debug-logging
// subscription. Calls after the first are no-ops.
func (b *Bus) RegisterLoggingHandler() SubscriptionID {
	b.loggingMu.Lock()
	defer b.loggingMu.Unlock()
	if b.loggingID != "" {
		return b.loggingID
	}
	id, err := b.SubscribeAll(func(_ context.Context, evt *schema.EventEnvelope) (schema.HandlerResult, error) {
		observability.Log().Debug("event published",
			observability.F("type", evt.Type),
			observability.F("source", evt.Source))
		return schema.HandlerResult{Success: true}, nil
	}, WithDescription("wildcard debug logger"))
	if err != nil {
		return ""
	}
	b.loggingID = id
	return id
}

// Close rejects further publishes and drops all subscriptions. In-flight
// Publish calls run to completion; Close does not cancel them.
func (b *Bus) Close() {
	if b.closed.CompareAndSwap(false, true) {
		b.reg.clear()
	}
}

// deliver runs the per-(event, subscription) state machine: predicate gate,
// semaphore acquisition, handler invocation with retry/backoff, terminal
// result conversion.
func (b *Bus) deliver(ctx context.Context, sub *subscription, evt *schema.EventEnvelope) schema.HandlerResult {
	if sub.predicate != nil && !sub.predicate(evt) {
		return schema.SkippedResult()
	}

	if err := sub.sem.Acquire(ctx, 1); err != nil {
		return b.failureResult(ctx, sub, evt, 0, fmt.Errorf("acquire delivery slot: %w", err))
	}
	defer sub.sem.Release(1)

	policy := Policy{Base: sub.retryBackoff}
	seq := policy.Sequence()

	attempts := 0
	for {
		attempts++
		res, err := b.invoke(ctx, sub, evt)
		if err == nil {
			return res
		}
		if attempts > sub.maxRetries {
			return b.failureResult(ctx, sub, evt, attempts, err)
		}

		if b.handlerRetryCounter != nil {
			b.handlerRetryCounter.Add(ctx, 1,
				metric.WithAttributes(observability.DeliveryAttributes(string(evt.Type), string(sub.id), "retry")...))
		}
		delay := seq.Next()
		observability.Log().Warn("handler failed, retrying",
			observability.F("subscription", sub.id),
			observability.F("description", sub.description),
			observability.F("event_type", evt.Type),
			observability.F("attempt", attempts),
			observability.F("delay", delay),
			observability.F("error", err))

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return b.failureResult(ctx, sub, evt, attempts, fmt.Errorf("retry wait: %w", ctx.Err()))
		}
	}
}

// invoke runs the handler once, converting panics into errors so one
// misbehaving subscriber cannot take down the dispatcher.
func (b *Bus) invoke(ctx context.Context, sub *subscription, evt *schema.EventEnvelope) (res schema.HandlerResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	res, err = sub.handler(ctx, evt)
	if err == nil && !res.Success && res.Error == "" {
		// A handler that returns a zero result with a nil error succeeded.
		res.Success = true
	}
	return res, err
}

func (b *Bus) failureResult(ctx context.Context, sub *subscription, evt *schema.EventEnvelope, attempts int, err error) schema.HandlerResult {
	if b.deliveryErrorCounter != nil {
		b.deliveryErrorCounter.Add(ctx, 1,
			metric.WithAttributes(observability.DeliveryAttributes(string(evt.Type), string(sub.id), "failed")...))
	}
	observability.Log().Error("handler failed after exhausting retries",
		observability.F("subscription", sub.id),
		observability.F("description", sub.description),
		observability.F("event_type", evt.Type),
		observability.F("attempts", attempts),
		observability.F("error", err))
	return schema.HandlerResult{Success: false, Error: err.Error()}
}
