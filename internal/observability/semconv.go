package observability

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic convention attribute keys for pulsebus telemetry, following
// OpenTelemetry naming: namespace.attribute_name.
const (
	AttrEventType    = attribute.Key("event.type")
	AttrSource       = attribute.Key("event.source")
	AttrSubscription = attribute.Key("subscription.id")
	AttrDescription  = attribute.Key("subscription.description")
	AttrResult       = attribute.Key("result")
	AttrAttempts     = attribute.Key("attempts")
	AttrEnvironment  = attribute.Key("environment")
	AttrErrorType    = attribute.Key("error.type")
)

var environment = "dev"

// SetEnvironment records the runtime environment stamped onto metrics.
func SetEnvironment(env string) {
	if env != "" {
		environment = env
	}
}

// Environment returns the runtime environment label.
func Environment() string {
	return environment
}

// EventAttributes returns common attributes for event metrics.
func EventAttributes(eventType, source string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(Environment()),
		AttrEventType.String(eventType),
		AttrSource.String(source),
	}
}

// DeliveryAttributes returns attributes describing one subscription delivery.
func DeliveryAttributes(eventType, subscriptionID, result string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(Environment()),
		AttrEventType.String(eventType),
		AttrSubscription.String(subscriptionID),
		AttrResult.String(result),
	}
}
