package tracing

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

var propagator = propagation.NewCompositeTextMapPropagator(
	propagation.TraceContext{},
	propagation.Baggage{},
)

// ExtractContext continues a trace started by the caller, if any.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return propagator.Extract(ctx, carrier)
}

// InjectContext writes the active span into carrier.
func InjectContext(ctx context.Context, carrier propagation.TextMapCarrier) {
	propagator.Inject(ctx, carrier)
}

var forbiddenKeys = []string{"fare", "amount", "passenger", "email", "password", "token", "authorization"}

// SafeAttributes drops attributes whose keys could carry fares or passenger data.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		key := strings.ToLower(string(attr.Key))
		allowed := true
		for _, forbidden := range forbiddenKeys {
			if strings.Contains(key, forbidden) {
				allowed = false
				break
			}
		}
		if allowed {
			out = append(out, attr)
		}
	}
	return out
}

const maxErrorLen = 256

// SafeError truncates error text before it is recorded on a span.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if len(msg) <= maxErrorLen {
		return err
	}
	return errors.New(msg[:maxErrorLen])
}
