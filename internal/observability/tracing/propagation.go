package tracing

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

// ExtractContext reads W3C trace headers from an inbound carrier.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// InjectHeaders writes the current trace context onto outbound headers.
func InjectHeaders(ctx context.Context, header http.Header) {
	if header == nil {
		return
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))
}

// Transport propagates the trace context on every outbound request.
type Transport struct {
	Base http.RoundTripper
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	clone := req.Clone(req.Context())
	InjectHeaders(clone.Context(), clone.Header)
	return base.RoundTrip(clone)
}

var forbiddenAttributeKeys = map[attribute.Key]struct{}{
	"authorization": {},
	"cookie":        {},
	"password":      {},
	"access_token":  {},
	"email":         {},
	"phone":         {},
}

// SafeAttributes drops attributes that may carry credentials or personal data.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		key := attribute.Key(strings.ToLower(string(attr.Key)))
		if _, forbidden := forbiddenAttributeKeys[key]; forbidden {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError reduces an error to its message with bearer tokens redacted.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if idx := strings.Index(strings.ToLower(msg), "bearer "); idx >= 0 {
		msg = msg[:idx] + "bearer [redacted]"
	}
	return errors.New(msg)
}
