// Package correlation carries a correlation id from the browser request to the backend calls it triggers.
package correlation

import (
	"context"
	"net/http"
	"strings"

	"github.com/oklog/ulid/v2"
)

// HeaderCorrelationID carries the correlation id between the front door and the backend.
const HeaderCorrelationID = "X-Correlation-Id"

// maxInboundLength bounds ids accepted from clients.
const maxInboundLength = 64

type correlationKey struct{}

// ExtractCorrelationID returns the id stored on ctx, or "".
func ExtractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// ContextWithCorrelationID stores id on ctx. An empty id leaves ctx untouched.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// EnsureCorrelationID returns ctx carrying an id, minting a ULID when none is present.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if id := ExtractCorrelationID(ctx); id != "" {
		return ctx, id
	}
	id := ulid.Make().String()
	return ContextWithCorrelationID(ctx, id), id
}

// FromRequest reuses a well formed inbound header or mints a new id.
func FromRequest(r *http.Request) (context.Context, string) {
	if id, ok := sanitize(r.Header.Get(HeaderCorrelationID)); ok {
		return ContextWithCorrelationID(r.Context(), id), id
	}
	return EnsureCorrelationID(r.Context())
}

// SetHeader writes the id on ctx to an outbound header set.
func SetHeader(ctx context.Context, header http.Header) {
	if header == nil {
		return
	}
	if id := ExtractCorrelationID(ctx); id != "" {
		header.Set(HeaderCorrelationID, id)
	}
}

// sanitize accepts short ids made of letters, digits, '-' and '_'.
func sanitize(raw string) (string, bool) {
	id := strings.TrimSpace(raw)
	if id == "" || len(id) > maxInboundLength {
		return "", false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return "", false
		}
	}
	return id, true
}
