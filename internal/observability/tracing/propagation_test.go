package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestSafeAttributesDropsCredentials(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("Authorization", "Bearer abc"),
		attribute.String("http.route", "/login"),
		attribute.String("email", "a@b.c"),
	)
	require.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorRedactsBearer(t *testing.T) {
	err := SafeError(errors.New("upstream rejected Bearer eyJhbGciOi"))
	assert.Equal(t, "upstream rejected bearer [redacted]", err.Error())
	assert.Nil(t, SafeError(nil))
}

func TestTransportInjectsTraceparent(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	var seen string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("traceparent")
	}))
	defer upstream.Close()

	ctx, span := tp.Tracer("test").Start(context.Background(), "outbound")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, upstream.URL, nil)
	require.NoError(t, err)

	client := &http.Client{Transport: &Transport{}}
	resp, err := client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Contains(t, seen, span.SpanContext().TraceID().String())
	assert.Empty(t, req.Header.Get("traceparent"))
}
