package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const exportInterval = 10 * time.Second

// Config configures the OTLP meter provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics holds the front door's domain counters. A nil *Metrics records nothing.
type Metrics struct {
	bootstrapOutcomes metric.Int64Counter
	orgResolutions    metric.Int64Counter
	logins            metric.Int64Counter
	proxyResponses    metric.Int64Counter
	rateLimitDenied   metric.Int64Counter
}

// NewProvider installs the global meter provider. Disabled telemetry gets a noop provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, fmt.Errorf("metrics exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval))),
	)
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{OnStop: provider.Shutdown})
	}
	if log != nil {
		log.Info("otlp metrics enabled",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}
	return provider, nil
}

// New creates the domain counters on provider's meter.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	scope := strings.TrimSpace(cfg.ServiceName)
	if scope == "" {
		scope = "kasira"
	}
	meter := provider.Meter(scope)

	m := &Metrics{}
	counters := []struct {
		dst         *metric.Int64Counter
		name, about string
	}{
		{&m.bootstrapOutcomes, "kasira_session_bootstrap_total", "Session bootstraps by terminal state."},
		{&m.orgResolutions, "kasira_org_resolution_total", "Organization lookups by result."},
		{&m.logins, "kasira_login_total", "Login attempts by result."},
		{&m.proxyResponses, "kasira_api_proxy_responses_total", "Proxied backend responses by status class."},
		{&m.rateLimitDenied, "kasira_rate_limit_denied_total", "Requests refused by a rate limit."},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.about))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", c.name, err)
		}
		*c.dst = counter
	}
	return m, nil
}

func (m *Metrics) RecordBootstrap(ctx context.Context, state string) {
	if m != nil {
		add(ctx, m.bootstrapOutcomes, attribute.String("state", strings.TrimSpace(state)))
	}
}

func (m *Metrics) RecordOrgResolution(ctx context.Context, result string) {
	if m != nil {
		add(ctx, m.orgResolutions, attribute.String("result", strings.TrimSpace(result)))
	}
}

func (m *Metrics) RecordLogin(ctx context.Context, result string) {
	if m != nil {
		add(ctx, m.logins, attribute.String("result", strings.TrimSpace(result)))
	}
}

// RecordProxyResponse buckets status codes into classes such as "4xx".
func (m *Metrics) RecordProxyResponse(ctx context.Context, status int) {
	if m != nil {
		add(ctx, m.proxyResponses, attribute.String("status_class", fmt.Sprintf("%dxx", status/100)))
	}
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint string) {
	if m != nil {
		add(ctx, m.rateLimitDenied, attribute.String("endpoint", strings.TrimSpace(endpoint)))
	}
}

func add(ctx context.Context, counter metric.Int64Counter, attrs ...attribute.KeyValue) {
	counter.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attrs...)...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	ctx := context.Background()
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		var opts []otlpmetrichttp.Option
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(ctx, opts...)
	case "", "grpc", "grpc/protobuf":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	}
	return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
}

// Tenant subdomains never become labels; one series per tenant is unbounded.
var allowedLabelKeys = map[attribute.Key]bool{
	"state":        true,
	"result":       true,
	"endpoint":     true,
	"status_class": true,
	"reason":       true,
}

// FilterAttributes keeps only the low-cardinality label keys.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	kept := attrs[:0:0]
	for _, attr := range attrs {
		if allowedLabelKeys[attr.Key] {
			kept = append(kept, attr)
		}
	}
	return kept
}
