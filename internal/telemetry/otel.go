package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"ae3gis/internal/version"
)

const (
	protocolGRPC = "grpc"
	protocolHTTP = "http"

	serviceNamespace = "ae3gis"
	exportTimeout    = 5 * time.Second
)

// Settings selects where spans go. The zero value disables export.
type Settings struct {
	Endpoint string
	Protocol string
	Headers  map[string]string
	// Insecure overrides the scheme-derived TLS choice when set.
	Insecure    *bool
	SampleRatio float64
	Environment string
	UpstreamURL string
}

// SettingsFromEnv reads the standard OTEL_EXPORTER_OTLP_* variables plus
// APP_ENV and AE3GIS_URL for resource attributes.
func SettingsFromEnv() Settings {
	s := Settings{
		Endpoint:    strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		Protocol:    protocolGRPC,
		Headers:     parseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		SampleRatio: 1,
		Environment: strings.TrimSpace(os.Getenv("APP_ENV")),
		UpstreamURL: strings.TrimSpace(os.Getenv("AE3GIS_URL")),
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL"))) {
	case "http", "http/protobuf":
		s.Protocol = protocolHTTP
	}
	if v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE"))); err == nil {
		s.Insecure = &v
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv("OTEL_TRACES_SAMPLER_ARG")), 64); err == nil {
		s.SampleRatio = min(max(v, 0), 1)
	}
	return s
}

// Init installs W3C propagation and, when an endpoint is set, a tracer
// provider exporting over OTLP. The returned func flushes pending spans.
func Init(ctx context.Context, serviceName string, settings Settings, logger *slog.Logger) (func(context.Context) error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if settings.Endpoint == "" {
		logger.Info("tracing disabled", "reason", "OTEL_EXPORTER_OTLP_ENDPOINT not set")
		return func(context.Context) error { return nil }, nil
	}

	target, err := resolveEndpoint(settings.Endpoint, settings.Protocol, settings.Insecure)
	if err != nil {
		return nil, fmt.Errorf("otlp endpoint: %w", err)
	}
	exporter, err := newExporter(ctx, target, settings.Headers)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(resource.Default(), newResource(serviceName, settings))
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	// Child spans of the proxy's inbound requests follow the caller's decision.
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(settings.SampleRatio))),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)

	logger.Info("tracing enabled",
		"protocol", target.protocol,
		"endpoint", target.hostPort+target.path,
		"sample_ratio", settings.SampleRatio,
	)
	return tp.Shutdown, nil
}

func newResource(serviceName string, settings Settings) *resource.Resource {
	attrs := []attribute.KeyValue{
		attribute.String("service.name", serviceName),
		attribute.String("service.namespace", serviceNamespace),
		attribute.String("service.version", version.Version),
		attribute.String("service.instance.id", uuid.NewString()),
	}
	if settings.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment", settings.Environment))
	}
	if settings.UpstreamURL != "" {
		attrs = append(attrs, attribute.String("ae3gis.upstream.url", settings.UpstreamURL))
	}
	return resource.NewWithAttributes("", attrs...)
}

type exportTarget struct {
	protocol string
	hostPort string
	path     string
	insecure bool
}

// resolveEndpoint accepts "host", "host:port" or a full URL. Bare hosts are
// treated as plaintext collectors on the protocol's default port.
func resolveEndpoint(raw, protocol string, insecure *bool) (exportTarget, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return exportTarget{}, err
	}
	if u.Hostname() == "" {
		return exportTarget{}, fmt.Errorf("host is required in %q", raw)
	}

	target := exportTarget{protocol: protocolGRPC, hostPort: u.Host, insecure: u.Scheme != "https"}
	defaultPort := "4317"
	if protocol == protocolHTTP {
		target.protocol = protocolHTTP
		defaultPort = "4318"
		target.path = "/v1/traces"
		if u.Path != "" && u.Path != "/" {
			target.path = u.Path
		}
	}
	if u.Port() == "" {
		target.hostPort = net.JoinHostPort(u.Hostname(), defaultPort)
	}
	if insecure != nil {
		target.insecure = *insecure
	}
	return target, nil
}

func newExporter(ctx context.Context, target exportTarget, headers map[string]string) (sdktrace.SpanExporter, error) {
	if target.protocol == protocolHTTP {
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(target.hostPort),
			otlptracehttp.WithURLPath(target.path),
			otlptracehttp.WithTimeout(exportTimeout),
			otlptracehttp.WithHeaders(headers),
		}
		if target.insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create otlp http exporter: %w", err)
		}
		return exporter, nil
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(target.hostPort),
		otlptracegrpc.WithTimeout(exportTimeout),
		otlptracegrpc.WithHeaders(headers),
	}
	if target.insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp grpc exporter: %w", err)
	}
	return exporter, nil
}

// parseHeaders reads the "k1=v1,k2=v2" form of OTEL_EXPORTER_OTLP_HEADERS.
func parseHeaders(raw string) map[string]string {
	headers := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if ok && key != "" && value != "" {
			headers[key] = value
		}
	}
	return headers
}
