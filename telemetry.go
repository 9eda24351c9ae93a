package fabricmcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"pkt.systems/fabricmcp/internal/version"
	"pkt.systems/pslog"
)

const otlpDialTimeout = 10 * time.Second

// collectorTarget is a parsed OTLP endpoint. A bare host[:port] means
// plaintext gRPC on 4317; the grpc/grpcs/http/https schemes select the
// exporter and transport security explicitly.
type collectorTarget struct {
	proto     string // "grpc" or "http"
	hostport  string
	urlPath   string // http exporter only
	plaintext bool
}

// auxServer is one sidecar HTTP listener (metrics or pprof) with the
// pieces needed to stop it.
type auxServer struct {
	name string
	srv  *http.Server
	ln   net.Listener
}

// telemetryBundle owns the telemetry components the facade started. A nil
// bundle means telemetry is fully disabled.
type telemetryBundle struct {
	traces  *sdktrace.TracerProvider
	meters  *sdkmetric.MeterProvider
	sidecar []*auxServer
	logger  pslog.Logger
}

// Shutdown stops the sidecar listeners before flushing providers so no
// scrape observes a half-stopped process. Errors are joined, not short-
// circuited: every component gets its shutdown attempt.
func (t *telemetryBundle) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	for _, aux := range t.sidecar {
		if err := aux.srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, fmt.Errorf("%s shutdown: %w", aux.name, err))
			t.logger.Warn("telemetry.shutdown.listener_failure", "listener", aux.name, "error", err)
		}
		_ = aux.ln.Close()
	}
	if t.meters != nil {
		if err := t.meters.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metric shutdown: %w", err))
			t.logger.Warn("telemetry.shutdown.metric_failure", "error", err)
		}
	}
	if t.traces != nil {
		if err := t.traces.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace shutdown: %w", err))
			t.logger.Warn("telemetry.shutdown.trace_failure", "error", err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	t.logger.Info("telemetry.shutdown.complete")
	return nil
}

// exporterErrorLogger routes asynchronous exporter failures into the service
// log. Connection-warmup retries from the gRPC exporter are expected noise
// and stay at debug.
type exporterErrorLogger struct {
	logger pslog.Logger
}

func (l exporterErrorLogger) Handle(err error) {
	if err == nil || l.logger == nil {
		return
	}
	if strings.Contains(err.Error(), "waiting for connections to become ready") {
		l.logger.Debug("telemetry.exporter.retry", "error", err)
		return
	}
	l.logger.Warn("telemetry.exporter.error", "error", err)
}

// setupTelemetry starts OTLP tracing, the Prometheus metrics listener, and
// the pprof listener per the configured addresses. All empty means telemetry
// off and a nil bundle. Any partial failure tears down what already started.
func setupTelemetry(ctx context.Context, otlpEndpoint, metricsListen, pprofListen string, profilingMetrics bool, logger pslog.Logger) (*telemetryBundle, error) {
	otlpEndpoint = strings.TrimSpace(otlpEndpoint)
	metricsListen = strings.TrimSpace(metricsListen)
	pprofListen = strings.TrimSpace(pprofListen)
	if otlpEndpoint == "" && metricsListen == "" && pprofListen == "" && !profilingMetrics {
		return nil, nil
	}
	if profilingMetrics && metricsListen == "" {
		return nil, fmt.Errorf("telemetry: profiling metrics require a metrics listen address")
	}
	if logger == nil {
		logger = pslog.NoopLogger()
	}

	res, err := resource.New(ctx,
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(
			semconv.ServiceName("fabricmcp"),
			semconv.ServiceVersion(version.Current()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	bundle := &telemetryBundle{logger: logger}
	fail := func(err error) (*telemetryBundle, error) {
		_ = bundle.Shutdown(ctx)
		return nil, err
	}

	if otlpEndpoint != "" {
		target, err := parseCollectorTarget(otlpEndpoint)
		if err != nil {
			return nil, err
		}
		exporter, err := newTraceExporter(ctx, target)
		if err != nil {
			return nil, err
		}
		bundle.traces = sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(1.0))),
			sdktrace.WithBatcher(exporter),
		)
		otel.SetTracerProvider(bundle.traces)
		logger.Info("telemetry.tracing.enabled",
			"protocol", target.proto,
			"endpoint", target.hostport,
			"path", target.urlPath,
			"insecure", target.plaintext,
		)
	}

	if metricsListen != "" {
		registry := prometheus.NewRegistry()
		exporterOpts := []otelprometheus.Option{otelprometheus.WithRegisterer(registry)}
		if profilingMetrics {
			exporterOpts = append(exporterOpts, otelprometheus.WithProducer(otelruntime.NewProducer()))
		}
		exporter, err := otelprometheus.New(exporterOpts...)
		if err != nil {
			return fail(fmt.Errorf("telemetry: start prometheus exporter: %w", err))
		}
		bundle.meters = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)
		otel.SetMeterProvider(bundle.meters)
		if profilingMetrics {
			if err := startRuntimeMetrics(bundle.meters); err != nil {
				return fail(err)
			}
			logger.Info("profiling.metrics.enabled")
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		aux, err := startAuxServer("metrics", metricsListen, mux, logger)
		if err != nil {
			return fail(err)
		}
		bundle.sidecar = append(bundle.sidecar, aux)
		logger.Info("telemetry.metrics.enabled", "listen", metricsListen)
	}

	if pprofListen != "" {
		aux, err := startAuxServer("pprof", pprofListen, pprofMux(), logger)
		if err != nil {
			return fail(err)
		}
		bundle.sidecar = append(bundle.sidecar, aux)
		logger.Info("profiling.pprof.enabled", "listen", pprofListen)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	otel.SetErrorHandler(exporterErrorLogger{logger: logger})

	return bundle, nil
}

func newTraceExporter(ctx context.Context, target collectorTarget) (sdktrace.SpanExporter, error) {
	switch target.proto {
	case "grpc":
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(target.hostport),
			otlptracegrpc.WithTimeout(otlpDialTimeout),
		}
		if target.plaintext {
			opts = append(opts,
				otlptracegrpc.WithInsecure(),
				otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			)
		} else {
			opts = append(opts, otlptracegrpc.WithDialOption(
				grpc.WithTransportCredentials(credentials.NewClientTLSFromCert(nil, "")),
			))
		}
		exporter, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("telemetry: start trace exporter (grpc): %w", err)
		}
		return exporter, nil
	case "http":
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(target.hostport),
			otlptracehttp.WithTimeout(otlpDialTimeout),
		}
		if target.plaintext {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if p := target.urlPath; p != "" && p != "/" {
			opts = append(opts, otlptracehttp.WithURLPath(p))
		}
		exporter, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("telemetry: start trace exporter (http): %w", err)
		}
		return exporter, nil
	default:
		return nil, fmt.Errorf("telemetry: unsupported protocol %q", target.proto)
	}
}

func startAuxServer(name, addr string, handler http.Handler, logger pslog.Logger) (*auxServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %s listen: %w", name, err)
	}
	srv := &http.Server{Handler: handler}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("telemetry.listener.failed", "listener", name, "error", err)
		}
	}()
	return &auxServer{name: name, srv: srv, ln: ln}, nil
}

func pprofMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// Runtime metrics can only be registered once per process; the otel runtime
// package rejects a second Start.
var (
	runtimeMetricsOnce sync.Once
	runtimeMetricsErr  error
)

func startRuntimeMetrics(provider metric.MeterProvider) error {
	if provider == nil {
		return fmt.Errorf("telemetry: meter provider required for runtime metrics")
	}
	runtimeMetricsOnce.Do(func() {
		runtimeMetricsErr = otelruntime.Start(otelruntime.WithMeterProvider(provider))
	})
	return runtimeMetricsErr
}

// parseCollectorTarget resolves the user-facing OTLP endpoint syntax. With no
// scheme the endpoint is treated as a plaintext gRPC collector; default ports
// are 4317 (grpc) and 4318 (http).
func parseCollectorTarget(raw string) (collectorTarget, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return collectorTarget{}, fmt.Errorf("telemetry: empty otlp endpoint")
	}
	if !strings.Contains(raw, "://") {
		return collectorTarget{
			proto:     "grpc",
			hostport:  ensurePort(raw, "4317"),
			plaintext: true,
		}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return collectorTarget{}, fmt.Errorf("telemetry: parse otlp endpoint: %w", err)
	}
	host := u.Host
	urlPath := strings.TrimSuffix(u.Path, "/")
	if host == "" {
		// url.Parse puts "grpc://host" host parts in Path for some
		// malformed inputs; recover the host instead of failing.
		host = u.Path
		urlPath = ""
	}
	if host == "" {
		return collectorTarget{}, fmt.Errorf("telemetry: missing otlp endpoint host")
	}

	target := collectorTarget{hostport: host, urlPath: urlPath}
	switch strings.ToLower(u.Scheme) {
	case "grpc":
		target.proto = "grpc"
		target.plaintext = true
	case "grpcs":
		target.proto = "grpc"
	case "http":
		target.proto = "http"
		target.plaintext = true
	case "https":
		target.proto = "http"
	default:
		return collectorTarget{}, fmt.Errorf("telemetry: unknown otlp scheme %q", u.Scheme)
	}
	if target.proto == "grpc" {
		target.hostport = ensurePort(target.hostport, "4317")
	} else {
		target.hostport = ensurePort(target.hostport, "4318")
	}
	return target, nil
}

func ensurePort(hostport, fallback string) string {
	if strings.Contains(hostport, ":") {
		return hostport
	}
	return net.JoinHostPort(hostport, fallback)
}
