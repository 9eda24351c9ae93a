package fabricmcp

import (
	"context"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/xid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"pkt.systems/fabricmcp/client"
	"pkt.systems/pslog"
)

type toolMetrics struct {
	invocations  metric.Int64Counter
	toolErrors   metric.Int64Counter
	duration     metric.Int64Histogram
	cacheEntries metric.Int64ObservableGauge
}

func newToolMetrics(logger pslog.Logger, cache *TapestryCache) *toolMetrics {
	meter := otel.Meter("pkt.systems/fabricmcp")
	m := &toolMetrics{}
	var err error

	m.invocations, err = meter.Int64Counter(
		"fabricmcp.tool.invocations",
		metric.WithDescription("Tool invocations"),
	)
	logMetricInitError(logger, "fabricmcp.tool.invocations", err)

	m.toolErrors, err = meter.Int64Counter(
		"fabricmcp.tool.errors",
		metric.WithDescription("Tool invocations that returned an error"),
	)
	logMetricInitError(logger, "fabricmcp.tool.errors", err)

	m.duration, err = meter.Int64Histogram(
		"fabricmcp.tool.duration_ms",
		metric.WithDescription("Tool invocation duration"),
		metric.WithUnit("ms"),
	)
	logMetricInitError(logger, "fabricmcp.tool.duration_ms", err)

	m.cacheEntries, err = meter.Int64ObservableGauge(
		"fabricmcp.tapestry_cache.entries",
		metric.WithDescription("Tokens with a cached tapestry resolution"),
	)
	logMetricInitError(logger, "fabricmcp.tapestry_cache.entries", err)

	if _, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		if cache != nil {
			o.ObserveInt64(m.cacheEntries, int64(cache.Len()))
		}
		return nil
	}, m.cacheEntries); err != nil && logger != nil {
		logger.Warn("telemetry.metric.callback_failed", "name", "fabricmcp.tapestry_cache.entries", "error", err)
	}

	return m
}

func (m *toolMetrics) record(ctx context.Context, tool string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	ctx = metricContext(ctx)
	attrs := []attribute.KeyValue{
		attribute.String("fabricmcp.tool", tool),
		attribute.String("fabricmcp.result", metricResultLabel(err)),
	}
	if m.invocations != nil {
		m.invocations.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if err != nil && m.toolErrors != nil {
		m.toolErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if m.duration != nil {
		m.duration.Record(ctx, duration.Milliseconds(), metric.WithAttributes(attrs...))
	}
}

// withToolObservability stamps each invocation with an id and a correlation
// ID (reused by the Fabric client for the upstream request), opens a span,
// logs start and outcome, and records tool metrics.
func withToolObservability[In, Out any](tool string, logger pslog.Logger, metrics *toolMetrics, h mcpsdk.ToolHandlerFor[In, Out]) mcpsdk.ToolHandlerFor[In, Out] {
	tracer := otel.Tracer("pkt.systems/fabricmcp")
	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input In) (*mcpsdk.CallToolResult, Out, error) {
		invocationID := xid.New().String()
		if client.CorrelationIDFromContext(ctx) == "" {
			ctx = client.WithCorrelationID(ctx, client.GenerateCorrelationID())
		}
		cid := client.CorrelationIDFromContext(ctx)
		ctx, span := tracer.Start(ctx, "mcp.tool."+tool, trace.WithAttributes(
			attribute.String("fabricmcp.tool", tool),
			attribute.String("fabricmcp.invocation_id", invocationID),
			attribute.String("fabricmcp.cid", cid),
		))
		defer span.End()
		start := time.Now()
		logger.Trace("mcp.tool.start", "tool", tool, "invocation_id", invocationID, "cid", cid)
		res, out, err := h(ctx, req, input)
		elapsed := time.Since(start)
		metrics.record(ctx, tool, elapsed, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Warn("mcp.tool.error", "tool", tool, "invocation_id", invocationID, "cid", cid, "duration_ms", elapsed.Milliseconds(), "error", err)
			return res, out, err
		}
		logger.Debug("mcp.tool.done", "tool", tool, "invocation_id", invocationID, "cid", cid, "duration_ms", elapsed.Milliseconds())
		return res, out, nil
	}
}

func metricResultLabel(err error) string {
	if err == nil {
		return "success"
	}
	return "error"
}

func metricContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func logMetricInitError(logger pslog.Logger, name string, err error) {
	if err == nil || logger == nil {
		return
	}
	logger.Warn("telemetry.metric.init_failed", "name", name, "error", err)
}
