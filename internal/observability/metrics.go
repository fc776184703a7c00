package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"otto/internal/async"
	"otto/internal/logging"
)

// MetricsConfig configures the metrics collector.
type MetricsConfig struct {
	Enabled        bool `yaml:"enabled"`
	PrometheusPort int  `yaml:"prometheus_port"`
}

// MetricsCollector records the orchestrator's operational metrics through an
// OTel meter backed by the Prometheus exporter. A zero-value collector is a
// usable no-op; every Record method tolerates uninitialized instruments.
type MetricsCollector struct {
	meter metric.Meter

	orchestrations        metric.Int64Counter
	orchestrationDuration metric.Float64Histogram
	activeOrchestrations  metric.Int64UpDownCounter

	stepExecutions metric.Int64Counter
	stepDuration   metric.Float64Histogram

	toolExecutions metric.Int64Counter
	toolDuration   metric.Float64Histogram

	llmRequests     metric.Int64Counter
	llmLatency      metric.Float64Histogram
	llmTokensTotal  metric.Int64Counter
	memoryItems     metric.Int64UpDownCounter
	eventsPublished metric.Int64Counter

	streamConnections metric.Int64UpDownCounter
	streamMessages    metric.Int64Counter

	httpRequests metric.Int64Counter
	httpLatency  metric.Float64Histogram

	prometheusServer *http.Server
}

// NewMetricsCollector builds the collector, registering every instrument.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter("otto")

	m := &MetricsCollector{meter: meter}

	if m.orchestrations, err = meter.Int64Counter(
		"otto.orchestrations.total",
		metric.WithDescription("Total orchestrations by terminal status"),
		metric.WithUnit("{orchestration}"),
	); err != nil {
		return nil, fmt.Errorf("create orchestrations counter: %w", err)
	}
	if m.orchestrationDuration, err = meter.Float64Histogram(
		"otto.orchestrations.duration",
		metric.WithDescription("Orchestration wall time in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("create orchestration duration histogram: %w", err)
	}
	if m.activeOrchestrations, err = meter.Int64UpDownCounter(
		"otto.orchestrations.active",
		metric.WithDescription("Live orchestrations"),
		metric.WithUnit("{orchestration}"),
	); err != nil {
		return nil, fmt.Errorf("create active orchestrations gauge: %w", err)
	}
	if m.stepExecutions, err = meter.Int64Counter(
		"otto.steps.total",
		metric.WithDescription("Total executed plan steps by terminal state"),
		metric.WithUnit("{step}"),
	); err != nil {
		return nil, fmt.Errorf("create step counter: %w", err)
	}
	if m.stepDuration, err = meter.Float64Histogram(
		"otto.steps.duration",
		metric.WithDescription("Step execution duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("create step duration histogram: %w", err)
	}
	if m.toolExecutions, err = meter.Int64Counter(
		"otto.tool.executions.total",
		metric.WithDescription("Total tool invocations"),
		metric.WithUnit("{execution}"),
	); err != nil {
		return nil, fmt.Errorf("create tool counter: %w", err)
	}
	if m.toolDuration, err = meter.Float64Histogram(
		"otto.tool.duration",
		metric.WithDescription("Tool invocation duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("create tool duration histogram: %w", err)
	}
	if m.llmRequests, err = meter.Int64Counter(
		"otto.llm.requests.total",
		metric.WithDescription("Total LLM requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("create llm counter: %w", err)
	}
	if m.llmLatency, err = meter.Float64Histogram(
		"otto.llm.latency",
		metric.WithDescription("LLM request latency in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("create llm latency histogram: %w", err)
	}
	if m.llmTokensTotal, err = meter.Int64Counter(
		"otto.llm.tokens.total",
		metric.WithDescription("Total tokens reported by the LLM backend"),
		metric.WithUnit("{token}"),
	); err != nil {
		return nil, fmt.Errorf("create llm token counter: %w", err)
	}
	if m.memoryItems, err = meter.Int64UpDownCounter(
		"otto.memory.items",
		metric.WithDescription("Live items per memory tier"),
		metric.WithUnit("{item}"),
	); err != nil {
		return nil, fmt.Errorf("create memory gauge: %w", err)
	}
	if m.eventsPublished, err = meter.Int64Counter(
		"otto.events.published.total",
		metric.WithDescription("Events published on the task bus"),
		metric.WithUnit("{event}"),
	); err != nil {
		return nil, fmt.Errorf("create event counter: %w", err)
	}
	if m.streamConnections, err = meter.Int64UpDownCounter(
		"otto.stream.connections.active",
		metric.WithDescription("Active realtime event subscribers"),
		metric.WithUnit("{connection}"),
	); err != nil {
		return nil, fmt.Errorf("create stream gauge: %w", err)
	}
	if m.streamMessages, err = meter.Int64Counter(
		"otto.stream.messages.total",
		metric.WithDescription("Events delivered to realtime subscribers"),
		metric.WithUnit("{message}"),
	); err != nil {
		return nil, fmt.Errorf("create stream counter: %w", err)
	}

	if m.httpRequests, err = meter.Int64Counter(
		"otto.http.requests.total",
		metric.WithDescription("Total HTTP requests handled by the server"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("create http counter: %w", err)
	}
	if m.httpLatency, err = meter.Float64Histogram(
		"otto.http.latency",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("create http latency histogram: %w", err)
	}

	if config.PrometheusPort > 0 {
		if err := m.StartPrometheusServer(config.PrometheusPort); err != nil {
			return nil, fmt.Errorf("start prometheus server: %w", err)
		}
	}
	return m, nil
}

// StartPrometheusServer exposes /metrics for scraping on its own port.
func (m *MetricsCollector) StartPrometheusServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	m.prometheusServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	logger := logging.NewComponentLogger("PrometheusMetrics")
	async.Go(logger, "observability.prometheus", func() {
		logger.Info("Prometheus metrics server listening on :%d", port)
		if err := m.prometheusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Prometheus server error: %v", err)
		}
	})
	return nil
}

// Shutdown stops the scrape endpoint.
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m.prometheusServer != nil {
		return m.prometheusServer.Shutdown(ctx)
	}
	return nil
}

// RecordOrchestration records one terminal orchestration outcome.
func (m *MetricsCollector) RecordOrchestration(ctx context.Context, mode, status string, duration time.Duration) {
	if m == nil || m.orchestrations == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("mode", mode),
		attribute.String("status", status),
	}
	m.orchestrations.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.orchestrationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// IncrementActiveOrchestrations bumps the live-task gauge.
func (m *MetricsCollector) IncrementActiveOrchestrations(ctx context.Context) {
	if m == nil || m.activeOrchestrations == nil {
		return
	}
	m.activeOrchestrations.Add(ctx, 1)
}

// DecrementActiveOrchestrations drops the live-task gauge.
func (m *MetricsCollector) DecrementActiveOrchestrations(ctx context.Context) {
	if m == nil || m.activeOrchestrations == nil {
		return
	}
	m.activeOrchestrations.Add(ctx, -1)
}

// RecordStep records one terminal step outcome.
func (m *MetricsCollector) RecordStep(ctx context.Context, toolName, state string, duration time.Duration) {
	if m == nil || m.stepExecutions == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("tool_name", toolName),
		attribute.String("state", state),
	}
	m.stepExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.stepDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("tool_name", toolName)))
}

// RecordToolExecution records one tool invocation.
func (m *MetricsCollector) RecordToolExecution(ctx context.Context, toolName, status string, duration time.Duration) {
	if m == nil || m.toolExecutions == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("tool_name", toolName),
		attribute.String("status", status),
	}
	m.toolExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("tool_name", toolName)))
}

// RecordLLMRequest records one LLM round trip.
func (m *MetricsCollector) RecordLLMRequest(ctx context.Context, model, status string, latency time.Duration, tokens int) {
	if m == nil || m.llmRequests == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("model", model),
		attribute.String("status", status),
	}
	m.llmRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.llmLatency.Record(ctx, latency.Seconds(), metric.WithAttributes(attrs...))
	if tokens > 0 {
		m.llmTokensTotal.Add(ctx, int64(tokens), metric.WithAttributes(attribute.String("model", model)))
	}
}

// RecordMemoryDelta adjusts the per-tier memory item gauge.
func (m *MetricsCollector) RecordMemoryDelta(ctx context.Context, tier string, delta int64) {
	if m == nil || m.memoryItems == nil {
		return
	}
	m.memoryItems.Add(ctx, delta, metric.WithAttributes(attribute.String("tier", tier)))
}

// RecordEventPublished counts one bus publication.
func (m *MetricsCollector) RecordEventPublished(ctx context.Context, eventType string) {
	if m == nil || m.eventsPublished == nil {
		return
	}
	m.eventsPublished.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
}

// IncrementStreamConnections bumps the realtime subscriber gauge.
func (m *MetricsCollector) IncrementStreamConnections(ctx context.Context) {
	if m == nil || m.streamConnections == nil {
		return
	}
	m.streamConnections.Add(ctx, 1)
}

// DecrementStreamConnections drops the realtime subscriber gauge.
func (m *MetricsCollector) DecrementStreamConnections(ctx context.Context) {
	if m == nil || m.streamConnections == nil {
		return
	}
	m.streamConnections.Add(ctx, -1)
}

// RecordHTTPRequest records one handled HTTP request.
func (m *MetricsCollector) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	if m == nil || m.httpRequests == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
	}
	m.httpRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
	))
}

// RecordStreamMessage counts one delivered realtime event.
func (m *MetricsCollector) RecordStreamMessage(ctx context.Context, eventType string, sizeBytes int64) {
	if m == nil || m.streamMessages == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("event_type", eventType)}
	if sizeBytes > 0 {
		attrs = append(attrs, attribute.Int64("size_bytes", sizeBytes))
	}
	m.streamMessages.Add(ctx, 1, metric.WithAttributes(attrs...))
}
