// Package observability wires metrics and tracing for the assistant service.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsConfig configures the metrics collector.
type MetricsConfig struct {
	Enabled        bool `yaml:"enabled" mapstructure:"enabled"`
	PrometheusPort int  `yaml:"prometheus_port" mapstructure:"prometheus_port"`
}

// Metrics manages the assistant's meters. A nil *Metrics is safe to use;
// every record method is a no-op then.
type Metrics struct {
	meter metric.Meter

	turns           metric.Int64Counter
	turnLatency     metric.Float64Histogram
	classifications metric.Int64Counter
	classifyLatency metric.Float64Histogram
	dispatches      metric.Int64Counter
	tokenRefreshes  metric.Int64Counter
	llmTokens       metric.Int64Counter

	prometheusServer *http.Server
}

// NewMetrics creates a collector. When disabled it returns an inert value.
func NewMetrics(config MetricsConfig) (*Metrics, error) {
	if !config.Enabled {
		return &Metrics{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("aria")
	m := &Metrics{meter: meter}

	if m.turns, err = meter.Int64Counter(
		"aria.turns.total",
		metric.WithDescription("Total orchestrated turns"),
		metric.WithUnit("{turn}"),
	); err != nil {
		return nil, err
	}
	if m.turnLatency, err = meter.Float64Histogram(
		"aria.turn.duration",
		metric.WithDescription("Turn handling latency"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.classifications, err = meter.Int64Counter(
		"aria.classifications.total",
		metric.WithDescription("Intent classifications by action"),
		metric.WithUnit("{classification}"),
	); err != nil {
		return nil, err
	}
	if m.classifyLatency, err = meter.Float64Histogram(
		"aria.classification.duration",
		metric.WithDescription("Classification latency"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.dispatches, err = meter.Int64Counter(
		"aria.dispatches.total",
		metric.WithDescription("Dispatched actions by outcome"),
		metric.WithUnit("{dispatch}"),
	); err != nil {
		return nil, err
	}
	if m.tokenRefreshes, err = meter.Int64Counter(
		"aria.token_refreshes.total",
		metric.WithDescription("OAuth token refresh attempts by outcome"),
		metric.WithUnit("{refresh}"),
	); err != nil {
		return nil, err
	}
	if m.llmTokens, err = meter.Int64Counter(
		"aria.llm.tokens.total",
		metric.WithDescription("LLM tokens consumed"),
		metric.WithUnit("{token}"),
	); err != nil {
		return nil, err
	}

	if config.PrometheusPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promclient.Handler())
		m.prometheusServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", config.PrometheusPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			_ = m.prometheusServer.ListenAndServe()
		}()
	}

	return m, nil
}

// RecordTurn counts one orchestration pass.
func (m *Metrics) RecordTurn(ctx context.Context, duration time.Duration, dispatched bool) {
	if m == nil || m.turns == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("dispatched", dispatched))
	m.turns.Add(ctx, 1, attrs)
	m.turnLatency.Record(ctx, duration.Seconds(), attrs)
}

// RecordClassification counts one classification by resulting action.
func (m *Metrics) RecordClassification(ctx context.Context, action string, confidence float64, duration time.Duration) {
	if m == nil || m.classifications == nil {
		return
	}
	m.classifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.Bool("executable", confidence > 0.7),
	))
	m.classifyLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("action", action)))
}

// RecordDispatch counts one dispatch by action and outcome.
func (m *Metrics) RecordDispatch(ctx context.Context, action string, succeeded bool, errorKind string) {
	if m == nil || m.dispatches == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("action", action),
		attribute.Bool("succeeded", succeeded),
	}
	if errorKind != "" {
		attrs = append(attrs, attribute.String("error_kind", errorKind))
	}
	m.dispatches.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordTokenRefresh counts one refresh attempt.
func (m *Metrics) RecordTokenRefresh(ctx context.Context, succeeded bool) {
	if m == nil || m.tokenRefreshes == nil {
		return
	}
	m.tokenRefreshes.Add(ctx, 1, metric.WithAttributes(attribute.Bool("succeeded", succeeded)))
}

// RecordLLMUsage counts prompt/completion tokens.
func (m *Metrics) RecordLLMUsage(ctx context.Context, promptTokens, completionTokens int) {
	if m == nil || m.llmTokens == nil {
		return
	}
	m.llmTokens.Add(ctx, int64(promptTokens), metric.WithAttributes(attribute.String("kind", "prompt")))
	m.llmTokens.Add(ctx, int64(completionTokens), metric.WithAttributes(attribute.String("kind", "completion")))
}

// Shutdown stops the scrape endpoint.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.prometheusServer == nil {
		return nil
	}
	return m.prometheusServer.Shutdown(ctx)
}
