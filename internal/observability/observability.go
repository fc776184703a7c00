package observability

import (
	"context"
	"fmt"

	"otto/internal/logging"
)

// Observability bundles the metrics collector and tracer behind one handle.
type Observability struct {
	Metrics *MetricsCollector
	Tracer  *TracerProvider
	config  Config
	logger  logging.Logger
}

// New loads the configuration and initializes metrics and tracing. A failed
// subsystem degrades to a no-op instead of failing startup.
func New(configPath string) (*Observability, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load observability config: %w", err)
	}
	return NewWithConfig(config), nil
}

// NewWithConfig initializes from an already-resolved configuration.
func NewWithConfig(config Config) *Observability {
	logger := logging.NewComponentLogger("Observability")

	metrics, err := NewMetricsCollector(config.Metrics)
	if err != nil {
		logger.Error("Failed to initialize metrics, continuing without: %v", err)
		metrics = &MetricsCollector{}
	}

	tracer, err := NewTracerProvider(config.Tracing)
	if err != nil {
		logger.Error("Failed to initialize tracing, continuing without: %v", err)
		tracer, _ = NewTracerProvider(TracingConfig{Enabled: false})
	}

	logger.Info("Observability initialized (metrics=%t, tracing=%t)",
		config.Metrics.Enabled, config.Tracing.Enabled)

	return &Observability{
		Metrics: metrics,
		Tracer:  tracer,
		config:  config,
		logger:  logger,
	}
}

// Disabled returns a fully no-op observability handle for tests and the CLI.
func Disabled() *Observability {
	return NewWithConfig(Config{})
}

// Shutdown stops both subsystems.
func (o *Observability) Shutdown(ctx context.Context) error {
	if err := o.Metrics.Shutdown(ctx); err != nil {
		o.logger.Error("Failed to shut down metrics: %v", err)
	}
	if err := o.Tracer.Shutdown(ctx); err != nil {
		o.logger.Error("Failed to shut down tracing: %v", err)
	}
	return nil
}

// Config returns the resolved configuration.
func (o *Observability) Config() Config {
	return o.config
}
