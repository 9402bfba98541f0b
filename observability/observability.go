package observability

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type (
	// Observability is the full "observability toolkit" passed around
	// between components.
	Observability interface {
		Tracer(name string, options ...trace.TracerOption) trace.Tracer
		TracerProvider() trace.TracerProvider
		Meter(name string, opts ...metric.MeterOption) metric.Meter
		PrometheusRegisterer() prometheus.Registerer
		Shutdown() error
		Logger() *slog.Logger
	}

	// MeterAndTracer is implemented by the CLI layer which knows how to set
	// up exporters, WithLogger upgrades it to the full Observability.
	MeterAndTracer interface {
		Tracer(name string, options ...trace.TracerOption) trace.Tracer
		TracerProvider() trace.TracerProvider
		Meter(name string, opts ...metric.MeterOption) metric.Meter
		PrometheusRegisterer() prometheus.Registerer
		Shutdown() error
	}

	observability struct {
		MeterAndTracer
		log *slog.Logger
	}
)

/*
WithLogger combines "observe" and "log" into Observability toolkit.
*/
func WithLogger(observe MeterAndTracer, log *slog.Logger) Observability {
	return &observability{MeterAndTracer: observe, log: log}
}

func (o *observability) Logger() *slog.Logger { return o.log }
