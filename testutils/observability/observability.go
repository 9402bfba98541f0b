package observability

import (
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/crossbill-org/crossbill/logger"
	"github.com/crossbill-org/crossbill/observability"
	testlogger "github.com/crossbill-org/crossbill/testutils/logger"
)

/*
Default returns observability implementation for tests: noop meters and
tracers, logger which logs into t.
*/
func Default(t testing.TB) observability.Observability {
	return observability.WithLogger(NOP(), testlogger.New(t))
}

/*
NOPObservability returns observability implementation where all the
elements are "no operation" versions.
*/
func NOPObservability() observability.Observability {
	return observability.WithLogger(NOP(), testlogger.NOP())
}

/*
NewFactory returns a logger builder for CLI tests, it ignores the
configuration and logs into t.
*/
func NewFactory(t testing.TB) func(cfg *logger.LogConfiguration) (*slog.Logger, error) {
	return func(cfg *logger.LogConfiguration) (*slog.Logger, error) {
		return testlogger.New(t), nil
	}
}

// NOP returns "no operation" observability (all spans and measurements are dropped).
func NOP() observability.MeterAndTracer {
	return &nopObservability{
		mp: noop.NewMeterProvider(),
		tp: trace.NewNoopTracerProvider(),
	}
}

type nopObservability struct {
	mp metric.MeterProvider
	tp trace.TracerProvider
}

func (o *nopObservability) Tracer(name string, options ...trace.TracerOption) trace.Tracer {
	return o.tp.Tracer(name, options...)
}
func (o *nopObservability) TracerProvider() trace.TracerProvider { return o.tp }
func (o *nopObservability) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	return o.mp.Meter(name, opts...)
}
func (o *nopObservability) PrometheusRegisterer() prometheus.Registerer { return nil }
func (o *nopObservability) Shutdown() error                             { return nil }
