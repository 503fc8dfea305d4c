// Package observe provides the bridge's observability primitives:
// OpenTelemetry metric instruments and the Prometheus exporter bridge that
// makes them scrapeable at /metrics.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all bridge metrics.
const meterName = "github.com/satriahrh/jembatan"

// Metrics holds all OpenTelemetry metric instruments for the bridge. The
// underlying OTel types handle their own synchronisation.
type Metrics struct {
	// ActiveSessions tracks the number of live bridge sessions.
	ActiveSessions metric.Int64UpDownCounter

	// Sessions counts sessions by close reason. Use with attribute:
	//   attribute.String("reason", ...)
	Sessions metric.Int64Counter

	// Turns counts completed response turns.
	Turns metric.Int64Counter

	// TurnDuration tracks trigger-to-completion latency of response turns.
	TurnDuration metric.Float64Histogram

	// FunctionCalls counts function-call executions. Use with attributes:
	//   attribute.String("side", "client"|"server"), attribute.String("status", ...)
	FunctionCalls metric.Int64Counter

	// DroppedTriggers counts response triggers dropped by the single-flight
	// gate.
	DroppedTriggers metric.Int64Counter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// realtime conversation turns.
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40,
}

// NewMetrics creates a fully initialised Metrics struct using the given
// metric.MeterProvider. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ActiveSessions, err = m.Int64UpDownCounter("jembatan.sessions.active",
		metric.WithDescription("Number of live bridge sessions."),
	); err != nil {
		return nil, err
	}
	if met.Sessions, err = m.Int64Counter("jembatan.sessions.total",
		metric.WithDescription("Total sessions by close reason."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("jembatan.turns.total",
		metric.WithDescription("Total completed response turns."),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("jembatan.turn.duration",
		metric.WithDescription("Latency from response trigger to turn completion."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FunctionCalls, err = m.Int64Counter("jembatan.function_calls.total",
		metric.WithDescription("Total function-call executions by side and status."),
	); err != nil {
		return nil, err
	}
	if met.DroppedTriggers, err = m.Int64Counter("jembatan.response_triggers.dropped",
		metric.WithDescription("Response triggers dropped by the single-flight gate."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level Metrics instance bound to the
// global meter provider. Tests should use NewMetrics with a private provider
// to avoid cross-test pollution.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		// Instrument creation only fails on malformed names, which are
		// compile-time constants here.
		defaultMetrics, _ = NewMetrics(otel.GetMeterProvider())
	})
	return defaultMetrics
}

// SessionClosed records one finished session with its close reason.
func (m *Metrics) SessionClosed(ctx context.Context, reason string) {
	m.Sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	m.ActiveSessions.Add(ctx, -1)
}

// SessionStarted records one accepted session.
func (m *Metrics) SessionStarted(ctx context.Context) {
	m.ActiveSessions.Add(ctx, 1)
}

// FunctionCallFinished records one function-call completion.
func (m *Metrics) FunctionCallFinished(ctx context.Context, clientSide bool, failed bool) {
	side := "server"
	if clientSide {
		side = "client"
	}
	status := "ok"
	if failed {
		status = "error"
	}
	m.FunctionCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("side", side),
		attribute.String("status", status),
	))
}
