// Package observe provides application-wide observability primitives for
// Psych: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Psych metrics.
const meterName = "github.com/roundone/Psych"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// CaptureDuration tracks how long microphone capture ran before an
	// utterance was finalised.
	CaptureDuration metric.Float64Histogram

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// ChatDuration tracks chat completion latency.
	ChatDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// TurnDuration tracks end-to-end turn latency from input to reply
	// (including playback for voice turns).
	TurnDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// Turns counts completed and failed turns. Use with attributes:
	//   attribute.String("mode", ...), attribute.String("status", ...)
	Turns metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveTurns tracks the number of turns currently in flight. With a
	// single conversation this is 0 or 1; it exists to make a stuck turn
	// visible on a dashboard.
	ActiveTurns metric.Int64UpDownCounter

	// HistoryMessages tracks the number of messages in the transcript.
	HistoryMessages metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)

	// The first instrument creation error wins; later helper calls become
	// no-ops once firstErr is set.
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	hist := func(name, desc string, opts ...metric.Float64HistogramOption) metric.Float64Histogram {
		opts = append(opts, metric.WithDescription(desc), metric.WithUnit("s"))
		h, err := m.Float64Histogram(name, opts...)
		keep(err)
		return h
	}
	counter := func(name, desc string) metric.Int64Counter {
		c, err := m.Int64Counter(name, metric.WithDescription(desc))
		keep(err)
		return c
	}
	gauge := func(name, desc string) metric.Int64UpDownCounter {
		g, err := m.Int64UpDownCounter(name, metric.WithDescription(desc))
		keep(err)
		return g
	}
	buckets := metric.WithExplicitBucketBoundaries(latencyBuckets...)

	met := &Metrics{
		CaptureDuration: hist("psych.capture.duration",
			"Wall-clock duration of microphone capture per utterance.", buckets),
		STTDuration: hist("psych.stt.duration",
			"Latency of speech-to-text transcription.", buckets),
		ChatDuration: hist("psych.chat.duration",
			"Latency of chat completion.", buckets),
		TTSDuration: hist("psych.tts.duration",
			"Latency of text-to-speech synthesis.", buckets),
		TurnDuration: hist("psych.turn.duration",
			"End-to-end turn latency from input to reply.", buckets),

		ProviderRequests: counter("psych.provider.requests",
			"Total provider API requests by provider, kind, and status."),
		Turns: counter("psych.turns",
			"Total turns by input mode and outcome status."),
		ProviderErrors: counter("psych.provider.errors",
			"Total provider errors by provider and kind."),

		ActiveTurns: gauge("psych.active_turns",
			"Number of turns currently in flight."),
		HistoryMessages: gauge("psych.history.messages",
			"Number of messages currently held in the transcript."),

		HTTPRequestDuration: hist("psych.http.request.duration",
			"HTTP request latency by method and path."),
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordTurn is a convenience method that records a turn counter increment
// with the standard attribute set.
func (m *Metrics) RecordTurn(ctx context.Context, mode, status string) {
	m.Turns.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
