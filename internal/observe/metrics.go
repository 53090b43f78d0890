// Package observe provides Meetfox's observability primitives: OpenTelemetry
// metrics with a Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A package-level
// default [Metrics] instance ([DefaultMetrics]) is provided for convenience;
// tests should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Meetfox metrics.
const meterName = "github.com/clever-foxes/meetfox"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TranslationDuration tracks per-utterance translation latency.
	TranslationDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// InsightDuration tracks consolidated insight-analysis latency.
	InsightDuration metric.Float64Histogram

	// --- Counters ---

	// Utterances counts arbitrated utterances. Use with attribute:
	//   attribute.String("source", ...)
	Utterances metric.Int64Counter

	// DuplicatesSuppressed counts cross-source echoes dropped by the arbiter.
	DuplicatesSuppressed metric.Int64Counter

	// TTSEchoes counts system captures reclassified as our own speech.
	TTSEchoes metric.Int64Counter

	// TranslationDrops counts utterances dropped by the full translation
	// queue.
	TranslationDrops metric.Int64Counter

	// LLMErrors counts failed LLM calls. Use with attributes:
	//   attribute.String("stage", ...), attribute.String("kind", ...)
	LLMErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live transcription sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// network round-trips to the speech and language services.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranslationDuration, err = m.Float64Histogram("meetfox.translation.duration",
		metric.WithDescription("Latency of one utterance translation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("meetfox.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.InsightDuration, err = m.Float64Histogram("meetfox.insight.duration",
		metric.WithDescription("Latency of one consolidated insight analysis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Utterances, err = m.Int64Counter("meetfox.utterances",
		metric.WithDescription("Total arbitrated utterances by source."),
	); err != nil {
		return nil, err
	}
	if met.DuplicatesSuppressed, err = m.Int64Counter("meetfox.duplicates.suppressed",
		metric.WithDescription("Cross-source echoes suppressed by the arbiter."),
	); err != nil {
		return nil, err
	}
	if met.TTSEchoes, err = m.Int64Counter("meetfox.tts.echoes",
		metric.WithDescription("System captures reclassified as synthesised speech."),
	); err != nil {
		return nil, err
	}
	if met.TranslationDrops, err = m.Int64Counter("meetfox.translation.drops",
		metric.WithDescription("Utterances dropped because the translation queue was full."),
	); err != nil {
		return nil, err
	}
	if met.LLMErrors, err = m.Int64Counter("meetfox.llm.errors",
		metric.WithDescription("Failed LLM calls by pipeline stage and error kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("meetfox.active_sessions",
		metric.WithDescription("Number of live transcription sessions."),
	); err != nil {
		return nil, err
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

// RecordUtterance records one arbitrated utterance by source.
func (m *Metrics) RecordUtterance(ctx context.Context, source string) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("source", source)),
	)
}

// RecordLLMError records one failed LLM call with the standard attribute
// set.
func (m *Metrics) RecordLLMError(ctx context.Context, stage, kind string) {
	m.LLMErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("kind", kind),
		),
	)
}
