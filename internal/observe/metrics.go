// SPDX-License-Identifier: EPL-2.0

// Package observe holds the OpenTelemetry instruments recorded by the
// engine and the Prometheus bridge used by the command line tool.
//
// Components take a *Metrics; tests build one with [NewMetrics] over a
// manual reader, everything else uses [DefaultMetrics].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/ik5/padmix"

// Metrics holds every instrument. All fields are safe for concurrent use.
type Metrics struct {
	// VoicesStarted counts voices handed to the graph. Attributes: slot, mode.
	VoicesStarted metric.Int64Counter

	// TriggersSkipped counts triggers dropped before any voice was built.
	// Attribute: reason.
	TriggersSkipped metric.Int64Counter

	// DecodeFailures counts failed decodes. Attribute: kind (source, impulse).
	DecodeFailures metric.Int64Counter

	// ActiveVoices tracks voices currently in the graph.
	ActiveVoices metric.Int64UpDownCounter

	// DecodeDuration tracks how long a decode took. Attribute: kind.
	DecodeDuration metric.Float64Histogram
}

var decodeBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5,
}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.VoicesStarted, err = m.Int64Counter("padmix.voices.started",
		metric.WithDescription("Voices started by slot and axis mode."),
	); err != nil {
		return nil, err
	}
	if met.TriggersSkipped, err = m.Int64Counter("padmix.triggers.skipped",
		metric.WithDescription("Triggers ignored because the engine could not play."),
	); err != nil {
		return nil, err
	}
	if met.DecodeFailures, err = m.Int64Counter("padmix.decode.failures",
		metric.WithDescription("Failed decodes of slot sources and reverb impulses."),
	); err != nil {
		return nil, err
	}
	if met.ActiveVoices, err = m.Int64UpDownCounter("padmix.voices.active",
		metric.WithDescription("Voices currently playing."),
	); err != nil {
		return nil, err
	}
	if met.DecodeDuration, err = m.Float64Histogram("padmix.decode.duration",
		metric.WithDescription("Time spent decoding and resampling audio."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(decodeBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a process-wide instance bound to
// otel.GetMeterProvider. It panics if the global provider refuses to
// create instruments.
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

// Convenience recorders. A nil receiver records nothing so components can
// run without metrics in tests.

func (m *Metrics) RecordVoice(ctx context.Context, slot, mode string) {
	if m == nil {
		return
	}
	m.VoicesStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("slot", slot),
		attribute.String("mode", mode),
	))
}

func (m *Metrics) RecordSkip(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.TriggersSkipped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) RecordDecode(ctx context.Context, kind string, seconds float64, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	m.DecodeDuration.Record(ctx, seconds, attrs)
	if err != nil {
		m.DecodeFailures.Add(ctx, 1, attrs)
	}
}

func (m *Metrics) AddActiveVoices(ctx context.Context, delta int64) {
	if m == nil || delta == 0 {
		return
	}
	m.ActiveVoices.Add(ctx, delta)
}
