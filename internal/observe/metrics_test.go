// SPDX-License-Identifier: EPL-2.0

package observe

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is %T, want Sum[int64]", name, met.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestRecorders(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordVoice(ctx, "top-left", "blend")
	m.RecordVoice(ctx, "bottom-left", "pan")
	m.RecordSkip(ctx, "not_ready")
	m.RecordDecode(ctx, "source", 0.02, nil)
	m.RecordDecode(ctx, "impulse", 0.05, errors.New("bad file"))
	m.AddActiveVoices(ctx, 3)
	m.AddActiveVoices(ctx, -1)

	rm := collect(t, reader)

	if got := sumOf(t, rm, "padmix.voices.started"); got != 2 {
		t.Errorf("voices.started = %d, want 2", got)
	}
	if got := sumOf(t, rm, "padmix.triggers.skipped"); got != 1 {
		t.Errorf("triggers.skipped = %d, want 1", got)
	}
	if got := sumOf(t, rm, "padmix.decode.failures"); got != 1 {
		t.Errorf("decode.failures = %d, want 1", got)
	}
	if got := sumOf(t, rm, "padmix.voices.active"); got != 2 {
		t.Errorf("voices.active = %d, want 2", got)
	}

	met := findMetric(rm, "padmix.decode.duration")
	if met == nil {
		t.Fatal("decode.duration not found")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	if count != 2 {
		t.Errorf("decode.duration count = %d, want 2", count)
	}
}

func TestRecordVoice_Attributes(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordVoice(context.Background(), "top-right", "blend")

	met := findMetric(collect(t, reader), "padmix.voices.started")
	if met == nil {
		t.Fatal("voices.started not found")
	}
	dp := met.Data.(metricdata.Sum[int64]).DataPoints[0]
	if v, ok := dp.Attributes.Value(attribute.Key("slot")); !ok || v.AsString() != "top-right" {
		t.Errorf("slot attribute = %v, %v", v.AsString(), ok)
	}
	if v, ok := dp.Attributes.Value(attribute.Key("mode")); !ok || v.AsString() != "blend" {
		t.Errorf("mode attribute = %v, %v", v.AsString(), ok)
	}
}

func TestNilMetrics(t *testing.T) {
	t.Parallel()

	var m *Metrics
	ctx := context.Background()
	m.RecordVoice(ctx, "top-left", "blend")
	m.RecordSkip(ctx, "closed")
	m.RecordDecode(ctx, "source", 1, errors.New("x"))
	m.AddActiveVoices(ctx, 1)
}

func TestInitProvider(t *testing.T) {
	handler, shutdown, err := InitProvider()
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	defer shutdown(context.Background())

	m := DefaultMetrics()
	m.RecordSkip(context.Background(), "suspended")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "padmix_triggers_skipped") {
		t.Errorf("scrape output lacks padmix_triggers_skipped:\n%s", rec.Body.String())
	}
}
