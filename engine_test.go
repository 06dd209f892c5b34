// SPDX-License-Identifier: EPL-2.0

package padmix

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/ik5/padmix/audio"
	"github.com/ik5/padmix/device"
	"github.com/ik5/padmix/internal/config"
	"github.com/ik5/padmix/internal/decodetest"
	"github.com/ik5/padmix/internal/observe"
	"github.com/ik5/padmix/mix"
	"github.com/ik5/padmix/reverb"
)

const testRate = 48000

var approx = cmpopts.EquateApprox(0, 1e-9)

type harness struct {
	eng   *Engine
	dev   *device.Null
	dec   *decodetest.Decoder
	opens atomic.Int32
}

func impulses() fstest.MapFS {
	return fstest.MapFS{
		"impulses/hall.wav":     {Data: []byte("hall-impulse")},
		"impulses/bathroom.wav": {Data: []byte("bathroom")},
		"impulses/tunnel.wav":   {Data: []byte("tunnel-impulse-long")},
		"impulses/hallway.wav":  {Data: []byte("hallway")},
	}
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	h := &harness{
		dev: device.NewNull(testRate),
		dec: decodetest.New(),
	}
	open := device.NullOpener(h.dev)

	cfg := config.Default()
	cfg.SampleRate = testRate

	base := []Option{
		WithConfig(cfg),
		WithLogger(slog.New(slog.DiscardHandler)),
		WithDecoder(h.dec.Decode),
		WithFetcher(reverb.FSFetcher{FS: impulses()}),
		WithOpener(func(ctx context.Context, c device.Config) (device.Device, error) {
			h.opens.Add(1)
			return open(ctx, c)
		}),
	}
	eng, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close() })
	h.eng = eng
	return h
}

func (h *harness) load(t *testing.T, slot mix.Slot, content string) {
	t.Helper()
	if err := h.eng.SetSource(slot, []byte(content), content+".wav"); err != nil {
		t.Fatalf("SetSource(%v): %v", slot, err)
	}
}

func (h *harness) waitLoaded(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.eng.WaitLoaded(ctx); err != nil {
		t.Fatalf("WaitLoaded: %v", err)
	}
}

func (h *harness) activate(t *testing.T) {
	t.Helper()
	if err := h.eng.Activate(context.Background()); err != nil {
		t.Fatalf("Activate: %v", err)
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.SampleRate = 0
	if _, err := New(WithConfig(cfg)); err == nil {
		t.Fatal("New() with zero sample rate succeeded")
	}
}

func TestActivate_Idempotent(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.eng.Activate(context.Background())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Activate: %v", err)
		}
	}

	if got := h.opens.Load(); got != 1 {
		t.Errorf("device opened %d times, want 1", got)
	}
	if h.eng.builds != 1 {
		t.Errorf("topology built %d times, want 1", h.eng.builds)
	}
	if h.eng.State() != Ready {
		t.Errorf("State() = %v, want ready", h.eng.State())
	}
	select {
	case <-h.eng.Ready():
	default:
		t.Error("Ready() not closed after Activate")
	}
}

func TestActivate_DeviceUnavailable(t *testing.T) {
	t.Parallel()

	noCard := errors.New("no sound card")
	var calls atomic.Int32
	open := func(ctx context.Context, c device.Config) (device.Device, error) {
		if calls.Add(1) == 1 {
			return nil, noCard
		}
		return device.NewNull(c.SampleRate), nil
	}
	h := newHarness(t, WithOpener(open))

	err := h.eng.Activate(context.Background())
	if !errors.Is(err, ErrDeviceUnavailable) || !errors.Is(err, noCard) {
		t.Fatalf("Activate() = %v, want ErrDeviceUnavailable wrapping %v", err, noCard)
	}
	if h.eng.State() != Uninitialized {
		t.Errorf("State() = %v after failure, want uninitialized", h.eng.State())
	}
	if n := h.eng.Trigger(mix.Position{}, mix.Blend, 0); n != 0 {
		t.Errorf("Trigger() after failed Activate = %d, want 0", n)
	}

	h.activate(t)
	if h.eng.State() != Ready {
		t.Errorf("State() = %v after retry, want ready", h.eng.State())
	}
}

func TestActivate_RateMismatch(t *testing.T) {
	t.Parallel()

	open := device.NullOpener(device.NewNull(44100))
	h := newHarness(t, WithOpener(open))

	if err := h.eng.Activate(context.Background()); !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("Activate() = %v, want ErrDeviceUnavailable", err)
	}
}

func TestActivate_CanceledContext(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := h.eng.Activate(ctx); err == nil {
		t.Fatal("Activate() with canceled context succeeded")
	}
	if h.eng.State() == Ready {
		t.Error("engine became ready with canceled context")
	}
}

// gatedDevice holds Start until release is closed.
type gatedDevice struct {
	*device.Null
	entered chan struct{}
	release chan struct{}
}

func (g *gatedDevice) Start(ctx context.Context, r device.Renderer) error {
	close(g.entered)
	<-g.release
	return g.Null.Start(ctx, r)
}

func TestActivate_ReverbChangedWhileStarting(t *testing.T) {
	t.Parallel()

	gd := &gatedDevice{
		Null:    device.NewNull(testRate),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	h := newHarness(t, WithOpener(func(context.Context, device.Config) (device.Device, error) {
		return gd, nil
	}))

	done := make(chan error, 1)
	go func() { done <- h.eng.Activate(context.Background()) }()

	<-gd.entered
	h.eng.SetReverbPreset(reverb.Hall)
	h.eng.SetReverbWet(0.3)
	close(gd.release)
	if err := <-done; err != nil {
		t.Fatalf("Activate: %v", err)
	}
	h.waitLoaded(t)

	type gains struct{ Dry, Wet float64 }
	want := gains{0.7, 0.3}
	dry, wet := h.eng.topo.DryWet()
	if diff := cmp.Diff(want, gains{dry, wet}, approx); diff != "" {
		t.Errorf("graph gains mismatch (-want +got):\n%s", diff)
	}
	if got := h.eng.loader.Preset(); got != reverb.Hall {
		t.Errorf("loader preset = %v, want hall", got)
	}
	if !h.eng.topo.HasImpulse() || h.eng.topo.Bypassed() {
		t.Errorf("impulse installed = %v, bypassed = %v; want installed and active",
			h.eng.topo.HasImpulse(), h.eng.topo.Bypassed())
	}
}

func TestTrigger_BeforeActivate(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.load(t, mix.TopLeft, "kick")
	h.waitLoaded(t)

	if n := h.eng.Trigger(mix.Position{}, mix.Blend, 0); n != 0 {
		t.Errorf("Trigger() = %d before Activate, want 0", n)
	}
	if v := h.eng.Voices(); len(v) != 0 {
		t.Errorf("Voices() = %v before Activate, want none", v)
	}
}

func TestTrigger_BlendCorner(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	for _, s := range mix.Slots {
		h.load(t, s, "clip-"+s.String())
	}
	h.waitLoaded(t)
	h.activate(t)

	if n := h.eng.Trigger(mix.Position{X: 0, Y: 0}, mix.Blend, 0); n != 1 {
		t.Fatalf("Trigger() = %d, want 1", n)
	}

	want := []Voice{{
		Slot:      mix.TopLeft,
		Amplitude: 1,
		Pan:       0,
		Frames:    len("clip-top-left"),
	}}
	if diff := cmp.Diff(want, h.eng.Voices(), approx); diff != "" {
		t.Errorf("Voices() mismatch (-want +got):\n%s", diff)
	}
}

func TestTrigger_BlendCenter(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	for _, s := range mix.Slots {
		h.load(t, s, "x")
	}
	h.waitLoaded(t)
	h.activate(t)

	if n := h.eng.Trigger(mix.Position{X: 0.5, Y: 0.5}, mix.Blend, -0.25); n != 4 {
		t.Fatalf("Trigger() = %d, want 4", n)
	}
	var sum float64
	for _, v := range h.eng.Voices() {
		sum += v.Amplitude
		if v.Pan != -0.25 {
			t.Errorf("voice %v pan = %v, want -0.25", v.Slot, v.Pan)
		}
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("amplitudes sum to %v, want 1", sum)
	}
}

func TestTrigger_PanMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		pos    mix.Position
		offset float64
		want   []Voice
	}{
		{
			name: "center",
			pos:  mix.Position{X: 0.5, Y: 0.5},
			want: []Voice{
				{Slot: mix.TopLeft, Amplitude: 0.5, Pan: 0, Frames: 3},
				{Slot: mix.BottomLeft, Amplitude: 0.5, Pan: 0, Frames: 3},
			},
		},
		{
			name: "right edge",
			pos:  mix.Position{X: 1, Y: 0.5},
			want: []Voice{
				{Slot: mix.TopLeft, Amplitude: 0.5, Pan: 1, Frames: 3},
				{Slot: mix.BottomLeft, Amplitude: 0.5, Pan: 1, Frames: 3},
			},
		},
		{
			name:   "offset clamps",
			pos:    mix.Position{X: 0, Y: 0},
			offset: -0.5,
			want: []Voice{
				{Slot: mix.TopLeft, Amplitude: 1, Pan: -1, Frames: 3},
			},
		},
		{
			name: "bottom row",
			pos:  mix.Position{X: 0.75, Y: 1},
			want: []Voice{
				{Slot: mix.BottomLeft, Amplitude: 1, Pan: 0.5, Frames: 3},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			for _, s := range mix.Slots {
				h.load(t, s, "abc")
			}
			h.waitLoaded(t)
			h.activate(t)

			if n := h.eng.Trigger(tt.pos, mix.Pan, tt.offset); n != len(tt.want) {
				t.Fatalf("Trigger() = %d, want %d", n, len(tt.want))
			}
			if diff := cmp.Diff(tt.want, h.eng.Voices(), approx); diff != "" {
				t.Errorf("Voices() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTrigger_VolumeAndEmptySlots(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.load(t, mix.TopLeft, "left")
	h.load(t, mix.TopRight, "right")
	h.waitLoaded(t)
	h.activate(t)

	if err := h.eng.SetVolume(mix.TopLeft, 0.5); err != nil {
		t.Fatalf("SetVolume: %v", err)
	}
	if err := h.eng.SetVolume(mix.TopRight, 0); err != nil {
		t.Fatalf("SetVolume: %v", err)
	}

	// Top-left and top-right share the top row; the bottom row is empty.
	n := h.eng.Trigger(mix.Position{X: 0.5, Y: 0.5}, mix.Blend, 0)
	if n != 1 {
		t.Fatalf("Trigger() = %d, want 1", n)
	}
	got := h.eng.Voices()[0]
	if got.Slot != mix.TopLeft || math.Abs(got.Amplitude-0.125) > 1e-9 {
		t.Errorf("voice = %+v, want top-left at 0.125", got)
	}

	if err := h.eng.SetVolume(mix.Slot(9), 1); !errors.Is(err, ErrInvalidSlot) {
		t.Errorf("SetVolume(9) = %v, want ErrInvalidSlot", err)
	}
	if err := h.eng.SetVolume(mix.TopLeft, 3); err != nil || h.eng.Volume(mix.TopLeft) != 1 {
		t.Errorf("SetVolume(3) = %v, Volume() = %v, want clamp to 1", err, h.eng.Volume(mix.TopLeft))
	}
}

func TestTrigger_SourceReplacedWhileDecoding(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.load(t, mix.TopLeft, "old")
	h.waitLoaded(t)
	h.activate(t)

	release := h.dec.Hold("new-clip")
	h.load(t, mix.TopLeft, "new-clip")

	if n := h.eng.Trigger(mix.Position{}, mix.Blend, 0); n != 0 {
		t.Errorf("Trigger() = %d while replacement decodes, want 0", n)
	}

	release()
	h.waitLoaded(t)

	if n := h.eng.Trigger(mix.Position{}, mix.Blend, 0); n != 1 {
		t.Fatalf("Trigger() = %d after decode, want 1", n)
	}
	if got := h.eng.Voices()[0].Frames; got != len("new-clip") {
		t.Errorf("voice frames = %d, want %d", got, len("new-clip"))
	}
	if got := h.eng.SourceName(mix.TopLeft); got != "new-clip.wav" {
		t.Errorf("SourceName() = %q", got)
	}
}

func TestTrigger_SuspendAndResume(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.load(t, mix.TopLeft, "kick")
	h.waitLoaded(t)

	if err := h.eng.Suspend(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Suspend() before Activate = %v, want ErrNotReady", err)
	}

	h.activate(t)
	if err := h.eng.Suspend(); err != nil {
		t.Fatalf("Suspend: %v", err)
	}
	if n := h.eng.Trigger(mix.Position{}, mix.Blend, 0); n != 0 {
		t.Errorf("Trigger() while suspended = %d, want 0", n)
	}

	h.activate(t)
	if h.dev.State() != device.Running {
		t.Fatalf("device state = %v after re-Activate, want running", h.dev.State())
	}
	if n := h.eng.Trigger(mix.Position{}, mix.Blend, 0); n != 1 {
		t.Errorf("Trigger() after resume = %d, want 1", n)
	}
	if got := h.opens.Load(); got != 1 {
		t.Errorf("device opened %d times, want 1", got)
	}
}

func TestRender_ProducesPannedAudio(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.load(t, mix.TopLeft, "0123456789")
	h.waitLoaded(t)
	h.activate(t)

	h.eng.Trigger(mix.Position{}, mix.Blend, -1)
	out := h.dev.Pull(16)

	// decodetest renders 0.5; hard left puts it all in the left channel.
	if math.Abs(float64(out[0])-0.5) > 1e-6 || math.Abs(float64(out[1])) > 1e-6 {
		t.Errorf("first frame = (%v, %v), want (0.5, 0)", out[0], out[1])
	}
	for i := 20; i < 32; i++ {
		if out[i] != 0 {
			t.Fatalf("sample %d = %v after the clip ended, want 0", i, out[i])
		}
	}
	if n := len(h.eng.Voices()); n != 0 {
		t.Errorf("%d voices left after the clip ended", n)
	}
}

func TestReverb_DryWet(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	dry, wet := h.eng.DryWet()
	if dry != 1 || wet != 0 {
		t.Errorf("default DryWet() = (%v, %v), want (1, 0)", dry, wet)
	}

	h.eng.SetReverbWet(0.3)
	dry, wet = h.eng.DryWet()
	if dry != 1 || wet != 0 {
		t.Errorf("DryWet() with preset none = (%v, %v), want (1, 0)", dry, wet)
	}

	h.eng.SetReverbPreset(reverb.Hall)
	h.activate(t)
	h.waitLoaded(t)

	type gains struct{ Dry, Wet float64 }
	want := gains{0.7, 0.3}
	dry, wet = h.eng.DryWet()
	if diff := cmp.Diff(want, gains{dry, wet}, approx); diff != "" {
		t.Errorf("DryWet() mismatch (-want +got):\n%s", diff)
	}
	dry, wet = h.eng.topo.DryWet()
	if diff := cmp.Diff(want, gains{dry, wet}, approx); diff != "" {
		t.Errorf("graph gains mismatch (-want +got):\n%s", diff)
	}
	if !h.eng.topo.HasImpulse() || h.eng.topo.Bypassed() {
		t.Errorf("impulse installed = %v, bypassed = %v; want installed and active",
			h.eng.topo.HasImpulse(), h.eng.topo.Bypassed())
	}

	h.eng.SetReverbPreset(reverb.None)
	if !h.eng.topo.Bypassed() {
		t.Error("preset none did not bypass the convolver")
	}
	dry, wet = h.eng.topo.DryWet()
	if dry != 1 || wet != 0 {
		t.Errorf("graph gains after none = (%v, %v), want (1, 0)", dry, wet)
	}
	if h.eng.ReverbWet() != 0.3 {
		t.Errorf("ReverbWet() = %v, want the stored 0.3", h.eng.ReverbWet())
	}
}

func TestClose(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.load(t, mix.TopLeft, "kick")
	h.waitLoaded(t)
	h.activate(t)
	h.eng.Trigger(mix.Position{}, mix.Blend, 0)

	if err := h.eng.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.eng.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	if h.eng.State() != Closed {
		t.Errorf("State() = %v, want closed", h.eng.State())
	}
	if h.dev.State() != device.Closed {
		t.Errorf("device state = %v, want closed", h.dev.State())
	}
	if n := h.eng.Trigger(mix.Position{}, mix.Blend, 0); n != 0 {
		t.Errorf("Trigger() after Close = %d", n)
	}
	if err := h.eng.SetSource(mix.TopLeft, []byte("x"), "x"); !errors.Is(err, ErrClosed) {
		t.Errorf("SetSource() after Close = %v, want ErrClosed", err)
	}
	if err := h.eng.Activate(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Activate() after Close = %v, want ErrClosed", err)
	}
}

func TestTrigger_RecordsMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	h := newHarness(t, WithMetrics(m))
	h.eng.Trigger(mix.Position{}, mix.Blend, 0)

	h.load(t, mix.TopLeft, "ab")
	h.load(t, mix.BottomLeft, "ab")
	h.waitLoaded(t)
	h.activate(t)
	h.eng.Trigger(mix.Position{Y: 0.5}, mix.Pan, 0)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	got := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if sum, ok := met.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					got[met.Name] += dp.Value
				}
			}
		}
	}
	want := map[string]int64{
		"padmix.voices.started":   2,
		"padmix.voices.active":    2,
		"padmix.triggers.skipped": 1,
	}
	for name, w := range want {
		if got[name] != w {
			t.Errorf("%s = %d, want %d", name, got[name], w)
		}
	}
}

func TestTrigger_MetricsCountStartedVoicesOnly(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	dec := decodetest.New()
	wide := func(data []byte, name string, sampleRate int) (*audio.Buffer, error) {
		if string(data) == "wide" {
			return &audio.Buffer{Samples: make([]float32, 3*8), Channels: 3, SampleRate: sampleRate}, nil
		}
		return dec.Decode(data, name, sampleRate)
	}
	h := newHarness(t, WithMetrics(m), WithDecoder(wide))

	h.load(t, mix.TopLeft, "ab")
	h.load(t, mix.BottomLeft, "wide")
	h.waitLoaded(t)
	h.activate(t)
	if n := h.eng.Trigger(mix.Position{Y: 0.5}, mix.Pan, 0); n != 1 {
		t.Fatalf("Trigger() = %d, want 1", n)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	got := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if sum, ok := met.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					got[met.Name] += dp.Value
				}
			}
		}
	}
	if got["padmix.voices.started"] != 1 || got["padmix.voices.active"] != 1 {
		t.Errorf("voices.started = %d, voices.active = %d; want 1 each",
			got["padmix.voices.started"], got["padmix.voices.active"])
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	for s, want := range map[State]string{
		Uninitialized: "uninitialized",
		Activating:    "activating",
		Ready:         "ready",
		Closed:        "closed",
		State(7):      "State(7)",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int32(s), got, want)
		}
	}
}
