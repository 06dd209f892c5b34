// SPDX-License-Identifier: EPL-2.0

package padmix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/ik5/padmix/audio"
	"github.com/ik5/padmix/cache"
	"github.com/ik5/padmix/device"
	"github.com/ik5/padmix/graph"
	"github.com/ik5/padmix/internal/config"
	"github.com/ik5/padmix/internal/observe"
	"github.com/ik5/padmix/mix"
	"github.com/ik5/padmix/reverb"
	"github.com/ik5/padmix/utils"
)

// State is the lifecycle state of an Engine.
type State int32

const (
	Uninitialized State = iota
	Activating
	Ready
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Activating:
		return "activating"
	case Ready:
		return "ready"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Voice is a snapshot of one playing voice.
type Voice struct {
	Slot      mix.Slot
	Amplitude float64
	Pan       float64
	Frames    int
	Position  int
}

// Engine owns the sample cache, the mixing graph and the output device.
// Every method is safe for concurrent use.
type Engine struct {
	cfg     *config.Config
	log     *slog.Logger
	metrics *observe.Metrics
	opener  device.Opener
	fetcher reverb.Fetcher
	decode  audio.DecodeFunc

	cache *cache.Cache

	activate *semaphore.Weighted
	state    atomic.Int32
	ready    chan struct{}

	mu      sync.RWMutex
	dev     device.Device
	topo    *graph.Topology
	loader  *reverb.Loader
	volumes [mix.NumSlots]float64
	preset  reverb.Preset
	wet     float64
	builds  int
}

// New returns an uninitialized engine. Sources may be assigned right away;
// no device is touched until Activate.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:      config.Default(),
		log:      slog.Default(),
		activate: semaphore.NewWeighted(1),
		ready:    make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}

	if err := config.Validate(e.cfg); err != nil {
		return nil, err
	}
	preset, err := reverb.ParsePreset(e.cfg.Reverb.Preset)
	if err != nil {
		return nil, err
	}

	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	if e.opener == nil {
		e.opener = device.OpenOto
	}
	if e.fetcher == nil {
		e.fetcher = defaultFetcher(e.cfg)
	}

	vol := utils.Clamp01(e.cfg.DefaultVolume)
	for i := range e.volumes {
		e.volumes[i] = vol
	}
	e.preset = preset
	e.wet = utils.Clamp01(e.cfg.Reverb.Wet)

	cacheOpts := []cache.Option{
		cache.WithLogger(e.log),
		cache.WithMetrics(e.metrics),
		cache.WithWorkers(e.cfg.DecodeWorkers),
	}
	if e.decode != nil {
		cacheOpts = append(cacheOpts, cache.WithDecoder(e.decode))
	}
	e.cache = cache.New(e.cfg.SampleRate, cacheOpts...)

	return e, nil
}

func defaultFetcher(cfg *config.Config) reverb.Fetcher {
	if cfg.Reverb.AssetsURL != "" {
		return reverb.HTTPFetcher{BaseURL: cfg.Reverb.AssetsURL}
	}
	return reverb.FSFetcher{FS: os.DirFS(cfg.Reverb.AssetsDir)}
}

// State reports the lifecycle state.
func (e *Engine) State() State { return State(e.state.Load()) }

// Ready is closed once the first Activate succeeds.
func (e *Engine) Ready() <-chan struct{} { return e.ready }

// SampleRate is the mixing and device rate.
func (e *Engine) SampleRate() int { return e.cfg.SampleRate }

// Activate opens the output device and builds the mixing graph. Only the
// first successful call does any work; concurrent callers wait for it. On
// a ready engine it resumes a suspended device.
//
// Device failures are reported wrapped in ErrDeviceUnavailable and leave
// the engine uninitialized so the call can be retried.
func (e *Engine) Activate(ctx context.Context) error {
	if err := e.activate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.activate.Release(1)

	switch e.State() {
	case Closed:
		return ErrClosed
	case Ready:
		return e.resume()
	}
	if !e.state.CompareAndSwap(int32(Uninitialized), int32(Activating)) {
		return ErrClosed
	}

	dev, err := e.opener(ctx, device.Config{
		SampleRate: e.cfg.SampleRate,
		Buffer:     e.cfg.BufferDuration(),
	})
	if err != nil {
		e.state.CompareAndSwap(int32(Activating), int32(Uninitialized))
		e.log.Error("engine: failed to open device", "err", err)
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	if dev.SampleRate() != e.cfg.SampleRate {
		_ = dev.Close()
		e.state.CompareAndSwap(int32(Activating), int32(Uninitialized))
		return fmt.Errorf("%w: device runs at %d Hz, want %d Hz",
			ErrDeviceUnavailable, dev.SampleRate(), e.cfg.SampleRate)
	}

	topo := graph.New(e.cfg.SampleRate,
		graph.WithLogger(e.log),
		graph.WithVoiceDone(func(graph.VoiceInfo) {
			e.metrics.AddActiveVoices(context.Background(), -1)
		}),
	)

	loaderOpts := []reverb.Option{
		reverb.WithLogger(e.log),
		reverb.WithMetrics(e.metrics),
	}
	if e.decode != nil {
		loaderOpts = append(loaderOpts, reverb.WithDecoder(e.decode))
	}
	loader := reverb.NewLoader(topo, e.fetcher, e.cfg.AssetMap(), e.cfg.SampleRate, loaderOpts...)

	e.mu.RLock()
	topo.SetDryWet(mix.WetDry(e.preset.Enabled(), e.wet))
	e.mu.RUnlock()

	if err := dev.Start(ctx, topo); err != nil {
		_ = loader.Close()
		_ = dev.Close()
		topo.Close()
		e.state.CompareAndSwap(int32(Activating), int32(Uninitialized))
		e.log.Error("engine: failed to start device", "err", err)
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	e.mu.Lock()
	if !e.state.CompareAndSwap(int32(Activating), int32(Ready)) {
		e.mu.Unlock()
		_ = loader.Close()
		_ = dev.Close()
		topo.Close()
		return ErrClosed
	}
	// Reverb settings may have changed while the device was starting.
	e.dev, e.topo, e.loader = dev, topo, loader
	e.builds++
	e.applyDryWetLocked()
	preset := e.preset
	loader.SetPreset(preset)
	e.mu.Unlock()

	close(e.ready)

	e.log.Info("engine: ready",
		"sample_rate", e.cfg.SampleRate,
		"buffer", e.cfg.BufferDuration(),
		"reverb", preset)
	return nil
}

func (e *Engine) resume() error {
	e.mu.RLock()
	dev := e.dev
	e.mu.RUnlock()

	if dev == nil || dev.State() != device.Suspended {
		return nil
	}
	if err := dev.Resume(); err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	e.log.Debug("engine: resumed")
	return nil
}

// Suspend pauses the device. Triggers are ignored until Activate resumes it.
func (e *Engine) Suspend() error {
	if e.State() != Ready {
		return ErrNotReady
	}
	e.mu.RLock()
	dev := e.dev
	e.mu.RUnlock()
	if dev == nil {
		return ErrNotReady
	}
	return dev.Suspend()
}

// SetSource assigns encoded audio to slot and starts decoding it in the
// background. Empty content clears the slot.
func (e *Engine) SetSource(slot mix.Slot, content []byte, name string) error {
	if e.State() == Closed {
		return ErrClosed
	}
	return e.cache.SetSource(slot, content, name)
}

// ClearSource empties slot.
func (e *Engine) ClearSource(slot mix.Slot) error {
	if e.State() == Closed {
		return ErrClosed
	}
	return e.cache.ClearSource(slot)
}

// SourceName is the name given with the current content of slot.
func (e *Engine) SourceName(slot mix.Slot) string { return e.cache.Name(slot) }

// Loaded reports whether slot has a decoded buffer.
func (e *Engine) Loaded(slot mix.Slot) bool { return e.cache.Buffer(slot) != nil }

// SetVolume sets the gain applied to future voices of slot. It is clamped
// to [0, 1]; voices already playing keep their amplitude.
func (e *Engine) SetVolume(slot mix.Slot, v float64) error {
	if !slot.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, int(slot))
	}
	if math.IsNaN(v) {
		v = 0
	}
	e.mu.Lock()
	e.volumes[slot] = utils.Clamp01(v)
	e.mu.Unlock()
	return nil
}

// Volume returns the volume of slot, or 0 for an invalid slot.
func (e *Engine) Volume(slot mix.Slot) float64 {
	if !slot.Valid() {
		return 0
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.volumes[slot]
}

// SetReverbPreset selects the impulse response. None bypasses the
// convolver at once; other presets are loaded in the background while
// the previous one keeps playing. Before activation the choice is stored
// and applied by Activate.
func (e *Engine) SetReverbPreset(p reverb.Preset) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.preset = p
	e.applyDryWetLocked()
	if e.loader != nil {
		e.loader.SetPreset(p)
	}
}

// ReverbPreset is the preset last selected.
func (e *Engine) ReverbPreset() reverb.Preset {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.preset
}

// SetReverbWet sets the wet fraction, clamped to [0, 1]. It has no
// audible effect while the preset is None.
func (e *Engine) SetReverbWet(w float64) {
	if math.IsNaN(w) {
		w = 0
	}
	e.mu.Lock()
	e.wet = utils.Clamp01(w)
	e.applyDryWetLocked()
	e.mu.Unlock()
}

// ReverbWet is the stored wet fraction.
func (e *Engine) ReverbWet() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.wet
}

// DryWet returns the bus gains the current preset and wet fraction
// resolve to.
func (e *Engine) DryWet() (dry, wet float64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return mix.WetDry(e.preset.Enabled(), e.wet)
}

func (e *Engine) applyDryWetLocked() {
	if e.topo == nil {
		return
	}
	e.topo.SetDryWet(mix.WetDry(e.preset.Enabled(), e.wet))
}

// Trigger starts one voice per slot with a positive gain at pos. The
// slot gains come from mode; in Pan mode panOffset biases the horizontal
// pan, in Blend mode it is the pan itself. Slots without a decoded buffer
// or with zero volume are skipped.
//
// Trigger never blocks on I/O. Before activation, after Close or while the
// device is suspended it does nothing. It returns the number of voices
// started.
func (e *Engine) Trigger(pos mix.Position, mode mix.AxisMode, panOffset float64) int {
	ctx := context.Background()

	if e.State() != Ready {
		e.metrics.RecordSkip(ctx, "not_ready")
		e.log.Debug("engine: trigger ignored", "state", e.State())
		return 0
	}

	e.mu.RLock()
	topo, dev, vols := e.topo, e.dev, e.volumes
	e.mu.RUnlock()
	if topo == nil || dev == nil {
		e.metrics.RecordSkip(ctx, "not_ready")
		return 0
	}

	if dev.State() != device.Running {
		e.metrics.RecordSkip(ctx, "suspended")
		e.log.Debug("engine: trigger ignored", "device", dev.State())
		return 0
	}

	gains, pan := mix.Compute(mode, pos, panOffset)

	var specs [mix.NumSlots]graph.VoiceSpec
	n := 0
	for _, s := range mix.Slots {
		amp := gains[s] * vols[s]
		if !(amp > 0) {
			continue
		}
		buf := e.cache.Buffer(s)
		if buf == nil {
			continue
		}
		specs[n] = graph.VoiceSpec{Buffer: buf, Amplitude: amp, Tag: int(s)}
		n++
	}

	tags := topo.StartTags(pan, specs[:n]...)
	if len(tags) == 0 {
		e.metrics.RecordSkip(ctx, "silent")
		e.log.Debug("engine: trigger produced no voices", "mode", mode, "x", pos.X, "y", pos.Y)
		return 0
	}

	for _, tag := range tags {
		e.metrics.RecordVoice(ctx, mix.Slot(tag).String(), mode.String())
	}
	e.metrics.AddActiveVoices(ctx, int64(len(tags)))
	e.log.Debug("engine: trigger",
		"mode", mode, "x", pos.X, "y", pos.Y, "pan", pan, "voices", len(tags))
	return len(tags)
}

// Voices returns a snapshot of the voices currently playing.
func (e *Engine) Voices() []Voice {
	e.mu.RLock()
	topo := e.topo
	e.mu.RUnlock()
	if topo == nil {
		return nil
	}

	infos := topo.Voices()
	out := make([]Voice, len(infos))
	for i, v := range infos {
		out[i] = Voice{
			Slot:      mix.Slot(v.Tag),
			Amplitude: v.Amplitude,
			Pan:       v.Pan,
			Frames:    v.Frames,
			Position:  v.Position,
		}
	}
	return out
}

// WaitLoaded blocks until every pending source decode and impulse load
// has finished, or ctx is done.
func (e *Engine) WaitLoaded(ctx context.Context) error {
	if err := e.cache.Wait(ctx); err != nil {
		return err
	}
	e.mu.RLock()
	loader := e.loader
	e.mu.RUnlock()
	if loader == nil {
		return nil
	}
	return loader.Wait(ctx)
}

// Close stops the device, releases every voice and cancels pending decodes.
// It is safe to call more than once.
func (e *Engine) Close() error {
	if State(e.state.Swap(int32(Closed))) == Closed {
		return nil
	}

	e.mu.Lock()
	dev, topo, loader := e.dev, e.topo, e.loader
	e.dev, e.topo, e.loader = nil, nil, nil
	e.mu.Unlock()

	var errs []error
	if loader != nil {
		errs = append(errs, loader.Close())
	}
	if dev != nil {
		errs = append(errs, dev.Close())
	}
	if topo != nil {
		topo.Close()
	}
	errs = append(errs, e.cache.Close())

	e.log.Info("engine: closed")
	return errors.Join(errs...)
}
