// SPDX-License-Identifier: EPL-2.0

package reverb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ik5/padmix/audio"
	"github.com/ik5/padmix/formats"
	"github.com/ik5/padmix/internal/observe"
)

// Target is the convolution stage an impulse is installed into.
type Target interface {
	SetImpulse(ir *audio.Buffer) error
	// HasImpulse reports whether an impulse has ever been installed.
	HasImpulse() bool
	SetBypass(bypass bool)
}

// Loader resolves presets to impulse responses and installs them into a
// Target. The most recent SetPreset call wins.
type Loader struct {
	target  Target
	fetcher Fetcher
	assets  map[Preset]string
	rate    int
	decode  audio.DecodeFunc
	log     *slog.Logger
	metrics *observe.Metrics

	group singleflight.Group

	mu        sync.Mutex
	cache     map[string]*audio.Buffer // by asset path
	current   Preset
	installed Preset
	closed    bool

	// installMu orders preset changes against impulse installs so a stale
	// load can never replace a newer one.
	installMu sync.Mutex
	seq       atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(l *Loader) { l.log = log }
}

// WithMetrics records impulse decode timings and failures into m.
func WithMetrics(m *observe.Metrics) Option {
	return func(l *Loader) { l.metrics = m }
}

// WithDecoder replaces the decode step. The default sniffs the container
// and decodes with every format in the formats package.
func WithDecoder(fn audio.DecodeFunc) Option {
	return func(l *Loader) { l.decode = fn }
}

// NewLoader returns a loader that installs impulses resampled to
// sampleRate into target. assets maps every enabled preset to the path
// handed to fetcher; a nil map uses DefaultAssets.
func NewLoader(target Target, fetcher Fetcher, assets map[Preset]string, sampleRate int, opts ...Option) *Loader {
	if assets == nil {
		assets = DefaultAssets()
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loader{
		target:  target,
		fetcher: fetcher,
		assets:  assets,
		rate:    sampleRate,
		log:     slog.Default(),
		cache:   make(map[string]*audio.Buffer),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, o := range opts {
		o(l)
	}
	if l.decode == nil {
		l.decode = formats.NewBufferDecoder(formats.NewRegistry())
	}
	return l
}

// SetPreset selects p. None bypasses the target immediately. Any other
// preset re-enables an already installed impulse at once, then is loaded
// in the background and installed if no newer call has happened by then.
// It never blocks on I/O.
func (l *Loader) SetPreset(p Preset) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.current = p
	if p.Enabled() {
		l.wg.Add(1)
	}
	l.mu.Unlock()

	// An enabled preset plays the impulse already installed until its own
	// load lands, so a failed load leaves the previous reverb audible.
	l.installMu.Lock()
	seq := l.seq.Add(1)
	if !p.Enabled() {
		l.target.SetBypass(true)
	} else if l.target.HasImpulse() {
		l.target.SetBypass(false)
	}
	l.installMu.Unlock()

	if !p.Enabled() {
		l.log.Debug("reverb: bypassed")
		return
	}

	go func() {
		defer l.wg.Done()
		l.load(seq, p)
	}()
}

func (l *Loader) load(seq uint64, p Preset) {
	ir, err := l.impulse(l.ctx, p)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		l.log.Warn("reverb: impulse load failed, keeping previous", "preset", p, "err", err)
		return
	}

	l.installMu.Lock()
	defer l.installMu.Unlock()

	if l.seq.Load() != seq {
		l.log.Debug("reverb: dropping superseded impulse", "preset", p)
		return
	}
	if err := l.target.SetImpulse(ir); err != nil {
		l.metrics.RecordDecode(l.ctx, "impulse", 0, err)
		l.log.Warn("reverb: impulse rejected, keeping previous", "preset", p, "err", err)
		return
	}
	l.target.SetBypass(false)

	l.mu.Lock()
	l.installed = p
	l.mu.Unlock()

	l.log.Info("reverb: impulse installed", "preset", p, "frames", ir.Frames(), "channels", ir.Channels)
}

// impulse returns the decoded impulse for p, fetching it at most once per
// asset no matter how many loads ask concurrently.
func (l *Loader) impulse(ctx context.Context, p Preset) (*audio.Buffer, error) {
	asset, ok := l.assets[p]
	if !ok || asset == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoAsset, p)
	}

	l.mu.Lock()
	ir, ok := l.cache[asset]
	l.mu.Unlock()
	if ok {
		return ir, nil
	}

	v, err, _ := l.group.Do(asset, func() (any, error) {
		start := time.Now()
		ir, err := l.fetchAndDecode(ctx, asset)
		if !errors.Is(err, context.Canceled) {
			l.metrics.RecordDecode(ctx, "impulse", time.Since(start).Seconds(), err)
		}
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.cache[asset] = ir
		l.mu.Unlock()
		return ir, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*audio.Buffer), nil
}

func (l *Loader) fetchAndDecode(ctx context.Context, asset string) (*audio.Buffer, error) {
	data, err := l.fetcher.Fetch(ctx, asset)
	if err != nil {
		return nil, err
	}
	ir, err := l.decode(data, asset, l.rate)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", asset, err)
	}
	return ir, nil
}

// Preset returns the preset most recently requested.
func (l *Loader) Preset() Preset {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Installed returns the preset whose impulse currently sits in the target,
// or None if nothing was ever installed.
func (l *Loader) Installed() Preset {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.installed
}

// Wait blocks until every pending load has finished or ctx is done.
func (l *Loader) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels pending loads and waits for them to return. Later
// SetPreset calls are ignored.
func (l *Loader) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	l.cancel()
	l.wg.Wait()
	return nil
}
