// SPDX-License-Identifier: EPL-2.0

//go:build !headless

package device

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process; it is created on first use
// and shared by every device opened afterwards.
var (
	otoOnce  sync.Once
	otoCtx   *oto.Context
	otoReady chan struct{}
	otoErr   error
	otoRate  int
)

type rendererBox struct{ r Renderer }

type otoDevice struct {
	ctx  *oto.Context
	rate int

	mu     sync.Mutex // control operations only
	player *oto.Player
	state  atomic.Int32

	renderer atomic.Pointer[rendererBox]
	buf      []float32 // player goroutine only
}

// OpenOto opens the system output through oto at cfg.SampleRate, stereo
// float32. It waits for the platform driver to become ready or ctx to end.
func OpenOto(ctx context.Context, cfg Config) (Device, error) {
	otoOnce.Do(func() {
		otoRate = cfg.SampleRate
		otoCtx, otoReady, otoErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   cfg.SampleRate,
			ChannelCount: 2,
			Format:       oto.FormatFloat32LE,
			BufferSize:   cfg.Buffer,
		})
	})
	if otoErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, otoErr)
	}
	if otoRate != cfg.SampleRate {
		return nil, fmt.Errorf("%w: output already open at %d Hz", ErrUnavailable, otoRate)
	}

	select {
	case <-otoReady:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := otoCtx.Resume(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	d := &otoDevice{ctx: otoCtx, rate: cfg.SampleRate}
	d.state.Store(int32(Running))
	return d, nil
}

func (d *otoDevice) SampleRate() int { return d.rate }
func (d *otoDevice) Channels() int   { return 2 }

func (d *otoDevice) State() State {
	s := State(d.state.Load())
	if s == Running && d.ctx.Err() != nil {
		return Suspended
	}
	return s
}

func (d *otoDevice) Start(_ context.Context, r Renderer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if State(d.state.Load()) == Closed {
		return ErrClosed
	}
	if d.player != nil {
		return ErrAlreadyStarted
	}

	d.renderer.Store(&rendererBox{r: r})
	d.player = d.ctx.NewPlayer(d)
	d.player.Play()
	return nil
}

// Read feeds oto with whole stereo frames of little-endian float32. It
// never fails.
func (d *otoDevice) Read(p []byte) (int, error) {
	const frameBytes = 2 * 4
	box := d.renderer.Load()
	n := len(p) / frameBytes * frameBytes
	if box == nil || State(d.state.Load()) != Running {
		clear(p[:n])
		return n, nil
	}

	samples := n / 4
	if cap(d.buf) < samples {
		d.buf = make([]float32, samples)
	}
	buf := d.buf[:samples]
	box.r.Render(buf)

	for i, s := range buf {
		binary.LittleEndian.PutUint32(p[4*i:], math.Float32bits(s))
	}
	return n, nil
}

func (d *otoDevice) Suspend() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if State(d.state.Load()) == Closed {
		return ErrClosed
	}
	if err := d.ctx.Suspend(); err != nil {
		return fmt.Errorf("suspend output: %w", err)
	}
	d.state.Store(int32(Suspended))
	return nil
}

func (d *otoDevice) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if State(d.state.Load()) == Closed {
		return ErrClosed
	}
	if err := d.ctx.Resume(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	d.state.Store(int32(Running))
	return nil
}

// Close stops the player. The shared oto context stays alive for the next
// device.
func (d *otoDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if State(d.state.Swap(int32(Closed))) == Closed {
		return nil
	}
	d.renderer.Store(nil)
	if d.player == nil {
		return nil
	}
	err := d.player.Close()
	d.player = nil
	return err
}
