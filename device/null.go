// SPDX-License-Identifier: EPL-2.0

package device

import (
	"context"
	"sync"
)

// Null is a device without hardware. Audio is produced only by Pull.
type Null struct {
	rate int

	mu       sync.Mutex
	state    State
	renderer Renderer
	buf      []float32
	frames   int64
}

// NewNull returns a running Null device at sampleRate.
func NewNull(sampleRate int) *Null {
	return &Null{rate: sampleRate, state: Running}
}

// NullOpener returns an Opener that hands out d, or a fresh Null device
// at the requested rate when d is nil.
func NullOpener(d *Null) Opener {
	return func(ctx context.Context, cfg Config) (Device, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if d != nil {
			return d, nil
		}
		return NewNull(cfg.SampleRate), nil
	}
}

func (n *Null) SampleRate() int { return n.rate }
func (n *Null) Channels() int   { return 2 }

func (n *Null) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *Null) Start(_ context.Context, r Renderer) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == Closed {
		return ErrClosed
	}
	if n.renderer != nil {
		return ErrAlreadyStarted
	}
	n.renderer = r
	return nil
}

func (n *Null) Suspend() error {
	return n.setState(Suspended)
}

func (n *Null) Resume() error {
	return n.setState(Running)
}

func (n *Null) setState(s State) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == Closed {
		return ErrClosed
	}
	n.state = s
	return nil
}

func (n *Null) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state = Closed
	n.renderer = nil
	return nil
}

// Pull renders frames stereo frames and returns them interleaved. The
// returned slice is reused by the next call. A suspended, closed or
// unstarted device yields silence.
func (n *Null) Pull(frames int) []float32 {
	n.mu.Lock()
	defer n.mu.Unlock()

	if cap(n.buf) < frames*2 {
		n.buf = make([]float32, frames*2)
	}
	out := n.buf[:frames*2]

	if n.state != Running || n.renderer == nil {
		clear(out)
		return out
	}
	n.renderer.Render(out)
	n.frames += int64(frames)
	return out
}

// Frames is the number of frames rendered so far.
func (n *Null) Frames() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.frames
}
