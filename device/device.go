// SPDX-License-Identifier: EPL-2.0

// Package device abstracts the audio output the mixing graph is pulled
// by. A Device asks its Renderer for interleaved stereo float32 frames
// whenever it needs more audio.
//
// The oto backend plays through the system mixer and is left out of
// builds with the headless tag. [Null] never touches hardware and renders
// only when pulled, which suits tests and offline rendering.
package device

import (
	"context"
	"fmt"
	"time"
)

// State is the run state of a device.
type State int32

const (
	Closed State = iota
	Suspended
	Running
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Suspended:
		return "suspended"
	case Running:
		return "running"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Renderer produces interleaved stereo frames. Render is called from the
// device goroutine and must not block.
type Renderer interface {
	Render(dst []float32)
}

// Device is an opened audio output.
type Device interface {
	SampleRate() int
	// Channels is always 2.
	Channels() int
	State() State
	// Start attaches r and begins pulling. Calling it twice is an error.
	Start(ctx context.Context, r Renderer) error
	Suspend() error
	Resume() error
	Close() error
}

// Config describes the output to open.
type Config struct {
	SampleRate int
	// Buffer is the requested device latency.
	Buffer time.Duration
}

// Opener opens a device. It may block until the platform output is ready
// and should give up when ctx is done.
type Opener func(ctx context.Context, cfg Config) (Device, error)
