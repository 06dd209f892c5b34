// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"fmt"
	"io"

	"github.com/ik5/padmix/utils"
)

// Resampler streams from src to a target sample rate using cubic interpolation.
// Works on interleaved samples and preserves the channel count.
// A one-pole low-pass is applied to the input when downsampling.
type Resampler struct {
	src      Source
	dstRate  int
	step     float64 // source frames consumed per output frame
	channels int

	// Sliding window for interpolation: t-1, t0, t+1, t+2.
	window [4][]float32
	primed bool
	// tail counts padding frames shifted in after the source ended.
	// Output stops once padding reaches window[1].
	tail int

	// Fractional read position between window[1] and window[2].
	pos float64

	srcBuf []float32
	srcPos int
	srcLen int
	eof    bool
	err    error

	lowpass bool
	alpha   float32
	state   []float32
}

func NewResampler(src Source, dstRate int) *Resampler {
	channels := src.Channels()
	step := float64(src.SampleRate()) / float64(dstRate)

	r := &Resampler{
		src:      src,
		dstRate:  dstRate,
		step:     step,
		channels: channels,
		srcBuf:   make([]float32, 1024*channels),
		lowpass:  step > 1.0,
		alpha:    0.5,
		state:    make([]float32, channels),
	}
	for i := range r.window {
		r.window[i] = make([]float32, channels)
	}

	return r
}

func (r *Resampler) SampleRate() int { return r.dstRate }
func (r *Resampler) Channels() int   { return r.channels }
func (r *Resampler) BufSize() int    { return r.src.BufSize() }

func (r *Resampler) Close() error {
	if err := r.src.Close(); err != nil {
		return fmt.Errorf("%w", err)
	}
	return nil
}

// pull copies the next source frame into frame. It returns false once the
// source is exhausted or failed.
func (r *Resampler) pull(frame []float32) bool {
	stalls := 0
	for r.srcPos >= r.srcLen {
		if r.eof {
			return false
		}
		n, err := r.src.ReadSamples(r.srcBuf)
		r.srcPos, r.srcLen = 0, n-n%r.channels
		switch {
		case err == io.EOF:
			r.eof = true
		case err != nil:
			r.eof, r.err = true, err
		case n == 0:
			if stalls++; stalls > maxStalledReads {
				r.eof, r.err = true, io.ErrNoProgress
			}
		}
	}

	copy(frame, r.srcBuf[r.srcPos:r.srcPos+r.channels])
	r.srcPos += r.channels

	if r.lowpass {
		for c := range frame {
			frame[c] = r.alpha*frame[c] + (1-r.alpha)*r.state[c]
			r.state[c] = frame[c]
		}
	}
	return true
}

func (r *Resampler) prime() bool {
	r.primed = true
	if !r.pull(r.window[1]) {
		r.tail = 3
		return false
	}
	if r.lowpass {
		// Seed the filter with the first frame to avoid a warm-up transient.
		copy(r.state, r.window[1])
	}
	copy(r.window[0], r.window[1])
	for i := 2; i < 4; i++ {
		if !r.pull(r.window[i]) {
			copy(r.window[i], r.window[i-1])
			r.tail++
		}
	}
	return true
}

func (r *Resampler) shift() {
	recycled := r.window[0]
	r.window[0], r.window[1], r.window[2] = r.window[1], r.window[2], r.window[3]
	r.window[3] = recycled
	if !r.pull(recycled) {
		copy(recycled, r.window[2])
		r.tail++
	}
}

func (r *Resampler) finalErr() error {
	if r.err != nil {
		return fmt.Errorf("%w", r.err)
	}
	return io.EOF
}

// ReadSamples produces samples at the target rate.
// dst length must be a multiple of the channel count.
func (r *Resampler) ReadSamples(dst []float32) (int, error) {
	if len(dst)%r.channels != 0 {
		return 0, ErrInvalidDstSize
	}
	if !r.primed && !r.prime() {
		return 0, r.finalErr()
	}

	frames := len(dst) / r.channels
	written := 0
	for written < frames {
		for r.pos >= 1.0 {
			r.pos -= 1.0
			r.shift()
		}
		if r.tail >= 3 {
			break
		}

		alpha := float32(r.pos)
		out := dst[written*r.channels : (written+1)*r.channels]
		for c := range out {
			out[c] = utils.CubicInterpolate(r.window[0][c], r.window[1][c], r.window[2][c], r.window[3][c], alpha)
		}

		written++
		r.pos += r.step
	}

	if r.tail >= 3 {
		if written == 0 {
			return 0, r.finalErr()
		}
		return written * r.channels, r.finalErr()
	}
	return written * r.channels, nil
}
