// SPDX-License-Identifier: EPL-2.0

package graph

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-dsp/dsp/conv"

	"github.com/ik5/padmix/audio"
)

const (
	// Partition sizes for the convolution engine: 2^7 = 128 frames of
	// latency, growing to 2^13 for the long tail.
	minBlockOrder = 7
	maxBlockOrder = 13

	// Impulse normalization constants shared with browser convolvers so
	// the same IR files sound equally loud.
	gainCalibration           = -58.0 // dB
	gainCalibrationSampleRate = 44100.0
	minPower                  = 0.000125
)

// Convolver runs a stereo partitioned convolution. A mono impulse is used
// for both channels; a stereo impulse convolves each channel with its own
// side.
type Convolver struct {
	left    *conv.PartitionedConvolution
	right   *conv.PartitionedConvolution
	scale   float64
	latency int
}

// NewConvolver prepares a convolver for ir. The kernel is scaled by
// [NormalizationScale] before it is partitioned.
func NewConvolver(ir *audio.Buffer) (*Convolver, error) {
	if ir.Frames() == 0 {
		return nil, ErrEmptyImpulse
	}
	if ir.Channels != 1 && ir.Channels != 2 {
		return nil, ErrImpulseLayout
	}

	scale := NormalizationScale(ir)
	frames := ir.Frames()

	kernel := func(ch int) []float64 {
		k := make([]float64, frames)
		for i := range k {
			k[i] = float64(ir.Samples[i*ir.Channels+ch]) * scale
		}
		return k
	}

	left, err := conv.NewPartitionedConvolution(kernel(0), minBlockOrder, maxBlockOrder)
	if err != nil {
		return nil, fmt.Errorf("left convolution: %w", err)
	}
	rightCh := 0
	if ir.Channels == 2 {
		rightCh = 1
	}
	right, err := conv.NewPartitionedConvolution(kernel(rightCh), minBlockOrder, maxBlockOrder)
	if err != nil {
		return nil, fmt.Errorf("right convolution: %w", err)
	}

	return &Convolver{
		left:    left,
		right:   right,
		scale:   scale,
		latency: left.Latency(),
	}, nil
}

// NormalizationScale returns the gain that brings ir to a calibrated
// loudness: the inverse RMS power of the impulse, -58 dB of headroom and a
// correction relative to 44.1 kHz.
func NormalizationScale(ir *audio.Buffer) float64 {
	var power float64
	for _, s := range ir.Samples {
		power += float64(s) * float64(s)
	}
	if n := len(ir.Samples); n > 0 {
		power = math.Sqrt(power / float64(n))
	}
	if math.IsNaN(power) || math.IsInf(power, 0) || power < minPower {
		power = minPower
	}

	scale := 1 / power
	scale *= math.Pow(10, gainCalibration*0.05)
	if ir.SampleRate > 0 {
		scale *= gainCalibrationSampleRate / float64(ir.SampleRate)
	}
	return scale
}

// Process convolves one block per channel. All four slices must have the
// same length.
func (c *Convolver) Process(inL, inR, outL, outR []float64) error {
	if len(inR) != len(inL) || len(outL) != len(inL) || len(outR) != len(inL) {
		return ErrBlockMismatch
	}
	if err := c.left.ProcessBlock(inL, outL); err != nil {
		return fmt.Errorf("left: %w", err)
	}
	if err := c.right.ProcessBlock(inR, outR); err != nil {
		return fmt.Errorf("right: %w", err)
	}
	return nil
}

// Latency is the processing delay in frames.
func (c *Convolver) Latency() int { return c.latency }

// Scale is the normalization gain applied to the impulse.
func (c *Convolver) Scale() float64 { return c.scale }

// Reset clears the convolution history.
func (c *Convolver) Reset() {
	c.left.Reset()
	c.right.Reset()
}
