// SPDX-License-Identifier: EPL-2.0

// Package audiotest holds fixtures shared by the package tests: synthetic
// sources and WAV byte builders. It must not import the audio package,
// whose own tests depend on it; the scripted decoder lives in decodetest.
package audiotest

import (
	"io"
	"math"
)

// MockSource generates audio from a waveform function.
// It implements audio.Source without importing it to avoid cycles.
type MockSource struct {
	sampleRate   int
	channels     int
	totalSamples int // frames to generate
	generated    int
	waveform     func(sample int, channel int) float32
	closed       bool
}

// NewMockSource creates a source of totalSamples frames.
func NewMockSource(sampleRate, channels, totalSamples int, waveform func(sample int, channel int) float32) *MockSource {
	return &MockSource{
		sampleRate:   sampleRate,
		channels:     channels,
		totalSamples: totalSamples,
		waveform:     waveform,
	}
}

// NewSilentSource creates a mock source that generates silence.
func NewSilentSource(sampleRate, channels, totalSamples int) *MockSource {
	return NewConstantSource(sampleRate, channels, totalSamples, 0)
}

// NewSineSource creates a mock source that generates a sine wave.
func NewSineSource(sampleRate, channels, totalSamples int, frequency float64) *MockSource {
	return NewMockSource(sampleRate, channels, totalSamples, func(sample int, _ int) float32 {
		t := float64(sample) / float64(sampleRate)
		return float32(math.Sin(2 * math.Pi * frequency * t))
	})
}

// NewConstantSource creates a mock source with constant value.
func NewConstantSource(sampleRate, channels, totalSamples int, value float32) *MockSource {
	return NewMockSource(sampleRate, channels, totalSamples, func(int, int) float32 {
		return value
	})
}

func (m *MockSource) SampleRate() int { return m.sampleRate }
func (m *MockSource) Channels() int   { return m.channels }
func (m *MockSource) BufSize() int    { return 4096 }

func (m *MockSource) Close() error {
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockSource) Closed() bool { return m.closed }

func (m *MockSource) ReadSamples(dst []float32) (int, error) {
	if m.generated >= m.totalSamples {
		return 0, io.EOF
	}

	frames := min(len(dst)/m.channels, m.totalSamples-m.generated)
	for frame := range frames {
		for ch := range m.channels {
			dst[frame*m.channels+ch] = m.waveform(m.generated+frame, ch)
		}
	}
	m.generated += frames

	if m.generated >= m.totalSamples {
		return frames * m.channels, io.EOF
	}
	return frames * m.channels, nil
}

// FailingSource returns err from the first read.
type FailingSource struct {
	sampleRate int
	channels   int
	err        error
}

func NewFailingSource(sampleRate, channels int, err error) *FailingSource {
	return &FailingSource{sampleRate: sampleRate, channels: channels, err: err}
}

func (f *FailingSource) SampleRate() int                    { return f.sampleRate }
func (f *FailingSource) Channels() int                      { return f.channels }
func (f *FailingSource) BufSize() int                       { return 4096 }
func (f *FailingSource) Close() error                       { return nil }
func (f *FailingSource) ReadSamples([]float32) (int, error) { return 0, f.err }
