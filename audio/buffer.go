// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// maxStalledReads bounds how many empty, error-free reads ReadBuffer
// tolerates before giving up on a source.
const maxStalledReads = 64

// Buffer is a fully decoded clip held in memory.
// Buffers are never mutated after ReadBuffer returns them, so they can be
// shared between the cache, the mixing graph and any number of voices.
type Buffer struct {
	// Samples are interleaved float32 values in [-1, 1].
	Samples    []float32
	Channels   int
	SampleRate int
}

// Frames returns the number of sample frames in the buffer.
func (b *Buffer) Frames() int {
	if b == nil || b.Channels == 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the playback length at the buffer's sample rate.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate == 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// DecodeFunc turns an encoded clip into a Buffer at sampleRate. name is the
// clip's file name and may be used as a format hint.
type DecodeFunc func(data []byte, name string, sampleRate int) (*Buffer, error)

// ReadBuffer drains src into a Buffer at targetRate.
//
// This function builds a processing pipeline:
//  1. Sources with more than two channels are folded to mono with a MonoMixer
//  2. The stream is resampled to targetRate with a Resampler when rates differ
//  3. All samples are collected into one contiguous slice
//
// Mono and stereo sources keep their channel layout. src is closed before
// ReadBuffer returns.
func ReadBuffer(src Source, targetRate int, bufferSize int) (*Buffer, error) {
	defer src.Close()

	if targetRate <= 0 {
		return nil, ErrInvalidRate
	}
	if src.Channels() <= 0 {
		return nil, ErrNoChannels
	}

	var stream Source = src
	if stream.Channels() > 2 {
		stream = NewMonoMixer(stream)
	}
	if stream.SampleRate() != targetRate {
		stream = NewResampler(stream, targetRate)
	}

	channels := stream.Channels()
	if bufferSize < channels {
		bufferSize = 4096
	}
	buf := make([]float32, bufferSize-bufferSize%channels)

	// Start with roughly two seconds and let append grow from there.
	samples := make([]float32, 0, targetRate*channels*2)

	stalls := 0
	for {
		n, err := stream.ReadSamples(buf)
		if n > 0 {
			samples = append(samples, buf[:n]...)
			stalls = 0
		} else if err == nil {
			if stalls++; stalls > maxStalledReads {
				return nil, io.ErrNoProgress
			}
		}

		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read samples: %w", err)
		}
	}

	// Drop a trailing partial frame, if the decoder produced one.
	samples = samples[:len(samples)-len(samples)%channels]
	if len(samples) == 0 {
		return nil, ErrEmptySource
	}

	return &Buffer{
		Samples:    samples,
		Channels:   channels,
		SampleRate: targetRate,
	}, nil
}
