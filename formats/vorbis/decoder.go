// SPDX-License-Identifier: EPL-2.0

package vorbis

import (
	"errors"
	"fmt"
	"io"

	"github.com/jfreymuth/oggvorbis"

	"github.com/ik5/padmix/audio"
)

// oggReader is the part of oggvorbis.Reader the source uses.
type oggReader interface {
	SampleRate() int
	Channels() int
	Read([]float32) (int, error)
}

type source struct {
	dec        oggReader
	sampleRate int
	channels   int
	bufSize    int
}

func (s *source) SampleRate() int { return s.sampleRate }
func (s *source) Channels() int   { return s.channels }
func (s *source) Close() error    { return nil }
func (s *source) BufSize() int    { return s.bufSize }

func (s *source) ReadSamples(dst []float32) (int, error) {
	// oggvorbis counts interleaved values, so the request is trimmed to
	// whole frames.
	want := len(dst) - len(dst)%s.channels
	if want == 0 {
		return 0, nil
	}

	n, err := s.dec.Read(dst[:want])
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("vorbis: read: %w", err)
	}
	return n, err
}

// Decoder decodes Ogg Vorbis streams with any channel count.
type Decoder struct{}

func (Decoder) Decode(r io.Reader) (audio.Source, error) {
	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("vorbis: %w", err)
	}
	if dec.Channels() < 1 {
		return nil, audio.ErrNoChannels
	}

	return &source{
		dec:        dec,
		sampleRate: dec.SampleRate(),
		channels:   dec.Channels(),
		bufSize:    4096,
	}, nil
}
