// SPDX-License-Identifier: EPL-2.0

package mp3

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	gomp3 "github.com/hajimehoshi/go-mp3"

	"github.com/ik5/padmix/audio"
)

// mp3Reader is the part of gomp3.Decoder the source uses; tests swap it.
type mp3Reader interface {
	Read([]byte) (int, error)
	SampleRate() int
}

// go-mp3 always yields 16-bit little-endian stereo.
const (
	outChannels = 2
	frameBytes  = 2 * outChannels
)

type source struct {
	dec        mp3Reader
	sampleRate int
	buf        []byte
	pending    []byte // partial frame left over from a short read
}

func (s *source) SampleRate() int { return s.sampleRate }
func (s *source) Channels() int   { return outChannels }
func (s *source) Close() error    { return nil }
func (s *source) BufSize() int    { return cap(s.buf) / 2 }

func (s *source) ReadSamples(dst []float32) (int, error) {
	frames := len(dst) / outChannels
	if frames == 0 {
		return 0, nil
	}

	want := frames * frameBytes
	if cap(s.buf) < want {
		s.buf = make([]byte, want)
	}
	s.buf = s.buf[:want]

	carried := copy(s.buf, s.pending)
	s.pending = s.pending[:0]

	n, err := s.dec.Read(s.buf[carried:])
	n += carried

	whole := n - n%frameBytes
	s.pending = append(s.pending, s.buf[whole:n]...)

	samples := whole / 2
	for i := range samples {
		dst[i] = float32(int16(binary.LittleEndian.Uint16(s.buf[2*i:]))) / 32768.0
	}

	if err != nil && !errors.Is(err, io.EOF) {
		return samples, fmt.Errorf("mp3: read: %w", err)
	}
	return samples, err
}

// Decoder decodes MPEG-1/2 Layer III streams.
type Decoder struct{}

func (Decoder) Decode(r io.Reader) (audio.Source, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("mp3: %w", err)
	}

	return &source{
		dec:        dec,
		sampleRate: dec.SampleRate(),
		buf:        make([]byte, 8192),
	}, nil
}
