// SPDX-License-Identifier: EPL-2.0

package aiff

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"

	"github.com/ik5/padmix/audio"
)

// aiffReader is the part of aiff.Decoder the source uses.
type aiffReader interface {
	Format() *goaudio.Format
	PCMBuffer(buf *goaudio.IntBuffer) (int, error)
}

type source struct {
	dec        aiffReader
	sampleRate int
	channels   int
	bitDepth   int
	intBuf     *goaudio.IntBuffer
	done       bool
}

func (s *source) SampleRate() int { return s.sampleRate }
func (s *source) Channels() int   { return s.channels }
func (s *source) Close() error    { return nil }

func (s *source) BufSize() int {
	if s.intBuf != nil {
		return cap(s.intBuf.Data)
	}
	return 4096
}

func (s *source) ReadSamples(dst []float32) (int, error) {
	want := len(dst) - len(dst)%s.channels
	if want == 0 {
		return 0, nil
	}
	if s.done {
		return 0, io.EOF
	}

	if s.intBuf == nil || cap(s.intBuf.Data) < want {
		s.intBuf = &goaudio.IntBuffer{
			Data:           make([]int, want),
			Format:         s.dec.Format(),
			SourceBitDepth: s.bitDepth,
		}
	}
	s.intBuf.Data = s.intBuf.Data[:want]

	n, err := s.dec.PCMBuffer(s.intBuf)
	if n == 0 {
		s.done = true
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("aiff: read: %w", err)
		}
		return 0, io.EOF
	}

	// AIFF samples are signed big-endian at every depth.
	scale := fullScale(s.bitDepth)
	for i, v := range s.intBuf.Data[:n] {
		dst[i] = float32(v) / scale
	}

	if err != nil {
		s.done = true
		if errors.Is(err, io.EOF) {
			return n, io.EOF
		}
		return n, fmt.Errorf("aiff: read: %w", err)
	}

	return n, nil
}

func fullScale(bitDepth int) float32 {
	switch bitDepth {
	case 8:
		return 128.0
	case 24:
		return 8388608.0
	case 32:
		return 2147483648.0
	default:
		return 32768.0
	}
}

// Decoder decodes uncompressed AIFF at 8, 16, 24 or 32 bits.
type Decoder struct{}

func (Decoder) Decode(r io.Reader) (audio.Source, error) {
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("reading aiff data: %w", err)
		}
		rs = bytes.NewReader(data)
	}

	dec := aiff.NewDecoder(rs)
	if !dec.IsValidFile() {
		return nil, ErrNotAiffFile
	}

	dec.ReadInfo()

	switch dec.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, ErrUnsupportedBitDepth
	}

	format := dec.Format()
	if format == nil || format.NumChannels < 1 || format.SampleRate < 1 {
		return nil, ErrUnsupportedAiffLayout
	}

	return &source{
		dec:        dec,
		sampleRate: format.SampleRate,
		channels:   format.NumChannels,
		bitDepth:   int(dec.BitDepth),
	}, nil
}
