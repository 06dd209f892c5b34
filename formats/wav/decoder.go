// SPDX-License-Identifier: EPL-2.0

package wav

import (
	"bytes"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"

	"github.com/ik5/padmix/audio"
)

const formatPCM = 1

// pcmReader is the part of wav.Decoder the source needs, split out for tests.
type pcmReader interface {
	PCMBuffer(buf *goaudio.IntBuffer) (int, error)
}

type source struct {
	dec        pcmReader
	format     *goaudio.Format
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
	if len(dst) == 0 {
		return 0, nil
	}
	if s.done {
		return 0, io.EOF
	}

	if s.intBuf == nil || cap(s.intBuf.Data) < len(dst) {
		s.intBuf = &goaudio.IntBuffer{
			Data:           make([]int, len(dst)),
			Format:         s.format,
			SourceBitDepth: s.bitDepth,
		}
	}
	s.intBuf.Data = s.intBuf.Data[:len(dst)]

	n, err := s.dec.PCMBuffer(s.intBuf)
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("%w", err)
	}
	if n == 0 {
		s.done = true
		return 0, io.EOF
	}

	// 8-bit WAV data is unsigned; everything wider is signed.
	scale, offset := scaleFor(s.bitDepth)
	for i, v := range s.intBuf.Data[:n] {
		dst[i] = float32(v-offset) / scale
	}

	if err == io.EOF {
		s.done = true
		return n, io.EOF
	}
	return n, nil
}

func scaleFor(bitDepth int) (float32, int) {
	switch bitDepth {
	case 8:
		return 128.0, 128
	case 24:
		return 8388608.0, 0
	case 32:
		return 2147483648.0, 0
	default:
		return 32768.0, 0
	}
}

// Decoder reads integer PCM WAV files (8, 16, 24 and 32 bit) through
// github.com/go-audio/wav.
type Decoder struct{}

func (Decoder) Decode(r io.Reader) (audio.Source, error) {
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		// go-audio needs to seek between chunks.
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("reading wav data: %w", err)
		}
		rs = bytes.NewReader(data)
	}

	dec := gowav.NewDecoder(rs)
	if !dec.IsValidFile() {
		return nil, ErrNotWavFile
	}
	if dec.WavAudioFormat != formatPCM {
		return nil, ErrUnsupportedEncoding
	}

	switch dec.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, ErrUnsupportedBitDepth
	}

	format := dec.Format()
	if format == nil || format.NumChannels < 1 || format.SampleRate < 1 {
		return nil, ErrUnsupportedWavLayout
	}

	return &source{
		dec:        dec,
		format:     format,
		sampleRate: format.SampleRate,
		channels:   format.NumChannels,
		bitDepth:   int(dec.BitDepth),
	}, nil
}
