// SPDX-License-Identifier: EPL-2.0

package flac

import (
	"fmt"
	"io"

	beepflac "github.com/gopxl/beep/v2/flac"

	"github.com/ik5/padmix/audio"
)

// streamer is the subset of beep.StreamSeekCloser the source uses.
type streamer interface {
	Stream(samples [][2]float64) (int, bool)
	Err() error
	Close() error
}

type source struct {
	st         streamer
	sampleRate int
	frames     [][2]float64
	done       bool
}

func (s *source) SampleRate() int { return s.sampleRate }
func (s *source) Channels() int   { return 2 }
func (s *source) Close() error    { return s.st.Close() }
func (s *source) BufSize() int    { return cap(s.frames) * 2 }

func (s *source) ReadSamples(dst []float32) (int, error) {
	want := len(dst) / 2
	if want == 0 {
		return 0, nil
	}
	if s.done {
		return 0, io.EOF
	}

	if cap(s.frames) < want {
		s.frames = make([][2]float64, want)
	}
	s.frames = s.frames[:want]

	n, ok := s.st.Stream(s.frames)
	for i, f := range s.frames[:n] {
		dst[2*i] = float32(f[0])
		dst[2*i+1] = float32(f[1])
	}

	if !ok {
		s.done = true
		if err := s.st.Err(); err != nil {
			return n * 2, fmt.Errorf("flac stream: %w", err)
		}
		return n * 2, io.EOF
	}
	return n * 2, nil
}

type Decoder struct{}

func (Decoder) Decode(r io.Reader) (audio.Source, error) {
	st, format, err := beepflac.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w", err)
	}
	if format.SampleRate <= 0 {
		_ = st.Close()
		return nil, audio.ErrInvalidRate
	}

	return &source{
		st:         st,
		sampleRate: int(format.SampleRate),
		frames:     make([][2]float64, 2048),
	}, nil
}
