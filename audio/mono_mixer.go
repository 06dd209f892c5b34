// SPDX-License-Identifier: EPL-2.0

package audio

import "fmt"

// MonoMixer folds any channel layout down to a single channel by averaging.
// ReadBuffer uses it for surround sources, and the reverb loader applies it
// to impulse responses with more channels than the output.
type MonoMixer struct {
	src Source
	tmp []float32
}

func NewMonoMixer(src Source) *MonoMixer {
	return &MonoMixer{
		src: src,
		tmp: make([]float32, 8192),
	}
}

func (m *MonoMixer) SampleRate() int { return m.src.SampleRate() }
func (m *MonoMixer) Channels() int   { return 1 }
func (m *MonoMixer) BufSize() int    { return m.src.BufSize() }

func (m *MonoMixer) Close() error {
	if err := m.src.Close(); err != nil {
		return fmt.Errorf("%w", err)
	}
	return nil
}

// ReadSamples fills dst with mono frames; len(dst) is a frame count.
func (m *MonoMixer) ReadSamples(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}

	channels := m.src.Channels()
	if channels == 1 {
		return m.src.ReadSamples(dst)
	}

	need := len(dst) * channels
	if cap(m.tmp) < need {
		m.tmp = make([]float32, need)
	}
	m.tmp = m.tmp[:need]

	n, err := m.src.ReadSamples(m.tmp)
	if n == 0 {
		return 0, err
	}
	frames := n / channels

	switch channels {
	case 2:
		for f := range frames {
			idx := f << 1
			dst[f] = (m.tmp[idx] + m.tmp[idx+1]) * 0.5
		}
	default:
		inv := float32(1) / float32(channels)
		for f := range frames {
			var sum float32
			for _, v := range m.tmp[f*channels : (f+1)*channels] {
				sum += v
			}
			dst[f] = sum * inv
		}
	}

	return frames, err
}
