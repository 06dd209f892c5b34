// SPDX-License-Identifier: EPL-2.0

package graph

import (
	"math"

	"github.com/ik5/padmix/utils"
)

// Render fills dst with interleaved stereo float32 frames. A trailing odd
// sample is zeroed. Render must only be called from one goroutine at a
// time.
func (t *Topology) Render(dst []float32) {
	frames := len(dst) / 2
	if len(dst)%2 == 1 {
		dst[len(dst)-1] = 0
	}
	if frames == 0 {
		return
	}
	out := dst[:frames*2]
	if t.closed.Load() {
		clear(out)
		return
	}

	t.grow(frames)
	busL, busR := t.busL[:frames], t.busR[:frames]
	clear(busL)
	clear(busR)

	t.finished = t.finished[:0]
	t.mu.Lock()
	for i := 0; i < len(t.live); {
		v := &t.voices[t.live[i]]
		v.mixInto(busL, busR, &t.stages[v.stage])
		if v.cursor >= v.buf.Frames() {
			t.finished = append(t.finished, t.releaseLocked(i))
			continue
		}
		i++
	}
	t.mu.Unlock()
	t.notify(t.finished)

	wetL, wetR := t.wetL[:frames], t.wetR[:frames]
	if c := t.conv.Load(); c != nil && !t.bypass.Load() {
		if err := c.Process(busL, busR, wetL, wetR); err != nil {
			clear(wetL)
			clear(wetR)
		}
	} else {
		clear(wetL)
		clear(wetR)
	}

	dryT := math.Float64frombits(t.dryTarget.Load())
	wetT := math.Float64frombits(t.wetTarget.Load())
	dryStep := (dryT - t.dryCur) / float64(frames)
	wetStep := (wetT - t.wetCur) / float64(frames)

	dry, wet := t.dryCur, t.wetCur
	for i := range frames {
		dry += dryStep
		wet += wetStep
		l := dry*busL[i] + wet*wetL[i]
		r := dry*busR[i] + wet*wetR[i]
		out[2*i] = float32(utils.Clamp(l, -1, 1))
		out[2*i+1] = float32(utils.Clamp(r, -1, 1))
	}
	t.dryCur, t.wetCur = dryT, wetT
}

func (t *Topology) grow(frames int) {
	if cap(t.busL) >= frames {
		return
	}
	t.busL = make([]float64, frames)
	t.busR = make([]float64, frames)
	t.wetL = make([]float64, frames)
	t.wetR = make([]float64, frames)
}

// mixInto adds up to len(l) frames of the voice to the bus and advances
// the cursor.
func (v *voice) mixInto(l, r []float64, st *panStage) {
	buf := v.buf
	n := min(len(l), buf.Frames()-v.cursor)
	if n <= 0 {
		return
	}

	switch buf.Channels {
	case 1:
		gl, gr := v.amp*st.monoL, v.amp*st.monoR
		src := buf.Samples[v.cursor : v.cursor+n]
		for i, s := range src {
			l[i] += float64(s) * gl
			r[i] += float64(s) * gr
		}
	default:
		sp := st.stereo
		src := buf.Samples[2*v.cursor : 2*(v.cursor+n)]
		for i := range n {
			sl, sr := float64(src[2*i]), float64(src[2*i+1])
			l[i] += v.amp * (sp.LL*sl + sp.RL*sr)
			r[i] += v.amp * (sp.LR*sl + sp.RR*sr)
		}
	}

	v.cursor += n
}
