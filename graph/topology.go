// SPDX-License-Identifier: EPL-2.0

package graph

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/ik5/padmix/audio"
	"github.com/ik5/padmix/mix"
)

// VoiceID names a voice in the arena. The generation makes IDs of released
// voices distinguishable from the voice that later reuses the same record.
type VoiceID struct {
	Index      int32
	Generation uint32
}

// VoiceSpec describes one voice to start.
type VoiceSpec struct {
	Buffer    *audio.Buffer
	Amplitude float64
	// Tag is an opaque caller label reported back in VoiceInfo.
	Tag int
}

// VoiceInfo is a snapshot of a voice.
type VoiceInfo struct {
	ID        VoiceID
	Tag       int
	Amplitude float64
	Pan       float64
	Channels  int
	Frames    int
	Position  int
}

type voice struct {
	buf    *audio.Buffer
	amp    float64
	stage  int32
	cursor int
	tag    int
	gen    uint32
}

// panStage is shared by all voices of one Start call.
type panStage struct {
	pan    float64
	monoL  float64
	monoR  float64
	stereo mix.StereoPan
	refs   int
}

// Topology owns the master bus, the dry and wet gain stages, the
// convolution stage and every live voice.
type Topology struct {
	sampleRate int
	log        *slog.Logger
	onDone     func(VoiceInfo)

	mu         sync.Mutex
	voices     []voice
	freeVoices []int32
	live       []int32
	stages     []panStage
	freeStages []int32

	dryTarget atomic.Uint64
	wetTarget atomic.Uint64
	bypass    atomic.Bool
	conv      atomic.Pointer[Convolver]
	closed    atomic.Bool

	// Render goroutine only.
	dryCur, wetCur float64
	busL, busR     []float64
	wetL, wetR     []float64
	finished       []VoiceInfo
}

// Option configures a Topology.
type Option func(*Topology)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(t *Topology) { t.log = l }
}

// WithVoiceDone registers a callback invoked once per voice after it has
// been released. It runs on the render goroutine (or in Close) and must
// not block.
func WithVoiceDone(fn func(VoiceInfo)) Option {
	return func(t *Topology) { t.onDone = fn }
}

// New builds a topology for sampleRate. It starts fully dry with the
// convolver bypassed and empty.
func New(sampleRate int, opts ...Option) *Topology {
	t := &Topology{
		sampleRate: sampleRate,
		log:        slog.Default(),
		dryCur:     1,
	}
	for _, o := range opts {
		o(t)
	}
	t.dryTarget.Store(math.Float64bits(1))
	t.wetTarget.Store(math.Float64bits(0))
	t.bypass.Store(true)
	return t
}

// SampleRate is the rate every voice buffer must use.
func (t *Topology) SampleRate() int { return t.sampleRate }

// Start adds one voice per VoiceSpec, all sharing a single pan stage set to pan.
// Specs with no buffer, a non-positive amplitude or a foreign sample rate
// are skipped. It returns the number of voices started.
func (t *Topology) Start(pan float64, specs ...VoiceSpec) int {
	return len(t.StartTags(pan, specs...))
}

// StartTags is Start but reports the tags of the voices actually started,
// in spec order.
func (t *Topology) StartTags(pan float64, specs ...VoiceSpec) []int {
	if t.closed.Load() {
		return nil
	}

	pan = mix.ClampPan(pan)
	monoL, monoR := mix.PanMono(pan)
	stereo := mix.PanStereo(pan)

	t.mu.Lock()
	defer t.mu.Unlock()

	stage := int32(-1)
	var started []int
	for _, s := range specs {
		if s.Buffer.Frames() == 0 || !(s.Amplitude > 0) {
			continue
		}
		if s.Buffer.SampleRate != t.sampleRate {
			t.log.Warn("graph: skipping voice",
				"tag", s.Tag, "err", ErrRateMismatch,
				"buffer_rate", s.Buffer.SampleRate, "rate", t.sampleRate)
			continue
		}
		if s.Buffer.Channels > 2 {
			t.log.Warn("graph: skipping voice", "tag", s.Tag, "err", ErrVoiceLayout, "channels", s.Buffer.Channels)
			continue
		}

		if stage < 0 {
			stage = t.allocStage()
			t.stages[stage] = panStage{pan: pan, monoL: monoL, monoR: monoR, stereo: stereo}
		}

		idx := t.allocVoice()
		v := &t.voices[idx]
		v.buf = s.Buffer
		v.amp = s.Amplitude
		v.stage = stage
		v.cursor = 0
		v.tag = s.Tag
		t.stages[stage].refs++
		t.live = append(t.live, idx)
		started = append(started, s.Tag)
	}

	return started
}

func (t *Topology) allocVoice() int32 {
	if n := len(t.freeVoices); n > 0 {
		idx := t.freeVoices[n-1]
		t.freeVoices = t.freeVoices[:n-1]
		return idx
	}
	t.voices = append(t.voices, voice{})
	return int32(len(t.voices) - 1)
}

func (t *Topology) allocStage() int32 {
	if n := len(t.freeStages); n > 0 {
		idx := t.freeStages[n-1]
		t.freeStages = t.freeStages[:n-1]
		return idx
	}
	t.stages = append(t.stages, panStage{})
	return int32(len(t.stages) - 1)
}

// releaseLocked frees the voice at live[pos] and returns its final info.
func (t *Topology) releaseLocked(pos int) VoiceInfo {
	idx := t.live[pos]
	info := t.infoLocked(idx)

	last := len(t.live) - 1
	t.live[pos] = t.live[last]
	t.live = t.live[:last]

	v := &t.voices[idx]
	st := &t.stages[v.stage]
	if st.refs--; st.refs == 0 {
		t.freeStages = append(t.freeStages, v.stage)
	}
	*v = voice{gen: v.gen + 1}
	t.freeVoices = append(t.freeVoices, idx)

	return info
}

func (t *Topology) infoLocked(idx int32) VoiceInfo {
	v := &t.voices[idx]
	return VoiceInfo{
		ID:        VoiceID{Index: idx, Generation: v.gen},
		Tag:       v.tag,
		Amplitude: v.amp,
		Pan:       t.stages[v.stage].pan,
		Channels:  v.buf.Channels,
		Frames:    v.buf.Frames(),
		Position:  v.cursor,
	}
}

// Voices returns a snapshot of every live voice in no particular order.
func (t *Topology) Voices() []VoiceInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]VoiceInfo, 0, len(t.live))
	for _, idx := range t.live {
		out = append(out, t.infoLocked(idx))
	}
	return out
}

// ActiveVoices is the number of live voices.
func (t *Topology) ActiveVoices() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}

// SetDryWet sets the target gains of the dry and wet stages. The change is
// ramped linearly over the next rendered block.
func (t *Topology) SetDryWet(dry, wet float64) {
	t.dryTarget.Store(math.Float64bits(dry))
	t.wetTarget.Store(math.Float64bits(wet))
}

// DryWet returns the target gains last set.
func (t *Topology) DryWet() (dry, wet float64) {
	return math.Float64frombits(t.dryTarget.Load()), math.Float64frombits(t.wetTarget.Load())
}

// SetImpulse replaces the convolution stage with one built from ir. The
// previous stage stays active if ir is unusable.
func (t *Topology) SetImpulse(ir *audio.Buffer) error {
	if ir != nil && ir.SampleRate != t.sampleRate {
		return ErrRateMismatch
	}
	c, err := NewConvolver(ir)
	if err != nil {
		return err
	}
	t.conv.Store(c)
	return nil
}

// HasImpulse reports whether an impulse response has been installed.
func (t *Topology) HasImpulse() bool { return t.conv.Load() != nil }

// SetBypass silences the wet path without dropping the impulse.
func (t *Topology) SetBypass(bypass bool) { t.bypass.Store(bypass) }

// Bypassed reports whether the wet path is bypassed.
func (t *Topology) Bypassed() bool { return t.bypass.Load() }

// Close releases every live voice and makes Render produce silence.
// Completion callbacks fire for the released voices.
func (t *Topology) Close() {
	if t.closed.Swap(true) {
		return
	}

	t.mu.Lock()
	released := make([]VoiceInfo, 0, len(t.live))
	for len(t.live) > 0 {
		released = append(released, t.releaseLocked(len(t.live)-1))
	}
	t.mu.Unlock()

	t.notify(released)
}

func (t *Topology) notify(infos []VoiceInfo) {
	if t.onDone == nil {
		return
	}
	for _, info := range infos {
		t.onDone(info)
	}
}
