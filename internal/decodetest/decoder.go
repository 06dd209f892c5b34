// SPDX-License-Identifier: EPL-2.0

// Package decodetest provides a scripted audio.DecodeFunc for tests that
// need to control when and how clips finish decoding.
package decodetest

import (
	"sync"

	"github.com/ik5/padmix/audio"
)

// Decoder produces a mono buffer with one frame per input byte, every
// sample set to Value. Individual contents can be held back or made to
// fail.
type Decoder struct {
	Value float32

	mu    sync.Mutex
	gates map[string]chan struct{}
	fails map[string]error
	calls []string
}

func New() *Decoder {
	return &Decoder{
		Value: 0.5,
		gates: make(map[string]chan struct{}),
		fails: make(map[string]error),
	}
}

// Hold makes decodes of content block until the returned release func is
// called.
func (d *Decoder) Hold(content string) (release func()) {
	ch := make(chan struct{})
	d.mu.Lock()
	d.gates[content] = ch
	d.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Fail makes decodes of content return err.
func (d *Decoder) Fail(content string, err error) {
	d.mu.Lock()
	d.fails[content] = err
	d.mu.Unlock()
}

// Calls returns the contents decoded so far, in call order.
func (d *Decoder) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// Decode satisfies audio.DecodeFunc.
func (d *Decoder) Decode(data []byte, _ string, sampleRate int) (*audio.Buffer, error) {
	key := string(data)

	d.mu.Lock()
	d.calls = append(d.calls, key)
	gate := d.gates[key]
	err := d.fails[key]
	d.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, audio.ErrEmptySource
	}

	samples := make([]float32, len(data))
	for i := range samples {
		samples[i] = d.Value
	}
	return &audio.Buffer{Samples: samples, Channels: 1, SampleRate: sampleRate}, nil
}
