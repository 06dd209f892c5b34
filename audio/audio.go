// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"io"
	"maps"
	"slices"
	"sync"
)

// Source is a pull stream of interleaved float32 samples.
type Source interface {
	SampleRate() int
	Channels() int
	// ReadSamples fills dst with samples in [-1, 1] and returns the number
	// of values written, always a whole number of frames. io.EOF may come
	// with the final samples.
	ReadSamples(dst []float32) (n int, err error)

	// BufSize is a read size, in values, that suits the underlying decoder.
	BufSize() int

	Close() error
}

// Decoder opens a Source over encoded data.
type Decoder interface {
	Decode(r io.Reader) (Source, error)
}

// Registry maps format keys ("wav", "mp3", "ogg", ...) to decoders.
type Registry struct {
	mtx    sync.RWMutex
	codecs map[string]Decoder
}

func NewRegistry() *Registry {
	return &Registry{
		codecs: make(map[string]Decoder),
	}
}

func (r *Registry) Register(format string, d Decoder) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.codecs[format] = d
}

func (r *Registry) Get(format string) (Decoder, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	d, ok := r.codecs[format]
	return d, ok
}

// Formats lists the registered format keys in sorted order.
func (r *Registry) Formats() []string {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	return slices.Sorted(maps.Keys(r.codecs))
}
