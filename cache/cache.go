// SPDX-License-Identifier: EPL-2.0

package cache

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ik5/padmix/audio"
	"github.com/ik5/padmix/formats"
	"github.com/ik5/padmix/internal/observe"
	"github.com/ik5/padmix/mix"
)

const defaultWorkers = 4

type slotState struct {
	mu      sync.Mutex
	seq     uint64 // bumped on every content change
	settled uint64 // seq of the last finished decode
	ref     Ref
	name    string
	buf     atomic.Pointer[audio.Buffer]
}

// Cache holds the decoded buffer of every slot at one sample rate.
type Cache struct {
	rate    int
	workers int
	decode  audio.DecodeFunc
	log     *slog.Logger
	metrics *observe.Metrics

	sem   *semaphore.Weighted
	slots [mix.NumSlots]slotState

	mu     sync.Mutex // guards closed and wg.Add
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(c *Cache) { c.log = log }
}

// WithMetrics records decode timings and failures into m.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithDecoder replaces the decode step. The default sniffs the container
// and decodes with every format in the formats package.
func WithDecoder(fn audio.DecodeFunc) Option {
	return func(c *Cache) { c.decode = fn }
}

// WithWorkers bounds the number of decodes running at once.
func WithWorkers(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.workers = n
		}
	}
}

// New returns an empty cache that decodes to sampleRate.
func New(sampleRate int, opts ...Option) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		rate:    sampleRate,
		workers: defaultWorkers,
		log:     slog.Default(),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, o := range opts {
		o(c)
	}
	if c.decode == nil {
		c.decode = formats.NewBufferDecoder(formats.NewRegistry())
	}
	c.sem = semaphore.NewWeighted(int64(c.workers))
	return c
}

// SampleRate is the rate every cached buffer is decoded to.
func (c *Cache) SampleRate() int { return c.rate }

// SetSource assigns content to slot. The bytes are copied. Unchanged
// content only updates the name; anything else drops the current buffer
// and decodes the new content in the background. Empty content clears the
// slot.
func (c *Cache) SetSource(slot mix.Slot, content []byte, name string) error {
	if !slot.Valid() {
		return ErrInvalidSlot
	}
	if len(content) == 0 {
		return c.ClearSource(slot)
	}

	ref := RefOf(content)
	st := &c.slots[slot]

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	st.mu.Lock()
	st.name = name
	if st.ref == ref {
		st.mu.Unlock()
		c.mu.Unlock()
		return nil
	}
	st.seq++
	seq := st.seq
	st.ref = ref
	st.buf.Store(nil)
	st.mu.Unlock()

	c.wg.Add(1)
	c.mu.Unlock()

	c.log.Debug("cache: decode scheduled", "slot", slot, "name", name, "ref", ref)

	data := bytes.Clone(content)
	go func() {
		defer c.wg.Done()
		c.run(slot, seq, data, name)
	}()
	return nil
}

func (c *Cache) run(slot mix.Slot, seq uint64, data []byte, name string) {
	if err := c.sem.Acquire(c.ctx, 1); err != nil {
		return
	}
	defer c.sem.Release(1)

	st := &c.slots[slot]
	if !c.wants(st, seq) {
		return
	}

	start := time.Now()
	buf, err := c.decode(data, name, c.rate)
	elapsed := time.Since(start)
	c.metrics.RecordDecode(c.ctx, "source", elapsed.Seconds(), err)

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.seq != seq {
		c.log.Debug("cache: dropping superseded decode", "slot", slot, "name", name)
		return
	}
	st.settled = seq

	if err != nil {
		st.buf.Store(nil)
		c.log.Warn("cache: decode failed", "slot", slot, "name", name, "err", err)
		return
	}

	st.buf.Store(buf)
	c.log.Info("cache: source ready",
		"slot", slot, "name", name,
		"channels", buf.Channels, "duration", buf.Duration(), "took", elapsed)
}

func (c *Cache) wants(st *slotState, seq uint64) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.seq == seq
}

// ClearSource removes the content, the name and the buffer of slot.
// A decode still running for the slot is discarded when it finishes.
func (c *Cache) ClearSource(slot mix.Slot) error {
	if !slot.Valid() {
		return ErrInvalidSlot
	}
	st := &c.slots[slot]

	st.mu.Lock()
	st.seq++
	st.settled = st.seq
	st.ref = Ref{}
	st.name = ""
	st.buf.Store(nil)
	st.mu.Unlock()

	c.log.Debug("cache: source cleared", "slot", slot)
	return nil
}

// Buffer returns the decoded buffer of slot, or nil when the slot is
// empty, still decoding or failed. It never blocks.
func (c *Cache) Buffer(slot mix.Slot) *audio.Buffer {
	if !slot.Valid() {
		return nil
	}
	return c.slots[slot].buf.Load()
}

// Name returns the display name last given for slot.
func (c *Cache) Name(slot mix.Slot) string {
	if !slot.Valid() {
		return ""
	}
	st := &c.slots[slot]
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.name
}

// Ref returns the content fingerprint configured for slot.
func (c *Cache) Ref(slot mix.Slot) Ref {
	if !slot.Valid() {
		return Ref{}
	}
	st := &c.slots[slot]
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.ref
}

// Pending reports whether slot has content whose decode has not finished.
func (c *Cache) Pending(slot mix.Slot) bool {
	if !slot.Valid() {
		return false
	}
	st := &c.slots[slot]
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.settled != st.seq
}

// Wait blocks until every scheduled decode has finished or ctx is done.
func (c *Cache) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops queued decodes, waits for running ones and drops every
// buffer. It is safe to call more than once.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	for _, slot := range mix.Slots {
		st := &c.slots[slot]
		st.mu.Lock()
		st.seq++
		st.settled = st.seq
		st.ref = Ref{}
		st.buf.Store(nil)
		st.mu.Unlock()
	}
	return nil
}
