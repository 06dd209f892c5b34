// SPDX-License-Identifier: EPL-2.0

// Package audio holds the decode pipeline shared by the pad cache and the
// reverb loader.
//
// A [Source] is a pull stream of interleaved float32 samples in [-1, 1].
// Format decoders produce one; [MonoMixer] folds more than two channels
// down to one and [Resampler] converts the rate with Catmull-Rom
// interpolation. [ReadBuffer] drains the chain into an immutable [Buffer]
// at the engine rate:
//
//	src, err := wav.Decoder{}.Decode(bytes.NewReader(data))
//	if err != nil {
//		return err
//	}
//	buf, err := audio.ReadBuffer(src, 48000, src.BufSize())
//
// Buffers are never modified after ReadBuffer returns, so the mixing graph
// reads them from its render goroutine without locking.
//
// A [Registry] maps format keys to decoders; the formats package fills one
// with every supported container and exposes it as a [DecodeFunc].
//
// Streams end with io.EOF, possibly together with the last samples.
package audio
