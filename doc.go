// SPDX-License-Identifier: EPL-2.0

// Package padmix is a real-time mixing engine for a four-pad sampler.
//
// Each corner of a unit square holds a slot with a decoded clip. A trigger
// at a position inside the square starts one voice per audible slot, with
// gains derived from the position, through a stereo panner into dry and
// convolution reverb buses and out to the audio device.
//
// # Quick Start
//
//	eng, err := padmix.New(padmix.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer eng.Close()
//
//	data, _ := os.ReadFile("kick.wav")
//	_ = eng.SetSource(mix.TopLeft, data, "kick.wav")
//
//	if err := eng.Activate(ctx); err != nil {
//		return err // wraps padmix.ErrDeviceUnavailable
//	}
//	eng.Trigger(mix.Position{X: 0.3, Y: 0.7}, mix.Blend, 0)
//
// # Axis Modes
//
// In Blend mode the four slot gains are bilinear in the position and sum
// to one. In Pan mode the vertical axis crossfades the top and bottom rows
// at full level, while the horizontal axis becomes the stereo pan,
// biased by the per-trigger offset.
//
// # Supported Formats
//
// Slot sources and impulse responses are sniffed and decoded by the
// formats package:
//   - WAV (PCM 8/16/24/32-bit) via formats/wav
//   - AIFF (PCM 8/16/24/32-bit) via formats/aiff
//   - MP3 via formats/mp3
//   - Ogg Vorbis via formats/vorbis
//   - FLAC via formats/flac
//
// Every clip is resampled to the engine rate once, when it is assigned.
//
// # Reverb
//
// Presets (hall, bathroom, tunnel, hallway) select an impulse response
// that is fetched, decoded and installed in the background. Selecting
// none bypasses the convolver immediately. The wet fraction splits the
// master bus between the dry and convolved paths, keeping dry+wet at one.
//
// # Concurrency
//
// All Engine methods are safe for concurrent use. Trigger never waits for
// decoding or fetching: a slot whose clip is still decoding is silent.
package padmix
