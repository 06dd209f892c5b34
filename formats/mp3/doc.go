// SPDX-License-Identifier: EPL-2.0

// Package mp3 decodes MPEG-1/2 Layer III audio through
// github.com/hajimehoshi/go-mp3.
//
// The decoder always produces interleaved stereo at the stream's sample
// rate, normalized to [-1.0, 1.0]. Mono streams are duplicated onto both
// channels by go-mp3.
package mp3
