// SPDX-License-Identifier: EPL-2.0

// Package vorbis decodes Ogg Vorbis streams through
// github.com/jfreymuth/oggvorbis.
//
// Output keeps the stream's channel layout and sample rate; Vorbis already
// decodes to float, so samples pass through without rescaling.
package vorbis
