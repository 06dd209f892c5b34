// SPDX-License-Identifier: EPL-2.0

// Package aiff decodes AIFF files through github.com/go-audio/aiff.
//
// Uncompressed PCM at 8, 16, 24 and 32 bits is supported with any channel
// count and sample rate. Samples are normalized to [-1.0, 1.0]. AIFF-C
// compressed variants are rejected by the underlying decoder.
//
//	src, err := aiff.Decoder{}.Decode(file)
//	if errors.Is(err, aiff.ErrUnsupportedBitDepth) {
//		// 12-bit and other odd sizes end up here
//	}
package aiff
