// SPDX-License-Identifier: EPL-2.0

// Package wav decodes integer PCM WAV files and writes 16-bit PCM WAV.
//
// Decoding goes through github.com/go-audio/wav and supports 8, 16, 24
// and 32 bit samples with any channel count. Samples are normalized to
// [-1.0, 1.0]; 8-bit data is treated as unsigned as the format requires.
//
// Writing is limited to mono or stereo 16-bit PCM, which is what the
// offline render path produces.
package wav
