// SPDX-License-Identifier: EPL-2.0

// Package flac decodes FLAC files through github.com/gopxl/beep/v2/flac.
//
// beep streams stereo float64 frames regardless of the file layout, so the
// source always reports two channels; mono files arrive duplicated.
package flac
