// SPDX-License-Identifier: EPL-2.0

// Package reverb maps reverb presets to impulse response assets and loads
// them into a convolution target in the background.
//
// A [Loader] fetches an asset through a [Fetcher], decodes it at the
// engine rate, caches the result per preset and installs it. Selecting
// [None] only bypasses the target. Failed loads are logged and leave the
// previously installed impulse in place.
package reverb
