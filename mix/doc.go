// SPDX-License-Identifier: EPL-2.0

// Package mix holds the pure gain laws that turn a pointer position into
// per-slot amplitudes and a stereo position.
//
// Four slots sit on the corners of a unit square. In [Blend] mode the
// position bilinearly weights all four corners; in [Pan] mode the vertical
// axis crossfades TopLeft into BottomLeft while the horizontal axis drives
// the stereo pan. Both laws always sum to 1.
//
// Nothing here allocates or blocks; the functions are safe to call from the
// render path.
package mix
