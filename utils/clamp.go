// SPDX-License-Identifier: EPL-2.0

package utils

import "cmp"

// Clamp limits v to [lo, hi].
func Clamp[T cmp.Ordered](v, lo, hi T) T {
	return max(lo, min(hi, v))
}

// Clamp01 limits v to [0, 1].
func Clamp01(v float64) float64 {
	return Clamp(v, 0, 1)
}
