// SPDX-License-Identifier: EPL-2.0

package utils

// Float32ToInt16 converts a normalized sample to 16-bit PCM, clamping to [-1, 1].
// 32767 is used as the positive scale to avoid overflow.
func Float32ToInt16(x float32) int16 {
	return int16(Clamp(x, -1, 1) * 32767.0)
}

// Int16sFromFloat32 converts a whole block, reusing dst when it is large enough.
func Int16sFromFloat32(dst []int16, src []float32) []int16 {
	if cap(dst) < len(src) {
		dst = make([]int16, len(src))
	}
	dst = dst[:len(src)]
	for i, x := range src {
		dst[i] = Float32ToInt16(x)
	}
	return dst
}
