// SPDX-License-Identifier: EPL-2.0

package mix

import "math"

// WetDry returns the dry and wet bus gains for a reverb send. With the
// reverb disabled the signal is fully dry. Otherwise wet is clamped to
// [0, 1] and dry takes the remainder, so dry+wet is always 1.
func WetDry(enabled bool, wet float64) (dry, wetGain float64) {
	if !enabled || math.IsNaN(wet) {
		return 1, 0
	}
	w := unit(wet)
	return 1 - w, w
}
