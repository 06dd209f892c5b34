// SPDX-License-Identifier: EPL-2.0

package mix

import "math"

// PanMono returns the left and right gains that place a mono signal at pan
// using the equal-power law: θ = (pan+1)·π/4, L = cos θ, R = sin θ.
func PanMono(pan float64) (left, right float64) {
	theta := (ClampPan(pan) + 1) * math.Pi / 4
	return math.Cos(theta), math.Sin(theta)
}

// StereoPan describes how a stereo pair is repositioned. The output is
//
//	L' = LL·L + RL·R
//	R' = LR·L + RR·R
//
// where LL/RR keep each channel on its own side and RL/LR fold one side
// into the other.
type StereoPan struct {
	LL, RL, LR, RR float64
}

// PanStereo follows the Web Audio StereoPannerNode for two-channel input:
// panning left folds the right channel into the left with equal power and
// vice versa. Pan 0 is the identity.
func PanStereo(pan float64) StereoPan {
	pan = ClampPan(pan)
	if pan <= 0 {
		theta := (pan + 1) * math.Pi / 2
		return StereoPan{LL: 1, RL: math.Cos(theta), RR: math.Sin(theta)}
	}
	theta := pan * math.Pi / 2
	return StereoPan{LL: math.Cos(theta), LR: math.Sin(theta), RR: 1}
}
