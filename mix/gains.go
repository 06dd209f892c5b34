// SPDX-License-Identifier: EPL-2.0

package mix

import (
	"math"

	"github.com/ik5/padmix/utils"
)

// Position is a normalized pointer location. X grows to the right and Y
// grows downwards, matching screen coordinates.
type Position struct {
	X, Y float64
}

// Clamped returns p with both axes limited to [0, 1]. NaN maps to 0.
func (p Position) Clamped() Position {
	return Position{X: unit(p.X), Y: unit(p.Y)}
}

func unit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return utils.Clamp01(v)
}

// Gains holds one amplitude per slot, indexed by Slot.
type Gains [NumSlots]float64

// Sum returns the total of all slot gains.
func (g Gains) Sum() float64 {
	return g[TopLeft] + g[TopRight] + g[BottomLeft] + g[BottomRight]
}

// BlendGains is the bilinear corner law. The result sums to 1.
func BlendGains(p Position) Gains {
	p = p.Clamped()
	return Gains{
		TopLeft:     (1 - p.X) * (1 - p.Y),
		TopRight:    p.X * (1 - p.Y),
		BottomLeft:  (1 - p.X) * p.Y,
		BottomRight: p.X * p.Y,
	}
}

// PanGains crossfades TopLeft into BottomLeft along Y and derives the pan
// from X shifted by offset. TopRight and BottomRight stay silent.
func PanGains(p Position, offset float64) (Gains, float64) {
	p = p.Clamped()
	g := Gains{
		TopLeft:    1 - p.Y,
		BottomLeft: p.Y,
	}
	return g, ClampPan(2*p.X - 1 + offset)
}

// Compute applies the law selected by mode. In Blend mode the pan is the
// offset alone.
func Compute(mode AxisMode, p Position, offset float64) (Gains, float64) {
	if mode == Pan {
		return PanGains(p, offset)
	}
	return BlendGains(p), ClampPan(offset)
}

// ClampPan limits a stereo position to [-1, 1]. NaN is centered.
func ClampPan(pan float64) float64 {
	if math.IsNaN(pan) {
		return 0
	}
	return utils.Clamp(pan, -1, 1)
}
