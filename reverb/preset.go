// SPDX-License-Identifier: EPL-2.0

package reverb

import (
	"fmt"
	"strings"
)

// Preset names a reverb room.
type Preset int

const (
	None Preset = iota
	Hall
	Bathroom
	Tunnel
	Hallway
)

// Presets lists every preset, None first.
var Presets = []Preset{None, Hall, Bathroom, Tunnel, Hallway}

var presetNames = [...]string{"none", "hall", "bathroom", "tunnel", "hallway"}

func (p Preset) String() string {
	if p < None || p > Hallway {
		return fmt.Sprintf("Preset(%d)", int(p))
	}
	return presetNames[p]
}

// Enabled reports whether p routes signal through the convolver.
func (p Preset) Enabled() bool { return p != None }

// ParsePreset reads a preset name case-insensitively. The empty string is
// None.
func ParsePreset(name string) (Preset, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return None, nil
	}
	for i, n := range presetNames {
		if n == name {
			return Preset(i), nil
		}
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
}

// DefaultAssets is the stock preset to asset mapping.
func DefaultAssets() map[Preset]string {
	return map[Preset]string{
		Hall:     "impulses/hall.wav",
		Bathroom: "impulses/bathroom.wav",
		Tunnel:   "impulses/tunnel.wav",
		Hallway:  "impulses/hallway.wav",
	}
}
