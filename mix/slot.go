// SPDX-License-Identifier: EPL-2.0

package mix

import (
	"fmt"
	"strings"
)

// Slot identifies one of the four corner sources.
type Slot int

const (
	TopLeft Slot = iota
	TopRight
	BottomLeft
	BottomRight
)

// NumSlots is the fixed number of corner slots.
const NumSlots = 4

// Slots lists every slot in index order.
var Slots = [NumSlots]Slot{TopLeft, TopRight, BottomLeft, BottomRight}

var slotNames = [NumSlots]string{"top-left", "top-right", "bottom-left", "bottom-right"}

func (s Slot) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Slot(%d)", int(s))
	}
	return slotNames[s]
}

// Valid reports whether s names one of the four corners.
func (s Slot) Valid() bool { return s >= TopLeft && s <= BottomRight }

// ParseSlot accepts the String form or the short tl/tr/bl/br aliases.
func ParseSlot(name string) (Slot, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "top-left", "tl":
		return TopLeft, nil
	case "top-right", "tr":
		return TopRight, nil
	case "bottom-left", "bl":
		return BottomLeft, nil
	case "bottom-right", "br":
		return BottomRight, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSlot, name)
}

// AxisMode selects the gain law used by a trigger.
type AxisMode int

const (
	// Blend weights all four corners bilinearly.
	Blend AxisMode = iota
	// Pan crossfades the left column vertically and pans horizontally.
	Pan
)

func (m AxisMode) String() string {
	switch m {
	case Blend:
		return "blend"
	case Pan:
		return "pan"
	}
	return fmt.Sprintf("AxisMode(%d)", int(m))
}

func ParseAxisMode(name string) (AxisMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "blend":
		return Blend, nil
	case "pan":
		return Pan, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, name)
}
