// SPDX-License-Identifier: EPL-2.0

package padmix

import (
	"errors"

	"github.com/ik5/padmix/cache"
)

var (
	// ErrDeviceUnavailable wraps every failure to open or start the output
	// device during Activate. The engine stays uninitialized and Activate
	// may be retried.
	ErrDeviceUnavailable = errors.New("audio device unavailable")

	// ErrNotReady is returned by operations that need an activated engine.
	ErrNotReady = errors.New("engine not activated")

	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("engine closed")

	// ErrInvalidSlot is returned for a slot outside the four pads.
	ErrInvalidSlot = cache.ErrInvalidSlot
)
