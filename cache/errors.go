// SPDX-License-Identifier: EPL-2.0

package cache

import "errors"

var (
	ErrInvalidSlot = errors.New("invalid slot")
	ErrClosed      = errors.New("cache closed")
)
