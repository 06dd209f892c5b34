// SPDX-License-Identifier: EPL-2.0

package mix

import "errors"

var (
	ErrUnknownSlot = errors.New("unknown slot")
	ErrUnknownMode = errors.New("unknown axis mode")
)
