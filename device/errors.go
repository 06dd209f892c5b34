// SPDX-License-Identifier: EPL-2.0

package device

import "errors"

var (
	// ErrUnavailable is returned when no output can be opened.
	ErrUnavailable = errors.New("audio output unavailable")

	ErrClosed         = errors.New("device closed")
	ErrAlreadyStarted = errors.New("device already started")
	ErrNotStarted     = errors.New("device not started")
)
