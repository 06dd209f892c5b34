// SPDX-License-Identifier: EPL-2.0

package graph

import "errors"

var (
	ErrEmptyImpulse  = errors.New("impulse response has no samples")
	ErrImpulseLayout = errors.New("impulse response must be mono or stereo")
	ErrVoiceLayout   = errors.New("voice buffer must be mono or stereo")
	ErrRateMismatch  = errors.New("buffer sample rate does not match the topology")
	ErrBlockMismatch = errors.New("convolver input and output lengths differ")
)
