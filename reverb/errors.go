// SPDX-License-Identifier: EPL-2.0

package reverb

import "errors"

var (
	ErrUnknownPreset = errors.New("unknown reverb preset")
	ErrNoAsset       = errors.New("no impulse response configured for preset")
	ErrFetch         = errors.New("fetching impulse response failed")
)
