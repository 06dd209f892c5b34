// SPDX-License-Identifier: EPL-2.0

//go:build headless

package device

import "context"

// OpenOto is unavailable in headless builds.
func OpenOto(context.Context, Config) (Device, error) {
	return nil, ErrUnavailable
}
