// SPDX-License-Identifier: EPL-2.0

package cache

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Ref identifies clip content by its xxhash-64 digest and length.
type Ref struct {
	Sum uint64
	Len int
}

// RefOf fingerprints data. Empty content has the zero Ref.
func RefOf(data []byte) Ref {
	if len(data) == 0 {
		return Ref{}
	}
	return Ref{Sum: xxhash.Sum64(data), Len: len(data)}
}

// IsZero reports whether r refers to no content.
func (r Ref) IsZero() bool { return r == Ref{} }

func (r Ref) String() string {
	return fmt.Sprintf("%016x/%d", r.Sum, r.Len)
}
