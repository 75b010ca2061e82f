// Package idgen produces the wire request id described in §6: eight random
// hex bytes followed by a monotonic hex counter, hyphen-separated. Any
// string unique within the process lifetime satisfies the core's contract
// (message.IDLEN accepts any length), but this is the concrete format every
// rpcmesh client uses.
package idgen

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

var counter uint32

// New returns a fresh id of the form "xxxxxxxx-xxxxxxxx": 4 random bytes
// sourced from uuid.New() (avoids hand-rolling a CSPRNG wrapper) plus an
// 8-hex-digit monotonic counter.
func New() string {
	u := uuid.New()
	n := atomic.AddUint32(&counter, 1)
	random := binary.BigEndian.Uint32(u[:4])
	return fmt.Sprintf("%08x-%08x", random, n)
}
