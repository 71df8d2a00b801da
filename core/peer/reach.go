package peer

import (
	"fmt"
)

// Reach is the reachability register of a peer: bit 0 records the outcome of
// the most recent poll, bit 7 the outcome of the eighth most recent one.
type Reach uint8

func (r Reach) Reachable() bool {
	return r != 0
}

func (r *Reach) shift(ok bool) {
	*r <<= 1
	if ok {
		*r |= 1
	}
}

func (r Reach) String() string {
	return fmt.Sprintf("%03o", uint8(r))
}
