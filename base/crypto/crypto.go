// Package crypto provides random numbers for exchange identifiers, poll
// jitter and peer sampling from a cryptographically secure source.
package crypto

// Bounded random numbers follow
// Daniel Lemire, Fast Random Integer Generation in an Interval
// ACM Transactions on Modeling and Computer Simulation 29 (1), 2019
// https://lemire.me/en/publication/arxiv1805/

import (
	"context"
	"crypto/rand"
	"encoding/binary"
)

// RandUint64 returns a uniformly distributed random 64-bit value.
func RandUint64() (uint64, error) {
	var b [8]byte
	_, err := rand.Read(b[:])
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// RandIntn returns a uniformly distributed random value in [0, n). Draws
// rejected for bias are retried until ctx is done.
func RandIntn(ctx context.Context, n int) (int, error) {
	if n <= 0 {
		panic("invalid argument: n must be greater than 0")
	}
	if n == 1 {
		return 0, nil
	}
	bound := uint64(n)
	threshold := -bound % bound
	for {
		x, err := RandUint64()
		if err != nil {
			return 0, err
		}
		if x >= threshold {
			return int(x % bound), nil
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
	}
}

// Sample selects min(k, n) of the indices [0, n) uniformly at random
// (reservoir sampling). pick(dst, src) is called whenever src takes reservoir
// slot dst; later calls for the same dst replace earlier ones. Sample returns
// the number of slots filled.
func Sample(ctx context.Context, k, n int, pick func(dst, src int)) (int, error) {
	if k < 0 || n < 0 {
		panic("invalid argument: k and n must be non-negative")
	}
	k = min(k, n)
	for i := range k {
		pick(i, i)
	}
	for i := k; i < n; i++ {
		j, err := RandIntn(ctx, i+1)
		if err != nil {
			return 0, err
		}
		if j < k {
			pick(j, i)
		}
	}
	return k, nil
}
