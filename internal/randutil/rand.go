// Package randutil centralises how the server derives rand/v2 sources,
// so every component that consumes randomness (buffer sampling, target
// construction, synthetic clients) is reproducible from one seed.
package randutil

import (
	rand "math/rand/v2"
	"time"
)

const goldenRatio64 = 0x9e3779b97f4a7c15

// New returns a *rand.Rand seeded deterministically from seed. The two
// 64-bit PCG seeds are derived with a splitmix-style finalizer so that
// nearby seeds still produce unrelated streams.
func New(seed int64) *rand.Rand {
	u := uint64(seed)
	return rand.New(rand.NewPCG(mix(u), mix(u+goldenRatio64)))
}

// FromTime returns a wall-clock seeded source and the seed used, so the
// caller can log it for later reproduction.
func FromTime() (*rand.Rand, int64) {
	seed := time.Now().UnixNano()
	return New(seed), seed
}

func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
