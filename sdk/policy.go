package sdk

import (
	"math/rand/v2"

	"github.com/chewxy/math32"
)

// SamplePolicy picks a tile from a dense policy restricted to the legal
// tiles, sharpened by temperature: weights are policy[tile]^(1/T),
// renormalized over legal. Temperature <= 0 picks the legal argmax.
// A policy with no mass on any legal tile falls back to a uniform pick.
// Returns -1 when legal is empty.
func SamplePolicy(policy []float32, legal []int, temperature float32, rng *rand.Rand) int {
	if len(legal) == 0 {
		return -1
	}

	if temperature <= 0 {
		best := legal[0]
		for _, tile := range legal[1:] {
			if policy[tile] > policy[best] {
				best = tile
			}
		}
		return best
	}

	weights := make([]float32, len(legal))
	var total float32
	for i, tile := range legal {
		p := policy[tile]
		if p > 0 {
			weights[i] = math32.Pow(p, 1/temperature)
		}
		total += weights[i]
	}
	if total <= 0 {
		return legal[rng.IntN(len(legal))]
	}

	target := rng.Float32() * total
	var cumulative float32
	for i, w := range weights {
		cumulative += w
		if target < cumulative {
			return legal[i]
		}
	}
	return legal[len(legal)-1]
}
