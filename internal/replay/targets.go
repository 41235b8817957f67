package replay

import (
	rand "math/rand/v2"

	"github.com/blokuszero/blokuszero/internal/game"
)

// buildTarget fills one training row from a stored game: it picks a
// position uniformly at random, reconstructs the board before that
// move, densifies the recorded policy for the move, attaches the final
// scores, and applies random symmetry augmentation. The destination
// slices must be zero-filled.
func buildTarget(rec *game.Record, rng *rand.Rand, state, policy, value []float32) {
	i := rng.IntN(rec.NumMoves())
	writeTarget(rec, i, rng.IntN(2) == 1, rng.IntN(2) == 1, state, policy, value)
}

// writeTarget builds the (state, policy, value) triple for position i
// of the game, optionally flipping rows and/or columns. The flips are
// applied to the state planes and the policy grid together so action
// indices stay aligned with board geometry.
func writeTarget(rec *game.Record, i int, flipRows, flipCols bool, state, policy, value []float32) {
	// The state is the board before move i: moves at index >= i are the
	// future the policy target is supervising towards. i == 0 is the
	// empty opening position.
	for _, m := range rec.History[:i] {
		state[m.Player*game.NumTiles+m.Tile] = 1
	}
	// TODO: populate the side-to-move plane (plane 4) and orient the
	// occupancy planes relative to the player to move.

	for _, ap := range rec.Policies[i] {
		policy[ap.Action] = ap.Prob
	}

	for p, s := range rec.Scores {
		value[p] = s
	}

	if flipRows {
		flipPlanesRows(state, game.NumPlanes)
		flipPlanesRows(policy, 1)
	}
	if flipCols {
		flipPlanesCols(state, game.NumPlanes)
		flipPlanesCols(policy, 1)
	}
}

// flipPlanesRows reverses the row order of each Dim×Dim plane in buf.
func flipPlanesRows(buf []float32, planes int) {
	for p := 0; p < planes; p++ {
		plane := buf[p*game.NumTiles : (p+1)*game.NumTiles]
		for r := 0; r < game.Dim/2; r++ {
			top := plane[r*game.Dim : (r+1)*game.Dim]
			bottom := plane[(game.Dim-1-r)*game.Dim : (game.Dim-r)*game.Dim]
			for c := range top {
				top[c], bottom[c] = bottom[c], top[c]
			}
		}
	}
}

// flipPlanesCols reverses the column order of each Dim×Dim plane in buf.
func flipPlanesCols(buf []float32, planes int) {
	for p := 0; p < planes; p++ {
		plane := buf[p*game.NumTiles : (p+1)*game.NumTiles]
		for r := 0; r < game.Dim; r++ {
			row := plane[r*game.Dim : (r+1)*game.Dim]
			for c := 0; c < game.Dim/2; c++ {
				row[c], row[game.Dim-1-c] = row[game.Dim-1-c], row[c]
			}
		}
	}
}
