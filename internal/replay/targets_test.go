package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blokuszero/blokuszero/internal/game"
)

func emptyRow() (state, policy, value []float32) {
	return make([]float32, game.StateSize),
		make([]float32, game.NumTiles),
		make([]float32, game.NumPlayers)
}

// twoMoveGame is the reference game: player 0 opens on tile 0, player 1
// answers on the opposite corner.
func twoMoveGame() *game.Record {
	return &game.Record{
		History:  []game.Move{{Player: 0, Tile: 0}, {Player: 1, Tile: 399}},
		Policies: []game.Policy{{{Action: 0, Prob: 1.0}}, {{Action: 399, Prob: 1.0}}},
		Scores:   [game.NumPlayers]float32{1, -1, 0, 0},
	}
}

func TestWriteTargetOpeningPosition(t *testing.T) {
	t.Parallel()
	state, policy, value := emptyRow()

	writeTarget(twoMoveGame(), 0, false, false, state, policy, value)

	// Index 0 supervises the opening: nothing on the board yet.
	for i, v := range state {
		require.Zerof(t, v, "state[%d] should be empty", i)
	}
	assert.Equal(t, float32(1.0), policy[0])
	for a := 1; a < game.NumTiles; a++ {
		require.Zerof(t, policy[a], "policy[%d]", a)
	}
	assert.Equal(t, []float32{1, -1, 0, 0}, value)
}

func TestWriteTargetSecondPosition(t *testing.T) {
	t.Parallel()
	state, policy, value := emptyRow()

	writeTarget(twoMoveGame(), 1, false, false, state, policy, value)

	// Only move 0 is on the board: plane 0 at tile 0. Move 1 itself is
	// the supervision target, never part of the state.
	assert.Equal(t, float32(1.0), state[0])
	for i := 1; i < game.StateSize; i++ {
		require.Zerof(t, state[i], "state[%d]", i)
	}
	assert.Equal(t, float32(1.0), policy[399])
	assert.Equal(t, []float32{1, -1, 0, 0}, value)
}

func TestWriteTargetValueConstantAcrossPositions(t *testing.T) {
	t.Parallel()
	rec := twoMoveGame()

	for i := 0; i < rec.NumMoves(); i++ {
		state, policy, value := emptyRow()
		writeTarget(rec, i, false, false, state, policy, value)
		assert.Equal(t, []float32{1, -1, 0, 0}, value)
	}
}

// flippedTile mirrors a tile index across the requested axes.
func flippedTile(tile int, flipRows, flipCols bool) int {
	r, c := tile/game.Dim, tile%game.Dim
	if flipRows {
		r = game.Dim - 1 - r
	}
	if flipCols {
		c = game.Dim - 1 - c
	}
	return r*game.Dim + c
}

func TestWriteTargetAugmentationConsistency(t *testing.T) {
	t.Parallel()

	// A mid-board position so every flip moves it somewhere distinct.
	moveTile := 2*game.Dim + 5
	prevTile := 7*game.Dim + 11
	rec := &game.Record{
		History:  []game.Move{{Player: 3, Tile: prevTile}, {Player: 0, Tile: moveTile}},
		Policies: []game.Policy{{{Action: prevTile, Prob: 1.0}}, {{Action: moveTile, Prob: 0.8}, {Action: 0, Prob: 0.2}}},
		Scores:   [game.NumPlayers]float32{0, 0, 0, 1},
	}

	for _, tc := range []struct {
		name               string
		flipRows, flipCols bool
	}{
		{"no flip", false, false},
		{"rows", true, false},
		{"cols", false, true},
		{"both", true, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			state, policy, value := emptyRow()
			writeTarget(rec, 1, tc.flipRows, tc.flipCols, state, policy, value)

			// The policy argmax must land on the geometric image of the
			// original argmax tile.
			wantArgmax := flippedTile(moveTile, tc.flipRows, tc.flipCols)
			argmax := 0
			for a, p := range policy {
				if p > policy[argmax] {
					argmax = a
				}
			}
			assert.Equal(t, wantArgmax, argmax)
			assert.Equal(t, float32(0.8), policy[argmax])

			// The board occupancy must move with the same symmetry:
			// player 3's stone follows prevTile's image.
			wantStone := flippedTile(prevTile, tc.flipRows, tc.flipCols)
			assert.Equal(t, float32(1.0), state[3*game.NumTiles+wantStone])

			// Exactly one occupied cell in the whole state.
			var occupied int
			for _, v := range state {
				if v != 0 {
					occupied++
				}
			}
			assert.Equal(t, 1, occupied)
		})
	}
}

func TestWriteTargetAuxiliaryPlaneUnused(t *testing.T) {
	t.Parallel()
	rec := twoMoveGame()
	state, policy, value := emptyRow()
	writeTarget(rec, 1, true, true, state, policy, value)

	// Plane 4 carries no signal in the current target construction.
	aux := state[4*game.NumTiles : 5*game.NumTiles]
	for i, v := range aux {
		require.Zerof(t, v, "aux plane cell %d", i)
	}
}
