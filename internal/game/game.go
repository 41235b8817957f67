// Package game defines the Blokus game entities the coordination server
// works with: finished-game records as submitted by self-play clients,
// and the board geometry shared by target construction and inference.
package game

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const (
	// Dim is the side length of the Blokus board.
	Dim = 20

	// NumTiles is the number of board positions, and the size of the
	// dense policy vector.
	NumTiles = Dim * Dim

	// NumPlayers is the number of players in a game.
	NumPlayers = 4

	// NumPlanes is the number of channels in a board state tensor:
	// one occupancy plane per player plus one auxiliary plane.
	NumPlanes = 5

	// StateSize is the flat length of one board state tensor.
	StateSize = NumPlanes * Dim * Dim
)

var (
	ErrEmptyGame      = errors.New("game has no moves")
	ErrLengthMismatch = errors.New("history and policies lengths differ")
	ErrOutOfBounds    = errors.New("move index out of board bounds")
)

// Move is one placement in a game: which player moved and which tile
// anchors the placement. Tile is a flat row-major board index.
type Move struct {
	Player int `json:"player"`
	Tile   int `json:"tile"`
}

// Row returns the board row of the move's tile.
func (m Move) Row() int { return m.Tile / Dim }

// Col returns the board column of the move's tile.
func (m Move) Col() int { return m.Tile % Dim }

// ActionProb is one entry of a sparse policy: the probability assigned
// to a legal action at some position.
type ActionProb struct {
	Action int     `json:"action"`
	Prob   float32 `json:"prob"`
}

// Policy is the sparse move distribution recorded for one position.
// Probabilities are only required to cover the actions listed.
type Policy []ActionProb

// Record is one finished game as stored in the replay buffer. It is
// created whole by a single Save call and never mutated afterwards.
type Record struct {
	// ID is assigned by the server when the game is accepted.
	ID uuid.UUID

	// History holds the moves in play order.
	History []Move

	// Policies holds the search policy for each position in History.
	Policies []Policy

	// Scores is the final outcome for each of the four players,
	// attached unchanged to every position sampled from this game.
	Scores [NumPlayers]float32
}

// NumMoves returns the game length.
func (r *Record) NumMoves() int { return len(r.History) }

// Validate checks the record invariants: at least one move, matching
// history/policy lengths, and all player/tile/action indices within
// board bounds. Records arriving over the wire are validated before
// they reach the buffer.
func (r *Record) Validate() error {
	if len(r.History) == 0 {
		return ErrEmptyGame
	}
	if len(r.History) != len(r.Policies) {
		return fmt.Errorf("%w: %d moves, %d policies", ErrLengthMismatch, len(r.History), len(r.Policies))
	}
	for i, m := range r.History {
		if m.Player < 0 || m.Player >= NumPlayers {
			return fmt.Errorf("%w: move %d player %d", ErrOutOfBounds, i, m.Player)
		}
		if m.Tile < 0 || m.Tile >= NumTiles {
			return fmt.Errorf("%w: move %d tile %d", ErrOutOfBounds, i, m.Tile)
		}
		for _, ap := range r.Policies[i] {
			if ap.Action < 0 || ap.Action >= NumTiles {
				return fmt.Errorf("%w: move %d policy action %d", ErrOutOfBounds, i, ap.Action)
			}
		}
	}
	return nil
}
