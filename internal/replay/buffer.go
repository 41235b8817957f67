// Package replay implements the experience-replay store for self-play
// training: a bounded FIFO buffer of finished games, and the sampling
// policy that turns stored games into training batches. Games are
// sampled with replacement proportionally to their move count, then one
// position per chosen game is reconstructed from move history.
package replay

import (
	"errors"
	"fmt"
	rand "math/rand/v2"
	"sync"

	"github.com/blokuszero/blokuszero/internal/game"
)

var (
	ErrEmptyBuffer      = errors.New("replay buffer is empty")
	ErrInvalidBatchSize = errors.New("batch size must be positive")
)

// Buffer is a capacity-bounded store of game records. When full, the
// oldest inserted game is evicted first so stale self-play data from
// old model generations drops out before fresh data does.
//
// One coarse mutex covers insertion and sampling: the buffer is shared
// between concurrent Save handlers and the trainer, and contention is
// low enough that finer locking buys nothing.
type Buffer struct {
	mu         sync.Mutex
	capacity   int
	games      []*game.Record
	totalMoves int
	rng        *rand.Rand
}

// NewBuffer creates a buffer holding at most capacity games, drawing
// all sampling randomness from rng. Capacity is clamped to at least one
// game: a non-positive capacity would make every insert evict.
func NewBuffer(capacity int, rng *rand.Rand) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		capacity: capacity,
		games:    make([]*game.Record, 0, capacity),
		rng:      rng,
	}
}

// Insert appends a finished game, evicting the oldest game when the
// buffer is at capacity. The record must not be mutated afterwards.
func (b *Buffer) Insert(rec *game.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.games) == b.capacity {
		b.totalMoves -= b.games[0].NumMoves()
		copy(b.games, b.games[1:])
		b.games[len(b.games)-1] = rec
	} else {
		b.games = append(b.games, rec)
	}
	b.totalMoves += rec.NumMoves()
}

// Len returns the number of stored games.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.games)
}

// TotalMoves returns the number of positions across all stored games.
func (b *Buffer) TotalMoves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalMoves
}

// Sample builds a training batch of batchSize examples. Games are
// chosen with replacement, each with probability proportional to its
// move count, and one position per chosen game becomes a training row.
// Sampling an empty buffer or a non-positive batch size is a caller
// error, not a condition to wait out.
func (b *Buffer) Sample(batchSize int) (*Batch, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBatchSize, batchSize)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.games) == 0 {
		return nil, ErrEmptyBuffer
	}

	batch := newBatch(batchSize)
	for n := 0; n < batchSize; n++ {
		rec := b.pickWeighted()
		state, policy, value := batch.row(n)
		buildTarget(rec, b.rng, state, policy, value)
	}
	return batch, nil
}

// pickWeighted selects a game with probability len(history)/totalMoves.
// Drawing a uniform move offset over all stored positions and scanning
// to the owning game is exactly that distribution. Callers hold b.mu.
func (b *Buffer) pickWeighted() *game.Record {
	target := b.rng.IntN(b.totalMoves)
	for _, rec := range b.games {
		target -= rec.NumMoves()
		if target < 0 {
			return rec
		}
	}
	// Unreachable while totalMoves is consistent with games.
	return b.games[len(b.games)-1]
}
