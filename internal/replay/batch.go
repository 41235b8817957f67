package replay

import "github.com/blokuszero/blokuszero/internal/game"

// Batch is one training mini-batch, laid out as flat row-major tensors
// ready to hand to the predictor: States is [size,5,20,20], Policies is
// [size,400] (dense, zero-filled outside the listed actions) and Values
// is [size,4]. Batches are built fresh per Sample call and never stored.
type Batch struct {
	States   []float32
	Policies []float32
	Values   []float32
	Size     int
}

func newBatch(size int) *Batch {
	return &Batch{
		States:   make([]float32, size*game.StateSize),
		Policies: make([]float32, size*game.NumTiles),
		Values:   make([]float32, size*game.NumPlayers),
		Size:     size,
	}
}

// row returns the slices backing example n of the batch.
func (b *Batch) row(n int) (state, policy, value []float32) {
	state = b.States[n*game.StateSize : (n+1)*game.StateSize]
	policy = b.Policies[n*game.NumTiles : (n+1)*game.NumTiles]
	value = b.Values[n*game.NumPlayers : (n+1)*game.NumPlayers]
	return
}
