// Package training owns the round state machine of the self-play
// pipeline: the coordinator that runs fixed-length training loops over
// replay-buffer samples and versions the model per round, and the gate
// that converts a quota of saved games into exactly one training run.
package training

import "github.com/blokuszero/blokuszero/internal/replay"

// Losses are the per-step loss components reported by a training step.
// Loss is the equally-weighted sum of the policy and value terms.
type Losses struct {
	Loss       float32
	PolicyLoss float32
	ValueLoss  float32
}

// Predictor is the neural model consumed as a black box: inference over
// a flat [5,20,20] board, one optimizer step over a batch, and a
// checkpoint write per round. Implementations must allow concurrent
// Predict calls and must not let Predict observe a model mid-update.
type Predictor interface {
	// Predict runs inference for one board and returns the dense
	// policy over the 400 tiles and the 4-player value estimate.
	Predict(boards []float32, player int) (policy []float32, value []float32, err error)

	// TrainStep runs one forward/backward pass and optimizer update
	// over the batch, returning the loss components.
	TrainStep(batch *replay.Batch) (Losses, error)

	// Save persists a checkpoint for the given round under dir.
	Save(dir string, round int) error
}
