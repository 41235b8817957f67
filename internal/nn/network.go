// Package nn implements the policy+value network behind the server's
// Predictor interface using GoMLX. The model is a feed-forward trunk
// over the flattened [5,20,20] board with a 400-way policy head and a
// 4-player tanh value head; training runs cross-entropy on the policy
// plus mean-squared error on the value, equally weighted.
package nn

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/xla"
	"github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/checkpoints"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/layers/activations"
	fnnLayer "github.com/gomlx/gomlx/ml/layers/fnn"
	"github.com/gomlx/gomlx/ml/layers/regularizers"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/ml/train/losses"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/blokuszero/blokuszero/internal/game"
	"github.com/blokuszero/blokuszero/internal/replay"
	"github.com/blokuszero/blokuszero/internal/training"
)

// backend is a singleton shared by every Network in the process.
var backend = sync.OnceValue(func() backends.Backend { return backends.New() })

// Config carries the network hyperparameters.
type Config struct {
	// Width is the number of hidden nodes per trunk layer.
	Width int

	// Blocks is the number of hidden trunk layers.
	Blocks int

	// LearningRate for the Adam optimizer.
	LearningRate float64
}

// Network is the GoMLX-backed Predictor. Predict takes the learning
// lock shared, TrainStep takes it exclusive, so inference never
// observes the model mid-update.
type Network struct {
	cfg    Config
	ctx    *context.Context
	logger *log.Logger

	predictExec, trainStepExec *context.Exec

	// optimizer used when training the model.
	optimizer optimizers.Interface

	// muLearning: "write" for training, "read" for inference.
	muLearning sync.RWMutex

	// muSave makes checkpoint writes sequential.
	muSave sync.Mutex
}

// Compile-time assert that Network implements training.Predictor.
var _ training.Predictor = (*Network)(nil)

// NewNetwork creates a network with fresh weights and the given
// hyperparameters.
func NewNetwork(cfg Config, logger *log.Logger) *Network {
	ctx := context.New()
	ctx.RngStateReset()
	ctx.SetParams(map[string]any{
		optimizers.ParamOptimizer:    "adam",
		optimizers.ParamLearningRate: cfg.LearningRate,
		activations.ParamActivation:  "relu",
		layers.ParamDropoutRate:      0.0,
		regularizers.ParamL2:         1e-5,

		fnnLayer.ParamNumHiddenLayers: cfg.Blocks,
		fnnLayer.ParamNumHiddenNodes:  cfg.Width,
		fnnLayer.ParamResidual:        true,
		fnnLayer.ParamNormalization:   "layer",
	})

	n := &Network{
		cfg:    cfg,
		ctx:    ctx.Checked(false),
		logger: logger.WithPrefix("nn"),
	}
	n.optimizer = optimizers.FromContext(n.ctx)
	n.createExecutors()
	return n
}

// forwardGraph builds the model graph: shared trunk, policy logits and
// tanh-bounded per-player values.
func (n *Network) forwardGraph(ctx *context.Context, states *graph.Node) (policyLogits, value *graph.Node) {
	batchSize := states.Shape().Dim(0)
	flat := graph.Reshape(states, batchSize, game.StateSize)
	trunk := fnnLayer.New(ctx.In("trunk"), flat, n.cfg.Width).Done()
	policyLogits = fnnLayer.New(ctx.In("policy"), trunk, game.NumTiles).Done()
	value = graph.Tanh(fnnLayer.New(ctx.In("value"), trunk, game.NumPlayers).Done())
	return
}

func (n *Network) createExecutors() {
	n.predictExec = context.NewExec(backend(), n.ctx,
		func(ctx *context.Context, inputs []*graph.Node) []*graph.Node {
			policyLogits, value := n.forwardGraph(ctx, inputs[0])
			return []*graph.Node{graph.Softmax(policyLogits), value}
		})

	n.trainStepExec = context.NewExec(backend(), n.ctx,
		func(ctx *context.Context, inputsAndLabels []*graph.Node) []*graph.Node {
			g := inputsAndLabels[0].Graph()
			ctx.SetTraining(g, true)
			states, policyLabels, valueLabels := inputsAndLabels[0], inputsAndLabels[1], inputsAndLabels[2]

			policyLogits, value := n.forwardGraph(ctx, states)

			policyLoss := losses.CategoricalCrossEntropyLogits([]*graph.Node{policyLabels}, []*graph.Node{policyLogits})
			if !policyLoss.IsScalar() {
				policyLoss = graph.ReduceAllMean(policyLoss)
			}
			valueLoss := losses.MeanSquaredError([]*graph.Node{valueLabels}, []*graph.Node{value})
			if !valueLoss.IsScalar() {
				valueLoss = graph.ReduceAllMean(valueLoss)
			}

			// Equal weighting, no tunable scaling term.
			loss := graph.Add(policyLoss, valueLoss)
			n.optimizer.UpdateGraph(ctx, g, loss)
			train.ExecPerStepUpdateGraphFn(ctx, g)
			return []*graph.Node{loss, policyLoss, valueLoss}
		})
}

// Predict implements training.Predictor. The player argument is part of
// the wire contract but the current model does not condition on it (the
// auxiliary input plane is unpopulated, see the target builder).
func (n *Network) Predict(boards []float32, player int) ([]float32, []float32, error) {
	if len(boards) != game.StateSize {
		return nil, nil, errors.Errorf("predict input must be %d floats, got %d", game.StateSize, len(boards))
	}

	states := tensors.FromShape(shapes.Make(dtypes.Float32, 1, game.NumPlanes, game.Dim, game.Dim))
	tensors.MutableFlatData(states, func(flat []float32) {
		copy(flat, boards)
	})

	n.muLearning.RLock()
	defer n.muLearning.RUnlock()

	var policy, value []float32
	err := exceptions.TryCatch[error](func() {
		outputs := n.predictExec.Call(states)
		policy = tensors.CopyFlatData[float32](outputs[0])
		value = tensors.CopyFlatData[float32](outputs[1])
	})
	if err != nil {
		return nil, nil, errors.WithMessage(err, "inference failed")
	}
	return policy, value, nil
}

// TrainStep implements training.Predictor: one optimizer step over the
// batch.
func (n *Network) TrainStep(batch *replay.Batch) (training.Losses, error) {
	states := tensors.FromShape(shapes.Make(dtypes.Float32, batch.Size, game.NumPlanes, game.Dim, game.Dim))
	tensors.MutableFlatData(states, func(flat []float32) {
		copy(flat, batch.States)
	})
	policies := tensors.FromShape(shapes.Make(dtypes.Float32, batch.Size, game.NumTiles))
	tensors.MutableFlatData(policies, func(flat []float32) {
		copy(flat, batch.Policies)
	})
	values := tensors.FromShape(shapes.Make(dtypes.Float32, batch.Size, game.NumPlayers))
	tensors.MutableFlatData(values, func(flat []float32) {
		copy(flat, batch.Values)
	})

	n.muLearning.Lock()
	defer n.muLearning.Unlock()

	var result training.Losses
	err := exceptions.TryCatch[error](func() {
		outputs := n.trainStepExec.Call(states, policies, values)
		result = training.Losses{
			Loss:       tensors.ToScalar[float32](outputs[0]),
			PolicyLoss: tensors.ToScalar[float32](outputs[1]),
			ValueLoss:  tensors.ToScalar[float32](outputs[2]),
		}
	})
	if err != nil {
		return training.Losses{}, errors.WithMessage(err, "training step failed")
	}
	return result, nil
}

// Save implements training.Predictor: it writes a checkpoint for the
// round under dir, one directory per round, older rounds retained.
func (n *Network) Save(dir string, round int) error {
	n.muSave.Lock()
	defer n.muSave.Unlock()

	path := RoundDir(dir, round)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return errors.Wrapf(err, "creating checkpoint directory %s", path)
	}

	// Shared lock: saving reads variables but never mutates them.
	n.muLearning.RLock()
	defer n.muLearning.RUnlock()

	return exceptions.TryCatch[error](func() {
		handler := must(checkpoints.Build(n.ctx).Dir(path).Done())
		must0(handler.Save())
		n.logger.Info("Checkpoint saved", "round", round, "dir", handler.Dir())
	})
}

// Load restores weights from the checkpoint directory previously
// written by Save.
func (n *Network) Load(path string) error {
	n.muLearning.Lock()
	defer n.muLearning.Unlock()

	return exceptions.TryCatch[error](func() {
		must(checkpoints.Build(n.ctx).Dir(path).Immediate().Done())
		n.logger.Info("Checkpoint loaded", "dir", path)
	})
}

// RoundDir returns the checkpoint directory for a round.
func RoundDir(dir string, round int) string {
	return filepath.Join(dir, fmt.Sprintf("round-%04d", round))
}

// LatestRound scans dir for per-round checkpoints and returns the
// highest round found, or -1 when none exist.
func LatestRound(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return -1, nil
	}
	if err != nil {
		return -1, err
	}

	latest := -1
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		var round int
		if _, err := fmt.Sscanf(entry.Name(), "round-%d", &round); err != nil {
			continue
		}
		if round > latest {
			latest = round
		}
	}
	return latest, nil
}

func must[T any](value T, err error) T {
	if err != nil {
		exceptions.Panicf("%+v", err)
	}
	return value
}

func must0(err error) {
	if err != nil {
		exceptions.Panicf("%+v", err)
	}
}
