package training

import (
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/blokuszero/blokuszero/internal/replay"
)

// ErrNoTrainingSteps is returned when the coordinator is asked to train
// with a non-positive step count.
var ErrNoTrainingSteps = errors.New("training steps must be positive")

// Config carries the training-loop parameters.
type Config struct {
	// Steps is the number of optimizer steps per round.
	Steps int

	// BatchSize is the number of examples sampled per step.
	BatchSize int

	// ModelsDir is where per-round checkpoints are written.
	ModelsDir string
}

// Coordinator runs training rounds over the replay buffer. It owns the
// round counter: a round completes when Steps optimizer steps have run
// and a checkpoint tagged with the round number has been written, after
// which the counter advances. There is exactly one Coordinator per
// server process, and Train is never invoked concurrently (the gate
// serializes triggers).
type Coordinator struct {
	buffer    *replay.Buffer
	predictor Predictor
	cfg       Config
	logger    *log.Logger

	stats   *StatsWriter
	monitor TrainMonitor

	mu    sync.Mutex
	round int
}

// Option configures optional coordinator collaborators.
type Option func(*Coordinator)

// WithStats attaches a per-step statistics sink.
func WithStats(w *StatsWriter) Option {
	return func(c *Coordinator) { c.stats = w }
}

// WithMonitor attaches a training progress monitor.
func WithMonitor(m TrainMonitor) Option {
	return func(c *Coordinator) { c.monitor = m }
}

// WithStartRound sets the initial round, used when resuming from a
// checkpointed model.
func WithStartRound(round int) Option {
	return func(c *Coordinator) { c.round = round }
}

// NewCoordinator creates a coordinator over the given buffer and model.
func NewCoordinator(buffer *replay.Buffer, predictor Predictor, cfg Config, logger *log.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		buffer:    buffer,
		predictor: predictor,
		cfg:       cfg,
		logger:    logger.WithPrefix("trainer"),
		monitor:   NullTrainMonitor{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Round returns the current training round, starting at 0.
func (c *Coordinator) Round() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.round
}

// Train runs one full training round: Steps sampled batches through the
// predictor, a checkpoint write, then the round advance. A buffer that
// cannot supply a batch is a fatal precondition violation surfaced to
// the caller, never a silent no-op.
func (c *Coordinator) Train() error {
	if c.cfg.Steps <= 0 {
		return fmt.Errorf("%w: got %d", ErrNoTrainingSteps, c.cfg.Steps)
	}

	round := c.Round()
	c.monitor.OnRoundStart(round, c.cfg.Steps)
	c.logger.Info("Starting training round", "round", round, "steps", c.cfg.Steps, "buffer_size", c.buffer.Len())

	for step := 0; step < c.cfg.Steps; step++ {
		batch, err := c.buffer.Sample(c.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("sampling batch for step %d: %w", step, err)
		}

		losses, err := c.predictor.TrainStep(batch)
		if err != nil {
			return fmt.Errorf("training step %d: %w", step, err)
		}

		if c.stats != nil {
			row := StatsRow{
				Round:      round,
				Loss:       losses.Loss,
				ValueLoss:  losses.ValueLoss,
				PolicyLoss: losses.PolicyLoss,
				BufferSize: c.buffer.Len(),
			}
			if err := c.stats.Append(row); err != nil {
				// Statistics never break training.
				c.logger.Warn("Failed to append training stats", "error", err)
			}
		}

		c.monitor.OnStep(round, step, losses)
		c.logger.Debug("Training step complete", "round", round, "step", step,
			"loss", losses.Loss, "policy_loss", losses.PolicyLoss, "value_loss", losses.ValueLoss)
	}

	if err := c.predictor.Save(c.cfg.ModelsDir, round); err != nil {
		return fmt.Errorf("saving checkpoint for round %d: %w", round, err)
	}

	c.mu.Lock()
	c.round++
	c.mu.Unlock()

	c.monitor.OnRoundEnd(round)
	c.logger.Info("Training round complete", "round", round, "next_round", round+1)
	return nil
}
