package training

import (
	"sync"

	"github.com/charmbracelet/log"
)

// Trainer runs one full training round. Implemented by Coordinator.
type Trainer interface {
	Train() error
}

// Gate counts completed game submissions against the per-round quota
// and fires the trainer exactly once each time the quota is reached.
// The trigger is synchronous: the Save call that completes the quota
// pays the full training latency.
//
// The whole increment-compare-trigger sequence runs under one mutex, so
// concurrent Saves landing at the quota boundary can neither skip nor
// double-fire a round. Saves arriving while a round trains block on the
// gate until the round finishes.
type Gate struct {
	quota   int
	trainer Trainer
	logger  *log.Logger

	mu    sync.Mutex
	saves int
}

// NewGate creates a gate that triggers trainer after quota saves.
func NewGate(quota int, trainer Trainer, logger *log.Logger) *Gate {
	return &Gate{
		quota:   quota,
		trainer: trainer,
		logger:  logger.WithPrefix("gate"),
	}
}

// NotifySave records one completed game. When the quota is reached the
// counter resets to zero and one training round runs before control
// returns. The counter resets even when training fails, so a failed
// round consumes its quota rather than wedging the gate.
func (g *Gate) NotifySave() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.saves++
	if g.saves < g.quota {
		g.logger.Debug("Game accepted", "saves", g.saves, "quota", g.quota)
		return nil
	}

	g.saves = 0
	g.logger.Info("Quota reached, triggering training", "quota", g.quota)
	return g.trainer.Train()
}

// Pending returns how many saves have accumulated towards the quota.
func (g *Gate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.saves
}
