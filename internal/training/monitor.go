package training

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// TrainMonitor receives notifications about training progress.
type TrainMonitor interface {
	// OnRoundStart is called when a training round begins.
	OnRoundStart(round, steps int)

	// OnStep is called after each optimizer step.
	OnStep(round, step int, losses Losses)

	// OnRoundEnd is called after the round's checkpoint is written.
	OnRoundEnd(round int)
}

// NullTrainMonitor is a no-op implementation.
type NullTrainMonitor struct{}

func (NullTrainMonitor) OnRoundStart(int, int)   {}
func (NullTrainMonitor) OnStep(int, int, Losses) {}
func (NullTrainMonitor) OnRoundEnd(int)          {}

// MultiTrainMonitor fans out events to multiple monitors.
type MultiTrainMonitor struct {
	monitors []TrainMonitor
}

// NewMultiTrainMonitor builds a composite monitor, pruning nil entries
// and returning a NullTrainMonitor when none remain.
func NewMultiTrainMonitor(monitors ...TrainMonitor) TrainMonitor {
	filtered := make([]TrainMonitor, 0, len(monitors))
	for _, monitor := range monitors {
		if monitor != nil {
			filtered = append(filtered, monitor)
		}
	}

	switch len(filtered) {
	case 0:
		return NullTrainMonitor{}
	case 1:
		return filtered[0]
	default:
		return MultiTrainMonitor{monitors: filtered}
	}
}

func (m MultiTrainMonitor) OnRoundStart(round, steps int) {
	for _, monitor := range m.monitors {
		monitor.OnRoundStart(round, steps)
	}
}

func (m MultiTrainMonitor) OnStep(round, step int, losses Losses) {
	for _, monitor := range m.monitors {
		monitor.OnStep(round, step, losses)
	}
}

func (m MultiTrainMonitor) OnRoundEnd(round int) {
	for _, monitor := range m.monitors {
		monitor.OnRoundEnd(round)
	}
}

// DotsMonitor prints minimal progress output: one dot per training
// step, one line per round.
type DotsMonitor struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewDotsMonitor creates a dots monitor writing to w (stdout if nil).
func NewDotsMonitor(w io.Writer) *DotsMonitor {
	if w == nil {
		w = os.Stdout
	}
	return &DotsMonitor{writer: w}
}

func (d *DotsMonitor) OnRoundStart(round, steps int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.writer, "round %d ", round)
}

func (d *DotsMonitor) OnStep(round, step int, losses Losses) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprint(d.writer, ".")
}

func (d *DotsMonitor) OnRoundEnd(round int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintln(d.writer, " done")
}
