package training

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	roundHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FAFAFA")).
				Background(lipgloss.Color("#7D56F4")).
				Bold(true).
				Padding(0, 1)

	stepLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#96CEB4"))

	lossStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD93D"))

	roundDoneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			Bold(true)
)

// PrettyMonitor renders styled per-step training output: a header per
// round, one loss line per optimizer step, and a completion line once
// the round's checkpoint is written.
type PrettyMonitor struct {
	mu     sync.Mutex
	writer io.Writer
	steps  int
}

// NewPrettyMonitor creates a pretty monitor writing to w (stdout if nil).
func NewPrettyMonitor(w io.Writer) *PrettyMonitor {
	if w == nil {
		w = os.Stdout
	}
	return &PrettyMonitor{writer: w}
}

// OnRoundStart implements TrainMonitor.
func (p *PrettyMonitor) OnRoundStart(round, steps int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps = steps
	fmt.Fprintln(p.writer, roundHeaderStyle.Render(fmt.Sprintf("Training round %d (%d steps)", round, steps)))
}

// OnStep implements TrainMonitor.
func (p *PrettyMonitor) OnStep(round, step int, losses Losses) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.writer, "%s %s\n",
		stepLabelStyle.Render(fmt.Sprintf("step %d/%d", step+1, p.steps)),
		lossStyle.Render(fmt.Sprintf("loss=%.4f policy=%.4f value=%.4f",
			losses.Loss, losses.PolicyLoss, losses.ValueLoss)))
}

// OnRoundEnd implements TrainMonitor.
func (p *PrettyMonitor) OnRoundEnd(round int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.writer, roundDoneStyle.Render(fmt.Sprintf("Round %d checkpoint saved", round)))
}
