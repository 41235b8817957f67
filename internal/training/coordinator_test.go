package training

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blokuszero/blokuszero/internal/game"
	"github.com/blokuszero/blokuszero/internal/randutil"
	"github.com/blokuszero/blokuszero/internal/replay"
)

// stubPredictor counts training steps and checkpoint saves without any
// real model behind it.
type stubPredictor struct {
	mu         sync.Mutex
	steps      int
	savedDirs  []string
	savedRound []int
	trainErr   error
	saveErr    error
}

func (s *stubPredictor) Predict(boards []float32, player int) ([]float32, []float32, error) {
	return make([]float32, game.NumTiles), make([]float32, game.NumPlayers), nil
}

func (s *stubPredictor) TrainStep(batch *replay.Batch) (Losses, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trainErr != nil {
		return Losses{}, s.trainErr
	}
	s.steps++
	return Losses{Loss: 1.5, PolicyLoss: 1.0, ValueLoss: 0.5}, nil
}

func (s *stubPredictor) Save(dir string, round int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.savedDirs = append(s.savedDirs, dir)
	s.savedRound = append(s.savedRound, round)
	return nil
}

func seededBuffer(t *testing.T) *replay.Buffer {
	t.Helper()
	buf := replay.NewBuffer(16, randutil.New(11))
	buf.Insert(&game.Record{
		History:  []game.Move{{Player: 0, Tile: 21}, {Player: 1, Tile: 42}},
		Policies: []game.Policy{{{Action: 21, Prob: 1.0}}, {{Action: 42, Prob: 1.0}}},
		Scores:   [game.NumPlayers]float32{1, -1, 0, 0},
	})
	return buf
}

func TestCoordinatorTrainAdvancesRound(t *testing.T) {
	t.Parallel()
	pred := &stubPredictor{}
	coord := NewCoordinator(seededBuffer(t), pred, Config{Steps: 4, BatchSize: 2, ModelsDir: t.TempDir()}, testLogger())

	require.Equal(t, 0, coord.Round())
	require.NoError(t, coord.Train())

	assert.Equal(t, 1, coord.Round())
	assert.Equal(t, 4, pred.steps)
	// Checkpoint is tagged with the round that just trained, before the
	// counter advances.
	require.Len(t, pred.savedRound, 1)
	assert.Equal(t, 0, pred.savedRound[0])

	require.NoError(t, coord.Train())
	assert.Equal(t, 2, coord.Round())
	assert.Equal(t, []int{0, 1}, pred.savedRound)
}

func TestCoordinatorTrainEmptyBufferFails(t *testing.T) {
	t.Parallel()
	pred := &stubPredictor{}
	buf := replay.NewBuffer(16, randutil.New(3))
	coord := NewCoordinator(buf, pred, Config{Steps: 2, BatchSize: 2, ModelsDir: t.TempDir()}, testLogger())

	err := coord.Train()
	require.ErrorIs(t, err, replay.ErrEmptyBuffer)

	// A failed round neither steps the model nor advances the counter.
	assert.Equal(t, 0, pred.steps)
	assert.Equal(t, 0, coord.Round())
	assert.Empty(t, pred.savedRound)
}

func TestCoordinatorTrainZeroSteps(t *testing.T) {
	t.Parallel()
	coord := NewCoordinator(seededBuffer(t), &stubPredictor{}, Config{Steps: 0, BatchSize: 2}, testLogger())
	assert.ErrorIs(t, coord.Train(), ErrNoTrainingSteps)
}

func TestCoordinatorTrainStepFailurePropagates(t *testing.T) {
	t.Parallel()
	trainErr := errors.New("backend exploded")
	pred := &stubPredictor{trainErr: trainErr}
	coord := NewCoordinator(seededBuffer(t), pred, Config{Steps: 2, BatchSize: 1, ModelsDir: t.TempDir()}, testLogger())

	assert.ErrorIs(t, coord.Train(), trainErr)
	assert.Equal(t, 0, coord.Round())
}

func TestCoordinatorCheckpointFailureKeepsRound(t *testing.T) {
	t.Parallel()
	saveErr := errors.New("disk full")
	pred := &stubPredictor{saveErr: saveErr}
	coord := NewCoordinator(seededBuffer(t), pred, Config{Steps: 1, BatchSize: 1, ModelsDir: t.TempDir()}, testLogger())

	assert.ErrorIs(t, coord.Train(), saveErr)
	assert.Equal(t, 0, coord.Round())
}

func TestCoordinatorWritesStats(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	statsPath := filepath.Join(dir, "training_stats.csv")
	stats, err := NewStatsWriter(statsPath)
	require.NoError(t, err)

	pred := &stubPredictor{}
	coord := NewCoordinator(seededBuffer(t), pred,
		Config{Steps: 3, BatchSize: 2, ModelsDir: dir},
		testLogger(), WithStats(stats))

	require.NoError(t, coord.Train())
	require.NoError(t, stats.Close())

	f, err := os.Open(statsPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 4) // header + 3 steps
	assert.Equal(t, []string{"round", "loss", "value_loss", "policy_loss", "buffer_size"}, rows[0])
	for _, row := range rows[1:] {
		assert.Equal(t, "0", row[0])
		assert.Equal(t, "1.5", row[1])
		assert.Equal(t, "0.5", row[2])
		assert.Equal(t, "1", row[3])
		assert.Equal(t, "1", row[4])
	}
}

func TestCoordinatorNotifiesMonitor(t *testing.T) {
	t.Parallel()

	var events []string
	mon := &recordingMonitor{events: &events}
	coord := NewCoordinator(seededBuffer(t), &stubPredictor{},
		Config{Steps: 2, BatchSize: 1, ModelsDir: t.TempDir()},
		testLogger(), WithMonitor(mon))

	require.NoError(t, coord.Train())
	assert.Equal(t, []string{"start", "step", "step", "end"}, events)
}

type recordingMonitor struct {
	events *[]string
}

func (r *recordingMonitor) OnRoundStart(round, steps int) { *r.events = append(*r.events, "start") }
func (r *recordingMonitor) OnStep(round, step int, losses Losses) {
	*r.events = append(*r.events, "step")
}
func (r *recordingMonitor) OnRoundEnd(round int) { *r.events = append(*r.events, "end") }
