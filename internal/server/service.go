package server

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/blokuszero/blokuszero/internal/game"
	"github.com/blokuszero/blokuszero/internal/replay"
	"github.com/blokuszero/blokuszero/internal/training"
)

var (
	ErrBadBoardSize = errors.New("board tensor has wrong size")
	ErrBadPlayer    = errors.New("player index out of range")
)

// Service is the facade behind the WebSocket layer. Predict is
// read-only against the current model, Check reports the round, and
// Save feeds the replay buffer and the round gate. The quota-completing
// Save blocks for the whole training pass.
type Service struct {
	predictor   training.Predictor
	buffer      *replay.Buffer
	coordinator *training.Coordinator
	gate        *training.Gate
	logger      *log.Logger
}

// NewService wires the facade to its collaborators.
func NewService(predictor training.Predictor, buffer *replay.Buffer, coordinator *training.Coordinator, gate *training.Gate, logger *log.Logger) *Service {
	return &Service{
		predictor:   predictor,
		buffer:      buffer,
		coordinator: coordinator,
		gate:        gate,
		logger:      logger.WithPrefix("service"),
	}
}

// Predict runs inference on one board position. Safe to call
// concurrently with Save and with a running training pass.
func (s *Service) Predict(boards []float32, player int) ([]float32, []float32, error) {
	if len(boards) != game.StateSize {
		return nil, nil, fmt.Errorf("%w: want %d floats, got %d", ErrBadBoardSize, game.StateSize, len(boards))
	}
	if player < 0 || player >= game.NumPlayers {
		return nil, nil, fmt.Errorf("%w: %d", ErrBadPlayer, player)
	}
	return s.predictor.Predict(boards, player)
}

// Check returns the current training round.
func (s *Service) Check() int {
	return s.coordinator.Round()
}

// Save validates and stores a finished game, then notifies the round
// gate. A training failure triggered by this save is returned to the
// caller along with the assigned game ID.
func (s *Service) Save(rec *game.Record) (uuid.UUID, error) {
	if err := rec.Validate(); err != nil {
		return uuid.Nil, err
	}

	rec.ID = uuid.New()
	s.buffer.Insert(rec)
	s.logger.Debug("Game saved", "id", rec.ID, "moves", rec.NumMoves(), "buffer", s.buffer.Len())

	if err := s.gate.NotifySave(); err != nil {
		return rec.ID, fmt.Errorf("training failed: %w", err)
	}
	return rec.ID, nil
}
