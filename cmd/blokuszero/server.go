package main

import (
	"context"
	rand "math/rand/v2"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/blokuszero/blokuszero/cmd/blokuszero/shared"
	"github.com/blokuszero/blokuszero/internal/nn"
	"github.com/blokuszero/blokuszero/internal/randutil"
	"github.com/blokuszero/blokuszero/internal/replay"
	"github.com/blokuszero/blokuszero/internal/server"
	"github.com/blokuszero/blokuszero/internal/training"
)

// ServerCmd contains the training server configuration. Every flag can
// also be set from the environment; flags override the config file.
type ServerCmd struct {
	Config string `kong:"help='Path to HCL config file'"`
	Debug  bool   `kong:"help='Enable debug logging'"`

	Address        string  `kong:"env='ADDRESS',help='Listen address'"`
	Port           int     `kong:"env='PORT',help='Listen port'"`
	BufferCapacity int     `kong:"env='BUFFER_CAPACITY',help='Replay buffer capacity in games'"`
	LearningRate   float64 `kong:"env='LEARNING_RATE',help='Optimizer learning rate'"`
	BatchSize      int     `kong:"env='BATCH_SIZE',help='Training batch size'"`
	TrainingSteps  int     `kong:"env='TRAINING_STEPS',help='Optimizer steps per round'"`
	NumClients     int     `kong:"env='NUM_CLIENTS',help='Expected self-play clients'"`
	GamesPerClient int     `kong:"env='GAMES_PER_CLIENT',help='Games each client plays per round'"`
	TrainingRounds int     `kong:"env='TRAINING_ROUNDS',help='Rounds the run is expected to last'"`
	NNWidth        int     `kong:"env='NN_WIDTH',help='Hidden nodes per network layer'"`
	NNBlocks       int     `kong:"env='NN_BLOCKS',help='Hidden network layers'"`
	ModelsDir      string  `kong:"env='MODELS_DIR',help='Checkpoint directory'"`
	StatsFile      string  `kong:"env='STATS_FILE',help='Training statistics CSV path'"`

	Seed    *int64   `kong:"help='Deterministic RNG seed for sampling (optional)'"`
	Monitor []string `kong:"default='dots',enum='none,dots,pretty',help='Training progress outputs, combinable'"`
}

func (c *ServerCmd) Run() error {
	logger := shared.SetupLogger(c.Debug)

	cfg, err := server.LoadConfig(c.Config)
	if err != nil {
		return err
	}
	c.applyFlags(cfg, logger)

	// Validation failures degrade, they do not halt startup.
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration, resetting out-of-range values to defaults", "error", err)
		cfg.Clamp()
	}

	var rng *rand.Rand
	if c.Seed != nil {
		rng = randutil.New(*c.Seed)
		logger.Info("Using deterministic seed", "seed", *c.Seed)
	} else {
		var seed int64
		rng, seed = randutil.FromTime()
		logger.Info("Using random seed", "seed", seed)
	}

	network := nn.NewNetwork(nn.Config{
		Width:        cfg.Model.Width,
		Blocks:       cfg.Model.Blocks,
		LearningRate: cfg.Model.LearningRate,
	}, logger)

	var opts []training.Option
	if latest, err := nn.LatestRound(cfg.Model.ModelsDir); err != nil {
		logger.Error("Failed to scan checkpoint directory", "dir", cfg.Model.ModelsDir, "error", err)
	} else if latest >= 0 {
		path := nn.RoundDir(cfg.Model.ModelsDir, latest)
		if err := network.Load(path); err != nil {
			logger.Error("Failed to load checkpoint, starting fresh", "dir", path, "error", err)
		} else {
			logger.Info("Resuming from checkpoint", "round", latest)
			opts = append(opts, training.WithStartRound(latest+1))
		}
	}

	stats, err := training.NewStatsWriter(cfg.Training.StatsFile)
	if err != nil {
		logger.Error("Failed to open stats file, statistics disabled", "path", cfg.Training.StatsFile, "error", err)
	} else {
		defer func() { _ = stats.Close() }()
		opts = append(opts, training.WithStats(stats))
	}

	var monitors []training.TrainMonitor
	for _, name := range c.Monitor {
		switch name {
		case "dots":
			monitors = append(monitors, training.NewDotsMonitor(os.Stdout))
		case "pretty":
			monitors = append(monitors, training.NewPrettyMonitor(os.Stdout))
		}
	}
	if len(monitors) > 0 {
		opts = append(opts, training.WithMonitor(training.NewMultiTrainMonitor(monitors...)))
	}

	buffer := replay.NewBuffer(cfg.Training.BufferCapacity, rng)
	coordinator := training.NewCoordinator(buffer, network, training.Config{
		Steps:     cfg.Training.TrainingSteps,
		BatchSize: cfg.Training.BatchSize,
		ModelsDir: cfg.Model.ModelsDir,
	}, logger, opts...)
	gate := training.NewGate(cfg.GamesPerRound(), coordinator, logger)
	service := server.NewService(network, buffer, coordinator, gate, logger)
	s := server.NewServer(cfg.ServerAddress(), service, logger)

	logger.Info("Starting training server",
		"address", cfg.ServerAddress(),
		"buffer_capacity", cfg.Training.BufferCapacity,
		"batch_size", cfg.Training.BatchSize,
		"training_steps", cfg.Training.TrainingSteps,
		"games_per_round", cfg.GamesPerRound(),
		"training_rounds", cfg.Training.TrainingRounds,
		"nn_width", cfg.Model.Width,
		"nn_blocks", cfg.Model.Blocks,
	)

	ctx := shared.SetupSignalHandler(logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

// applyFlags overrides loaded config with explicitly set flags. The
// required settings (PORT, BATCH_SIZE, TRAINING_ROUNDS) are logged as
// errors when missing but startup continues with the defaults.
func (c *ServerCmd) applyFlags(cfg *server.Config, logger *log.Logger) {
	if c.Port > 0 {
		cfg.Server.Port = c.Port
	} else if c.Config == "" {
		logger.Error("PORT is not set, using default", "port", cfg.Server.Port)
	}
	if c.BatchSize > 0 {
		cfg.Training.BatchSize = c.BatchSize
	} else if c.Config == "" {
		logger.Error("BATCH_SIZE is not set, using default", "batch_size", cfg.Training.BatchSize)
	}
	if c.TrainingRounds > 0 {
		cfg.Training.TrainingRounds = c.TrainingRounds
	} else if c.Config == "" {
		logger.Error("TRAINING_ROUNDS is not set, using default", "training_rounds", cfg.Training.TrainingRounds)
	}

	if c.Address != "" {
		cfg.Server.Address = c.Address
	}
	if c.BufferCapacity > 0 {
		cfg.Training.BufferCapacity = c.BufferCapacity
	}
	if c.LearningRate > 0 {
		cfg.Model.LearningRate = c.LearningRate
	}
	if c.TrainingSteps > 0 {
		cfg.Training.TrainingSteps = c.TrainingSteps
	}
	if c.NumClients > 0 {
		cfg.Training.NumClients = c.NumClients
	}
	if c.GamesPerClient > 0 {
		cfg.Training.GamesPerClient = c.GamesPerClient
	}
	if c.NNWidth > 0 {
		cfg.Model.Width = c.NNWidth
	}
	if c.NNBlocks > 0 {
		cfg.Model.Blocks = c.NNBlocks
	}
	if c.ModelsDir != "" {
		cfg.Model.ModelsDir = c.ModelsDir
	}
	if c.StatsFile != "" {
		cfg.Training.StatsFile = c.StatsFile
	}
}
