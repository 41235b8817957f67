package server

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config represents the complete server configuration
type Config struct {
	Server   ServerSettings   `hcl:"server,block"`
	Training TrainingSettings `hcl:"training,block"`
	Model    ModelSettings    `hcl:"model,block"`
}

// ServerSettings contains server-level configuration
type ServerSettings struct {
	Address  string `hcl:"address,optional"`
	Port     int    `hcl:"port,optional"`
	LogLevel string `hcl:"log_level,optional"`
	LogFile  string `hcl:"log_file,optional"`
}

// TrainingSettings controls the replay buffer and the training rounds
type TrainingSettings struct {
	BufferCapacity int    `hcl:"buffer_capacity,optional"`
	BatchSize      int    `hcl:"batch_size,optional"`
	TrainingSteps  int    `hcl:"training_steps,optional"`
	NumClients     int    `hcl:"num_clients,optional"`
	GamesPerClient int    `hcl:"games_per_client,optional"`
	TrainingRounds int    `hcl:"training_rounds,optional"`
	StatsFile      string `hcl:"stats_file,optional"`
}

// ModelSettings are the network hyperparameters and checkpoint location
type ModelSettings struct {
	LearningRate float64 `hcl:"learning_rate,optional"`
	Width        int     `hcl:"width,optional"`
	Blocks       int     `hcl:"blocks,optional"`
	ModelsDir    string  `hcl:"models_dir,optional"`
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerSettings{
			Address:  "localhost",
			Port:     8080,
			LogLevel: "info",
		},
		Training: TrainingSettings{
			BufferCapacity: 1000,
			BatchSize:      32,
			TrainingSteps:  10,
			NumClients:     1,
			GamesPerClient: 1,
			TrainingRounds: 1,
			StatsFile:      "stats.csv",
		},
		Model: ModelSettings{
			LearningRate: 0.001,
			Width:        64,
			Blocks:       2,
			ModelsDir:    "models",
		},
	}
}

// LoadConfig loads server configuration from an HCL file. A missing
// file yields the defaults.
func LoadConfig(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config Config
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	// Apply defaults for missing values
	defaults := DefaultConfig()
	if config.Server.Address == "" {
		config.Server.Address = defaults.Server.Address
	}
	if config.Server.Port == 0 {
		config.Server.Port = defaults.Server.Port
	}
	if config.Server.LogLevel == "" {
		config.Server.LogLevel = defaults.Server.LogLevel
	}
	if config.Training.BufferCapacity == 0 {
		config.Training.BufferCapacity = defaults.Training.BufferCapacity
	}
	if config.Training.BatchSize == 0 {
		config.Training.BatchSize = defaults.Training.BatchSize
	}
	if config.Training.TrainingSteps == 0 {
		config.Training.TrainingSteps = defaults.Training.TrainingSteps
	}
	if config.Training.NumClients == 0 {
		config.Training.NumClients = defaults.Training.NumClients
	}
	if config.Training.GamesPerClient == 0 {
		config.Training.GamesPerClient = defaults.Training.GamesPerClient
	}
	if config.Training.TrainingRounds == 0 {
		config.Training.TrainingRounds = defaults.Training.TrainingRounds
	}
	if config.Training.StatsFile == "" {
		config.Training.StatsFile = defaults.Training.StatsFile
	}
	if config.Model.LearningRate == 0 {
		config.Model.LearningRate = defaults.Model.LearningRate
	}
	if config.Model.Width == 0 {
		config.Model.Width = defaults.Model.Width
	}
	if config.Model.Blocks == 0 {
		config.Model.Blocks = defaults.Model.Blocks
	}
	if config.Model.ModelsDir == "" {
		config.Model.ModelsDir = defaults.Model.ModelsDir
	}

	return &config, nil
}

// Validate checks the configuration for inconsistent settings. Callers
// log validation failures and keep running with the degraded values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Training.BufferCapacity <= 0 {
		return fmt.Errorf("buffer capacity must be positive, got %d", c.Training.BufferCapacity)
	}
	if c.Training.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.Training.BatchSize)
	}
	if c.Training.TrainingSteps <= 0 {
		return fmt.Errorf("training steps must be positive, got %d", c.Training.TrainingSteps)
	}
	if c.Training.NumClients <= 0 || c.Training.GamesPerClient <= 0 {
		return fmt.Errorf("clients and games per client must be positive, got %d and %d",
			c.Training.NumClients, c.Training.GamesPerClient)
	}
	if c.Model.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive, got %g", c.Model.LearningRate)
	}
	if c.Model.Width <= 0 || c.Model.Blocks <= 0 {
		return fmt.Errorf("network width and blocks must be positive, got %d and %d",
			c.Model.Width, c.Model.Blocks)
	}
	return nil
}

// Clamp resets out-of-range settings to their defaults. Callers pair it
// with Validate when degrading instead of halting, so a bad value in
// the config file cannot break startup later.
func (c *Config) Clamp() {
	d := DefaultConfig()
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		c.Server.Port = d.Server.Port
	}
	if c.Training.BufferCapacity <= 0 {
		c.Training.BufferCapacity = d.Training.BufferCapacity
	}
	if c.Training.BatchSize <= 0 {
		c.Training.BatchSize = d.Training.BatchSize
	}
	if c.Training.TrainingSteps <= 0 {
		c.Training.TrainingSteps = d.Training.TrainingSteps
	}
	if c.Training.NumClients <= 0 {
		c.Training.NumClients = d.Training.NumClients
	}
	if c.Training.GamesPerClient <= 0 {
		c.Training.GamesPerClient = d.Training.GamesPerClient
	}
	if c.Model.LearningRate <= 0 {
		c.Model.LearningRate = d.Model.LearningRate
	}
	if c.Model.Width <= 0 {
		c.Model.Width = d.Model.Width
	}
	if c.Model.Blocks <= 0 {
		c.Model.Blocks = d.Model.Blocks
	}
}

// GamesPerRound is the save quota that triggers one training round.
func (c *Config) GamesPerRound() int {
	return c.Training.NumClients * c.Training.GamesPerClient
}

// ServerAddress returns the full listen address
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}
