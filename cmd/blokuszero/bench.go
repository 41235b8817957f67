package main

import (
	"context"
	"fmt"
	rand "math/rand/v2"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/blokuszero/blokuszero/cmd/blokuszero/shared"
	"github.com/blokuszero/blokuszero/internal/game"
	"github.com/blokuszero/blokuszero/internal/randutil"
	"github.com/blokuszero/blokuszero/sdk"
)

// BenchCmd drives a swarm of synthetic self-play clients against a
// running server. Each client predicts, plays random games and saves
// them, then waits for the round to advance, exercising the full
// quota-train-advance path.
type BenchCmd struct {
	URL            string  `kong:"default='http://localhost:8080/ws',help='Server WebSocket URL'"`
	Clients        int     `kong:"default='4',env='NUM_CLIENTS',help='Number of concurrent clients'"`
	GamesPerClient int     `kong:"default='2',env='GAMES_PER_CLIENT',help='Games each client submits per round'"`
	Rounds         int     `kong:"default='1',env='TRAINING_ROUNDS',help='Rounds to run'"`
	Moves          int     `kong:"default='30',help='Moves per synthetic game'"`
	Temperature    float32 `kong:"default='1.0',help='Move sampling temperature'"`
	Seed           int64   `kong:"default='1',help='RNG seed'"`
	Debug          bool    `kong:"help='Enable debug logging'"`
}

func (c *BenchCmd) Run() error {
	logger := shared.SetupLogger(c.Debug)
	ctx := shared.SetupSignalHandler(logger)

	logger.Info("Starting bench swarm",
		"url", c.URL,
		"clients", c.Clients,
		"games_per_client", c.GamesPerClient,
		"rounds", c.Rounds,
	)
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < c.Clients; i++ {
		clientID := i
		g.Go(func() error {
			return c.runClient(ctx, logger.With("bench_client", clientID), clientID)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	games := c.Clients * c.GamesPerClient * c.Rounds
	elapsed := time.Since(start)
	logger.Info("Bench complete",
		"games", games,
		"elapsed", elapsed,
		"games_per_sec", fmt.Sprintf("%.1f", float64(games)/elapsed.Seconds()),
	)
	return nil
}

func (c *BenchCmd) runClient(ctx context.Context, logger *log.Logger, clientID int) error {
	client := sdk.NewClient(c.URL, logger)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	rng := randutil.New(c.Seed + int64(clientID))

	for round := 0; round < c.Rounds; round++ {
		for played := 0; played < c.GamesPerClient; played++ {
			record, err := c.playGame(ctx, client, rng)
			if err != nil {
				return fmt.Errorf("client %d: %w", clientID, err)
			}
			gameID, serverRound, err := client.Save(ctx, record)
			if err != nil {
				return fmt.Errorf("client %d save: %w", clientID, err)
			}
			logger.Debug("Game saved", "game", gameID, "round", serverRound)
		}

		// Sync with the new model generation before the next round.
		reached, err := client.WaitForRound(ctx, round+1, 100*time.Millisecond)
		if err != nil {
			return fmt.Errorf("client %d wait: %w", clientID, err)
		}
		logger.Info("Round advanced", "round", reached)
	}
	return nil
}

// playGame produces a synthetic but well-formed game: moves are picked
// from the model's policy restricted to unoccupied tiles.
func (c *BenchCmd) playGame(ctx context.Context, client *sdk.Client, rng *rand.Rand) (sdk.Game, error) {
	boards := make([]float32, game.StateSize)
	record := sdk.Game{}

	occupied := make(map[int]bool, c.Moves)
	for move := 0; move < c.Moves; move++ {
		player := move % game.NumPlayers

		policy, _, err := client.Predict(ctx, boards, player)
		if err != nil {
			return sdk.Game{}, err
		}

		legal := make([]int, 0, game.NumTiles-len(occupied))
		for tile := 0; tile < game.NumTiles; tile++ {
			if !occupied[tile] {
				legal = append(legal, tile)
			}
		}
		tile := sdk.SamplePolicy(policy, legal, c.Temperature, rng)
		if tile < 0 {
			break
		}

		occupied[tile] = true
		boards[player*game.NumTiles+tile] = 1
		record.History = append(record.History, sdk.Move{Player: player, Tile: tile})
		record.Policies = append(record.Policies, []sdk.ActionProb{{Action: tile, Prob: 1}})
	}

	winner := rng.IntN(game.NumPlayers)
	for p := 0; p < game.NumPlayers; p++ {
		if p == winner {
			record.Scores[p] = 1
		} else {
			record.Scores[p] = -1.0 / 3
		}
	}
	return record, nil
}
