package sdk

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blokuszero/blokuszero/internal/game"
	"github.com/blokuszero/blokuszero/internal/randutil"
	"github.com/blokuszero/blokuszero/internal/replay"
	"github.com/blokuszero/blokuszero/internal/server"
	"github.com/blokuszero/blokuszero/internal/training"
)

type fakePredictor struct{}

func (p *fakePredictor) Predict(boards []float32, player int) ([]float32, []float32, error) {
	return make([]float32, game.NumTiles), make([]float32, game.NumPlayers), nil
}

func (p *fakePredictor) TrainStep(batch *replay.Batch) (training.Losses, error) {
	return training.Losses{Loss: 1, PolicyLoss: 0.5, ValueLoss: 0.5}, nil
}

func (p *fakePredictor) Save(dir string, round int) error {
	return nil
}

// startTestServer wires a full facade behind an httptest server and
// returns its URL.
func startTestServer(t *testing.T, gamesPerRound int) string {
	t.Helper()

	logger := log.New(io.Discard)
	predictor := &fakePredictor{}
	buffer := replay.NewBuffer(100, randutil.New(1))
	coordinator := training.NewCoordinator(buffer, predictor, training.Config{
		Steps:     2,
		BatchSize: 2,
		ModelsDir: t.TempDir(),
	}, logger)
	gate := training.NewGate(gamesPerRound, coordinator, logger)
	svc := server.NewService(predictor, buffer, coordinator, gate, logger)

	srv := server.NewServer("localhost:0", svc, logger)
	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(httpSrv.Close)
	return httpSrv.URL
}

func connectedClient(t *testing.T, gamesPerRound int) *Client {
	t.Helper()

	client := NewClient(startTestServer(t, gamesPerRound), log.New(io.Discard))
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func testGame() Game {
	return Game{
		History:  []Move{{Player: 0, Tile: 0}, {Player: 1, Tile: 399}},
		Policies: [][]ActionProb{{{Action: 0, Prob: 1}}, {{Action: 399, Prob: 1}}},
		Scores:   [4]float32{1, -1, 0, 0},
	}
}

func TestClientPredictCheckSave(t *testing.T) {
	client := connectedClient(t, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	policy, value, err := client.Predict(ctx, make([]float32, game.StateSize), 0)
	require.NoError(t, err)
	assert.Len(t, policy, game.NumTiles)
	assert.Len(t, value, game.NumPlayers)

	round, err := client.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, round)

	// Quota is one game: the save triggers a training pass and the
	// response reports the advanced round.
	gameID, round, err := client.Save(ctx, testGame())
	require.NoError(t, err)
	assert.NotEmpty(t, gameID)
	assert.Equal(t, 1, round)

	round, err = client.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, round)
}

func TestClientSequentialRequestsShareSocket(t *testing.T) {
	client := connectedClient(t, 100)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _, err := client.Predict(ctx, make([]float32, game.StateSize), i%game.NumPlayers)
		require.NoError(t, err)
	}
}

func TestClientSurfacesServerError(t *testing.T) {
	client := connectedClient(t, 1)

	_, _, err := client.Predict(context.Background(), make([]float32, 3), 0)
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, "predict_failed", serverErr.Code)
}

func TestClientNotConnected(t *testing.T) {
	client := NewClient("http://localhost:1", log.New(io.Discard))
	_, err := client.Check(context.Background())
	require.Error(t, err)
}

func TestWaitForRoundPollsUntilTarget(t *testing.T) {
	mock := quartz.NewMock(t)
	trap := mock.Trap().NewTimer()
	defer trap.Close()

	var round atomic.Int64
	check := func() (int, error) {
		return int(round.Load()), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	type result struct {
		round int
		err   error
	}
	done := make(chan result, 1)
	go func() {
		r, err := waitForRound(ctx, mock, 1, time.Second, check)
		done <- result{r, err}
	}()

	// First check sees round 0 and the poller arms its timer.
	call := trap.MustWait(ctx)
	round.Store(1)
	call.MustRelease(ctx)
	mock.Advance(time.Second).MustWait(ctx)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, 1, res.round)
}

func TestWaitForRoundReturnsImmediatelyWhenReached(t *testing.T) {
	mock := quartz.NewMock(t)
	round, err := waitForRound(context.Background(), mock, 2, time.Second, func() (int, error) {
		return 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, round)
}

func TestWaitForRoundPropagatesCheckError(t *testing.T) {
	mock := quartz.NewMock(t)
	wantErr := errors.New("boom")
	_, err := waitForRound(context.Background(), mock, 1, time.Second, func() (int, error) {
		return 0, wantErr
	})
	require.ErrorIs(t, err, wantErr)
}
