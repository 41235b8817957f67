package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blokuszero/blokuszero/internal/randutil"
	"github.com/blokuszero/blokuszero/internal/replay"
	"github.com/blokuszero/blokuszero/internal/training"
)

// slowTrainer stands in for a coordinator whose training pass outlasts
// the connection read deadline.
type slowTrainer struct {
	delay time.Duration
}

func (s slowTrainer) Train() error {
	time.Sleep(s.delay)
	return nil
}

// dialSlowTrainConnection wires a client to a connection with a
// shortened read deadline whose quota-completing save blocks for
// trainDelay.
func dialSlowTrainConnection(t *testing.T, readWait, trainDelay time.Duration) *websocket.Conn {
	t.Helper()

	logger := testLogger()
	predictor := &fakePredictor{}
	buffer := replay.NewBuffer(10, randutil.New(1))
	coordinator := training.NewCoordinator(buffer, predictor, training.Config{
		Steps:     1,
		BatchSize: 1,
		ModelsDir: t.TempDir(),
	}, logger)
	gate := training.NewGate(1, slowTrainer{delay: trainDelay}, logger)
	svc := NewService(predictor, buffer, coordinator, gate, logger)

	upgrader := websocket.Upgrader{}
	httpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewConnection(ws, logger, svc)
		conn.readWait = readWait
		conn.Start()
	}))
	t.Cleanup(httpSrv.Close)

	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestConnectionSurvivesTrainingLongerThanReadDeadline(t *testing.T) {
	conn := dialSlowTrainConnection(t, 200*time.Millisecond, 600*time.Millisecond)

	saveMsg, err := NewMessage(MessageTypeSave, SaveDataFromRecord(validRecord()))
	require.NoError(t, err)
	saveMsg.RequestID = "save-1"

	// The quota is one game, so the save reply arrives only after the
	// training pass, well past the read deadline armed before it.
	reply := roundTrip(t, conn, saveMsg)
	require.Equal(t, MessageTypeSaveResponse, reply.Type)
	assert.Equal(t, "save-1", reply.RequestID)

	// The connection must still serve requests afterwards.
	checkMsg, err := NewMessage(MessageTypeCheck, CheckData{})
	require.NoError(t, err)
	reply = roundTrip(t, conn, checkMsg)
	require.Equal(t, MessageTypeCheckResponse, reply.Type)
}
