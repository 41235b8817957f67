package sdk

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
)

// ServerError is an error response from the server.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Client is a synchronous RPC client for the training server. Self-play
// clients are sequential, so requests are serialized: one in flight at
// a time over a single socket.
type Client struct {
	serverURL string
	logger    *log.Logger
	clock     quartz.Clock

	mu   sync.Mutex
	conn *websocket.Conn
	seq  int64
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClock replaces the wall clock, used by tests.
func WithClock(clock quartz.Clock) ClientOption {
	return func(c *Client) {
		c.clock = clock
	}
}

// NewClient creates a client for the given server URL. http/https URLs
// are converted to their WebSocket equivalents.
func NewClient(serverURL string, logger *log.Logger, opts ...ClientOption) *Client {
	c := &Client{
		serverURL: serverURL,
		logger:    logger.WithPrefix("client"),
		clock:     quartz.NewReal(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect establishes the WebSocket connection to the server.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// Already correct
	default:
		u.Scheme = "ws"
	}

	c.logger.Debug("Connecting to server", "url", u.String())

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := c.conn.Close()
	c.conn = nil
	return err
}

// call sends one request and blocks until its response arrives.
func (c *Client) call(ctx context.Context, messageType MessageType, data, out interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected")
	}

	msg, err := NewMessage(messageType, data)
	if err != nil {
		return err
	}
	c.seq++
	msg.RequestID = strconv.FormatInt(c.seq, 10)

	deadline, _ := ctx.Deadline()
	_ = c.conn.SetWriteDeadline(deadline)
	_ = c.conn.SetReadDeadline(deadline)

	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send %s: %w", messageType, err)
	}

	for {
		var reply Message
		if err := c.conn.ReadJSON(&reply); err != nil {
			return fmt.Errorf("failed to read %s response: %w", messageType, err)
		}
		if reply.RequestID != msg.RequestID {
			// Stale response from an abandoned request.
			c.logger.Debug("Skipping unmatched response", "type", reply.Type, "requestId", reply.RequestID)
			continue
		}

		if reply.Type == MessageTypeError {
			var errData ErrorData
			if err := reply.UnmarshalData(&errData); err != nil {
				return fmt.Errorf("failed to parse error response: %w", err)
			}
			return &ServerError{Code: errData.Code, Message: errData.Message}
		}
		return reply.UnmarshalData(out)
	}
}

// Predict runs inference on one board position.
func (c *Client) Predict(ctx context.Context, boards []float32, player int) ([]float32, []float32, error) {
	var resp PredictResponseData
	err := c.call(ctx, MessageTypePredict, PredictData{Boards: boards, Player: player}, &resp)
	if err != nil {
		return nil, nil, err
	}
	return resp.Policy, resp.Value, nil
}

// Check returns the server's current training round.
func (c *Client) Check(ctx context.Context) (int, error) {
	var resp CheckResponseData
	if err := c.call(ctx, MessageTypeCheck, CheckData{}, &resp); err != nil {
		return 0, err
	}
	return resp.Round, nil
}

// Save submits a finished game. It returns the server-assigned game ID
// and the round after the submission; when this save completes the
// round quota the call blocks for the whole training pass.
func (c *Client) Save(ctx context.Context, g Game) (string, int, error) {
	var resp SaveResponseData
	if err := c.call(ctx, MessageTypeSave, g, &resp); err != nil {
		return "", 0, err
	}
	return resp.GameID, resp.Round, nil
}

// WaitForRound polls Check until the server reaches the target round,
// returning the round observed. Clients use it to synchronize with the
// next model generation between games.
func (c *Client) WaitForRound(ctx context.Context, target int, interval time.Duration) (int, error) {
	return waitForRound(ctx, c.clock, target, interval, func() (int, error) {
		return c.Check(ctx)
	})
}

func waitForRound(ctx context.Context, clock quartz.Clock, target int, interval time.Duration, check func() (int, error)) (int, error) {
	for {
		round, err := check()
		if err != nil {
			return 0, err
		}
		if round >= target {
			return round, nil
		}

		timer := clock.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		case <-timer.C:
		}
	}
}
