package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// Connection represents a WebSocket connection to a client
type Connection struct {
	conn      *websocket.Conn
	send      chan *Message
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	service   *Service
	readWait  time.Duration
}

// NewConnection creates a new connection wrapper
func NewConnection(conn *websocket.Conn, logger *log.Logger, service *Service) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		conn:     conn,
		send:     make(chan *Message, 256),
		logger:   logger.WithPrefix("conn"),
		ctx:      ctx,
		cancel:   cancel,
		service:  service,
		readWait: pongWait,
	}
}

// Start begins handling the connection
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close closes the connection
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
		err = c.conn.Close()
	})
	return err
}

// SendMessage sends a message to the client
func (c *Connection) SendMessage(msg *Message) error {
	defer func() {
		if r := recover(); r != nil {
			// Channel was closed, this is expected during shutdown
			c.logger.Debug("Attempted to send message on closed connection", "error", r)
		}
	}()

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.logger.Warn("Connection send buffer full, closing connection")
		_ = c.Close() // Ignore close errors
		return ErrConnectionClosed
	}
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Save payloads carry an
	// entire game history, so the limit is generous.
	maxMessageSize = 1 << 20
)

var (
	ErrConnectionClosed = websocket.ErrCloseSent
)

// readPump handles incoming messages from the client
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }() // Ignore close errors during cleanup

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.readWait))
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		// The deadline is armed per read, not once: handleMessage blocks
		// for a full training pass when a save completes the round quota,
		// which can outlast any deadline set before it ran.
		_ = c.conn.SetReadDeadline(time.Now().Add(c.readWait))

		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			break
		}

		c.handleMessage(&msg)
	}
}

// writePump handles outgoing messages to the client
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close() // Ignore close errors during cleanup
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// handleMessage processes incoming messages from the client
func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("Received message", "type", msg.Type, "requestId", msg.RequestID)

	switch msg.Type {
	case MessageTypePredict:
		var data PredictData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg.RequestID, "invalid_message", "Failed to parse predict data")
			return
		}
		c.handlePredict(msg.RequestID, data)

	case MessageTypeCheck:
		c.handleCheck(msg.RequestID)

	case MessageTypeSave:
		var data SaveData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg.RequestID, "invalid_message", "Failed to parse save data")
			return
		}
		c.handleSave(msg.RequestID, data)

	default:
		c.sendError(msg.RequestID, "unknown_message_type", "Unknown message type: "+msg.Type.String())
	}
}

// sendError sends an error message to the client
func (c *Connection) sendError(requestID, code, message string) {
	errorMsg, err := NewReply(requestID, MessageTypeError, ErrorData{
		Code:    code,
		Message: message,
	})
	if err != nil {
		c.logger.Error("Failed to create error message", "error", err)
		return
	}

	_ = c.SendMessage(errorMsg) // Ignore send errors during error handling
}

func (c *Connection) handlePredict(requestID string, data PredictData) {
	if c.service == nil {
		c.sendError(requestID, "service_unavailable", "Training service not available")
		return
	}

	policy, value, err := c.service.Predict(data.Boards, data.Player)
	if err != nil {
		c.sendError(requestID, "predict_failed", err.Error())
		return
	}

	response, _ := NewReply(requestID, MessageTypePredictResponse, PredictResponseData{
		Policy: policy,
		Value:  value,
	})
	_ = c.SendMessage(response) // Ignore send errors
}

func (c *Connection) handleCheck(requestID string) {
	if c.service == nil {
		c.sendError(requestID, "service_unavailable", "Training service not available")
		return
	}

	response, _ := NewReply(requestID, MessageTypeCheckResponse, CheckResponseData{
		Round: c.service.Check(),
	})
	_ = c.SendMessage(response) // Ignore send errors
}

func (c *Connection) handleSave(requestID string, data SaveData) {
	if c.service == nil {
		c.sendError(requestID, "service_unavailable", "Training service not available")
		return
	}

	// Blocks for the full training pass when this save completes the
	// round quota.
	id, err := c.service.Save(data.Record())
	if err != nil {
		c.sendError(requestID, "save_failed", err.Error())
		return
	}

	response, _ := NewReply(requestID, MessageTypeSaveResponse, SaveResponseData{
		GameID: id.String(),
		Round:  c.service.Check(),
	})
	_ = c.SendMessage(response) // Ignore send errors
}
