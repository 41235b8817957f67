// Package sdk is the client library for the training server. Self-play
// clients use it to run inference, submit finished games and follow the
// training round counter over a single WebSocket connection.
package sdk

import (
	"encoding/json"
	"time"
)

// MessageType identifies a protocol message.
type MessageType string

const (
	// Client to server messages
	MessageTypePredict MessageType = "predict"
	MessageTypeCheck   MessageType = "check"
	MessageTypeSave    MessageType = "save"

	// Server to client messages
	MessageTypePredictResponse MessageType = "predict_response"
	MessageTypeCheckResponse   MessageType = "check_response"
	MessageTypeSaveResponse    MessageType = "save_response"
	MessageTypeError           MessageType = "error"
)

// Message is the envelope every protocol message travels in.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage creates a message with the current timestamp.
func NewMessage(messageType MessageType, data interface{}) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now().UTC(),
	}, nil
}

// UnmarshalData decodes the message payload into v.
func (m *Message) UnmarshalData(v interface{}) error {
	return json.Unmarshal(m.Data, v)
}

// Move is one placement in a game history.
type Move struct {
	Player int `json:"player"`
	Tile   int `json:"tile"`
}

// ActionProb is one entry of a sparse policy target.
type ActionProb struct {
	Action int     `json:"action"`
	Prob   float32 `json:"prob"`
}

// Game is a finished self-play game ready for submission.
type Game struct {
	History  []Move         `json:"history"`
	Policies [][]ActionProb `json:"policies"`
	Scores   [4]float32     `json:"scores"`
}

// PredictData asks for inference on one board position.
type PredictData struct {
	Boards []float32 `json:"boards"`
	Player int       `json:"player"`
}

type CheckData struct{}

// PredictResponseData carries the dense policy and per-player values.
type PredictResponseData struct {
	Policy []float32 `json:"policy"`
	Value  []float32 `json:"value"`
}

type CheckResponseData struct {
	Round int `json:"round"`
}

type SaveResponseData struct {
	GameID string `json:"gameId"`
	Round  int    `json:"round"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
