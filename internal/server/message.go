package server

import (
	"encoding/json"
	"time"

	"github.com/blokuszero/blokuszero/internal/game"
)

// Message represents the base WebSocket message structure
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(messageType MessageType, data interface{}) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// NewReply creates a response message correlated to a request.
func NewReply(requestID string, messageType MessageType, data interface{}) (*Message, error) {
	msg, err := NewMessage(messageType, data)
	if err != nil {
		return nil, err
	}
	msg.RequestID = requestID
	return msg, nil
}

// UnmarshalData decodes the message payload into v.
func (m *Message) UnmarshalData(v interface{}) error {
	return json.Unmarshal(m.Data, v)
}

// Client → Server Messages

type PredictData struct {
	// Boards is the flattened [5,20,20] occupancy tensor.
	Boards []float32 `json:"boards"`
	Player int       `json:"player"`
}

type CheckData struct{}

type MoveData struct {
	Player int `json:"player"`
	Tile   int `json:"tile"`
}

type ActionProbData struct {
	Action int     `json:"action"`
	Prob   float32 `json:"prob"`
}

type SaveData struct {
	History  []MoveData         `json:"history"`
	Policies [][]ActionProbData `json:"policies"`
	Scores   [4]float32         `json:"scores"`
}

// Server → Client Messages

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

// Record converts the wire payload into the internal game record. The
// record is not validated here; the facade validates on Save.
func (d SaveData) Record() *game.Record {
	rec := &game.Record{
		History:  make([]game.Move, len(d.History)),
		Policies: make([]game.Policy, len(d.Policies)),
		Scores:   d.Scores,
	}
	for i, m := range d.History {
		rec.History[i] = game.Move{Player: m.Player, Tile: m.Tile}
	}
	for i, policy := range d.Policies {
		converted := make(game.Policy, len(policy))
		for j, ap := range policy {
			converted[j] = game.ActionProb{Action: ap.Action, Prob: ap.Prob}
		}
		rec.Policies[i] = converted
	}
	return rec
}

// SaveDataFromRecord builds the wire payload for a game record.
func SaveDataFromRecord(rec *game.Record) SaveData {
	data := SaveData{
		History:  make([]MoveData, len(rec.History)),
		Policies: make([][]ActionProbData, len(rec.Policies)),
		Scores:   rec.Scores,
	}
	for i, m := range rec.History {
		data.History[i] = MoveData{Player: m.Player, Tile: m.Tile}
	}
	for i, policy := range rec.Policies {
		converted := make([]ActionProbData, len(policy))
		for j, ap := range policy {
			converted[j] = ActionProbData{Action: ap.Action, Prob: ap.Prob}
		}
		data.Policies[i] = converted
	}
	return data
}
