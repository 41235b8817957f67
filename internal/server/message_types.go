package server

// MessageType represents a WebSocket message type with type safety
type MessageType string

// WebSocket message type constants
// These are used for client-server communication protocol
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

// String returns the string representation of the message type
func (mt MessageType) String() string {
	return string(mt)
}
