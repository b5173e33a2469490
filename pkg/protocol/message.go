// Package protocol defines the WebSocket message types exchanged between
// the waiter and its browser dashboard.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Server → UI events
	TypeStatus         MessageType = "status"          // Session status line
	TypeBotResponse    MessageType = "bot_response"    // Assistant text or transcript
	TypeUserInput      MessageType = "user_input"      // Caller transcript
	TypeFunctionCall   MessageType = "function_call"   // Model invoked a function
	TypeFunctionResult MessageType = "function_result" // Function returned
	TypeFunctionError  MessageType = "function_error"  // Function failed

	// UI → Server commands
	TypeStartVoice         MessageType = "start_voice"
	TypeStopVoice          MessageType = "stop_voice"
	TypeEndSession         MessageType = "end_session"
	TypeSimulateVoiceInput MessageType = "simulate_voice_input"

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// ClockLayout formats event timestamps shown in the UI.
const ClockLayout = "15:04:05"

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// IsCommand reports whether t is sent by the UI.
func (t MessageType) IsCommand() bool {
	switch t {
	case TypeStartVoice, TypeStopVoice, TypeEndSession, TypeSimulateVoiceInput, TypePing:
		return true
	}
	return false
}

// =============================================================================
// Server → UI Event Types
// =============================================================================

// StatusData carries a human readable status line
type StatusData struct {
	Message string `json:"message"`
}

// TextData carries a transcript or response text
type TextData struct {
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"` // 15:04:05
}

// FunctionCallData describes a function invocation
type FunctionCallData struct {
	FunctionName string         `json:"function_name"`
	Arguments    map[string]any `json:"arguments"`
	Timestamp    string         `json:"timestamp"`
}

// FunctionResultData carries a function's result
type FunctionResultData struct {
	FunctionName string `json:"function_name"`
	Result       any    `json:"result"`
	Timestamp    string `json:"timestamp"`
}

// FunctionErrorData carries a function's failure
type FunctionErrorData struct {
	FunctionName string `json:"function_name"`
	Error        string `json:"error"`
	Timestamp    string `json:"timestamp"`
}

// =============================================================================
// UI → Server Command Types
// =============================================================================

// SimulateVoiceInputData carries typed text standing in for speech
type SimulateVoiceInputData struct {
	Text string `json:"text"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
