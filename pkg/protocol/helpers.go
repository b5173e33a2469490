package protocol

import "time"

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// Clock formats t for the UI.
func Clock(t time.Time) string {
	return t.Format(ClockLayout)
}

// NewStatusMessage creates a status message
func NewStatusMessage(message string) (*Message, error) {
	return NewMessage(TypeStatus, StatusData{Message: message})
}

// NewBotResponseMessage creates a bot_response message
func NewBotResponseMessage(text string, at time.Time) (*Message, error) {
	return NewMessage(TypeBotResponse, TextData{Text: text, Timestamp: Clock(at)})
}

// NewUserInputMessage creates a user_input message
func NewUserInputMessage(text string, at time.Time) (*Message, error) {
	return NewMessage(TypeUserInput, TextData{Text: text, Timestamp: Clock(at)})
}

// NewFunctionCallMessage creates a function_call message
func NewFunctionCallMessage(name string, args map[string]any, at time.Time) (*Message, error) {
	if args == nil {
		args = map[string]any{}
	}
	return NewMessage(TypeFunctionCall, FunctionCallData{
		FunctionName: name,
		Arguments:    args,
		Timestamp:    Clock(at),
	})
}

// NewFunctionResultMessage creates a function_result message
func NewFunctionResultMessage(name string, result any, at time.Time) (*Message, error) {
	return NewMessage(TypeFunctionResult, FunctionResultData{
		FunctionName: name,
		Result:       result,
		Timestamp:    Clock(at),
	})
}

// NewFunctionErrorMessage creates a function_error message
func NewFunctionErrorMessage(name, errText string, at time.Time) (*Message, error) {
	return NewMessage(TypeFunctionError, FunctionErrorData{
		FunctionName: name,
		Error:        errText,
		Timestamp:    Clock(at),
	})
}

// NewCommandMessage creates a UI command with optional data
func NewCommandMessage(t MessageType, data interface{}) (*Message, error) {
	return NewMessage(t, data)
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetStatusData extracts status data from a message
func (m *Message) GetStatusData() (*StatusData, error) {
	var data StatusData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetTextData extracts bot_response or user_input data
func (m *Message) GetTextData() (*TextData, error) {
	var data TextData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetFunctionCallData extracts function_call data
func (m *Message) GetFunctionCallData() (*FunctionCallData, error) {
	var data FunctionCallData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetFunctionResultData extracts function_result data
func (m *Message) GetFunctionResultData() (*FunctionResultData, error) {
	var data FunctionResultData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetFunctionErrorData extracts function_error data
func (m *Message) GetFunctionErrorData() (*FunctionErrorData, error) {
	var data FunctionErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetSimulateVoiceInputData extracts simulate_voice_input data
func (m *Message) GetSimulateVoiceInputData() (*SimulateVoiceInputData, error) {
	var data SimulateVoiceInputData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
