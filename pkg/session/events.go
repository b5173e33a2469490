package session

import (
	"github.com/teslashibe/go-waiter/pkg/protocol"
)

// EventSink receives UI events. Emit must not block.
type EventSink interface {
	Emit(msg *protocol.Message)
}

// EventFunc adapts a function to EventSink.
type EventFunc func(msg *protocol.Message)

// Emit implements EventSink.
func (f EventFunc) Emit(msg *protocol.Message) { f(msg) }

type nopSink struct{}

func (nopSink) Emit(*protocol.Message) {}

// Status lines shown in the UI.
const (
	StatusConnected        = "Connected to Gemini Live API"
	StatusListening        = "Listening..."
	StatusStoppedListening = "Stopped listening"
	StatusDisconnected     = "Disconnected"

	statusConnectFailed = "Failed to connect: "
	statusMicError      = "Microphone error: "
	statusSpeakerError  = "Speaker error: "
	statusSessionError  = "Session error: "
)

func (c *Coordinator) emit(msg *protocol.Message, err error) {
	if err != nil {
		c.log.Warn("failed to build event", "error", err)
		return
	}
	c.events.Emit(msg)
}

func (c *Coordinator) status(message string) {
	c.emit(protocol.NewStatusMessage(message))
}

func (c *Coordinator) botResponse(text string) {
	c.emit(protocol.NewBotResponseMessage(text, c.now()))
}

func (c *Coordinator) userInput(text string) {
	c.emit(protocol.NewUserInputMessage(text, c.now()))
}
