package gemini

import (
	"strings"

	"github.com/teslashibe/go-waiter/pkg/live"
)

type serverMessage struct {
	SetupComplete        *struct{}             `json:"setupComplete"`
	ServerContent        *serverContent        `json:"serverContent"`
	ToolCall             *toolCall             `json:"toolCall"`
	ToolCallCancellation *toolCallCancellation `json:"toolCallCancellation"`
}

type serverContent struct {
	ModelTurn           *modelTurn     `json:"modelTurn"`
	TurnComplete        bool           `json:"turnComplete"`
	Interrupted         bool           `json:"interrupted"`
	InputTranscription  *transcription `json:"inputTranscription"`
	OutputTranscription *transcription `json:"outputTranscription"`
}

type modelTurn struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text"`
	InlineData *inlineData `json:"inlineData"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

type transcription struct {
	Text string `json:"text"`
}

type toolCall struct {
	FunctionCalls []live.FunctionCall `json:"functionCalls"`
}

type toolCallCancellation struct {
	IDs []string `json:"ids"`
}

// units flattens one server message into stream units, in the order a
// listener should observe them.
func (m *serverMessage) units() []live.Unit {
	var out []live.Unit

	if sc := m.ServerContent; sc != nil {
		if t := sc.InputTranscription; t != nil && t.Text != "" {
			out = append(out, live.Unit{Kind: live.UnitInputTranscript, Text: t.Text})
		}
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if d := p.InlineData; d != nil && strings.HasPrefix(d.MimeType, "audio/pcm") && len(d.Data) > 0 {
					out = append(out, live.Unit{Kind: live.UnitAudio, Audio: d.Data, MIMEType: d.MimeType})
				}
				if p.Text != "" {
					out = append(out, live.TextUnit(p.Text))
				}
			}
		}
		if t := sc.OutputTranscription; t != nil && t.Text != "" {
			out = append(out, live.Unit{Kind: live.UnitOutputTranscript, Text: t.Text})
		}
		if sc.Interrupted {
			out = append(out, live.Unit{Kind: live.UnitInterrupted})
		}
		if sc.TurnComplete {
			out = append(out, live.Unit{Kind: live.UnitTurnComplete})
		}
	}

	if tc := m.ToolCall; tc != nil {
		for i := range tc.FunctionCalls {
			fc := tc.FunctionCalls[i]
			if fc.Args == nil {
				fc.Args = map[string]any{}
			}
			out = append(out, live.Unit{Kind: live.UnitFunctionCall, Call: &fc})
		}
	}
	return out
}
