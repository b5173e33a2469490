package live

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/teslashibe/go-waiter/pkg/audioio"
)

// ModalityAudio asks the endpoint for spoken responses.
const ModalityAudio = "AUDIO"

// DefaultConnectTimeout bounds the dial and setup handshake.
const DefaultConnectTimeout = 10 * time.Second

// Client opens streams to a remote voice endpoint.
type Client interface {
	Connect(ctx context.Context, model string, cfg SessionConfig) (Stream, error)
}

// Stream is one open bidirectional session. SendAudio and
// SendFunctionResult may be called concurrently with Receive.
type Stream interface {
	// SendAudio forwards one outbound PCM frame.
	SendAudio(ctx context.Context, frame audioio.Frame) error

	// SendFunctionResult answers a FunctionCall.
	SendFunctionResult(ctx context.Context, res FunctionResult) error

	// Receive blocks for the next unit. It returns io.EOF once the
	// server ends the session and ErrStreamClosed after Close.
	Receive(ctx context.Context) (Unit, error)

	// Close ends the session. It is safe to call more than once.
	Close() error
}

// SessionConfig is sent once when the stream opens.
type SessionConfig struct {
	ResponseModalities  []string
	SystemInstruction   string
	Tools               []FunctionDeclaration
	Voice               string
	InputTranscription  bool
	OutputTranscription bool
}

// DefaultSessionConfig requests audio responses with both transcripts on.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		ResponseModalities:  []string{ModalityAudio},
		InputTranscription:  true,
		OutputTranscription: true,
	}
}

// UnitKind discriminates Unit.
type UnitKind int

const (
	UnitAudio UnitKind = iota
	UnitText
	UnitFunctionCall
	UnitTurnComplete
	UnitInterrupted
	UnitInputTranscript
	UnitOutputTranscript
)

var unitNames = map[UnitKind]string{
	UnitAudio:            "audio",
	UnitText:             "text",
	UnitFunctionCall:     "function_call",
	UnitTurnComplete:     "turn_complete",
	UnitInterrupted:      "interrupted",
	UnitInputTranscript:  "input_transcript",
	UnitOutputTranscript: "output_transcript",
}

func (k UnitKind) String() string {
	if s, ok := unitNames[k]; ok {
		return s
	}
	return fmt.Sprintf("unit(%d)", int(k))
}

// Unit is one element of a server turn. Exactly one payload field is set,
// according to Kind.
type Unit struct {
	Kind     UnitKind
	Audio    []byte
	MIMEType string
	Text     string
	Call     *FunctionCall
}

// AudioUnit builds an audio unit.
func AudioUnit(data []byte) Unit {
	return Unit{Kind: UnitAudio, Audio: data, MIMEType: audioio.MIMEPCM}
}

// TextUnit builds a text unit.
func TextUnit(text string) Unit {
	return Unit{Kind: UnitText, Text: text}
}

// CallUnit builds a function call unit.
func CallUnit(id, name string, args map[string]any) Unit {
	return Unit{Kind: UnitFunctionCall, Call: &FunctionCall{ID: id, Name: name, Args: args}}
}

// FunctionCall is a request from the model to run a declared function.
type FunctionCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// FunctionResult answers one FunctionCall.
type FunctionResult struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// Schema types.
const (
	TypeObject  = "OBJECT"
	TypeString  = "STRING"
	TypeInteger = "INTEGER"
	TypeNumber  = "NUMBER"
	TypeBoolean = "BOOLEAN"
	TypeArray   = "ARRAY"
)

// Schema is the subset of OpenAPI schema used for function parameters.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
}

// FunctionDeclaration advertises a callable function to the model.
type FunctionDeclaration struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Parameters  *Schema `json:"parameters,omitempty"`
}

// Options configure a backend.
type Options struct {
	APIKey  string
	BaseURL string
	Logger  *slog.Logger

	// ConnectTimeout bounds Connect. Zero uses DefaultConnectTimeout.
	ConnectTimeout time.Duration
}

// Factory creates a Client.
type Factory func(opts Options) (Client, error)

var (
	registryMu sync.RWMutex
	factories  = map[string]Factory{}
)

// Register makes a backend available to New. Backends call it from init.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = f
}

// New creates a Client for the named backend.
func New(name string, opts Options) (Client, error) {
	registryMu.RLock()
	f, ok := factories[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotSupported, name)
	}
	return f(opts)
}

// Backends lists registered backend names.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(factories))
	for n := range factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
