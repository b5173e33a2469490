// Package genailive implements live.Client on top of the official
// google.golang.org/genai SDK.
package genailive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/teslashibe/go-waiter/internal/log"
	"github.com/teslashibe/go-waiter/pkg/audioio"
	"github.com/teslashibe/go-waiter/pkg/live"
)

// Backend is the registry name.
const Backend = "genai"

// APIVersion is the Gemini API version the live endpoint is served under.
const APIVersion = "v1beta"

const unitBuffer = 64

// Client opens live sessions through a genai.Client.
type Client struct {
	opts live.Options
	log  *slog.Logger
}

// New creates a Client.
func New(opts live.Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, live.ErrMissingAPIKey
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = live.DefaultConnectTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.L()
	}
	return &Client{opts: opts, log: logger.With("component", "live/genai")}, nil
}

// Connect implements live.Client.
func (c *Client) Connect(ctx context.Context, model string, cfg live.SessionConfig) (live.Stream, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.opts.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			APIVersion: APIVersion,
			BaseURL:    c.opts.BaseURL,
		},
	})
	if err != nil {
		return nil, &live.ConnectionError{Op: "client", Err: err}
	}

	type result struct {
		session *genai.Session
		err     error
	}
	done := make(chan result, 1)
	go func() {
		s, err := gc.Live.Connect(ctx, model, ConnectConfig(cfg))
		done <- result{s, err}
	}()

	var session *genai.Session
	select {
	case <-ctx.Done():
		// The SDK dial has no context; close whatever it returns later.
		go func() {
			if r := <-done; r.session != nil {
				r.session.Close()
			}
		}()
		return nil, &live.ConnectionError{Op: "connect", Err: ctx.Err()}
	case r := <-done:
		if r.err != nil {
			return nil, &live.ConnectionError{Op: "connect", Err: r.err}
		}
		session = r.session
	}

	s := &Stream{
		session: session,
		log:     c.log,
		units:   make(chan live.Unit, unitBuffer),
		done:    make(chan struct{}),
	}
	go s.readLoop()
	c.log.Info("gemini live connected", "model", model, "tools", len(cfg.Tools))
	return s, nil
}

// ConnectConfig converts a session config into the SDK's form.
func ConnectConfig(cfg live.SessionConfig) *genai.LiveConnectConfig {
	out := &genai.LiveConnectConfig{}
	for _, m := range cfg.ResponseModalities {
		out.ResponseModalities = append(out.ResponseModalities, genai.Modality(m))
	}
	if len(out.ResponseModalities) == 0 {
		out.ResponseModalities = []genai.Modality{genai.ModalityAudio}
	}
	if cfg.SystemInstruction != "" {
		out.SystemInstruction = genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser)
	}
	if cfg.Voice != "" {
		out.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if len(cfg.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(cfg.Tools))
		for _, d := range cfg.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  Schema(d.Parameters),
			})
		}
		out.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	if cfg.InputTranscription {
		out.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if cfg.OutputTranscription {
		out.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	return out
}

// Schema converts a parameter schema recursively.
func Schema(s *live.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genai.Type(s.Type),
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
		Items:       Schema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = Schema(v)
		}
	}
	return out
}

// Stream wraps a genai.Session.
type Stream struct {
	session *genai.Session
	log     *slog.Logger

	// genai.Session writes straight to a gorilla conn, which allows one
	// concurrent writer.
	sendMu sync.Mutex

	units chan live.Unit
	done  chan struct{}
	once  sync.Once

	errMu sync.Mutex
	err   error
}

func (s *Stream) readLoop() {
	defer close(s.units)
	for {
		msg, err := s.session.Receive()
		if err != nil {
			select {
			case <-s.done:
				s.setErr(live.ErrStreamClosed)
			default:
				s.setErr(classify(err))
			}
			return
		}
		for _, u := range Units(msg) {
			select {
			case s.units <- u:
			case <-s.done:
				s.setErr(live.ErrStreamClosed)
				return
			}
		}
	}
}

func classify(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			return io.EOF
		case websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure:
			return &live.ConnectionError{Op: "receive", Err: err}
		default:
			return &live.APIError{Code: ce.Code, Message: ce.Text}
		}
	}
	if strings.Contains(err.Error(), "received error in response") {
		return &live.APIError{Message: err.Error()}
	}
	return &live.ConnectionError{Op: "receive", Err: err}
}

func (s *Stream) setErr(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
}

// Units flattens one SDK message into stream units.
func Units(msg *genai.LiveServerMessage) []live.Unit {
	if msg == nil {
		return nil
	}
	var out []live.Unit
	if sc := msg.ServerContent; sc != nil {
		if t := sc.InputTranscription; t != nil && t.Text != "" {
			out = append(out, live.Unit{Kind: live.UnitInputTranscript, Text: t.Text})
		}
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p == nil {
					continue
				}
				if d := p.InlineData; d != nil && strings.HasPrefix(d.MIMEType, "audio/pcm") && len(d.Data) > 0 {
					out = append(out, live.Unit{Kind: live.UnitAudio, Audio: d.Data, MIMEType: d.MIMEType})
				}
				if p.Text != "" && !p.Thought {
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
	if tc := msg.ToolCall; tc != nil {
		for _, fc := range tc.FunctionCalls {
			if fc == nil {
				continue
			}
			args := fc.Args
			if args == nil {
				args = map[string]any{}
			}
			out = append(out, live.CallUnit(fc.ID, fc.Name, args))
		}
	}
	return out
}

// Receive implements live.Stream.
func (s *Stream) Receive(ctx context.Context) (live.Unit, error) {
	select {
	case <-ctx.Done():
		return live.Unit{}, ctx.Err()
	case u, ok := <-s.units:
		if ok {
			return u, nil
		}
		s.errMu.Lock()
		defer s.errMu.Unlock()
		if s.err == nil {
			return live.Unit{}, io.EOF
		}
		return live.Unit{}, s.err
	}
}

// SendAudio implements live.Stream.
func (s *Stream) SendAudio(ctx context.Context, frame audioio.Frame) error {
	mime := frame.MIMEType
	if mime == "" {
		mime = audioio.MIMEPCM
	}
	return s.send(ctx, "send audio", func() error {
		return s.session.SendRealtimeInput(genai.LiveRealtimeInput{
			Audio: &genai.Blob{Data: frame.Data, MIMEType: mime},
		})
	})
}

// SendFunctionResult implements live.Stream.
func (s *Stream) SendFunctionResult(ctx context.Context, res live.FunctionResult) error {
	return s.send(ctx, "send tool response", func() error {
		return s.session.SendToolResponse(genai.LiveToolResponseInput{
			FunctionResponses: []*genai.FunctionResponse{{
				ID:       res.ID,
				Name:     res.Name,
				Response: res.Response,
			}},
		})
	})
}

func (s *Stream) send(ctx context.Context, op string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-s.done:
		return live.ErrStreamClosed
	default:
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := fn(); err != nil {
		return &live.ConnectionError{Op: op, Err: err}
	}
	return nil
}

// Close implements live.Stream.
func (s *Stream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.session.Close()
	})
	return err
}

var _ live.Stream = (*Stream)(nil)

func init() {
	live.Register(Backend, func(opts live.Options) (live.Client, error) {
		return New(opts)
	})
}
