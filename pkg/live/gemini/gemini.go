// Package gemini implements live.Client over the Gemini Live
// BidiGenerateContent websocket.
package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-waiter/internal/log"
	"github.com/teslashibe/go-waiter/pkg/audioio"
	"github.com/teslashibe/go-waiter/pkg/live"
)

const (
	// Gemini Live API WebSocket endpoint
	liveURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	// Backend is the registry name.
	Backend = "ws"

	unitBuffer = 64
)

// Client dials Gemini Live.
type Client struct {
	apiKey  string
	url     string
	timeout time.Duration
	dialer  *websocket.Dialer
	log     *slog.Logger
}

// New creates a Client. opts.BaseURL overrides the websocket endpoint.
func New(opts live.Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, live.ErrMissingAPIKey
	}
	u := opts.BaseURL
	if u == "" {
		u = liveURL
	}
	timeout := opts.ConnectTimeout
	if timeout == 0 {
		timeout = live.DefaultConnectTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.L()
	}
	return &Client{
		apiKey:  opts.APIKey,
		url:     u,
		timeout: timeout,
		dialer:  &websocket.Dialer{HandshakeTimeout: timeout},
		log:     logger.With("component", "live/gemini"),
	}, nil
}

// Connect dials, sends the setup message and waits for setupComplete.
func (c *Client) Connect(ctx context.Context, model string, cfg live.SessionConfig) (live.Stream, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u, err := url.Parse(c.url)
	if err != nil {
		return nil, &live.ConnectionError{Op: "parse url", Err: err}
	}
	q := u.Query()
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()

	header := make(http.Header)
	header.Set("Content-Type", "application/json")

	ws, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &live.APIError{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return nil, &live.ConnectionError{Op: "dial", Err: err}
	}

	s := newStream(ws, c.log)
	if err := s.sendJSON(ctx, setupMessage(model, cfg)); err != nil {
		ws.Close()
		return nil, &live.ConnectionError{Op: "setup", Err: err}
	}
	if err := s.awaitSetup(ctx); err != nil {
		ws.Close()
		return nil, err
	}

	go s.readLoop()
	c.log.Info("gemini live connected", "model", model, "tools", len(cfg.Tools))
	return s, nil
}

func setupMessage(model string, cfg live.SessionConfig) map[string]any {
	modalities := cfg.ResponseModalities
	if len(modalities) == 0 {
		modalities = []string{live.ModalityAudio}
	}
	genCfg := map[string]any{
		"response_modalities": modalities,
	}
	if cfg.Voice != "" {
		genCfg["speech_config"] = map[string]any{
			"voice_config": map[string]any{
				"prebuilt_voice_config": map[string]any{"voice_name": cfg.Voice},
			},
		}
	}

	setup := map[string]any{
		"model":             model,
		"generation_config": genCfg,
	}
	if cfg.SystemInstruction != "" {
		setup["system_instruction"] = map[string]any{
			"parts": []map[string]any{{"text": cfg.SystemInstruction}},
		}
	}
	if len(cfg.Tools) > 0 {
		setup["tools"] = []map[string]any{{"function_declarations": cfg.Tools}}
	}
	if cfg.InputTranscription {
		setup["input_audio_transcription"] = map[string]any{}
	}
	if cfg.OutputTranscription {
		setup["output_audio_transcription"] = map[string]any{}
	}
	return map[string]any{"setup": setup}
}

// Stream is an open Gemini Live session.
type Stream struct {
	ws   *websocket.Conn
	wsMu sync.Mutex
	log  *slog.Logger

	units chan live.Unit
	done  chan struct{}
	once  sync.Once

	errMu sync.Mutex
	err   error
}

func newStream(ws *websocket.Conn, logger *slog.Logger) *Stream {
	return &Stream{
		ws:    ws,
		log:   logger,
		units: make(chan live.Unit, unitBuffer),
		done:  make(chan struct{}),
	}
}

func (s *Stream) awaitSetup(ctx context.Context) error {
	if dl, ok := ctx.Deadline(); ok {
		s.ws.SetReadDeadline(dl)
		defer s.ws.SetReadDeadline(time.Time{})
	}
	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			return classify("setup", err)
		}
		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("%w: %v", live.ErrInvalidMessage, err)
		}
		if msg.SetupComplete != nil {
			return nil
		}
	}
}

// readLoop turns server messages into units until the socket fails or
// the stream is closed.
func (s *Stream) readLoop() {
	defer close(s.units)
	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				s.setErr(live.ErrStreamClosed)
			default:
				s.setErr(classify("receive", err))
			}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Warn("gemini: failed to parse message", "error", err)
			continue
		}
		for _, u := range msg.units() {
			select {
			case s.units <- u:
			case <-s.done:
				s.setErr(live.ErrStreamClosed)
				return
			}
		}
	}
}

// classify maps websocket failures onto live errors. A normal close
// becomes io.EOF.
func classify(op string, err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			return io.EOF
		case websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure:
			return &live.ConnectionError{Op: op, Err: err}
		default:
			return &live.APIError{Code: ce.Code, Message: ce.Text}
		}
	}
	return &live.ConnectionError{Op: op, Err: err}
}

func (s *Stream) setErr(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
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
	msg := map[string]any{
		"realtime_input": map[string]any{
			"media_chunks": []map[string]any{
				{
					"data":      base64.StdEncoding.EncodeToString(frame.Data),
					"mime_type": mime,
				},
			},
		},
	}
	return s.sendJSON(ctx, msg)
}

// SendFunctionResult implements live.Stream.
func (s *Stream) SendFunctionResult(ctx context.Context, res live.FunctionResult) error {
	msg := map[string]any{
		"tool_response": map[string]any{
			"function_responses": []live.FunctionResult{res},
		},
	}
	return s.sendJSON(ctx, msg)
}

// sendJSON sends a JSON message over WebSocket.
func (s *Stream) sendJSON(ctx context.Context, v any) error {
	select {
	case <-s.done:
		return live.ErrStreamClosed
	default:
	}

	s.wsMu.Lock()
	defer s.wsMu.Unlock()

	if dl, ok := ctx.Deadline(); ok {
		s.ws.SetWriteDeadline(dl)
	} else {
		s.ws.SetWriteDeadline(time.Time{})
	}
	if err := s.ws.WriteJSON(v); err != nil {
		return &live.ConnectionError{Op: "send", Err: err}
	}
	return nil
}

// closeGrace bounds the close handshake write.
const closeGrace = 250 * time.Millisecond

// Close implements live.Stream. It does not wait for a pending send; the
// close frame is skipped when the writer is stuck and closing the socket
// fails the blocked write.
func (s *Stream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		_ = s.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGrace))
		err = s.ws.Close()
	})
	return err
}

// Ensure Stream implements live.Stream at compile time.
var _ live.Stream = (*Stream)(nil)

// Register Gemini websocket backend in live package.
func init() {
	live.Register(Backend, func(opts live.Options) (live.Client, error) {
		return New(opts)
	})
}
