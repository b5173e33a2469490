package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-waiter/internal/log"
	"github.com/teslashibe/go-waiter/pkg/audioio"
	"github.com/teslashibe/go-waiter/pkg/live"
)

// fakeServer accepts one websocket connection and hands it to handle.
type fakeServer struct {
	*httptest.Server
	setup chan map[string]any
	query chan string
}

func newFakeServer(t *testing.T, handle func(ws *websocket.Conn)) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		setup: make(chan map[string]any, 1),
		query: make(chan string, 1),
	}
	upgrader := websocket.Upgrader{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.query <- r.URL.Query().Get("key")
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		var msg map[string]any
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}
		fs.setup <- msg
		handle(ws)
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) wsURL() string {
	return "ws" + strings.TrimPrefix(fs.URL, "http")
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := New(live.Options{APIKey: "test-key", BaseURL: url, Logger: log.Discard(), ConnectTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func setupComplete(ws *websocket.Conn) {
	ws.WriteJSON(map[string]any{"setupComplete": map[string]any{}})
}

func TestNew(t *testing.T) {
	t.Run("requires api key", func(t *testing.T) {
		if _, err := New(live.Options{}); !errors.Is(err, live.ErrMissingAPIKey) {
			t.Errorf("err = %v, want ErrMissingAPIKey", err)
		}
	})

	t.Run("registered", func(t *testing.T) {
		c, err := live.New(Backend, live.Options{APIKey: "k"})
		if err != nil {
			t.Fatalf("live.New: %v", err)
		}
		if _, ok := c.(*Client); !ok {
			t.Errorf("client type = %T", c)
		}
	})
}

func TestConnectSendsSetup(t *testing.T) {
	fs := newFakeServer(t, func(ws *websocket.Conn) {
		setupComplete(ws)
		ws.ReadMessage()
	})

	cfg := live.DefaultSessionConfig()
	cfg.SystemInstruction = "You take food orders."
	cfg.Tools = []live.FunctionDeclaration{{
		Name:        "get_menu_items",
		Description: "List the menu",
		Parameters: &live.Schema{
			Type:       live.TypeObject,
			Properties: map[string]*live.Schema{"category": {Type: live.TypeString}},
		},
	}}

	s, err := newTestClient(t, fs.wsURL()).Connect(context.Background(), "models/test", cfg)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer s.Close()

	if key := <-fs.query; key != "test-key" {
		t.Errorf("key = %q, want test-key", key)
	}

	msg := <-fs.setup
	setup, ok := msg["setup"].(map[string]any)
	if !ok {
		t.Fatalf("missing setup: %v", msg)
	}
	if setup["model"] != "models/test" {
		t.Errorf("model = %v", setup["model"])
	}
	gen := setup["generation_config"].(map[string]any)
	mods := gen["response_modalities"].([]any)
	if len(mods) != 1 || mods[0] != "AUDIO" {
		t.Errorf("response_modalities = %v", mods)
	}
	si := setup["system_instruction"].(map[string]any)
	parts := si["parts"].([]any)
	if parts[0].(map[string]any)["text"] != "You take food orders." {
		t.Errorf("system_instruction = %v", si)
	}
	tools := setup["tools"].([]any)
	decls := tools[0].(map[string]any)["function_declarations"].([]any)
	if decls[0].(map[string]any)["name"] != "get_menu_items" {
		t.Errorf("function_declarations = %v", decls)
	}
	if _, ok := setup["input_audio_transcription"]; !ok {
		t.Error("input transcription not requested")
	}
	if _, ok := setup["output_audio_transcription"]; !ok {
		t.Error("output transcription not requested")
	}
}

func TestReceiveUnits(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	fs := newFakeServer(t, func(ws *websocket.Conn) {
		setupComplete(ws)
		ws.WriteJSON(map[string]any{
			"serverContent": map[string]any{
				"inputTranscription": map[string]any{"text": "two burgers"},
				"modelTurn": map[string]any{
					"parts": []any{
						map[string]any{"inlineData": map[string]any{
							"mimeType": "audio/pcm;rate=24000",
							"data":     base64.StdEncoding.EncodeToString(pcm),
						}},
						map[string]any{"text": "Sure"},
					},
				},
				"outputTranscription": map[string]any{"text": "Sure thing"},
			},
		})
		ws.WriteJSON(map[string]any{
			"toolCall": map[string]any{
				"functionCalls": []any{map[string]any{
					"id":   "call-1",
					"name": "create_order",
					"args": map[string]any{"items": map[string]any{"2": 2}},
				}},
			},
		})
		ws.WriteJSON(map[string]any{"serverContent": map[string]any{"interrupted": true}})
		ws.WriteJSON(map[string]any{"serverContent": map[string]any{"turnComplete": true}})
		ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		ws.ReadMessage()
	})

	s, err := newTestClient(t, fs.wsURL()).Connect(context.Background(), "models/test", live.DefaultSessionConfig())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	want := []live.UnitKind{
		live.UnitInputTranscript,
		live.UnitAudio,
		live.UnitText,
		live.UnitOutputTranscript,
		live.UnitFunctionCall,
		live.UnitInterrupted,
		live.UnitTurnComplete,
	}
	var got []live.Unit
	for range want {
		u, err := s.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		got = append(got, u)
	}
	for i, k := range want {
		if got[i].Kind != k {
			t.Errorf("unit %d kind = %v, want %v", i, got[i].Kind, k)
		}
	}
	if string(got[1].Audio) != string(pcm) {
		t.Errorf("audio = %v, want %v", got[1].Audio, pcm)
	}
	if got[0].Text != "two burgers" || got[3].Text != "Sure thing" {
		t.Errorf("transcripts = %q / %q", got[0].Text, got[3].Text)
	}
	call := got[4].Call
	if call == nil || call.ID != "call-1" || call.Name != "create_order" {
		t.Fatalf("call = %+v", call)
	}
	if _, ok := call.Args["items"]; !ok {
		t.Errorf("args = %v", call.Args)
	}

	if _, err := s.Receive(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Receive after close = %v, want io.EOF", err)
	}
}

func TestSend(t *testing.T) {
	received := make(chan map[string]any, 2)
	fs := newFakeServer(t, func(ws *websocket.Conn) {
		setupComplete(ws)
		for i := 0; i < 2; i++ {
			var msg map[string]any
			if err := ws.ReadJSON(&msg); err != nil {
				return
			}
			received <- msg
		}
	})

	s, err := newTestClient(t, fs.wsURL()).Connect(context.Background(), "models/test", live.DefaultSessionConfig())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	pcm := []byte{9, 8, 7, 6}
	if err := s.SendAudio(ctx, audioio.NewCaptureFrame(pcm)); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	res := live.FunctionResult{ID: "call-1", Name: "create_order", Response: map[string]any{"result": 7}}
	if err := s.SendFunctionResult(ctx, res); err != nil {
		t.Fatalf("SendFunctionResult: %v", err)
	}

	t.Run("audio", func(t *testing.T) {
		msg := <-received
		chunks := msg["realtime_input"].(map[string]any)["media_chunks"].([]any)
		chunk := chunks[0].(map[string]any)
		if chunk["mime_type"] != "audio/pcm" {
			t.Errorf("mime_type = %v", chunk["mime_type"])
		}
		if chunk["data"] != base64.StdEncoding.EncodeToString(pcm) {
			t.Errorf("data = %v", chunk["data"])
		}
	})

	t.Run("function result", func(t *testing.T) {
		msg := <-received
		resps := msg["tool_response"].(map[string]any)["function_responses"].([]any)
		r := resps[0].(map[string]any)
		if r["id"] != "call-1" || r["name"] != "create_order" {
			t.Errorf("response = %v", r)
		}
		if r["response"].(map[string]any)["result"] != float64(7) {
			t.Errorf("result = %v", r["response"])
		}
	})
}

func TestConnectErrors(t *testing.T) {
	t.Run("rejected setup", func(t *testing.T) {
		fs := newFakeServer(t, func(ws *websocket.Conn) {
			ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "API key not valid"))
			ws.ReadMessage()
		})

		_, err := newTestClient(t, fs.wsURL()).Connect(context.Background(), "models/test", live.DefaultSessionConfig())
		var apiErr *live.APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("err = %v, want APIError", err)
		}
		if apiErr.Code != websocket.ClosePolicyViolation || apiErr.Message != "API key not valid" {
			t.Errorf("APIError = %+v", apiErr)
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := "ws" + strings.TrimPrefix(srv.URL, "http")
		srv.Close()

		_, err := newTestClient(t, url).Connect(context.Background(), "models/test", live.DefaultSessionConfig())
		if !live.IsConnectionError(err) {
			t.Errorf("err = %v, want ConnectionError", err)
		}
	})
}

func TestCloseStopsReceive(t *testing.T) {
	fs := newFakeServer(t, func(ws *websocket.Conn) {
		setupComplete(ws)
		ws.ReadMessage()
	})

	s, err := newTestClient(t, fs.wsURL()).Connect(context.Background(), "models/test", live.DefaultSessionConfig())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := s.Receive(ctx); !errors.Is(err, live.ErrStreamClosed) {
		t.Errorf("Receive after Close = %v, want ErrStreamClosed", err)
	}
	if err := s.SendAudio(ctx, audioio.NewCaptureFrame([]byte{0, 0})); !errors.Is(err, live.ErrStreamClosed) {
		t.Errorf("SendAudio after Close = %v, want ErrStreamClosed", err)
	}
}

func TestCloseDuringStalledSend(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	fs := newFakeServer(t, func(ws *websocket.Conn) {
		setupComplete(ws)
		<-release
	})

	s, err := newTestClient(t, fs.wsURL()).Connect(context.Background(), "models/test", live.DefaultSessionConfig())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// The peer never reads, so the socket buffers fill and a send blocks.
	sendDone := make(chan error, 1)
	go func() {
		frame := audioio.NewCaptureFrame(make([]byte, 1<<20))
		for {
			if err := s.SendAudio(context.Background(), frame); err != nil {
				sendDone <- err
				return
			}
		}
	}()
	time.Sleep(200 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked behind a stalled send")
	}

	select {
	case err := <-sendDone:
		if err == nil {
			t.Error("send should fail after Close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stalled send did not return after Close")
	}
}

func TestMessageUnitsIgnoresNonAudioInline(t *testing.T) {
	var msg serverMessage
	raw := `{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"image/png","data":"AAAA"}}]}}}`
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatal(err)
	}
	if units := msg.units(); len(units) != 0 {
		t.Errorf("units = %v, want none", units)
	}
}
