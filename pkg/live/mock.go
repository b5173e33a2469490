package live

import (
	"context"
	"io"
	"sync"

	"github.com/teslashibe/go-waiter/pkg/audioio"
)

// MockClient is a mock implementation of Client for testing.
type MockClient struct {
	mu sync.Mutex

	// ConnectFunc overrides Connect when set.
	ConnectFunc func(ctx context.Context, model string, cfg SessionConfig) (Stream, error)

	// Captured calls for assertions
	Connects int
	Model    string
	Config   SessionConfig
	Streams  []*MockStream
}

// NewMockClient creates a MockClient.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Connect implements Client. Without ConnectFunc it returns a fresh
// MockStream.
func (m *MockClient) Connect(ctx context.Context, model string, cfg SessionConfig) (Stream, error) {
	m.mu.Lock()
	m.Connects++
	m.Model = model
	m.Config = cfg
	m.mu.Unlock()

	if m.ConnectFunc != nil {
		return m.ConnectFunc(ctx, model, cfg)
	}
	s := NewMockStream()
	m.mu.Lock()
	m.Streams = append(m.Streams, s)
	m.mu.Unlock()
	return s, nil
}

// LastStream returns the most recent stream created by Connect.
func (m *MockClient) LastStream() *MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Streams) == 0 {
		return nil
	}
	return m.Streams[len(m.Streams)-1]
}

// ConnectCount returns how many times Connect was called.
func (m *MockClient) ConnectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Connects
}

var _ Client = (*MockClient)(nil)

type mockItem struct {
	unit Unit
	err  error
}

// MockStream is a scripted Stream. Tests push units for Receive and
// inspect what was sent.
type MockStream struct {
	mu      sync.Mutex
	inbox   chan mockItem
	closed  chan struct{}
	once    sync.Once
	audio   []audioio.Frame
	results []FunctionResult
	events  []string

	// SendAudioFunc overrides SendAudio when set.
	SendAudioFunc func(ctx context.Context, frame audioio.Frame) error

	// SendFunctionResultFunc overrides SendFunctionResult when set.
	SendFunctionResultFunc func(ctx context.Context, res FunctionResult) error

	// Sent receives a token for every audio frame accepted.
	Sent chan struct{}
}

// NewMockStream creates an open MockStream.
func NewMockStream() *MockStream {
	return &MockStream{
		inbox:  make(chan mockItem, 256),
		closed: make(chan struct{}),
		Sent:   make(chan struct{}, 1024),
	}
}

// Push queues units for Receive.
func (s *MockStream) Push(units ...Unit) {
	for _, u := range units {
		s.inbox <- mockItem{unit: u}
	}
}

// PushError makes the next Receive fail with err.
func (s *MockStream) PushError(err error) {
	s.inbox <- mockItem{err: err}
}

// End makes Receive return io.EOF once queued units are consumed.
func (s *MockStream) End() {
	s.inbox <- mockItem{err: io.EOF}
}

// SendAudio implements Stream.
func (s *MockStream) SendAudio(ctx context.Context, frame audioio.Frame) error {
	if s.isClosed() {
		return ErrStreamClosed
	}
	if s.SendAudioFunc != nil {
		if err := s.SendAudioFunc(ctx, frame); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.audio = append(s.audio, frame)
	s.mu.Unlock()
	select {
	case s.Sent <- struct{}{}:
	default:
	}
	return nil
}

// SendFunctionResult implements Stream.
func (s *MockStream) SendFunctionResult(ctx context.Context, res FunctionResult) error {
	if s.isClosed() {
		return ErrStreamClosed
	}
	if s.SendFunctionResultFunc != nil {
		if err := s.SendFunctionResultFunc(ctx, res); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.results = append(s.results, res)
	s.events = append(s.events, "result:"+res.Name)
	s.mu.Unlock()
	return nil
}

// Receive implements Stream.
func (s *MockStream) Receive(ctx context.Context) (Unit, error) {
	select {
	case <-ctx.Done():
		return Unit{}, ctx.Err()
	case <-s.closed:
		return Unit{}, ErrStreamClosed
	case it := <-s.inbox:
		if it.err != nil {
			return Unit{}, it.err
		}
		s.mu.Lock()
		s.events = append(s.events, "recv:"+it.unit.Kind.String())
		s.mu.Unlock()
		return it.unit, nil
	}
}

// Close implements Stream.
func (s *MockStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *MockStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Closed reports whether Close was called.
func (s *MockStream) Closed() bool {
	return s.isClosed()
}

// AudioSent returns a copy of every frame sent.
func (s *MockStream) AudioSent() []audioio.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audioio.Frame, len(s.audio))
	copy(out, s.audio)
	return out
}

// Results returns a copy of every function result sent.
func (s *MockStream) Results() []FunctionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FunctionResult, len(s.results))
	copy(out, s.results)
	return out
}

// Events returns the interleaving of received units and sent results,
// as "recv:<kind>" and "result:<name>" entries.
func (s *MockStream) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	copy(out, s.events)
	return out
}

var _ Stream = (*MockStream)(nil)
