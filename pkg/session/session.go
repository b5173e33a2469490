// Package session coordinates one live voice session: microphone capture,
// the remote stream, speaker playback and function-call dispatch.
//
// A session runs three duties in an errgroup (send-relay, receive-relay
// and playback-relay) plus capture-relay while listening:
//
//	mic → capture-relay → outbound (bounded) → send-relay → stream
//	stream → receive-relay → inbound (unbounded) → playback-relay → speaker
//	                      ↘ function call → dispatcher → stream
//
// Any duty failing tears the whole session down.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-waiter/internal/config"
	"github.com/teslashibe/go-waiter/internal/log"
	"github.com/teslashibe/go-waiter/pkg/audioio"
	"github.com/teslashibe/go-waiter/pkg/live"
)

// Errors.
var (
	ErrNoSession         = errors.New("session: no active session")
	ErrMissingClient     = errors.New("session: live client is required")
	ErrMissingDispatcher = errors.New("session: function dispatcher is required")
	ErrStopped           = errors.New("session: stopped while connecting")

	errQueueClosed = errors.New("session: queue closed")
	errStreamEnded = errors.New("session: stream ended")
)

// State is the coordinator's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateListening
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateListening:
		return "listening"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// FunctionDispatcher runs function calls requested by the model.
type FunctionDispatcher interface {
	// Declarations are advertised to the model when the stream opens.
	Declarations() []live.FunctionDeclaration

	// Dispatch runs call. The result is always sent back, even when err
	// is non-nil; err only marks the call as failed for the UI.
	Dispatch(ctx context.Context, call live.FunctionCall) (live.FunctionResult, error)
}

// SourceFactory opens a capture device.
type SourceFactory func(cfg audioio.Config) (audioio.Source, error)

// SinkFactory opens a playback device.
type SinkFactory func(cfg audioio.Config) (audioio.Sink, error)

// Options configure a Coordinator.
type Options struct {
	Client     live.Client
	Dispatcher FunctionDispatcher

	// Events receives UI events. Nil discards them.
	Events EventSink

	// AudioBackend picks the audioio backend when NewSource or NewSink
	// are nil.
	AudioBackend audioio.Backend
	NewSource    SourceFactory
	NewSink      SinkFactory

	Model             string
	SystemInstruction string
	Voice             string

	// OutboundQueue bounds the capture → network queue.
	OutboundQueue int

	Logger *slog.Logger
}

// SessionContext holds everything owned by one session. It is built by
// StartSession and discarded by StopSession.
type SessionContext struct {
	ID        string
	StartedAt time.Time

	stream   live.Stream
	sink     audioio.Sink
	outbound chan audioio.Frame
	inbound  *frameQueue

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	done   chan struct{}

	// Guarded by Coordinator.mu.
	source        audioio.Source
	captureCancel context.CancelFunc
	captureDone   chan struct{}

	stopping     atomic.Bool
	teardownOnce sync.Once
}

// Coordinator owns at most one session at a time.
type Coordinator struct {
	opts   Options
	events EventSink
	log    *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	state State
	sess  *SessionContext

	// Set while connecting. StopSession cancels the connect and marks
	// it stopped so the new stream is discarded.
	connectCancel  context.CancelFunc
	connectStopped bool

	metrics *MetricsCollector

	// captures counts capture-relay goroutines started, for tests.
	captures atomic.Int64
}

// New creates a Coordinator.
func New(opts Options) (*Coordinator, error) {
	if opts.Client == nil {
		return nil, ErrMissingClient
	}
	if opts.Dispatcher == nil {
		return nil, ErrMissingDispatcher
	}
	if opts.Model == "" {
		opts.Model = config.DefaultModel
	}
	if opts.OutboundQueue <= 0 {
		opts.OutboundQueue = config.DefaultOutboundQueue
	}
	if opts.AudioBackend == "" {
		opts.AudioBackend = audioio.BackendDevice
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.L()
	}
	logger = logger.With("component", "session")
	if opts.NewSource == nil {
		opts.NewSource = func(cfg audioio.Config) (audioio.Source, error) {
			return audioio.NewSource(cfg, logger)
		}
	}
	if opts.NewSink == nil {
		opts.NewSink = func(cfg audioio.Config) (audioio.Sink, error) {
			return audioio.NewSink(cfg, logger)
		}
	}
	events := opts.Events
	if events == nil {
		events = nopSink{}
	}
	return &Coordinator{
		opts:    opts,
		events:  events,
		log:     logger,
		now:     time.Now,
		metrics: NewMetricsCollector(),
	}, nil
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Listening reports whether capture is running.
func (c *Coordinator) Listening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil && c.sess.source != nil
}

// SessionID returns the active session's id, or "".
func (c *Coordinator) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return ""
	}
	return c.sess.ID
}

// OutboundDepth returns the number of frames waiting to be sent and the
// queue's capacity.
func (c *Coordinator) OutboundDepth() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return 0, c.opts.OutboundQueue
	}
	return len(c.sess.outbound), cap(c.sess.outbound)
}

// Metrics returns the turn metrics collector.
func (c *Coordinator) Metrics() *MetricsCollector {
	return c.metrics
}

// TurnStats summarizes recent turns across sessions.
func (c *Coordinator) TurnStats() TurnStats {
	return c.metrics.Stats()
}

func (c *Coordinator) sessionConfig() live.SessionConfig {
	cfg := live.DefaultSessionConfig()
	cfg.SystemInstruction = c.opts.SystemInstruction
	cfg.Tools = c.opts.Dispatcher.Declarations()
	cfg.Voice = c.opts.Voice
	return cfg
}

// StartSession connects the stream and starts the session duties. It is
// a no-op while a session exists. On failure the coordinator stays idle.
// A StopSession that arrives while connecting wins: the stream is closed
// and ErrStopped is returned.
func (c *Coordinator) StartSession(ctx context.Context) error {
	c.mu.Lock()
	if c.sess != nil || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	cctx, cancelConnect := context.WithCancel(ctx)
	defer cancelConnect()
	c.state = StateConnecting
	c.connectCancel = cancelConnect
	c.connectStopped = false
	c.mu.Unlock()

	stream, err := c.opts.Client.Connect(cctx, c.opts.Model, c.sessionConfig())
	if c.connectAborted() {
		c.discardConnect(stream, nil)
		return ErrStopped
	}
	if err != nil {
		c.endConnect()
		c.log.Error("connect failed", "model", c.opts.Model, "error", err)
		c.status(statusConnectFailed + err.Error())
		return fmt.Errorf("session: connect: %w", err)
	}

	sink := c.openSink(ctx)

	sctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(sctx)
	s := &SessionContext{
		ID:        uuid.NewString(),
		StartedAt: c.now(),
		stream:    stream,
		sink:      sink,
		outbound:  make(chan audioio.Frame, c.opts.OutboundQueue),
		inbound:   newFrameQueue(),
		ctx:       gctx,
		cancel:    cancel,
		group:     g,
		done:      make(chan struct{}),
	}

	c.mu.Lock()
	if c.connectStopped {
		c.mu.Unlock()
		cancel()
		c.discardConnect(stream, sink)
		return ErrStopped
	}
	c.connectCancel, c.connectStopped = nil, false
	c.sess = s
	c.state = StateConnected
	c.mu.Unlock()

	g.Go(func() error { return c.sendRelay(gctx, s) })
	g.Go(func() error { return c.receiveRelay(gctx, s) })
	g.Go(func() error { return c.playbackRelay(gctx, s) })
	go c.supervise(s)

	c.log.Info("session started", "session_id", s.ID, "model", c.opts.Model)
	c.status(StatusConnected)
	return nil
}

func (c *Coordinator) connectAborted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectStopped
}

// endConnect leaves CONNECTING for IDLE.
func (c *Coordinator) endConnect() {
	c.mu.Lock()
	c.connectCancel, c.connectStopped = nil, false
	c.state = StateIdle
	c.mu.Unlock()
}

// discardConnect releases what a stopped connect produced.
func (c *Coordinator) discardConnect(stream live.Stream, sink audioio.Sink) {
	c.endConnect()
	if stream != nil {
		if err := stream.Close(); err != nil {
			c.log.Debug("stream close failed", "error", err)
		}
	}
	if sink != nil {
		sink.Stop()
		sink.Close()
	}
	c.log.Info("session stopped while connecting", "model", c.opts.Model)
	c.status(StatusDisconnected)
}

// openSink opens playback. A speaker failure is reported and the session
// continues without audio output.
func (c *Coordinator) openSink(ctx context.Context) audioio.Sink {
	sink, err := c.opts.NewSink(audioio.PlaybackConfig(c.opts.AudioBackend))
	if err == nil {
		err = sink.Start(ctx)
		if err != nil {
			sink.Close()
		}
	}
	if err != nil {
		c.log.Warn("speaker unavailable", "error", err)
		c.status(statusSpeakerError + err.Error())
		return nil
	}
	return sink
}

// StartListening opens the microphone and starts capture-relay. It is a
// no-op while already listening. A device failure is reported and the
// session stays connected.
func (c *Coordinator) StartListening(ctx context.Context) error {
	c.mu.Lock()
	s := c.sess
	if s == nil || s.stopping.Load() {
		c.mu.Unlock()
		return ErrNoSession
	}
	if s.source != nil {
		c.mu.Unlock()
		return nil
	}

	src, err := c.opts.NewSource(audioio.CaptureConfig(c.opts.AudioBackend))
	if err == nil {
		err = src.Start(ctx)
		if err != nil {
			src.Close()
		}
	}
	if err != nil {
		c.mu.Unlock()
		c.log.Warn("microphone unavailable", "error", err)
		c.status(statusMicError + err.Error())
		return fmt.Errorf("session: microphone: %w", err)
	}

	capCtx, capCancel := context.WithCancel(s.ctx)
	s.source = src
	s.captureCancel = capCancel
	s.captureDone = make(chan struct{})
	c.state = StateListening
	done := s.captureDone
	c.captures.Add(1)
	go c.captureRelay(capCtx, s, src, done)
	c.mu.Unlock()

	c.log.Info("listening", "session_id", s.ID)
	c.status(StatusListening)
	return nil
}

// StopListening stops capture and keeps the stream open.
func (c *Coordinator) StopListening() error {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()
	if s == nil {
		return nil
	}
	if c.stopCapture(s) {
		c.status(StatusStoppedListening)
	}
	return nil
}

// stopCapture detaches and closes the microphone, waiting for
// capture-relay to exit. It reports whether capture was running.
func (c *Coordinator) stopCapture(s *SessionContext) bool {
	c.mu.Lock()
	src, cancel, done := s.source, s.captureCancel, s.captureDone
	s.source, s.captureCancel, s.captureDone = nil, nil, nil
	if c.sess == s && c.state == StateListening {
		c.state = StateConnected
	}
	c.mu.Unlock()

	if src == nil {
		return false
	}
	cancel()
	src.Stop()
	<-done
	if err := src.Close(); err != nil {
		c.log.Debug("microphone close failed", "error", err)
	}
	return true
}

// StopSession tears the session down and returns to idle. It is safe to
// call without a session. While connecting it aborts the connect.
func (c *Coordinator) StopSession() error {
	c.mu.Lock()
	s := c.sess
	if s != nil {
		c.state = StateClosed
	} else if c.state == StateConnecting && c.connectCancel != nil {
		c.connectStopped = true
		c.connectCancel()
	}
	c.mu.Unlock()
	if s == nil {
		return nil
	}
	c.teardown(s)
	return nil
}

// supervise waits for the duties and tears the session down when one
// of them fails.
func (c *Coordinator) supervise(s *SessionContext) {
	err := s.group.Wait()
	close(s.done)
	if s.stopping.Load() {
		return
	}

	c.mu.Lock()
	if c.sess == s {
		c.state = StateClosed
	}
	c.mu.Unlock()

	if err != nil && !errors.Is(err, errStreamEnded) {
		c.log.Error("session failed", "session_id", s.ID, "error", err)
		c.status(statusSessionError + err.Error())
	} else {
		c.log.Info("stream ended", "session_id", s.ID)
	}
	c.teardown(s)
}

func (c *Coordinator) teardown(s *SessionContext) {
	s.teardownOnce.Do(func() {
		s.stopping.Store(true)
		c.stopCapture(s)

		s.cancel()
		if err := s.stream.Close(); err != nil {
			c.log.Debug("stream close failed", "error", err)
		}
		<-s.done

		s.inbound.Close()
		if s.sink != nil {
			s.sink.Stop()
			s.sink.Close()
		}

		c.mu.Lock()
		if c.sess == s {
			c.sess = nil
			c.state = StateIdle
		}
		c.mu.Unlock()

		c.log.Info("session stopped", "session_id", s.ID, "duration", c.now().Sub(s.StartedAt).Round(time.Millisecond))
		c.status(StatusDisconnected)
	})
}

func (c *Coordinator) setState(st State) {
	c.mu.Lock()
	c.state = st
	c.mu.Unlock()
}
