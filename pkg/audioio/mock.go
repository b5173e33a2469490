package audioio

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// MockSource is a mock audio source for testing.
// It replays scripted frames, or generates silence or a sine wave.
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	stopCh   chan struct{}
	script   [][]byte
	startErr error
	interval time.Duration

	starts     atomic.Int64
	chunksRead atomic.Int64
	bytesRead  atomic.Int64

	phase     float64
	frequency float64 // Hz, 0 = silence
	amplitude float64 // 0.0 to 1.0
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSineWave configures the mock to generate a sine wave.
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// WithScript makes Read return these payloads in order. Once the script is
// exhausted Read blocks until the source is stopped, so an empty script
// is a silent microphone.
func WithScript(frames ...[]byte) MockSourceOption {
	return func(m *MockSource) {
		if m.script == nil {
			m.script = [][]byte{}
		}
		m.script = append(m.script, frames...)
	}
}

// WithStartError makes Start fail with err, like an unavailable device.
func WithStartError(err error) MockSourceOption {
	return func(m *MockSource) {
		m.startErr = err
	}
}

// WithInterval paces synthetic reads. Zero returns chunks immediately.
func WithInterval(d time.Duration) MockSourceOption {
	return func(m *MockSource) {
		m.interval = d
	}
}

// NewMockSource creates a new mock audio source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockSource{
		cfg:       cfg,
		logger:    logger,
		stopCh:    make(chan struct{}),
		amplitude: 0.5,
		interval:  cfg.ChunkDuration(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start begins capture.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.startErr != nil {
		return m.startErr
	}
	if m.running {
		return nil
	}

	m.running = true
	m.stopCh = make(chan struct{})
	m.starts.Add(1)

	m.logger.Debug("mock audio source started",
		"sample_rate", m.cfg.SampleRate,
		"frequency", m.frequency,
	)

	return nil
}

// Read returns the next frame.
func (m *MockSource) Read(ctx context.Context) (Frame, error) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return Frame{}, io.EOF
	}
	stopCh := m.stopCh
	var next []byte
	scripted := m.script != nil
	if len(m.script) > 0 {
		next = m.script[0]
		m.script = m.script[1:]
	}
	m.mu.Unlock()

	if scripted && next == nil {
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-stopCh:
			return Frame{}, io.EOF
		}
	}

	if next == nil {
		if m.interval > 0 {
			select {
			case <-ctx.Done():
				return Frame{}, ctx.Err()
			case <-stopCh:
				return Frame{}, io.EOF
			case <-time.After(m.interval):
			}
		} else {
			select {
			case <-ctx.Done():
				return Frame{}, ctx.Err()
			case <-stopCh:
				return Frame{}, io.EOF
			default:
			}
		}
		chunk := m.generateChunk()
		next = chunk.Bytes()
	}

	m.chunksRead.Add(1)
	m.bytesRead.Add(int64(len(next)))
	return NewCaptureFrame(next), nil
}

func (m *MockSource) generateChunk() AudioChunk {
	n := m.cfg.ChunkSamples
	samples := make([]int16, n*m.cfg.Channels)

	if m.frequency > 0 {
		for i := 0; i < n; i++ {
			sample := m.amplitude * math.Sin(2*math.Pi*m.frequency*m.phase/float64(m.cfg.SampleRate))
			sampleInt := int16(sample * 32767)

			for ch := 0; ch < m.cfg.Channels; ch++ {
				samples[i*m.cfg.Channels+ch] = sampleInt
			}

			m.phase++
			if m.phase >= float64(m.cfg.SampleRate) {
				m.phase = 0
			}
		}
	}

	return AudioChunk{
		Samples:    samples,
		SampleRate: m.cfg.SampleRate,
		Channels:   m.cfg.Channels,
	}
}

// Stop halts capture.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	m.running = false
	close(m.stopCh)

	m.logger.Debug("mock audio source stopped")

	return nil
}

// Config returns the audio configuration.
func (m *MockSource) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSource) Name() string {
	return "mock"
}

// Close releases resources.
func (m *MockSource) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	return m.Stop()
}

// Starts returns how many times Start succeeded.
func (m *MockSource) Starts() int {
	return int(m.starts.Load())
}

// Closed reports whether Close was called.
func (m *MockSource) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Stats returns source statistics.
func (m *MockSource) Stats() SourceStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	return SourceStats{
		ChunksRead: m.chunksRead.Load(),
		BytesRead:  m.bytesRead.Load(),
		Running:    running,
		Backend:    "mock",
	}
}

// Ensure MockSource implements SourceWithStats.
var _ SourceWithStats = (*MockSource)(nil)

// MockSink is a mock audio sink for testing.
// It records every frame written.
type MockSink struct {
	cfg    Config
	logger *slog.Logger

	mu         sync.Mutex
	running    bool
	closed     bool
	frames     []Frame
	startErr   error
	writeDelay time.Duration

	framesWritten atomic.Int64
	bytesWritten  atomic.Int64
	clears        atomic.Int64
}

// MockSinkOption configures a MockSink.
type MockSinkOption func(*MockSink)

// WithSinkStartError makes Start fail with err.
func WithSinkStartError(err error) MockSinkOption {
	return func(m *MockSink) {
		m.startErr = err
	}
}

// WithWriteDelay makes each Write take d, like a real device draining.
func WithWriteDelay(d time.Duration) MockSinkOption {
	return func(m *MockSink) {
		m.writeDelay = d
	}
}

// NewMockSink creates a new mock audio sink.
func NewMockSink(cfg Config, logger *slog.Logger, opts ...MockSinkOption) *MockSink {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockSink{
		cfg:    cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins accepting audio.
func (m *MockSink) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.startErr != nil {
		return m.startErr
	}

	m.running = true
	m.logger.Debug("mock audio sink started")

	return nil
}

// Stop halts audio acceptance.
func (m *MockSink) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.running = false
	return nil
}

// Write records a frame.
func (m *MockSink) Write(ctx context.Context, frame Frame) error {
	if m.writeDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.writeDelay):
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || !m.running {
		return io.ErrClosedPipe
	}

	m.frames = append(m.frames, frame)
	m.framesWritten.Add(1)
	m.bytesWritten.Add(int64(len(frame.Data)))

	return nil
}

// Clear counts the call; recorded frames are kept for inspection.
func (m *MockSink) Clear() error {
	m.clears.Add(1)
	return nil
}

// Frames returns a copy of every frame written so far.
func (m *MockSink) Frames() []Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Frame, len(m.frames))
	copy(out, m.frames)
	return out
}

// Config returns the audio configuration.
func (m *MockSink) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSink) Name() string {
	return "mock"
}

// Close releases resources.
func (m *MockSink) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	return m.Stop()
}

// Closed reports whether Close was called.
func (m *MockSink) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Stats returns sink statistics.
func (m *MockSink) Stats() SinkStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	return SinkStats{
		FramesWritten: m.framesWritten.Load(),
		BytesWritten:  m.bytesWritten.Load(),
		Clears:        m.clears.Load(),
		Running:       running,
		Backend:       "mock",
	}
}

// Ensure MockSink implements SinkWithStats.
var _ SinkWithStats = (*MockSink)(nil)
