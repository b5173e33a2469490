package device

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/teslashibe/go-waiter/pkg/audioio"
)

// maxCaptureBacklog caps unread microphone audio. Older bytes are dropped
// and counted as overruns.
const maxCaptureBacklog = 2 // seconds

// Microphone captures PCM16 from the default input device.
type Microphone struct {
	cfg    audioio.Config
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	buf     []byte
	running bool
	closed  bool

	mctx   *malgo.AllocatedContext
	device *malgo.Device

	chunksRead atomic.Int64
	bytesRead  atomic.Int64
	overruns   atomic.Int64
}

// NewMicrophone creates an unopened microphone.
func NewMicrophone(cfg audioio.Config, logger *slog.Logger) *Microphone {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Microphone{cfg: cfg, logger: logger}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Start opens the capture device.
func (m *Microphone) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.running {
		return nil
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{ThreadPriority: malgo.ThreadPriorityRealtime}, nil)
	if err != nil {
		return fmt.Errorf("device: init audio context: %w", err)
	}

	dc := malgo.DefaultDeviceConfig(malgo.Capture)
	dc.Capture.Format = malgo.FormatS16
	dc.Capture.Channels = uint32(m.cfg.Channels)
	dc.SampleRate = uint32(m.cfg.SampleRate)
	dc.PeriodSizeInFrames = uint32(m.cfg.ChunkSamples)

	limit := maxCaptureBacklog * m.cfg.SampleRate * m.cfg.Channels * audioio.BytesPerSample
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			m.mu.Lock()
			m.buf = append(m.buf, input...)
			if over := len(m.buf) - limit; over > 0 {
				m.buf = m.buf[over:]
				m.overruns.Add(1)
			}
			m.mu.Unlock()
			m.cond.Broadcast()
		},
	}

	dev, err := malgo.InitDevice(mctx.Context, dc, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("device: open microphone: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("device: start microphone: %w", err)
	}

	m.mctx = mctx
	m.device = dev
	m.buf = m.buf[:0]
	m.running = true
	m.logger.Info("microphone opened", "sample_rate", m.cfg.SampleRate, "chunk_samples", m.cfg.ChunkSamples)
	return nil
}

// Read blocks until one full chunk is buffered.
func (m *Microphone) Read(ctx context.Context) (audioio.Frame, error) {
	want := m.cfg.ChunkBytes()

	stop := context.AfterFunc(ctx, func() {
		m.mu.Lock()
		m.cond.Broadcast()
		m.mu.Unlock()
	})
	defer stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.buf) < want && m.running && ctx.Err() == nil {
		m.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return audioio.Frame{}, err
	}
	if !m.running {
		return audioio.Frame{}, io.EOF
	}

	out := make([]byte, want)
	copy(out, m.buf)
	m.buf = m.buf[want:]

	m.chunksRead.Add(1)
	m.bytesRead.Add(int64(want))
	return audioio.NewCaptureFrame(out), nil
}

// Stop closes the capture device. Pending reads return io.EOF.
func (m *Microphone) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	dev, mctx := m.device, m.mctx
	m.device, m.mctx = nil, nil
	m.mu.Unlock()
	m.cond.Broadcast()

	if dev != nil {
		_ = dev.Stop()
		dev.Uninit()
	}
	if mctx != nil {
		_ = mctx.Uninit()
		mctx.Free()
	}
	m.logger.Info("microphone closed")
	return nil
}

// Config returns the audio configuration.
func (m *Microphone) Config() audioio.Config { return m.cfg }

// Name returns "malgo".
func (m *Microphone) Name() string { return "malgo" }

// Close stops capture and prevents restarts.
func (m *Microphone) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return m.Stop()
}

// Stats returns capture statistics.
func (m *Microphone) Stats() audioio.SourceStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	return audioio.SourceStats{
		ChunksRead: m.chunksRead.Load(),
		BytesRead:  m.bytesRead.Load(),
		Overruns:   m.overruns.Load(),
		Running:    running,
		Backend:    m.Name(),
	}
}

var _ audioio.SourceWithStats = (*Microphone)(nil)
