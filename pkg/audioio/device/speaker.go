package device

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/teslashibe/go-waiter/pkg/audioio"
)

// maxPlaybackBacklog is how far Write may run ahead of the device before
// it blocks.
const maxPlaybackBacklog = 200 * time.Millisecond

// oto allows a single context per process.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoRate int
	otoErr  error
)

func sharedContext(cfg audioio.Config) (*oto.Context, error) {
	otoOnce.Do(func() {
		var ready chan struct{}
		otoCtx, ready, otoErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   cfg.SampleRate,
			ChannelCount: cfg.Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   100 * time.Millisecond,
		})
		if otoErr == nil {
			<-ready
			otoRate = cfg.SampleRate
		}
	})
	if otoErr != nil {
		return nil, fmt.Errorf("device: open speaker: %w", otoErr)
	}
	if otoRate != cfg.SampleRate {
		return nil, fmt.Errorf("device: speaker already opened at %d Hz, cannot reopen at %d Hz", otoRate, cfg.SampleRate)
	}
	return otoCtx, nil
}

// Speaker plays PCM16 through the default output device. oto pulls audio
// through Read; Write blocks while more than maxPlaybackBacklog is queued.
type Speaker struct {
	cfg    audioio.Config
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	buf     []byte
	ctx     *oto.Context
	player  *oto.Player
	running bool
	closed  bool

	framesWritten atomic.Int64
	bytesWritten  atomic.Int64
	clears        atomic.Int64
}

// NewSpeaker creates an unopened speaker.
func NewSpeaker(cfg audioio.Config, logger *slog.Logger) *Speaker {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Speaker{cfg: cfg, logger: logger}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start opens the output device.
func (s *Speaker) Start(ctx context.Context) error {
	c, err := sharedContext(s.cfg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return io.ErrClosedPipe
	}
	s.ctx = c
	s.running = true
	s.logger.Info("speaker opened", "sample_rate", s.cfg.SampleRate)
	return nil
}

// Write queues a frame and blocks while the backlog is over the limit.
func (s *Speaker) Write(ctx context.Context, frame audioio.Frame) error {
	limit := int(int64(s.cfg.SampleRate*s.cfg.Channels*audioio.BytesPerSample) * int64(maxPlaybackBacklog) / int64(time.Second))

	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return io.ErrClosedPipe
	}

	s.buf = append(s.buf, frame.Data...)
	if s.player == nil {
		s.player = s.ctx.NewPlayer(s)
		s.player.Play()
	}
	s.cond.Broadcast()
	s.framesWritten.Add(1)
	s.bytesWritten.Add(int64(len(frame.Data)))

	for len(s.buf) > limit && s.running && ctx.Err() == nil {
		s.cond.Wait()
	}
	return ctx.Err()
}

// Read implements io.Reader for the oto player.
func (s *Speaker) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.buf) == 0 && s.running {
		s.cond.Wait()
	}
	if len(s.buf) == 0 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	s.cond.Broadcast()
	return n, nil
}

// Clear drops queued audio and resets the player so nothing stale plays.
func (s *Speaker) Clear() error {
	s.mu.Lock()
	s.buf = s.buf[:0]
	player := s.player
	s.player = nil
	s.mu.Unlock()
	s.cond.Broadcast()
	s.clears.Add(1)

	if player != nil {
		player.Pause()
		player.Reset()
		return player.Close()
	}
	return nil
}

// Stop halts playback.
func (s *Speaker) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	player := s.player
	s.player = nil
	s.buf = nil
	s.mu.Unlock()
	s.cond.Broadcast()

	if player != nil {
		return player.Close()
	}
	s.logger.Info("speaker closed")
	return nil
}

// Config returns the audio configuration.
func (s *Speaker) Config() audioio.Config { return s.cfg }

// Name returns "oto".
func (s *Speaker) Name() string { return "oto" }

// Close stops playback and prevents restarts.
func (s *Speaker) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.Stop()
}

// Stats returns playback statistics.
func (s *Speaker) Stats() audioio.SinkStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return audioio.SinkStats{
		FramesWritten: s.framesWritten.Load(),
		BytesWritten:  s.bytesWritten.Load(),
		Clears:        s.clears.Load(),
		Running:       running,
		Backend:       s.Name(),
	}
}

var _ audioio.SinkWithStats = (*Speaker)(nil)
