package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/teslashibe/go-waiter/pkg/audioio"
	"github.com/teslashibe/go-waiter/pkg/live"
	"github.com/teslashibe/go-waiter/pkg/protocol"
)

// sendRelay forwards outbound frames to the stream in FIFO order.
func (c *Coordinator) sendRelay(ctx context.Context, s *SessionContext) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-s.outbound:
			if err := s.stream.SendAudio(ctx, f); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("send audio: %w", err)
			}
			c.metrics.markAudioOut()
		}
	}
}

// receiveRelay consumes the stream. Function calls are handled inline so
// a result is sent before the next unit is read.
func (c *Coordinator) receiveRelay(ctx context.Context, s *SessionContext) error {
	var heard, said strings.Builder
	flushHeard := func() {
		if t := strings.TrimSpace(heard.String()); t != "" {
			c.userInput(t)
		}
		heard.Reset()
	}
	flushSaid := func() {
		if t := strings.TrimSpace(said.String()); t != "" {
			c.botResponse(t)
		}
		said.Reset()
	}

	for {
		u, err := s.stream.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) || errors.Is(err, live.ErrStreamClosed) {
				flushHeard()
				flushSaid()
				return errStreamEnded
			}
			return fmt.Errorf("receive: %w", err)
		}

		switch u.Kind {
		case live.UnitAudio:
			c.metrics.markAudioIn()
			flushHeard()
			mime := u.MIMEType
			if mime == "" {
				mime = audioio.MIMEPCM
			}
			s.inbound.Put(audioio.Frame{Data: u.Audio, MIMEType: mime, Direction: audioio.Playback})

		case live.UnitText:
			c.metrics.markOutput()
			flushHeard()
			c.botResponse(u.Text)

		case live.UnitInputTranscript:
			c.metrics.markInput()
			heard.WriteString(u.Text)

		case live.UnitOutputTranscript:
			c.metrics.markOutput()
			flushHeard()
			said.WriteString(u.Text)

		case live.UnitFunctionCall:
			flushHeard()
			if u.Call == nil {
				continue
			}
			c.metrics.markCall()
			if err := c.handleCall(ctx, s, *u.Call); err != nil {
				return err
			}

		case live.UnitInterrupted:
			flushHeard()
			flushSaid()
			c.turnDone(true)
			if n := s.inbound.Drain(); n > 0 {
				c.log.Debug("interrupted, dropped playback", "frames", n)
			}
			if s.sink != nil {
				s.sink.Clear()
			}

		case live.UnitTurnComplete:
			flushHeard()
			flushSaid()
			c.turnDone(false)
			s.inbound.Drain()
		}
	}
}

func (c *Coordinator) turnDone(interrupted bool) {
	if t, ok := c.metrics.markDone(interrupted); ok {
		c.log.Debug("turn done",
			"latency", t.Format(),
			"audio_in", t.AudioChunksIn,
			"audio_out", t.AudioChunksOut,
			"calls", t.FunctionCalls,
			"interrupted", interrupted,
		)
	}
}

// handleCall dispatches one function call and sends its result back on
// the stream.
func (c *Coordinator) handleCall(ctx context.Context, s *SessionContext, call live.FunctionCall) error {
	c.emit(protocol.NewFunctionCallMessage(call.Name, call.Args, c.now()))

	res, err := c.opts.Dispatcher.Dispatch(ctx, call)
	if res.Name == "" {
		res.Name = call.Name
	}
	if res.ID == "" {
		res.ID = call.ID
	}
	if res.Response == nil {
		res.Response = map[string]any{}
	}

	if err != nil {
		text, ok := res.Response["result"].(string)
		if !ok || text == "" {
			text = err.Error()
			res.Response["result"] = text
		}
		c.emit(protocol.NewFunctionErrorMessage(call.Name, text, c.now()))
	} else {
		c.emit(protocol.NewFunctionResultMessage(call.Name, res.Response["result"], c.now()))
	}

	if err := s.stream.SendFunctionResult(ctx, res); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("send function result: %w", err)
	}
	return nil
}

// playbackRelay writes inbound frames to the speaker in arrival order.
// Without a speaker, frames are consumed and dropped.
func (c *Coordinator) playbackRelay(ctx context.Context, s *SessionContext) error {
	for {
		f, err := s.inbound.Get(ctx)
		if err != nil {
			return nil
		}
		if s.sink == nil {
			continue
		}
		if err := s.sink.Write(ctx, f); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn("playback write failed", "error", err)
		}
	}
}

// captureRelay reads microphone chunks into the outbound queue. A full
// queue blocks the reader; frames are never dropped.
func (c *Coordinator) captureRelay(ctx context.Context, s *SessionContext, src audioio.Source, done chan struct{}) {
	defer close(done)
	for {
		f, err := src.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			c.captureFailed(s, src, err)
			return
		}
		f.Direction = audioio.Capture
		if f.MIMEType == "" {
			f.MIMEType = audioio.MIMEPCM
		}
		select {
		case s.outbound <- f:
		case <-ctx.Done():
			return
		}
	}
}

// captureFailed detaches a failed microphone. The session keeps running.
func (c *Coordinator) captureFailed(s *SessionContext, src audioio.Source, err error) {
	c.mu.Lock()
	owned := s.source == src
	if owned {
		s.captureCancel()
		s.source, s.captureCancel, s.captureDone = nil, nil, nil
		if c.sess == s && c.state == StateListening {
			c.state = StateConnected
		}
	}
	c.mu.Unlock()
	if !owned {
		return
	}

	src.Close()
	c.log.Warn("microphone failed", "error", err)
	c.status(statusMicError + err.Error())
}
