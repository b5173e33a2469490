package audioio

import (
	"context"
	"io"
)

// Sink plays audio to a speaker or other output device.
type Sink interface {
	// Start opens the device for playback.
	Start(ctx context.Context) error

	// Stop halts playback. It is safe to call Stop multiple times.
	Stop() error

	// Write plays a frame. It blocks while the device buffer is full, so a
	// caller writing in a loop is paced by playback.
	Write(ctx context.Context, frame Frame) error

	// Clear discards audio buffered in the device so an interrupted
	// response stops immediately.
	Clear() error

	// Config returns the current audio configuration.
	Config() Config

	// Name returns the backend name.
	Name() string

	// Close releases all resources.
	io.Closer
}

// SinkStats contains statistics about the audio sink.
type SinkStats struct {
	FramesWritten int64  `json:"frames_written"`
	BytesWritten  int64  `json:"bytes_written"`
	Clears        int64  `json:"clears"`
	Running       bool   `json:"running"`
	Backend       string `json:"backend"`
}

// SinkWithStats extends Sink with statistics.
type SinkWithStats interface {
	Sink
	Stats() SinkStats
}
