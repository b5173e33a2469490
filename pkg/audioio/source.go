package audioio

import (
	"context"
	"io"
)

// Source captures audio from a microphone or other input device.
type Source interface {
	// Start opens the device and begins capture.
	Start(ctx context.Context) error

	// Stop halts capture. It is safe to call Stop multiple times.
	Stop() error

	// Read blocks until the next chunk is available and returns it as a
	// capture frame. Returns io.EOF once the source is stopped.
	Read(ctx context.Context) (Frame, error)

	// Config returns the current audio configuration.
	Config() Config

	// Name returns the backend name.
	Name() string

	// Close releases all resources.
	io.Closer
}

// SourceStats contains statistics about the audio source.
type SourceStats struct {
	ChunksRead int64  `json:"chunks_read"`
	BytesRead  int64  `json:"bytes_read"`
	Overruns   int64  `json:"overruns"`
	Running    bool   `json:"running"`
	Backend    string `json:"backend"`
}

// SourceWithStats extends Source with statistics.
type SourceWithStats interface {
	Source
	Stats() SourceStats
}
