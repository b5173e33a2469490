// Package audioio provides audio capture and playback for voice sessions.
//
// Two backends are available:
//   - device - the host microphone and speaker (registered by audioio/device)
//   - mock - scripted or synthetic audio for tests and CI
//
// Capture and playback formats are fixed by the Gemini Live protocol:
// 16 kHz in, 24 kHz out, mono signed 16-bit little-endian PCM, moved in
// chunks of 1024 samples.
package audioio

import (
	"fmt"
	"time"
)

// Backend names an audio backend.
type Backend string

const (
	// BackendDevice uses the host audio devices.
	BackendDevice Backend = "device"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// Protocol constants.
const (
	CaptureSampleRate  = 16000
	PlaybackSampleRate = 24000
	ChunkSamples       = 1024
	BytesPerSample     = 2
	MIMEPCM            = "audio/pcm"
)

// Config holds audio configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	Backend Backend `json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	SampleRate int `json:"sample_rate"`

	// Channels is the number of audio channels.
	// Default: 1 (mono)
	Channels int `json:"channels"`

	// ChunkSamples is the number of samples per channel in one read.
	ChunkSamples int `json:"chunk_samples"`

	// Device is the backend-specific device identifier. Empty selects
	// the system default.
	Device string `json:"device"`
}

// CaptureConfig returns the microphone format.
func CaptureConfig(backend Backend) Config {
	return Config{
		Backend:      backend,
		SampleRate:   CaptureSampleRate,
		Channels:     1,
		ChunkSamples: ChunkSamples,
	}
}

// PlaybackConfig returns the speaker format.
func PlaybackConfig(backend Backend) Config {
	return Config{
		Backend:      backend,
		SampleRate:   PlaybackSampleRate,
		Channels:     1,
		ChunkSamples: ChunkSamples,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.ChunkSamples <= 0 {
		return fmt.Errorf("chunk_samples must be positive, got %d", c.ChunkSamples)
	}
	return nil
}

// ChunkBytes returns the size of one chunk in bytes.
func (c *Config) ChunkBytes() int {
	return c.ChunkSamples * c.Channels * BytesPerSample
}

// ChunkDuration returns how much audio one chunk holds.
func (c *Config) ChunkDuration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(c.ChunkSamples) * time.Second / time.Duration(c.SampleRate)
}

// BytesDuration returns the playback length of n bytes in this format.
func (c *Config) BytesDuration(n int) time.Duration {
	perSecond := c.SampleRate * c.Channels * BytesPerSample
	if perSecond == 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(perSecond)
}
