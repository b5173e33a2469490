package audioio

import "time"

// Direction tells whether a frame was captured locally or received for
// playback.
type Direction int

const (
	Capture Direction = iota
	Playback
)

func (d Direction) String() string {
	if d == Capture {
		return "capture"
	}
	return "playback"
}

// Frame is one buffer of raw PCM moving through a session. Frames are
// produced once and consumed once.
type Frame struct {
	Data      []byte
	MIMEType  string
	Direction Direction
}

// NewCaptureFrame wraps microphone bytes as an outbound frame.
func NewCaptureFrame(data []byte) Frame {
	return Frame{Data: data, MIMEType: MIMEPCM, Direction: Capture}
}

// NewPlaybackFrame wraps received bytes as an inbound frame.
func NewPlaybackFrame(data []byte) Frame {
	return Frame{Data: data, MIMEType: MIMEPCM, Direction: Playback}
}

// Len returns the payload size in bytes.
func (f Frame) Len() int {
	return len(f.Data)
}

// Duration returns the frame's length at sampleRate, assuming mono PCM16.
func (f Frame) Duration(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Data)/BytesPerSample) * time.Second / time.Duration(sampleRate)
}

// AudioChunk is a frame decoded into samples.
type AudioChunk struct {
	// Samples contains PCM16 audio samples.
	Samples []int16

	// SampleRate is the sample rate of this chunk.
	SampleRate int

	// Channels is the number of channels in this chunk.
	Channels int
}

// Bytes returns the raw little-endian bytes of the chunk.
func (c *AudioChunk) Bytes() []byte {
	buf := make([]byte, len(c.Samples)*2)
	for i, s := range c.Samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}

// FromBytes populates the chunk from raw PCM16 bytes.
func (c *AudioChunk) FromBytes(data []byte, sampleRate, channels int) {
	c.SampleRate = sampleRate
	c.Channels = channels
	c.Samples = make([]int16, len(data)/2)
	for i := range c.Samples {
		c.Samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
}

// Peak returns the largest absolute sample value, 0 to 32768.
func (c *AudioChunk) Peak() int {
	peak := 0
	for _, s := range c.Samples {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}
