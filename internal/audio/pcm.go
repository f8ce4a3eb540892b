package audio

import (
	"fmt"
	"time"
)

// PCMBuffer holds decoded linear samples, one slice per channel, normalized to [-1, 1].
// It is immutable after creation: accessors hand out copies.
type PCMBuffer struct {
	sampleRate int
	channels   [][]float32
}

// NewPCMBuffer copies the given per-channel samples into a new buffer.
// Every channel must hold the same number of frames.
func NewPCMBuffer(sampleRate int, channels [][]float32) (*PCMBuffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("pcm buffer needs at least one channel")
	}

	frames := len(channels[0])
	copied := make([][]float32, len(channels))
	for i, ch := range channels {
		if len(ch) != frames {
			return nil, fmt.Errorf("channel %d has %d frames, want %d", i, len(ch), frames)
		}
		copied[i] = append([]float32(nil), ch...)
	}

	return &PCMBuffer{sampleRate: sampleRate, channels: copied}, nil
}

// SampleRate returns the sample rate in Hz.
func (b *PCMBuffer) SampleRate() int {
	return b.sampleRate
}

// NumChannels returns the number of channels.
func (b *PCMBuffer) NumChannels() int {
	return len(b.channels)
}

// Len returns the number of frames (samples per channel).
func (b *PCMBuffer) Len() int {
	if len(b.channels) == 0 {
		return 0
	}
	return len(b.channels[0])
}

// Channel returns a copy of channel i.
func (b *PCMBuffer) Channel(i int) []float32 {
	return append([]float32(nil), b.channels[i]...)
}

// Duration returns the playback length of the buffer.
func (b *PCMBuffer) Duration() time.Duration {
	return time.Duration(b.Len()) * time.Second / time.Duration(b.sampleRate)
}
