package audio

import (
	"encoding/binary"
	"fmt"
)

// Decoder turns the concatenated container produced by a capture stream into PCM
// at the device's native sample rate.
type Decoder interface {
	Decode(container []byte, sampleRate, channels int) (*PCMBuffer, error)
}

// DecodeError reports that captured audio could not be converted to PCM.
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s audio: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// RawPCMDecoder decodes headerless interleaved signed 16-bit little-endian PCM,
// the format recorders emit with "-t raw -f S16_LE". A trailing partial frame is dropped.
type RawPCMDecoder struct{}

func (RawPCMDecoder) Decode(container []byte, sampleRate, channels int) (*PCMBuffer, error) {
	if channels < 1 {
		return nil, &DecodeError{Format: "raw", Err: fmt.Errorf("invalid channel count %d", channels)}
	}

	frameSize := channels * bytesPerSample
	if len(container) < frameSize {
		return nil, &DecodeError{Format: "raw", Err: fmt.Errorf("need at least one %d-byte frame, got %d bytes", frameSize, len(container))}
	}

	pcm, err := NewPCMBuffer(sampleRate, deinterleave(container, channels))
	if err != nil {
		return nil, &DecodeError{Format: "raw", Err: err}
	}
	return pcm, nil
}

// WAVDecoder decodes a 16-bit PCM RIFF/WAVE stream. The container must match the
// sample rate and channel count the device reported; no resampling is done.
type WAVDecoder struct{}

func (WAVDecoder) Decode(container []byte, sampleRate, channels int) (*PCMBuffer, error) {
	header, data, err := ParseWAV(container)
	if err != nil {
		return nil, &DecodeError{Format: "wav", Err: err}
	}

	switch {
	case header.AudioFormat != 1:
		return nil, &DecodeError{Format: "wav", Err: fmt.Errorf("unsupported audio format: %d (only PCM is supported)", header.AudioFormat)}
	case header.BitsPerSample != bitsPerSample:
		return nil, &DecodeError{Format: "wav", Err: fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", header.BitsPerSample)}
	case int(header.SampleRate) != sampleRate:
		return nil, &DecodeError{Format: "wav", Err: fmt.Errorf("sample rate %d does not match device rate %d", header.SampleRate, sampleRate)}
	case int(header.NumChannels) != channels:
		return nil, &DecodeError{Format: "wav", Err: fmt.Errorf("channel count %d does not match device channels %d", header.NumChannels, channels)}
	}

	frameSize := channels * bytesPerSample
	if len(data) < frameSize {
		return nil, &DecodeError{Format: "wav", Err: fmt.Errorf("no audio data found")}
	}

	pcm, err := NewPCMBuffer(sampleRate, deinterleave(data, channels))
	if err != nil {
		return nil, &DecodeError{Format: "wav", Err: err}
	}
	return pcm, nil
}

func deinterleave(data []byte, channels int) [][]float32 {
	frameSize := channels * bytesPerSample
	frames := len(data) / frameSize

	out := make([][]float32, channels)
	for ch := range out {
		out[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		base := i * frameSize
		for ch := 0; ch < channels; ch++ {
			v := int16(binary.LittleEndian.Uint16(data[base+ch*bytesPerSample:]))
			out[ch][i] = float32(v) / 32768
		}
	}
	return out
}
