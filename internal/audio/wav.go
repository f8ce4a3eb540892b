package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

const (
	// WAVHeaderSize is the size of the canonical RIFF/WAVE header written by EncodeWAV.
	WAVHeaderSize = 44

	bitsPerSample  = 16
	bytesPerSample = bitsPerSample / 8
	sampleScale    = 0x7FFF
)

// WAVHeader represents the header structure of a WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// EncodeWAV encodes normalized float samples into a 16-bit PCM WAV file.
//
// The data chunk is sized for declaredChannels interleaved channels
// (len(samples) * 2 * declaredChannels bytes) and the header declares the same
// channel count. Samples are written back to back from the start of the data chunk;
// any remaining space is left zeroed. With declaredChannels == 1 this is an exact mono
// file. With declaredChannels == 2 it reproduces the legacy recorder output: a
// "stereo" file holding the mono samples in its first half and silence after.
func EncodeWAV(samples []float32, sampleRate, declaredChannels int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if declaredChannels < 1 || declaredChannels > math.MaxUint16 {
		return nil, fmt.Errorf("declared channel count out of range: %d", declaredChannels)
	}

	dataSize := len(samples) * bytesPerSample * declaredChannels
	if uint64(dataSize)+WAVHeaderSize-8 > math.MaxUint32 {
		return nil, fmt.Errorf("audio too long for a WAV container: %d samples", len(samples))
	}

	header := newWAVHeader(uint32(sampleRate), uint16(declaredChannels), uint32(dataSize))

	buf := bytes.NewBuffer(make([]byte, 0, WAVHeaderSize+dataSize))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	data := make([]byte, dataSize)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(data[i*bytesPerSample:], uint16(quantize(sample)))
	}
	buf.Write(data)

	return buf.Bytes(), nil
}

func newWAVHeader(sampleRate uint32, channels uint16, dataSize uint32) WAVHeader {
	return WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     WAVHeaderSize - 8 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   channels,
		SampleRate:    sampleRate,
		ByteRate:      sampleRate * uint32(channels) * bytesPerSample,
		BlockAlign:    channels * bytesPerSample,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

// quantize clamps to [-1, 1] and scales to int16, truncating toward zero.
func quantize(sample float32) int16 {
	if sample != sample {
		return 0
	}
	if sample > 1 {
		sample = 1
	} else if sample < -1 {
		sample = -1
	}
	return int16(sample * sampleScale)
}

// WAVInfo holds basic information about a WAV file
type WAVInfo struct {
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
	NumFrames     uint32  `json:"num_frames"`
}

// ParseWAV locates the fmt and data chunks of a RIFF/WAVE file and returns the header
// describing them together with the sample bytes. Extra chunks (LIST, fact, ...) are
// skipped. A data chunk whose declared size runs past the end of the buffer, as written
// by recorders streaming to a pipe, is truncated to the bytes actually present.
func ParseWAV(data []byte) (WAVHeader, []byte, error) {
	var header WAVHeader
	if len(data) < 12 {
		return header, nil, fmt.Errorf("WAV data too short: need at least 12 bytes, got %d", len(data))
	}
	if string(data[0:4]) != "RIFF" {
		return header, nil, fmt.Errorf("invalid WAV file: missing RIFF header")
	}
	if string(data[8:12]) != "WAVE" {
		return header, nil, fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	copy(header.ChunkID[:], data[0:4])
	header.ChunkSize = binary.LittleEndian.Uint32(data[4:8])
	copy(header.Format[:], data[8:12])

	var (
		haveFmt bool
		samples []byte
	)
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return header, nil, fmt.Errorf("invalid WAV file: truncated fmt chunk")
			}
			copy(header.Subchunk1ID[:], id)
			header.Subchunk1Size = uint32(size)
			header.AudioFormat = binary.LittleEndian.Uint16(data[body:])
			header.NumChannels = binary.LittleEndian.Uint16(data[body+2:])
			header.SampleRate = binary.LittleEndian.Uint32(data[body+4:])
			header.ByteRate = binary.LittleEndian.Uint32(data[body+8:])
			header.BlockAlign = binary.LittleEndian.Uint16(data[body+12:])
			header.BitsPerSample = binary.LittleEndian.Uint16(data[body+14:])
			haveFmt = true
		case "data":
			if !haveFmt {
				return header, nil, fmt.Errorf("invalid WAV file: data chunk before fmt chunk")
			}
			end := body + size
			if size < 0 || end > len(data) {
				end = len(data)
			}
			copy(header.Subchunk2ID[:], id)
			header.Subchunk2Size = uint32(end - body)
			samples = data[body:end]
			return header, samples, nil
		}

		// chunks are padded to an even size
		next := body + size + size%2
		if next <= offset {
			break
		}
		offset = next
	}

	if !haveFmt {
		return header, nil, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}
	return header, nil, fmt.Errorf("invalid WAV file: missing data chunk")
}

// GetWAVInfo extracts metadata from a WAV file
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	header, _, err := ParseWAV(data)
	if err != nil {
		return nil, err
	}
	if header.SampleRate == 0 {
		return nil, fmt.Errorf("invalid sample rate: 0")
	}
	if header.BlockAlign == 0 {
		return nil, fmt.Errorf("invalid block align: 0")
	}

	numFrames := header.Subchunk2Size / uint32(header.BlockAlign)
	duration := float64(numFrames) / float64(header.SampleRate)

	return &WAVInfo{
		SampleRate:    header.SampleRate,
		Channels:      header.NumChannels,
		BitsPerSample: header.BitsPerSample,
		Duration:      duration,
		DataSize:      header.Subchunk2Size,
		NumFrames:     numFrames,
	}, nil
}

// DurationTime returns Duration as a time.Duration.
func (i *WAVInfo) DurationTime() time.Duration {
	return time.Duration(i.Duration * float64(time.Second))
}
