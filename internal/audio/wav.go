package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const wavHeaderSize = 44

// WAVHeader represents the header structure of a canonical PCM WAV file
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

// EncodeWAV frames raw little-endian PCM-16 bytes with a WAV header
func EncodeWAV(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio data")
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	if channels < 1 {
		return nil, fmt.Errorf("channel count must be positive, got %d", channels)
	}

	bitsPerSample := uint16(16)
	blockAlign := uint16(channels) * bitsPerSample / 8
	if len(pcm)%int(blockAlign) != 0 {
		return nil, fmt.Errorf("audio data length %d is not a multiple of frame size %d", len(pcm), blockAlign)
	}

	dataSize := uint32(len(pcm))
	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(blockAlign),
		BlockAlign:    blockAlign,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(pcm)))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	buf.Write(pcm)

	return buf.Bytes(), nil
}

// ValidateWAV validates a WAV file format without decoding the audio data
func ValidateWAV(data []byte) error {
	if len(data) < wavHeaderSize {
		return fmt.Errorf("WAV data too short: need at least %d bytes, got %d", wavHeaderSize, len(data))
	}

	if string(data[0:4]) != "RIFF" {
		return fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(data[8:12]) != "WAVE" {
		return fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	if string(data[12:16]) != "fmt " {
		return fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	if string(data[36:40]) != "data" {
		return fmt.Errorf("invalid WAV file: missing data chunk")
	}

	return nil
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

// GetWAVInfo extracts metadata from a WAV file. Streamed recordings carry a
// placeholder data size, so the size is clamped to the bytes actually present.
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	if err := ValidateWAV(data); err != nil {
		return nil, err
	}

	var header WAVHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if header.SampleRate == 0 || header.BlockAlign == 0 {
		return nil, fmt.Errorf("invalid WAV header: sample rate %d, block align %d",
			header.SampleRate, header.BlockAlign)
	}

	dataSize := header.Subchunk2Size
	if available := uint32(len(data) - wavHeaderSize); dataSize > available {
		dataSize = available
	}

	numFrames := dataSize / uint32(header.BlockAlign)

	return &WAVInfo{
		SampleRate:    header.SampleRate,
		Channels:      header.NumChannels,
		BitsPerSample: header.BitsPerSample,
		Duration:      float64(numFrames) / float64(header.SampleRate),
		DataSize:      dataSize,
		NumFrames:     numFrames,
	}, nil
}
