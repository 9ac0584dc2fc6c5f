package audio

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sinePCM generates little-endian PCM-16 mono samples of a sine tone
func sinePCM(sampleRate int, seconds, frequency float64) []byte {
	numSamples := int(float64(sampleRate) * seconds)
	pcm := make([]byte, numSamples*2)
	for i := 0; i < numSamples; i++ {
		t := float64(i) / float64(sampleRate)
		sample := int16(16383.0 * math.Sin(2*math.Pi*frequency*t))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(sample))
	}
	return pcm
}

func TestEncodeWAV(t *testing.T) {
	sampleRate := 16000
	pcm := sinePCM(sampleRate, 0.1, 440)

	wavData, err := EncodeWAV(pcm, sampleRate, 1)
	require.NoError(t, err)

	assert.Len(t, wavData, 44+len(pcm))
	assert.Equal(t, pcm, wavData[44:])
	require.NoError(t, ValidateWAV(wavData))

	info, err := GetWAVInfo(wavData)
	require.NoError(t, err)
	assert.Equal(t, uint32(sampleRate), info.SampleRate)
	assert.Equal(t, uint16(1), info.Channels)
	assert.Equal(t, uint16(16), info.BitsPerSample)
	assert.Equal(t, uint32(len(pcm)), info.DataSize)
	assert.InDelta(t, 0.1, info.Duration, 0.001)
}

func TestEncodeWAVStereo(t *testing.T) {
	pcm := make([]byte, 48000*4) // one second of 48kHz stereo

	wavData, err := EncodeWAV(pcm, 48000, 2)
	require.NoError(t, err)

	info, err := GetWAVInfo(wavData)
	require.NoError(t, err)
	assert.Equal(t, uint16(2), info.Channels)
	assert.Equal(t, uint32(48000), info.NumFrames)
	assert.InDelta(t, 1.0, info.Duration, 0.001)
}

func TestEncodeWAVInvalidInput(t *testing.T) {
	tests := []struct {
		name       string
		pcm        []byte
		sampleRate int
		channels   int
	}{
		{"empty", nil, 16000, 1},
		{"zero sample rate", []byte{0, 0}, 0, 1},
		{"negative sample rate", []byte{0, 0}, -1000, 1},
		{"zero channels", []byte{0, 0}, 16000, 0},
		{"partial frame", []byte{0, 0, 0}, 16000, 1},
		{"partial stereo frame", []byte{0, 0}, 16000, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeWAV(tt.pcm, tt.sampleRate, tt.channels)
			assert.Error(t, err)
		})
	}
}

func TestValidateWAV(t *testing.T) {
	assert.Error(t, ValidateWAV([]byte{1, 2, 3}))

	invalidWAV := make([]byte, 50)
	copy(invalidWAV[0:4], "FAKE")
	assert.Error(t, ValidateWAV(invalidWAV))
}

func TestGetWAVInfoStreamedHeader(t *testing.T) {
	// Recorders writing to a pipe cannot seek back, so the data size is a placeholder.
	wavData, err := EncodeWAV(make([]byte, 16000*2), 16000, 1)
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(wavData[40:44], 0x7fffffff)

	info, err := GetWAVInfo(wavData)
	require.NoError(t, err)
	assert.Equal(t, uint32(16000*2), info.DataSize)
	assert.InDelta(t, 1.0, info.Duration, 0.001)
}

func TestGetWAVInfoRejectsNonWAV(t *testing.T) {
	_, err := GetWAVInfo([]byte("definitely not a riff file, just some opaque webm bytes"))
	assert.Error(t, err)
}
