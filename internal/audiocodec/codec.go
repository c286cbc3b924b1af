// Package audiocodec holds the pure audio conversion helpers shared by the
// relay and the call client: base64 transport encoding, PCM16/float sample
// mapping, and frame de-interleaving. Everything here is stateless.
package audiocodec

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"
)

// EncodeBinary maps raw bytes to their text-safe transport representation.
func EncodeBinary(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBinary is the exact inverse of EncodeBinary. Malformed input is a
// format error.
func DecodeBinary(text string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("decode audio payload: %w", err)
	}
	return data, nil
}

// PCM16ToFloat maps one signed 16-bit sample into [-1.0, 1.0).
func PCM16ToFloat(sample int16) float32 {
	return float32(sample) / 32768.0
}

// FloatToPCM16 maps one float sample to signed 16-bit by truncation. Callers
// must pre-clip input to [-1, 1] or accept wraparound.
func FloatToPCM16(sample float32) int16 {
	return int16(sample * 32768.0)
}

// FloatsToPCM16Bytes quantizes a float block into little-endian PCM16 bytes.
func FloatsToPCM16Bytes(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(FloatToPCM16(s)))
	}
	return out
}

// DecodeAudioFrame de-interleaves little-endian PCM16 bytes into per-channel
// float arrays. Trailing bytes short of a complete frame are dropped.
func DecodeAudioFrame(data []byte, channelCount int) [][]float32 {
	if channelCount <= 0 {
		channelCount = 1
	}
	sampleCount := len(data) / 2
	frameCount := sampleCount / channelCount

	channels := make([][]float32, channelCount)
	for ch := range channels {
		channels[ch] = make([]float32, frameCount)
	}
	for i := 0; i < frameCount; i++ {
		for ch := 0; ch < channelCount; ch++ {
			raw := binary.LittleEndian.Uint16(data[(i*channelCount+ch)*2:])
			channels[ch][i] = PCM16ToFloat(int16(raw))
		}
	}
	return channels
}

// Duration reports the playback length of a mono PCM16 byte buffer.
func Duration(pcmLen, sampleRate int) time.Duration {
	if sampleRate <= 0 || pcmLen <= 0 {
		return 0
	}
	samples := pcmLen / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
