package audiocodec

import (
	"encoding/binary"
	"io"
	"os"
)

// wavHeaderSize is the canonical 44-byte header for a single-chunk PCM file.
const wavHeaderSize = 44

// defaultWAVSampleRate matches the synthesized agent audio rate.
const defaultWAVSampleRate = 24000

// wavHeader lays out the container header for mono 16-bit little-endian PCM.
func wavHeader(dataLen, sampleRate int) [wavHeaderSize]byte {
	const (
		channels      = 1
		bitsPerSample = 16
		blockAlign    = channels * bitsPerSample / 8
	)
	byteRate := sampleRate * blockAlign

	var h [wavHeaderSize]byte
	copy(h[0:], "RIFF")
	binary.LittleEndian.PutUint32(h[4:], uint32(36+dataLen))
	copy(h[8:], "WAVE")
	copy(h[12:], "fmt ")
	binary.LittleEndian.PutUint32(h[16:], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(h[20:], 1)  // PCM
	binary.LittleEndian.PutUint16(h[22:], channels)
	binary.LittleEndian.PutUint32(h[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(h[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(h[32:], blockAlign)
	binary.LittleEndian.PutUint16(h[34:], bitsPerSample)
	copy(h[36:], "data")
	binary.LittleEndian.PutUint32(h[40:], uint32(dataLen))
	return h
}

// EncodeWAVPCM16LE wraps raw PCM16LE mono samples in a WAV container.
func EncodeWAVPCM16LE(pcm []byte, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		sampleRate = defaultWAVSampleRate
	}
	header := wavHeader(len(pcm), sampleRate)
	out := make([]byte, 0, wavHeaderSize+len(pcm))
	out = append(out, header[:]...)
	return append(out, pcm...), nil
}

// WriteWAVPCM16LETo streams the container to out.
func WriteWAVPCM16LETo(out io.Writer, pcm []byte, sampleRate int) error {
	encoded, err := EncodeWAVPCM16LE(pcm, sampleRate)
	if err != nil {
		return err
	}
	_, err = out.Write(encoded)
	return err
}

// WriteWAVPCM16LEFile writes the container to path, used for agent-audio
// call recordings.
func WriteWAVPCM16LEFile(path string, pcm []byte, sampleRate int) error {
	encoded, err := EncodeWAVPCM16LE(pcm, sampleRate)
	if err != nil {
		return err
	}
	return os.WriteFile(path, encoded, 0o644)
}
