package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/voxbridge/voxbridge/internal/audiocodec"
	"github.com/voxbridge/voxbridge/internal/client"
)

// ffmpegMicSource captures mono PCM16 from the default microphone through an
// ffmpeg subprocess and hands it out in fixed capture blocks.
type ffmpegMicSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

func newFFmpegMicSource() (*ffmpegMicSource, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, &client.DeviceError{Kind: client.DeviceNotFound, Err: errors.New("ffmpeg not found in PATH")}
	}
	args, err := micArgs(runtime.GOOS)
	if err != nil {
		return nil, &client.DeviceError{Kind: client.DeviceNotFound, Err: err}
	}

	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, &client.DeviceError{Kind: client.DeviceBusy, Err: err}
	}
	return &ffmpegMicSource{cmd: cmd, stdout: stdout}, nil
}

func micArgs(goos string) ([]string, error) {
	switch goos {
	case "darwin":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "avfoundation", "-i", ":0",
			"-ac", "1", "-ar", fmt.Sprintf("%d", client.CaptureSampleRate),
			"-f", "s16le", "-",
		}, nil
	case "linux":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "pulse", "-i", "default",
			"-ac", "1", "-ar", fmt.Sprintf("%d", client.CaptureSampleRate),
			"-f", "s16le", "-",
		}, nil
	default:
		return nil, fmt.Errorf("mic capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}
}

// ReadBlock blocks until a full capture block is available.
func (m *ffmpegMicSource) ReadBlock() ([]float32, error) {
	raw := make([]byte, client.CaptureBlockSize*2)
	if _, err := io.ReadFull(m.stdout, raw); err != nil {
		return nil, &client.DeviceError{Kind: client.DeviceBusy, Err: fmt.Errorf("mic stream ended: %w", err)}
	}
	samples := make([]float32, client.CaptureBlockSize)
	for i := range samples {
		samples[i] = audiocodec.PCM16ToFloat(int16(binary.LittleEndian.Uint16(raw[i*2:])))
	}
	return samples, nil
}

func (m *ffmpegMicSource) Close() error {
	if m.cmd != nil && m.cmd.Process != nil {
		_ = m.cmd.Process.Kill()
		_ = m.cmd.Wait()
	}
	return nil
}

// ffplayPlayer streams agent PCM into an ffplay subprocess. ffplay plays
// bytes as they arrive; the scheduler's timeline is tracked against a
// monotonic clock so completion callbacks fire when the audio should have
// finished, and an optional recorder tees everything it plays.
type ffplayPlayer struct {
	mu       sync.Mutex
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	started  time.Time
	recorded []byte
	record   bool
	closed   bool
}

func newFFplayPlayer(record bool) (*ffplayPlayer, error) {
	if _, err := exec.LookPath("ffplay"); err != nil {
		return nil, errors.New("ffplay is required for playback (install ffmpeg/ffplay and ensure it is in PATH)")
	}
	cmd := exec.Command("ffplay",
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", client.PlaybackSampleRate),
		"-ac", "1",
		"-i", "pipe:0",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffplay stdin: %w", err)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffplay: %w", err)
	}
	return &ffplayPlayer{cmd: cmd, stdin: stdin, started: time.Now(), record: record}, nil
}

func (p *ffplayPlayer) Now() time.Duration {
	return time.Since(p.started)
}

func (p *ffplayPlayer) PlayAt(pcm []byte, startAt time.Duration, done func()) {
	p.mu.Lock()
	if !p.closed {
		if _, err := p.stdin.Write(pcm); err != nil {
			fmt.Printf("playback write failed: %v\n", err)
		}
		if p.record {
			p.recorded = append(p.recorded, pcm...)
		}
	}
	p.mu.Unlock()

	if done != nil {
		endAt := startAt + audiocodec.Duration(len(pcm), client.PlaybackSampleRate)
		delay := endAt - p.Now()
		if delay < 0 {
			delay = 0
		}
		time.AfterFunc(delay, done)
	}
}

// Recorded returns everything played so far, for WAV export.
func (p *ffplayPlayer) Recorded() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.recorded...)
}

func (p *ffplayPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	_ = p.stdin.Close()
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
		_ = p.cmd.Wait()
	}
	return nil
}
