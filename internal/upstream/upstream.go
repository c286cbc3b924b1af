// Package upstream wraps the realtime speech AI session consumed by the
// relay: audio frames in, transcription/audio/status events out.
package upstream

import (
	"context"
	"encoding/json"
)

// PCM16InputMimeType tags forwarded microphone frames with their rate.
const PCM16InputMimeType = "audio/pcm;rate=16000"

// OutputSampleRate is the rate of synthesized audio returned by the session.
const OutputSampleRate = 24000

// Config carries the per-connection session setup declared in init.
type Config struct {
	Model             string
	SystemInstruction string
	Voice             string
}

// Callbacks receive session lifecycle and event notifications. OnMessage is
// handed the vendor event marshaled verbatim; OnError is fatal for the
// owning connection; OnClose fires exactly once.
type Callbacks struct {
	OnOpen    func()
	OnMessage func(raw json.RawMessage)
	OnError   func(err error)
	OnClose   func()
}

// Session is one live upstream AI streaming session.
type Session interface {
	// SendRealtimeInput forwards one raw media chunk tagged with its mimetype.
	SendRealtimeInput(ctx context.Context, data []byte, mimeType string) error
	// Close tears the session down. Safe to call more than once.
	Close() error
}

// Dialer opens upstream sessions. Exactly one session exists per relay
// connection.
type Dialer interface {
	Connect(ctx context.Context, cfg Config, cb Callbacks) (Session, error)
}
