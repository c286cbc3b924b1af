package client

import (
	"fmt"

	"github.com/voxbridge/voxbridge/internal/audiocodec"
)

// Capture constants are wire-protocol constants shared with the relay.
const (
	CaptureSampleRate = 16000
	CaptureBlockSize  = 4096
)

// DeviceErrorKind classifies microphone acquisition failures. Each kind is
// surfaced to the user as a distinct message and never silently retried.
type DeviceErrorKind string

const (
	DevicePermissionDenied DeviceErrorKind = "permission_denied"
	DeviceNotFound         DeviceErrorKind = "not_found"
	DeviceBusy             DeviceErrorKind = "busy"
)

type DeviceError struct {
	Kind DeviceErrorKind
	Err  error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio device %s: %v", e.Kind, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Message returns the user-facing explanation for this failure.
func (e *DeviceError) Message() string {
	switch e.Kind {
	case DevicePermissionDenied:
		return "Microphone access was denied. Allow microphone access and try again."
	case DeviceNotFound:
		return "No microphone was found. Connect one and try again."
	case DeviceBusy:
		return "The microphone is in use by another application."
	default:
		return "The microphone could not be opened."
	}
}

// Source delivers fixed-size mono sample blocks from the microphone at
// CaptureSampleRate. ReadBlock blocks until CaptureBlockSize samples are
// available; acquisition failures are returned as *DeviceError.
type Source interface {
	ReadBlock() ([]float32, error)
	Close() error
}

// EncodeBlock converts one capture block into the audio message payload.
func EncodeBlock(samples []float32) string {
	return audiocodec.EncodeBinary(audiocodec.FloatsToPCM16Bytes(samples))
}
