package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket envelope variants.
type MessageType string

const (
	// Client → relay.
	TypeInit  MessageType = "init"
	TypeAudio MessageType = "audio"

	// Relay → client.
	TypeStatus        MessageType = "status"
	TypeError         MessageType = "error"
	TypeAgentResponse MessageType = "agent_response"
)

// Status is the conversation state shared between relay and client.
type Status string

const (
	StatusIdle       Status = "IDLE"
	StatusConnecting Status = "CONNECTING"
	StatusListening  Status = "LISTENING"
	StatusThinking   Status = "THINKING"
	StatusSpeaking   Status = "SPEAKING"
	StatusError      Status = "ERROR"
)

// IsValid reports whether s is one of the declared conversation states.
func (s Status) IsValid() bool {
	switch s {
	case StatusIdle, StatusConnecting, StatusListening, StatusThinking, StatusSpeaking, StatusError:
		return true
	}
	return false
}

// ClosePolicyViolation is the websocket close code used for disallowed
// origins and invalid init payloads.
const ClosePolicyViolation = 1008

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// InitUser carries the caller identity declared in the init message.
type InitUser struct {
	FullName    string `json:"fullName"`
	PhoneNumber string `json:"phoneNumber"`
}

// InitPayload configures the upstream AI session for one connection.
type InitPayload struct {
	SystemInstruction string   `json:"systemInstruction"`
	Voice             string   `json:"voice"`
	User              InitUser `json:"user"`
}

// Init must be the first application message on a connection, exactly once.
type Init struct {
	Type    MessageType `json:"type"`
	Payload InitPayload `json:"payload"`
}

// Audio carries one base64-encoded PCM16 mono 16kHz frame.
type Audio struct {
	Type    MessageType `json:"type"`
	Payload string      `json:"payload"`
}

// StatusMessage is a relay-declared conversation state change.
type StatusMessage struct {
	Type    MessageType `json:"type"`
	Payload Status      `json:"payload"`
}

// ErrorMessage carries a human-readable failure, terminal for the connection.
type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Payload string      `json:"payload"`
}

// AgentResponse forwards one upstream event envelope verbatim.
type AgentResponse struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewStatus builds a status message for the wire.
func NewStatus(s Status) StatusMessage {
	return StatusMessage{Type: TypeStatus, Payload: s}
}

// NewError builds an error message for the wire.
func NewError(detail string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Payload: detail}
}

// NewAgentResponse wraps a raw upstream event for the wire.
func NewAgentResponse(raw json.RawMessage) AgentResponse {
	return AgentResponse{Type: TypeAgentResponse, Payload: raw}
}

// ParseClientMessage decodes one inbound envelope into its typed variant.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeInit:
		var msg Init
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeAudio:
		var msg Audio
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Payload == "" {
			return nil, errors.New("empty audio payload")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// ParseServerMessage decodes one relay-to-client envelope. Used by the
// headless call client transport.
func ParseServerMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeStatus:
		var msg StatusMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if !msg.Payload.IsValid() {
			return nil, fmt.Errorf("unknown status %q", msg.Payload)
		}
		return msg, nil
	case TypeError:
		var msg ErrorMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeAgentResponse:
		var msg AgentResponse
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
