package upstream

import (
	"encoding/json"
	"fmt"

	"github.com/voxbridge/voxbridge/internal/audiocodec"
)

// EventKind tags the minimal variant the client core consumes. The vendor
// envelope is mapped onto it here so schema drift stays at this boundary.
type EventKind string

const (
	EventPartialUserText  EventKind = "partial_user_text"
	EventPartialAgentText EventKind = "partial_agent_text"
	EventAudioChunk       EventKind = "audio_chunk"
	EventTurnComplete     EventKind = "turn_complete"
)

// AgentEvent is one decoded upstream occurrence. Audio is raw PCM16 mono at
// OutputSampleRate.
type AgentEvent struct {
	Kind  EventKind
	Text  string
	Audio []byte
}

// Vendor wire shape, trimmed to the fields the relay and client care about.
type serverEnvelope struct {
	ServerContent *serverContent `json:"serverContent"`
}

type serverContent struct {
	ModelTurn           *modelTurn     `json:"modelTurn"`
	TurnComplete        bool           `json:"turnComplete"`
	InputTranscription  *transcription `json:"inputTranscription"`
	OutputTranscription *transcription `json:"outputTranscription"`
}

type modelTurn struct {
	Parts []part `json:"parts"`
}

type part struct {
	InlineData *inlineData `json:"inlineData"`
}

type inlineData struct {
	Data     string `json:"data"`
	MIMEType string `json:"mimeType"`
}

type transcription struct {
	Text string `json:"text"`
}

// ParseEvents maps one vendor envelope onto zero or more AgentEvents, in the
// order transcription fragments, audio, turn completion. Envelopes without
// server content (setup acks, usage metadata) yield no events.
func ParseEvents(raw json.RawMessage) ([]AgentEvent, error) {
	var env serverEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode upstream event: %w", err)
	}
	sc := env.ServerContent
	if sc == nil {
		return nil, nil
	}

	var events []AgentEvent
	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		events = append(events, AgentEvent{Kind: EventPartialUserText, Text: sc.InputTranscription.Text})
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		events = append(events, AgentEvent{Kind: EventPartialAgentText, Text: sc.OutputTranscription.Text})
	}
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			pcm, err := audiocodec.DecodeBinary(p.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("decode model audio: %w", err)
			}
			events = append(events, AgentEvent{Kind: EventAudioChunk, Audio: pcm})
		}
	}
	if sc.TurnComplete {
		events = append(events, AgentEvent{Kind: EventTurnComplete})
	}
	return events, nil
}
