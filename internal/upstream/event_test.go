package upstream

import (
	"encoding/json"
	"testing"

	"github.com/voxbridge/voxbridge/internal/audiocodec"
)

func TestParseEventsTranscriptionFragments(t *testing.T) {
	raw := json.RawMessage(`{"serverContent":{"inputTranscription":{"text":"hel"},"outputTranscription":{"text":"hi "}}}`)
	events, err := ParseEvents(raw)
	if err != nil {
		t.Fatalf("ParseEvents() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("event count = %d, want 2", len(events))
	}
	if events[0].Kind != EventPartialUserText || events[0].Text != "hel" {
		t.Fatalf("first event = %+v, want partial user text", events[0])
	}
	if events[1].Kind != EventPartialAgentText || events[1].Text != "hi " {
		t.Fatalf("second event = %+v, want partial agent text", events[1])
	}
}

func TestParseEventsAudioChunk(t *testing.T) {
	pcm := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	raw, err := json.Marshal(map[string]any{
		"serverContent": map[string]any{
			"modelTurn": map[string]any{
				"parts": []any{
					map[string]any{"inlineData": map[string]any{"data": audiocodec.EncodeBinary(pcm), "mimeType": "audio/pcm;rate=24000"}},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}

	events, err := ParseEvents(raw)
	if err != nil {
		t.Fatalf("ParseEvents() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("event count = %d, want 1", len(events))
	}
	if events[0].Kind != EventAudioChunk {
		t.Fatalf("Kind = %q, want audio chunk", events[0].Kind)
	}
	if len(events[0].Audio) != len(pcm) {
		t.Fatalf("audio len = %d, want %d", len(events[0].Audio), len(pcm))
	}
}

func TestParseEventsTurnComplete(t *testing.T) {
	events, err := ParseEvents(json.RawMessage(`{"serverContent":{"turnComplete":true}}`))
	if err != nil {
		t.Fatalf("ParseEvents() error = %v", err)
	}
	if len(events) != 1 || events[0].Kind != EventTurnComplete {
		t.Fatalf("events = %+v, want single turn complete", events)
	}
}

func TestParseEventsIgnoresControlEnvelopes(t *testing.T) {
	events, err := ParseEvents(json.RawMessage(`{"setupComplete":{}}`))
	if err != nil {
		t.Fatalf("ParseEvents() error = %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("events = %+v, want none for setup ack", events)
	}
}

func TestParseEventsRejectsMalformedEnvelope(t *testing.T) {
	if _, err := ParseEvents(json.RawMessage(`{"serverContent":`)); err == nil {
		t.Fatalf("expected error for malformed envelope")
	}
}

func TestParseEventsRejectsBadAudioEncoding(t *testing.T) {
	raw := json.RawMessage(`{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"data":"@@@","mimeType":"audio/pcm"}}]}}}`)
	if _, err := ParseEvents(raw); err == nil {
		t.Fatalf("expected error for malformed audio payload")
	}
}
