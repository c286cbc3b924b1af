package client

import (
	"testing"
	"time"
)

func TestTranscriptOneEntryPerSpeakerPerTurn(t *testing.T) {
	var tr Transcript
	tr.AppendUser("hello ")
	tr.AppendUser("there")
	tr.AppendAgent("hi, ")
	tr.AppendAgent("how can I help?")

	at := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	entries := tr.CompleteTurn(at)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Role != RoleUser || entries[0].Text != "hello there" {
		t.Fatalf("unexpected user entry %+v", entries[0])
	}
	if entries[1].Role != RoleAgent || entries[1].Text != "hi, how can I help?" {
		t.Fatalf("unexpected agent entry %+v", entries[1])
	}
	if !entries[0].At.Equal(at) || !entries[1].At.Equal(at) {
		t.Fatal("entries must be stamped at turn completion")
	}

	// Accumulators reset, so an immediate second completion is empty.
	if again := tr.CompleteTurn(at.Add(time.Second)); len(again) != 0 {
		t.Fatalf("expected no entries after reset, got %d", len(again))
	}
}

func TestTranscriptSkipsEmptyAccumulator(t *testing.T) {
	var tr Transcript
	tr.AppendAgent("only the agent spoke")

	entries := tr.CompleteTurn(time.Now())
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Role != RoleAgent {
		t.Fatalf("expected agent entry, got %s", entries[0].Role)
	}
}
