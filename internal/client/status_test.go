package client

import (
	"testing"

	"github.com/voxbridge/voxbridge/internal/protocol"
)

func TestStateMachineStartGating(t *testing.T) {
	m := NewStateMachine()

	if !m.CanStart() {
		t.Fatal("IDLE should permit start")
	}
	if err := m.Start(); err != nil {
		t.Fatalf("start from IDLE: %v", err)
	}
	if m.Status() != protocol.StatusConnecting {
		t.Fatalf("expected CONNECTING, got %s", m.Status())
	}

	// CONNECTING must keep the start control disabled.
	if err := m.Start(); err == nil {
		t.Fatal("start from CONNECTING should fail")
	}

	m.Fail()
	if !m.CanStart() {
		t.Fatal("ERROR should permit restart")
	}
	if err := m.Start(); err != nil {
		t.Fatalf("start from ERROR: %v", err)
	}
}

func TestStateMachineServerAuthoritative(t *testing.T) {
	m := NewStateMachine()
	if err := m.ApplyServer(protocol.StatusThinking); err != nil {
		t.Fatalf("apply THINKING: %v", err)
	}
	if m.Status() != protocol.StatusThinking {
		t.Fatalf("expected THINKING, got %s", m.Status())
	}

	if err := m.ApplyServer(protocol.Status("DANCING")); err == nil {
		t.Fatal("unknown status should be rejected")
	}
	if m.Status() != protocol.StatusThinking {
		t.Fatalf("rejected status must not change state, got %s", m.Status())
	}
}

func TestStateMachineReset(t *testing.T) {
	m := NewStateMachine()
	m.Set(protocol.StatusSpeaking)
	m.Reset()
	if m.Status() != protocol.StatusIdle {
		t.Fatalf("expected IDLE after reset, got %s", m.Status())
	}
}
