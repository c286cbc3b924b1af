package client

import (
	"fmt"

	"github.com/voxbridge/voxbridge/internal/protocol"
)

// StateMachine tracks the conversation status on the client side. The server
// is authoritative once connected; local transitions only cover starting,
// failing, and hanging up. It is mutated only inside the event loop, so it
// carries no lock.
type StateMachine struct {
	status protocol.Status
}

func NewStateMachine() *StateMachine {
	return &StateMachine{status: protocol.StatusIdle}
}

func (m *StateMachine) Status() protocol.Status { return m.status }

// CanStart reports whether a new conversation may begin. CONNECTING in
// particular must keep the start control disabled to prevent a duplicate
// session.
func (m *StateMachine) CanStart() bool {
	return m.status == protocol.StatusIdle || m.status == protocol.StatusError
}

// Start moves into CONNECTING, or fails if a conversation is already
// underway.
func (m *StateMachine) Start() error {
	if !m.CanStart() {
		return fmt.Errorf("cannot start conversation from status %s", m.status)
	}
	m.status = protocol.StatusConnecting
	return nil
}

// ApplyServer adopts a status declared by the relay.
func (m *StateMachine) ApplyServer(s protocol.Status) error {
	if !s.IsValid() {
		return fmt.Errorf("unknown status %q", s)
	}
	m.status = s
	return nil
}

// Set applies a locally driven transition, such as SPEAKING when a buffer is
// scheduled or LISTENING when the playback queue drains.
func (m *StateMachine) Set(s protocol.Status) {
	m.status = s
}

// Fail enters the absorbing ERROR state. Only Start leaves it.
func (m *StateMachine) Fail() {
	m.status = protocol.StatusError
}

// Reset returns to IDLE after a user hangup and teardown.
func (m *StateMachine) Reset() {
	m.status = protocol.StatusIdle
}
