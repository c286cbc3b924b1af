package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// MockDialer is a scripted upstream used by tests. Each Connect hands back a
// MockSession whose callbacks tests can drive directly.
type MockDialer struct {
	mu          sync.Mutex
	sessions    []*MockSession
	FailConnect error
}

func NewMockDialer() *MockDialer { return &MockDialer{} }

func (d *MockDialer) Connect(_ context.Context, cfg Config, cb Callbacks) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailConnect != nil {
		return nil, d.FailConnect
	}
	s := &MockSession{Config: cfg, cb: cb}
	d.sessions = append(d.sessions, s)
	if cb.OnOpen != nil {
		cb.OnOpen()
	}
	return s, nil
}

// Sessions returns every session opened so far.
func (d *MockDialer) Sessions() []*MockSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*MockSession(nil), d.sessions...)
}

// Last returns the most recently opened session, or nil.
func (d *MockDialer) Last() *MockSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sessions) == 0 {
		return nil
	}
	return d.sessions[len(d.sessions)-1]
}

type sentChunk struct {
	Data     []byte
	MIMEType string
}

type MockSession struct {
	Config Config

	mu     sync.Mutex
	cb     Callbacks
	sent   []sentChunk
	closed bool
}

var errSessionClosed = errors.New("session closed")

func (s *MockSession) SendRealtimeInput(_ context.Context, data []byte, mimeType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSessionClosed
	}
	s.sent = append(s.sent, sentChunk{Data: append([]byte(nil), data...), MIMEType: mimeType})
	return nil
}

func (s *MockSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *MockSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// SentCount reports how many media chunks were forwarded.
func (s *MockSession) SentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// SentMIMEType returns the mimetype of chunk i.
func (s *MockSession) SentMIMEType(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[i].MIMEType
}

// EmitMessage drives OnMessage with a raw vendor envelope.
func (s *MockSession) EmitMessage(raw json.RawMessage) {
	if s.cb.OnMessage != nil {
		s.cb.OnMessage(raw)
	}
}

// EmitError drives OnError.
func (s *MockSession) EmitError(err error) {
	if s.cb.OnError != nil {
		s.cb.OnError(err)
	}
}

// EmitClose drives OnClose.
func (s *MockSession) EmitClose() {
	if s.cb.OnClose != nil {
		s.cb.OnClose()
	}
}
