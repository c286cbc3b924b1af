// Package relay owns the server side of one voice conversation: it
// demultiplexes client messages, bridges audio to the upstream AI session,
// relays upstream events back, and keeps the user store's session audit
// trail consistent with the connection lifecycle.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/voxbridge/voxbridge/internal/audiocodec"
	"github.com/voxbridge/voxbridge/internal/observability"
	"github.com/voxbridge/voxbridge/internal/phone"
	"github.com/voxbridge/voxbridge/internal/protocol"
	"github.com/voxbridge/voxbridge/internal/session"
	"github.com/voxbridge/voxbridge/internal/store"
	"github.com/voxbridge/voxbridge/internal/upstream"
)

// Transport is the relay's handle on one client connection. Send enqueues an
// outbound envelope; Close begins the close handshake with the given code.
// Both must be safe for concurrent use.
type Transport interface {
	Send(msg any)
	Close(code int, reason string)
}

// ValidationError marks user-correctable init failures. The connection is
// closed with a policy-violation status after the explanation is sent.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string { return e.Detail }

// Relay holds the dependencies shared by all connections.
type Relay struct {
	store        store.UserStore
	dialer       upstream.Dialer
	live         *session.Manager
	metrics      *observability.Metrics
	model        string
	defaultVoice string
}

func New(st store.UserStore, dialer upstream.Dialer, live *session.Manager, metrics *observability.Metrics, model, defaultVoice string) *Relay {
	return &Relay{
		store:        st,
		dialer:       dialer,
		live:         live,
		metrics:      metrics,
		model:        model,
		defaultVoice: defaultVoice,
	}
}

// NewConn binds a fresh, pre-init connection state to a transport.
func (r *Relay) NewConn(t Transport) *Conn {
	return &Conn{relay: r, transport: t}
}

// Conn is the per-connection state machine. All fields stay nil/zero until
// init succeeds.
type Conn struct {
	relay     *Relay
	transport Transport

	mu          sync.Mutex
	upstream    upstream.Session
	sessionID   string
	phoneNumber string
	initAt      time.Time
	heardAudio  bool
	tornDown    bool
}

// HandleRaw processes one inbound websocket message. Malformed envelopes are
// logged and dropped; they never escalate to connection failure.
func (c *Conn) HandleRaw(ctx context.Context, raw []byte) {
	msg, err := protocol.ParseClientMessage(raw)
	if err != nil {
		log.Printf("relay: dropping malformed message: %v", err)
		return
	}

	switch m := msg.(type) {
	case protocol.Init:
		if verr := c.handleInit(ctx, m.Payload); verr != nil {
			c.transport.Send(protocol.NewError(verr.Detail))
			c.transport.Close(protocol.ClosePolicyViolation, "invalid user information")
		}
	case protocol.Audio:
		c.handleAudio(ctx, m.Payload)
	}
}

func (c *Conn) handleInit(ctx context.Context, p protocol.InitPayload) *ValidationError {
	c.mu.Lock()
	already := c.upstream != nil || c.sessionID != ""
	c.mu.Unlock()
	if already {
		// Exactly one init per connection; repeats are dropped like any
		// other protocol violation that should not kill the call.
		log.Printf("relay: ignoring duplicate init on session %s", c.sessionID)
		return nil
	}

	fullName := strings.TrimSpace(p.User.FullName)
	normalized := phone.Normalize(p.User.PhoneNumber)
	if fullName == "" || normalized == "" {
		return &ValidationError{Detail: "Full name and phone number are required."}
	}
	if !phone.IsFormatValid(normalized) {
		return &ValidationError{Detail: "Invalid phone number format."}
	}

	voice := p.Voice
	if voice == "" {
		voice = c.relay.defaultVoice
	}

	live := c.relay.live.Create(normalized, voice)
	if err := c.recordSessionStart(ctx, normalized, fullName, live); err != nil {
		log.Printf("relay: persist session start for %s: %v", normalized, err)
		c.relay.live.End(live.ID)
		return nil
	}

	c.mu.Lock()
	c.sessionID = live.ID
	c.phoneNumber = normalized
	c.initAt = time.Now()
	c.mu.Unlock()
	c.relay.metrics.SessionEvents.WithLabelValues("created").Inc()
	c.relay.metrics.ActiveSessions.Set(float64(c.relay.live.ActiveCount()))

	sess, err := c.relay.dialer.Connect(ctx, upstream.Config{
		Model:             c.relay.model,
		SystemInstruction: p.SystemInstruction,
		Voice:             voice,
	}, upstream.Callbacks{
		OnOpen: func() {
			c.transport.Send(protocol.NewStatus(protocol.StatusListening))
		},
		OnMessage: c.onUpstreamMessage,
		OnError: func(err error) {
			log.Printf("relay: upstream error on session %s: %v", live.ID, err)
			c.relay.metrics.UpstreamErrors.WithLabelValues("session").Inc()
			c.transport.Send(protocol.NewError("Agent session error."))
			c.transport.Close(1011, "upstream error")
		},
		OnClose: func() {
			c.transport.Close(1000, "upstream closed")
		},
	})
	if err != nil {
		log.Printf("relay: connect upstream for session %s: %v", live.ID, err)
		c.relay.metrics.UpstreamErrors.WithLabelValues("connect").Inc()

		// Roll back so a retry init on this connection starts clean: the
		// live session ends, its store record flips to ended, and the
		// duplicate-init guard no longer sees a session id.
		if _, eerr := c.relay.live.End(live.ID); eerr != nil {
			log.Printf("relay: end live session %s: %v", live.ID, eerr)
		}
		c.relay.metrics.ActiveSessions.Set(float64(c.relay.live.ActiveCount()))
		if merr := c.markSessionEnded(ctx, normalized, live.ID); merr != nil {
			log.Printf("relay: mark session %s ended: %v", live.ID, merr)
		}
		c.mu.Lock()
		c.sessionID = ""
		c.phoneNumber = ""
		c.mu.Unlock()

		c.transport.Send(protocol.NewError("Could not start agent session."))
		return nil
	}

	c.mu.Lock()
	c.upstream = sess
	c.mu.Unlock()
	return nil
}

// recordSessionStart looks up or creates the user record and appends the new
// active session entry, merging in a changed full name.
func (c *Conn) recordSessionStart(ctx context.Context, phoneNumber, fullName string, live *session.Session) error {
	record := store.SessionRecord{
		ID:        live.ID,
		StartedAt: live.StartedAt,
		Status:    store.SessionActive,
	}

	user, err := c.relay.store.GetUserByPhone(ctx, phoneNumber)
	if errors.Is(err, store.ErrNotFound) {
		user, err = c.relay.store.CreateUser(ctx, store.UserRecord{
			PhoneNumber: phoneNumber,
			FullName:    fullName,
			Sessions:    []store.SessionRecord{},
		})
	}
	if err != nil {
		return err
	}

	update := store.Update{Sessions: append(user.Sessions, record)}
	if user.FullName != fullName {
		update.FullName = &fullName
	}
	_, err = c.relay.store.UpdateUser(ctx, phoneNumber, update)
	return err
}

func (c *Conn) onUpstreamMessage(raw json.RawMessage) {
	c.observeFirstAudio(raw)
	c.transport.Send(protocol.NewAgentResponse(raw))
}

func (c *Conn) observeFirstAudio(raw json.RawMessage) {
	c.mu.Lock()
	heard, initAt := c.heardAudio, c.initAt
	c.mu.Unlock()
	if heard {
		return
	}

	events, err := upstream.ParseEvents(raw)
	if err != nil {
		return
	}
	for _, ev := range events {
		if ev.Kind == upstream.EventAudioChunk {
			c.mu.Lock()
			c.heardAudio = true
			c.mu.Unlock()
			c.relay.metrics.ObserveFirstAudioLatency(time.Since(initAt))
			return
		}
	}
}

// handleAudio forwards one frame upstream. Frames that arrive before init
// completes are dropped silently; stale audio has no value once delayed.
func (c *Conn) handleAudio(ctx context.Context, payload string) {
	c.mu.Lock()
	sess := c.upstream
	sessionID := c.sessionID
	c.mu.Unlock()
	if sess == nil {
		return
	}

	pcm, err := audiocodec.DecodeBinary(payload)
	if err != nil {
		log.Printf("relay: dropping undecodable audio frame on session %s: %v", sessionID, err)
		return
	}

	if err := sess.SendRealtimeInput(ctx, pcm, upstream.PCM16InputMimeType); err != nil {
		log.Printf("relay: forward audio on session %s: %v", sessionID, err)
		c.relay.metrics.UpstreamErrors.WithLabelValues("send").Inc()
		return
	}
	c.relay.metrics.ForwardedAudio.Add(float64(len(pcm)))
	_ = c.relay.live.Touch(sessionID)
}

// Teardown releases the upstream session and marks the stored session record
// ended. It runs on transport close and transport error, and is idempotent.
func (c *Conn) Teardown(ctx context.Context) {
	c.mu.Lock()
	if c.tornDown {
		c.mu.Unlock()
		return
	}
	c.tornDown = true
	sess := c.upstream
	c.upstream = nil
	sessionID := c.sessionID
	phoneNumber := c.phoneNumber
	c.mu.Unlock()

	if sess != nil {
		if err := sess.Close(); err != nil {
			log.Printf("relay: close upstream session %s: %v", sessionID, err)
		}
	}

	if sessionID == "" {
		return
	}
	if _, err := c.relay.live.End(sessionID); err != nil && !errors.Is(err, session.ErrNotFound) {
		log.Printf("relay: end live session %s: %v", sessionID, err)
	}
	c.relay.metrics.SessionEvents.WithLabelValues("ended").Inc()
	c.relay.metrics.ActiveSessions.Set(float64(c.relay.live.ActiveCount()))

	if err := c.markSessionEnded(ctx, phoneNumber, sessionID); err != nil {
		log.Printf("relay: mark session %s ended: %v", sessionID, err)
	}
}

// markSessionEnded is a read-modify-write over the user's session list that
// replaces only the matching entry.
func (c *Conn) markSessionEnded(ctx context.Context, phoneNumber, sessionID string) error {
	user, err := c.relay.store.GetUserByPhone(ctx, phoneNumber)
	if err != nil {
		return err
	}
	sessions := make([]store.SessionRecord, len(user.Sessions))
	for i, s := range user.Sessions {
		if s.ID == sessionID {
			s.Status = store.SessionEnded
		}
		sessions[i] = s
	}
	_, err = c.relay.store.UpdateUser(ctx, phoneNumber, store.Update{Sessions: sessions})
	return err
}
