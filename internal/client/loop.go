package client

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxbridge/voxbridge/internal/protocol"
	"github.com/voxbridge/voxbridge/internal/upstream"
)

// Config identifies the caller and tunes the agent for one conversation.
type Config struct {
	FullName          string
	PhoneNumber       string
	SystemInstruction string
	Voice             string
}

// Hooks let the embedding surface (terminal UI, recorder) observe the
// conversation. All hooks are invoked from the event loop goroutine.
type Hooks struct {
	OnStatus     func(protocol.Status)
	OnTranscript func([]TranscriptEntry)
	OnError      func(error)
}

type event interface{ isEvent() }

type deviceBlock struct{ samples []float32 }
type wireMessage struct{ raw []byte }
type playbackDone struct{}
type transportClosed struct{ err error }
type deviceFailed struct{ err error }
type hangup struct{}

func (deviceBlock) isEvent()     {}
func (wireMessage) isEvent()     {}
func (playbackDone) isEvent()    {}
func (transportClosed) isEvent() {}
func (deviceFailed) isEvent()    {}
func (hangup) isEvent()          {}

// Loop is the client core: a single goroutine draining a typed event queue.
// The state machine, transcript accumulators, and playback scheduler are its
// sole mutable state and are touched only inside the loop, so none of them
// carry locks.
type Loop struct {
	transport Transport
	source    Source
	scheduler *Scheduler
	machine   *StateMachine
	hooks     Hooks
	now       func() time.Time

	transcript Transcript
	events     chan event
	done       chan struct{}
	closeOnce  sync.Once
	stopped    chan struct{}
	started    atomic.Bool
}

func NewLoop(transport Transport, source Source, player Player, hooks Hooks) *Loop {
	return &Loop{
		transport: transport,
		source:    source,
		scheduler: NewScheduler(player),
		machine:   NewStateMachine(),
		hooks:     hooks,
		now:       time.Now,
		events:    make(chan event, 64),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Start begins the conversation: init goes out first, before any capture
// wiring, then the read and capture pumps feed the event loop. A Loop is
// single-use; after a hangup or fatal error, retrying means constructing a
// new Loop around a fresh transport and capture source.
func (l *Loop) Start(cfg Config) error {
	if !l.started.CompareAndSwap(false, true) {
		return errors.New("conversation loop already used; create a new loop to retry")
	}
	if err := l.machine.Start(); err != nil {
		return err
	}
	l.notifyStatus()

	init := protocol.Init{
		Type: protocol.TypeInit,
		Payload: protocol.InitPayload{
			SystemInstruction: cfg.SystemInstruction,
			Voice:             cfg.Voice,
			User: protocol.InitUser{
				FullName:    cfg.FullName,
				PhoneNumber: cfg.PhoneNumber,
			},
		},
	}
	if err := l.transport.Send(init); err != nil {
		l.machine.Fail()
		l.notifyStatus()
		l.teardown()
		close(l.stopped)
		return err
	}

	go l.readPump()
	go l.capturePump()
	go l.run()
	return nil
}

// Hangup ends the conversation from the user's side. Safe to call more than
// once and from any goroutine.
func (l *Loop) Hangup() {
	l.post(hangup{})
}

// Done is closed once the loop has fully torn down.
func (l *Loop) Done() <-chan struct{} { return l.stopped }

// Status reports the current conversation state. Only meaningful between
// events for callers outside the loop; the hooks see every transition.
func (l *Loop) Status() protocol.Status { return l.machine.Status() }

func (l *Loop) post(ev event) {
	select {
	case <-l.done:
	case l.events <- ev:
	}
}

func (l *Loop) run() {
	defer close(l.stopped)
	for {
		select {
		case <-l.done:
			return
		case ev := <-l.events:
			switch ev := ev.(type) {
			case deviceBlock:
				l.handleDeviceBlock(ev.samples)
			case wireMessage:
				l.handleWireMessage(ev.raw)
			case playbackDone:
				l.handlePlaybackDone()
			case transportClosed:
				l.fail(ev.err)
				return
			case deviceFailed:
				l.fail(ev.err)
				return
			case hangup:
				l.teardown()
				l.machine.Reset()
				l.notifyStatus()
				return
			}
		}
	}
}

func (l *Loop) handleDeviceBlock(samples []float32) {
	msg := protocol.Audio{Type: protocol.TypeAudio, Payload: EncodeBlock(samples)}
	if err := l.transport.Send(msg); err != nil {
		l.fail(err)
	}
}

func (l *Loop) handleWireMessage(raw []byte) {
	msg, err := protocol.ParseServerMessage(raw)
	if err != nil {
		log.Printf("client: dropping malformed server message: %v", err)
		return
	}

	switch msg := msg.(type) {
	case protocol.StatusMessage:
		if err := l.machine.ApplyServer(msg.Payload); err != nil {
			log.Printf("client: %v", err)
			return
		}
		l.notifyStatus()
	case protocol.ErrorMessage:
		l.fail(errors.New(msg.Payload))
	case protocol.AgentResponse:
		l.handleAgentResponse(msg)
	}
}

func (l *Loop) handleAgentResponse(msg protocol.AgentResponse) {
	events, err := upstream.ParseEvents(msg.Payload)
	if err != nil {
		log.Printf("client: dropping undecodable agent response: %v", err)
		return
	}
	for _, ev := range events {
		switch ev.Kind {
		case upstream.EventPartialUserText:
			l.transcript.AppendUser(ev.Text)
		case upstream.EventPartialAgentText:
			l.transcript.AppendAgent(ev.Text)
		case upstream.EventAudioChunk:
			l.scheduler.Schedule(ev.Audio, func() { l.post(playbackDone{}) })
			l.machine.Set(protocol.StatusSpeaking)
			l.notifyStatus()
		case upstream.EventTurnComplete:
			entries := l.transcript.CompleteTurn(l.now())
			if len(entries) > 0 && l.hooks.OnTranscript != nil {
				l.hooks.OnTranscript(entries)
			}
		}
	}
}

func (l *Loop) handlePlaybackDone() {
	if l.scheduler.BufferDone() && l.machine.Status() == protocol.StatusSpeaking {
		l.machine.Set(protocol.StatusListening)
		l.notifyStatus()
	}
}

// fail is the single fatal path: surface the error, enter ERROR, and release
// everything. The start control re-arms because ERROR permits Start.
func (l *Loop) fail(err error) {
	if err != nil && l.hooks.OnError != nil {
		l.hooks.OnError(err)
	}
	l.machine.Fail()
	l.notifyStatus()
	l.teardown()
}

// teardown releases the microphone and transport. Idempotent: the error path
// and a later hangup may both reach it.
func (l *Loop) teardown() {
	l.closeOnce.Do(func() {
		close(l.done)
		if err := l.source.Close(); err != nil {
			log.Printf("client: closing capture source: %v", err)
		}
		if err := l.transport.Close(); err != nil {
			log.Printf("client: closing transport: %v", err)
		}
	})
}

func (l *Loop) notifyStatus() {
	if l.hooks.OnStatus != nil {
		l.hooks.OnStatus(l.machine.Status())
	}
}

func (l *Loop) readPump() {
	for {
		raw, err := l.transport.ReadMessage()
		if err != nil {
			select {
			case <-l.done:
			default:
				l.post(transportClosed{err: err})
			}
			return
		}
		l.post(wireMessage{raw: raw})
	}
}

// capturePump forwards microphone blocks into the loop. Blocks produced after
// teardown begins are discarded by post; stale audio has no value.
func (l *Loop) capturePump() {
	for {
		samples, err := l.source.ReadBlock()
		if err != nil {
			select {
			case <-l.done:
			default:
				l.post(deviceFailed{err: err})
			}
			return
		}
		l.post(deviceBlock{samples: samples})
	}
}
