package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/voxbridge/voxbridge/internal/audiocodec"
	"github.com/voxbridge/voxbridge/internal/protocol"
)

type loopTransport struct {
	mu      sync.Mutex
	sent    []any
	inbound chan []byte
	closed  chan struct{}
	once    sync.Once
}

func newLoopTransport() *loopTransport {
	return &loopTransport{
		inbound: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (t *loopTransport) Send(v any) error {
	select {
	case <-t.closed:
		return errors.New("transport closed")
	default:
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, v)
	return nil
}

func (t *loopTransport) ReadMessage() ([]byte, error) {
	select {
	case raw := <-t.inbound:
		return raw, nil
	case <-t.closed:
		return nil, errors.New("transport closed")
	}
}

func (t *loopTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

func (t *loopTransport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

func (t *loopTransport) sentMessages() []any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]any(nil), t.sent...)
}

type loopSource struct {
	blocks chan []float32
	errs   chan error
	closed chan struct{}
	once   sync.Once
}

func newLoopSource() *loopSource {
	return &loopSource{
		blocks: make(chan []float32, 16),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (s *loopSource) ReadBlock() ([]float32, error) {
	select {
	case block := <-s.blocks:
		return block, nil
	case err := <-s.errs:
		return nil, err
	case <-s.closed:
		return nil, errors.New("source closed")
	}
}

func (s *loopSource) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type syncPlayer struct {
	mu    sync.Mutex
	now   time.Duration
	plays []fakePlay
}

func (p *syncPlayer) Now() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now
}

func (p *syncPlayer) PlayAt(pcm []byte, startAt time.Duration, done func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plays = append(p.plays, fakePlay{pcm: pcm, startAt: startAt, done: done})
}

func (p *syncPlayer) play(i int) fakePlay {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plays[i]
}

func (p *syncPlayer) playCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.plays)
}

type loopFixture struct {
	loop        *Loop
	transport   *loopTransport
	source      *loopSource
	player      *syncPlayer
	statuses    chan protocol.Status
	transcripts chan []TranscriptEntry
	errs        chan error
}

func newLoopFixture(t *testing.T) *loopFixture {
	t.Helper()
	f := &loopFixture{
		transport:   newLoopTransport(),
		source:      newLoopSource(),
		player:      &syncPlayer{},
		statuses:    make(chan protocol.Status, 32),
		transcripts: make(chan []TranscriptEntry, 8),
		errs:        make(chan error, 8),
	}
	f.loop = NewLoop(f.transport, f.source, f.player, Hooks{
		OnStatus:     func(s protocol.Status) { f.statuses <- s },
		OnTranscript: func(e []TranscriptEntry) { f.transcripts <- e },
		OnError:      func(err error) { f.errs <- err },
	})
	t.Cleanup(f.loop.Hangup)
	return f
}

func (f *loopFixture) start(t *testing.T) {
	t.Helper()
	cfg := Config{FullName: "Ada Lovelace", PhoneNumber: "+15551234567", Voice: "Zephyr"}
	if err := f.loop.Start(cfg); err != nil {
		t.Fatalf("start loop: %v", err)
	}
}

func (f *loopFixture) waitStatus(t *testing.T, want protocol.Status) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-f.statuses:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status %s", want)
		}
	}
}

func audioEnvelope(pcm []byte) []byte {
	inner := map[string]any{
		"serverContent": map[string]any{
			"modelTurn": map[string]any{
				"parts": []any{map[string]any{
					"inlineData": map[string]string{
						"data":     audiocodec.EncodeBinary(pcm),
						"mimeType": "audio/pcm;rate=24000",
					},
				}},
			},
		},
	}
	payload, _ := json.Marshal(inner)
	return []byte(fmt.Sprintf(`{"type":"agent_response","payload":%s}`, payload))
}

func TestLoopSendsInitFirst(t *testing.T) {
	f := newLoopFixture(t)
	f.start(t)

	sent := f.transport.sentMessages()
	if len(sent) == 0 {
		t.Fatal("expected init to be sent synchronously on start")
	}
	init, ok := sent[0].(protocol.Init)
	if !ok {
		t.Fatalf("first message is %T, want init", sent[0])
	}
	if init.Payload.User.PhoneNumber != "+15551234567" || init.Payload.Voice != "Zephyr" {
		t.Fatalf("unexpected init payload %+v", init.Payload)
	}
	f.waitStatus(t, protocol.StatusConnecting)
}

func TestLoopRejectsSecondStart(t *testing.T) {
	f := newLoopFixture(t)
	f.start(t)

	if err := f.loop.Start(Config{}); err == nil {
		t.Fatal("second start should fail while connecting")
	}
}

func TestLoopForwardsCaptureBlocks(t *testing.T) {
	f := newLoopFixture(t)
	f.start(t)

	block := make([]float32, CaptureBlockSize)
	block[0] = 0.5
	f.source.blocks <- block

	deadline := time.After(2 * time.Second)
	for {
		sent := f.transport.sentMessages()
		if len(sent) >= 2 {
			audio, ok := sent[1].(protocol.Audio)
			if !ok {
				t.Fatalf("second message is %T, want audio", sent[1])
			}
			if audio.Payload != EncodeBlock(block) {
				t.Fatal("audio payload does not match encoded block")
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for audio message")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestLoopAppliesServerStatus(t *testing.T) {
	f := newLoopFixture(t)
	f.start(t)

	f.transport.inbound <- []byte(`{"type":"status","payload":"LISTENING"}`)
	f.waitStatus(t, protocol.StatusListening)
}

func TestLoopSpeakingThenListening(t *testing.T) {
	f := newLoopFixture(t)
	f.start(t)

	f.transport.inbound <- audioEnvelope(make([]byte, 4800))
	f.waitStatus(t, protocol.StatusSpeaking)

	if f.player.playCount() != 1 {
		t.Fatalf("expected 1 scheduled buffer, got %d", f.player.playCount())
	}
	f.player.play(0).done()
	f.waitStatus(t, protocol.StatusListening)
}

func TestLoopTranscriptFinalizedOnTurnComplete(t *testing.T) {
	f := newLoopFixture(t)
	f.start(t)

	f.transport.inbound <- []byte(`{"type":"agent_response","payload":{"serverContent":{"inputTranscription":{"text":"what time "}}}}`)
	f.transport.inbound <- []byte(`{"type":"agent_response","payload":{"serverContent":{"inputTranscription":{"text":"is it?"},"outputTranscription":{"text":"It is noon."}}}}`)
	f.transport.inbound <- []byte(`{"type":"agent_response","payload":{"serverContent":{"turnComplete":true}}}`)

	select {
	case entries := <-f.transcripts:
		if len(entries) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(entries))
		}
		if entries[0].Text != "what time is it?" {
			t.Fatalf("unexpected user transcript %q", entries[0].Text)
		}
		if entries[1].Text != "It is noon." {
			t.Fatalf("unexpected agent transcript %q", entries[1].Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transcript")
	}
}

func TestLoopMalformedMessageSurvives(t *testing.T) {
	f := newLoopFixture(t)
	f.start(t)

	f.transport.inbound <- []byte(`{not json`)
	f.transport.inbound <- []byte(`{"type":"status","payload":"LISTENING"}`)
	f.waitStatus(t, protocol.StatusListening)
}

func TestLoopServerErrorIsFatal(t *testing.T) {
	f := newLoopFixture(t)
	f.start(t)

	f.transport.inbound <- []byte(`{"type":"error","payload":"Agent session error."}`)

	select {
	case err := <-f.errs:
		if err.Error() != "Agent session error." {
			t.Fatalf("unexpected error %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error hook")
	}
	f.waitStatus(t, protocol.StatusError)

	<-f.loop.Done()
	if !f.transport.isClosed() {
		t.Fatal("transport should be closed after fatal error")
	}
}

func TestLoopDeviceFailureIsFatal(t *testing.T) {
	f := newLoopFixture(t)
	f.start(t)

	f.source.errs <- &DeviceError{Kind: DeviceBusy, Err: errors.New("device in use")}

	select {
	case err := <-f.errs:
		var devErr *DeviceError
		if !errors.As(err, &devErr) || devErr.Kind != DeviceBusy {
			t.Fatalf("unexpected error %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for device error")
	}
	f.waitStatus(t, protocol.StatusError)
}

func TestLoopRestartAfterErrorIsRejected(t *testing.T) {
	f := newLoopFixture(t)
	f.start(t)

	f.transport.inbound <- []byte(`{"type":"error","payload":"Agent session error."}`)
	select {
	case <-f.loop.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for loop to stop")
	}

	// ERROR re-arms the start control, but a stopped loop's resources are
	// gone; the retry builds a new loop and this one just refuses.
	err := f.loop.Start(Config{FullName: "Ada Lovelace", PhoneNumber: "+15551234567"})
	if err == nil {
		t.Fatal("restarting a used loop should fail")
	}
}

func TestLoopHangupIdempotent(t *testing.T) {
	f := newLoopFixture(t)
	f.start(t)

	f.loop.Hangup()
	f.loop.Hangup()

	select {
	case <-f.loop.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for loop to stop")
	}
	f.waitStatus(t, protocol.StatusIdle)
	if !f.transport.isClosed() {
		t.Fatal("transport should be closed after hangup")
	}
}
