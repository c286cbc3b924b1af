package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

// DefaultModel is the native-audio realtime model the relay speaks to.
const DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"

// GeminiDialer opens Gemini Live sessions configured for audio responses
// plus input and output transcription.
type GeminiDialer struct {
	apiKey string
}

func NewGeminiDialer(apiKey string) *GeminiDialer {
	return &GeminiDialer{apiKey: apiKey}
}

func (d *GeminiDialer) Connect(ctx context.Context, cfg Config, cb Callbacks) (Session, error) {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  d.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	liveCfg := &genai.LiveConnectConfig{
		ResponseModalities:       []genai.Modality{genai.ModalityAudio},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if cfg.SystemInstruction != "" {
		liveCfg.SystemInstruction = genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser)
	}
	if cfg.Voice != "" {
		liveCfg.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}

	live, err := client.Live.Connect(ctx, model, liveCfg)
	if err != nil {
		return nil, fmt.Errorf("connect live session: %w", err)
	}

	s := &geminiSession{live: live, cb: cb}
	go s.readLoop()
	if cb.OnOpen != nil {
		cb.OnOpen()
	}
	return s, nil
}

type geminiSession struct {
	live      *genai.Session
	cb        Callbacks
	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

func (s *geminiSession) SendRealtimeInput(_ context.Context, data []byte, mimeType string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if mimeType == "" {
		mimeType = PCM16InputMimeType
	}
	return s.live.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{Data: data, MIMEType: mimeType},
	})
}

func (s *geminiSession) readLoop() {
	for {
		msg, err := s.live.Receive()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed && s.cb.OnError != nil {
				s.cb.OnError(fmt.Errorf("receive live message: %w", err))
			}
			s.finish()
			return
		}
		if s.cb.OnMessage == nil {
			continue
		}
		raw, err := json.Marshal(msg)
		if err != nil {
			if s.cb.OnError != nil {
				s.cb.OnError(fmt.Errorf("encode live message: %w", err))
			}
			continue
		}
		s.cb.OnMessage(raw)
	}
}

func (s *geminiSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.live.Close()
}

func (s *geminiSession) finish() {
	s.closeOnce.Do(func() {
		if s.cb.OnClose != nil {
			s.cb.OnClose()
		}
	})
}
