package httpapi

import (
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/voxbridge/voxbridge/internal/phone"
	"github.com/voxbridge/voxbridge/internal/store"
)

// Voices supported by the upstream native-audio model.
var Voices = []string{"Zephyr", "Puck", "Charon", "Kore", "Fenrir"}

// VoiceAgentSettings mirrors the admin console settings page.
type VoiceAgentSettings struct {
	Voice           string `json:"voice"`
	Language        string `json:"language"`
	FallbackMessage string `json:"fallbackMessage"`
}

// SystemPrompt is one version of the agent's system instruction.
type SystemPrompt struct {
	ID        string    `json:"id"`
	Version   int       `json:"version"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	IsActive  bool      `json:"isActive"`
}

// KnowledgeDocument is uploaded-document metadata shown on the admin page.
type KnowledgeDocument struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// AdminState is the in-memory backing for the admin console editors.
type AdminState struct {
	mu        sync.RWMutex
	settings  VoiceAgentSettings
	prompts   []SystemPrompt
	knowledge []KnowledgeDocument
}

func NewAdminState(defaultVoice string) *AdminState {
	return &AdminState{
		settings: VoiceAgentSettings{
			Voice:           defaultVoice,
			Language:        "en-US",
			FallbackMessage: "I'm sorry, I didn't catch that. Could you repeat it?",
		},
		prompts: []SystemPrompt{{
			ID:        uuid.NewString(),
			Version:   1,
			Content:   "You are a helpful voice assistant.",
			CreatedAt: time.Now().UTC(),
			IsActive:  true,
		}},
	}
}

func (a *AdminState) Settings() VoiceAgentSettings {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.admin.Settings())
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req VoiceAgentSettings
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if !validVoice(req.Voice) {
		respondError(w, http.StatusBadRequest, "invalid_voice", "voice must be one of "+strings.Join(Voices, ", "))
		return
	}

	s.admin.mu.Lock()
	if strings.TrimSpace(req.Language) == "" {
		req.Language = s.admin.settings.Language
	}
	s.admin.settings = req
	s.admin.mu.Unlock()
	respondJSON(w, http.StatusOK, req)
}

func (s *Server) handleListPrompts(w http.ResponseWriter, _ *http.Request) {
	s.admin.mu.RLock()
	prompts := append([]SystemPrompt(nil), s.admin.prompts...)
	s.admin.mu.RUnlock()

	sort.Slice(prompts, func(i, j int) bool { return prompts[i].Version > prompts[j].Version })
	respondJSON(w, http.StatusOK, prompts)
}

func (s *Server) handleCreatePrompt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		respondError(w, http.StatusBadRequest, "empty_prompt", "prompt content is required")
		return
	}

	s.admin.mu.Lock()
	version := 0
	for i := range s.admin.prompts {
		if s.admin.prompts[i].Version > version {
			version = s.admin.prompts[i].Version
		}
		s.admin.prompts[i].IsActive = false
	}
	created := SystemPrompt{
		ID:        uuid.NewString(),
		Version:   version + 1,
		Content:   req.Content,
		CreatedAt: time.Now().UTC(),
		IsActive:  true,
	}
	s.admin.prompts = append(s.admin.prompts, created)
	s.admin.mu.Unlock()

	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleActivatePrompt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.admin.mu.Lock()
	var activated *SystemPrompt
	for i := range s.admin.prompts {
		if s.admin.prompts[i].ID == id {
			s.admin.prompts[i].IsActive = true
			activated = &s.admin.prompts[i]
		} else {
			s.admin.prompts[i].IsActive = false
		}
	}
	s.admin.mu.Unlock()

	if activated == nil {
		respondError(w, http.StatusNotFound, "prompt_not_found", "no prompt with id "+id)
		return
	}
	respondJSON(w, http.StatusOK, *activated)
}

func (s *Server) handleListKnowledge(w http.ResponseWriter, _ *http.Request) {
	s.admin.mu.RLock()
	docs := append([]KnowledgeDocument(nil), s.admin.knowledge...)
	s.admin.mu.RUnlock()
	respondJSON(w, http.StatusOK, docs)
}

func (s *Server) handleAddKnowledge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		Size int64  `json:"size"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondError(w, http.StatusBadRequest, "missing_name", "document name is required")
		return
	}

	doc := KnowledgeDocument{
		ID:         uuid.NewString(),
		Name:       req.Name,
		Size:       req.Size,
		UploadedAt: time.Now().UTC(),
	}
	s.admin.mu.Lock()
	s.admin.knowledge = append(s.admin.knowledge, doc)
	s.admin.mu.Unlock()

	respondJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleDeleteKnowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.admin.mu.Lock()
	kept := s.admin.knowledge[:0]
	removed := false
	for _, d := range s.admin.knowledge {
		if d.ID == id {
			removed = true
			continue
		}
		kept = append(kept, d)
	}
	s.admin.knowledge = kept
	s.admin.mu.Unlock()

	if !removed {
		respondError(w, http.StatusNotFound, "document_not_found", "no document with id "+id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLiveSessions(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.live.Active())
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	normalized := phone.Normalize(chi.URLParam(r, "phone"))
	if normalized == "" {
		respondError(w, http.StatusBadRequest, "invalid_phone", "phone number is not recoverable")
		return
	}

	user, err := s.users.GetUserByPhone(r.Context(), normalized)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "user_not_found", "no user with phone "+normalized)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", "user lookup failed")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func validVoice(v string) bool {
	for _, candidate := range Voices {
		if candidate == v {
			return true
		}
	}
	return false
}
