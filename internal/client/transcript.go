package client

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// TranscriptEntry is one finalized utterance, one per speaker per turn.
type TranscriptEntry struct {
	Role Role
	Text string
	At   time.Time
}

// Transcript concatenates partial transcription fragments per role and
// finalizes them when the upstream signals turn completion. Mutated only
// inside the event loop.
type Transcript struct {
	user  strings.Builder
	agent strings.Builder
}

func (t *Transcript) AppendUser(fragment string) {
	t.user.WriteString(fragment)
}

func (t *Transcript) AppendAgent(fragment string) {
	t.agent.WriteString(fragment)
}

// CompleteTurn finalizes both accumulators into at most two entries, stamped
// with the turn-completion time, and resets them. Empty accumulators produce
// no entry.
func (t *Transcript) CompleteTurn(at time.Time) []TranscriptEntry {
	var entries []TranscriptEntry
	if text := t.user.String(); text != "" {
		entries = append(entries, TranscriptEntry{Role: RoleUser, Text: text, At: at})
	}
	if text := t.agent.String(); text != "" {
		entries = append(entries, TranscriptEntry{Role: RoleAgent, Text: text, At: at})
	}
	t.user.Reset()
	t.agent.Reset()
	return entries
}
