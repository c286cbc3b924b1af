// Package store persists user records and their per-call session history.
package store

import (
	"context"
	"errors"
	"time"
)

// SessionStatus tracks the lifecycle of one relay connection's record.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// SessionRecord is one append-only audit entry per relay connection.
type SessionRecord struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"startedAt"`
	Status    SessionStatus `json:"status"`
}

// UserRecord is keyed by normalized phone number. Sessions only grow.
type UserRecord struct {
	PhoneNumber string          `json:"phoneNumber"`
	FullName    string          `json:"fullName"`
	Sessions    []SessionRecord `json:"sessions"`
}

// Update carries partial fields for UpdateUser. A nil Sessions preserves the
// stored list; a non-nil one replaces it wholesale.
type Update struct {
	FullName *string
	Sessions []SessionRecord
}

var (
	ErrNotFound      = errors.New("user not found")
	ErrAlreadyExists = errors.New("user already exists")
)

// UserStore is the pluggable persistence backend. Updates to a single user
// are last-writer-wins; backends serialize writes per key but make no
// stronger guarantee for near-simultaneous connections on the same number.
type UserStore interface {
	GetUserByPhone(ctx context.Context, phoneNumber string) (*UserRecord, error)
	CreateUser(ctx context.Context, user UserRecord) (*UserRecord, error)
	UpdateUser(ctx context.Context, phoneNumber string, update Update) (*UserRecord, error)
	Close() error
}
