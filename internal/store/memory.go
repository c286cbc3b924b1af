package store

import (
	"context"
	"sync"
)

// InMemoryStore is a simple in-process user store for local/dev use and
// tests. One mutex serializes all writes, which gives per-key last-writer-
// wins for concurrent connections on the same phone number.
type InMemoryStore struct {
	mu    sync.RWMutex
	users map[string]UserRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{users: make(map[string]UserRecord)}
}

func (s *InMemoryStore) GetUserByPhone(_ context.Context, phoneNumber string) (*UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[phoneNumber]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *InMemoryStore) CreateUser(_ context.Context, user UserRecord) (*UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.PhoneNumber]; ok {
		return nil, ErrAlreadyExists
	}
	if user.Sessions == nil {
		user.Sessions = []SessionRecord{}
	}
	s.users[user.PhoneNumber] = user
	return cloneUser(user), nil
}

func (s *InMemoryStore) UpdateUser(_ context.Context, phoneNumber string, update Update) (*UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[phoneNumber]
	if !ok {
		return nil, ErrNotFound
	}
	if update.FullName != nil {
		existing.FullName = *update.FullName
	}
	if update.Sessions != nil {
		existing.Sessions = update.Sessions
	}
	s.users[phoneNumber] = existing
	return cloneUser(existing), nil
}

func (s *InMemoryStore) Close() error { return nil }

// cloneUser copies the record so callers cannot mutate stored state. An
// empty session list stays non-nil so it renders as [] on the wire.
func cloneUser(u UserRecord) *UserRecord {
	c := u
	if u.Sessions != nil {
		c.Sessions = append([]SessionRecord{}, u.Sessions...)
	}
	return &c
}
