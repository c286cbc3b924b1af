package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestCreateAndGetUser(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	created, err := s.CreateUser(ctx, UserRecord{PhoneNumber: "5551234567", FullName: "Jane Doe"})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if created.Sessions == nil || len(created.Sessions) != 0 {
		t.Fatalf("new user sessions = %v, want empty non-nil list", created.Sessions)
	}

	got, err := s.GetUserByPhone(ctx, "5551234567")
	if err != nil {
		t.Fatalf("GetUserByPhone() error = %v", err)
	}
	if got.FullName != "Jane Doe" {
		t.Fatalf("FullName = %q, want %q", got.FullName, "Jane Doe")
	}
}

func TestCreateUserRejectsDuplicate(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	if _, err := s.CreateUser(ctx, UserRecord{PhoneNumber: "5551234567", FullName: "Jane"}); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if _, err := s.CreateUser(ctx, UserRecord{PhoneNumber: "5551234567", FullName: "John"}); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("error = %v, want ErrAlreadyExists", err)
	}
}

func TestGetUnknownUser(t *testing.T) {
	s := NewInMemoryStore()
	if _, err := s.GetUserByPhone(context.Background(), "5550000000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestUpdateUserMergesFields(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	if _, err := s.CreateUser(ctx, UserRecord{PhoneNumber: "5551234567", FullName: "Jane"}); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	name := "Jane Doe"
	updated, err := s.UpdateUser(ctx, "5551234567", Update{FullName: &name})
	if err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}
	if updated.FullName != "Jane Doe" {
		t.Fatalf("FullName = %q, want merged name", updated.FullName)
	}
	if len(updated.Sessions) != 0 {
		t.Fatalf("Sessions = %v, want preserved empty list", updated.Sessions)
	}

	sessions := []SessionRecord{{ID: "s1", StartedAt: time.Now().UTC(), Status: SessionActive}}
	updated, err = s.UpdateUser(ctx, "5551234567", Update{Sessions: sessions})
	if err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}
	if len(updated.Sessions) != 1 || updated.Sessions[0].ID != "s1" {
		t.Fatalf("Sessions = %v, want wholesale replacement", updated.Sessions)
	}
	if updated.FullName != "Jane Doe" {
		t.Fatalf("FullName = %q, want preserved", updated.FullName)
	}
}

func TestUpdateUnknownUser(t *testing.T) {
	s := NewInMemoryStore()
	if _, err := s.UpdateUser(context.Background(), "5550000000", Update{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	sessions := []SessionRecord{{ID: "s1", Status: SessionActive}}
	if _, err := s.CreateUser(ctx, UserRecord{PhoneNumber: "5551234567", FullName: "Jane", Sessions: sessions}); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	got, err := s.GetUserByPhone(ctx, "5551234567")
	if err != nil {
		t.Fatalf("GetUserByPhone() error = %v", err)
	}
	got.Sessions[0].Status = SessionEnded

	again, err := s.GetUserByPhone(ctx, "5551234567")
	if err != nil {
		t.Fatalf("GetUserByPhone() error = %v", err)
	}
	if again.Sessions[0].Status != SessionActive {
		t.Fatalf("stored record mutated through returned copy")
	}
}

func TestConcurrentUpdatesDistinctKeys(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	phones := []string{"5551234567", "5559876543"}
	for _, p := range phones {
		if _, err := s.CreateUser(ctx, UserRecord{PhoneNumber: p, FullName: "User"}); err != nil {
			t.Fatalf("CreateUser(%s) error = %v", p, err)
		}
	}

	var wg sync.WaitGroup
	for _, p := range phones {
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(phone, id string) {
				defer wg.Done()
				u, err := s.GetUserByPhone(ctx, phone)
				if err != nil {
					t.Errorf("GetUserByPhone() error = %v", err)
					return
				}
				_, err = s.UpdateUser(ctx, phone, Update{Sessions: append(u.Sessions, SessionRecord{ID: id, Status: SessionActive})})
				if err != nil {
					t.Errorf("UpdateUser() error = %v", err)
				}
			}(p, p+"-"+string(rune('a'+i)))
		}
	}
	wg.Wait()

	for _, p := range phones {
		u, err := s.GetUserByPhone(ctx, p)
		if err != nil {
			t.Fatalf("GetUserByPhone() error = %v", err)
		}
		if len(u.Sessions) == 0 {
			t.Fatalf("sessions for %s = 0, want at least one surviving write", p)
		}
	}
}
