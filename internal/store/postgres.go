package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists user records in PostgreSQL. The session list is a
// JSONB column updated inside one transaction per write, so concurrent
// connections on the same phone number serialize on the row lock.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS voice_users (
			phone_number TEXT PRIMARY KEY,
			full_name TEXT NOT NULL,
			sessions JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) GetUserByPhone(ctx context.Context, phoneNumber string) (*UserRecord, error) {
	var (
		u           UserRecord
		sessionsRaw []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT phone_number, full_name, sessions FROM voice_users WHERE phone_number=$1`,
		phoneNumber,
	).Scan(&u.PhoneNumber, &u.FullName, &sessionsRaw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	if err := json.Unmarshal(sessionsRaw, &u.Sessions); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user UserRecord) (*UserRecord, error) {
	if user.Sessions == nil {
		user.Sessions = []SessionRecord{}
	}
	sessionsRaw, err := json.Marshal(user.Sessions)
	if err != nil {
		return nil, fmt.Errorf("encode sessions: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO voice_users (phone_number, full_name, sessions)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (phone_number) DO NOTHING`,
		user.PhoneNumber, user.FullName, sessionsRaw,
	)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrAlreadyExists
	}
	return cloneUser(user), nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, phoneNumber string, update Update) (*UserRecord, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		u           UserRecord
		sessionsRaw []byte
	)
	err = tx.QueryRow(ctx,
		`SELECT phone_number, full_name, sessions FROM voice_users WHERE phone_number=$1 FOR UPDATE`,
		phoneNumber,
	).Scan(&u.PhoneNumber, &u.FullName, &sessionsRaw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock user row: %w", err)
	}
	if err := json.Unmarshal(sessionsRaw, &u.Sessions); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}

	if update.FullName != nil {
		u.FullName = *update.FullName
	}
	if update.Sessions != nil {
		u.Sessions = update.Sessions
	}

	merged, err := json.Marshal(u.Sessions)
	if err != nil {
		return nil, fmt.Errorf("encode sessions: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE voice_users SET full_name=$2, sessions=$3, updated_at=now() WHERE phone_number=$1`,
		phoneNumber, u.FullName, merged,
	); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
