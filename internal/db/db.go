package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// Postgres error codes the repositories translate.
const (
	uniqueViolation = "23505"
	checkViolation  = "23514"
	fkViolation     = "23503"
)

type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type Database struct {
	Conn *sqlx.DB
}

func NewDatabase(ctx context.Context, dsn string, opts Options) (*Database, error) {
	conn, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, err
	}
	if opts.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	return &Database{Conn: conn}, nil
}

func (d *Database) Close() error {
	return d.Conn.Close()
}

func (d *Database) Ping(ctx context.Context) error {
	return d.Conn.PingContext(ctx)
}

func (d *Database) AutoMigrate(ctx context.Context) error {
	queries := []string{
		`CREATE EXTENSION IF NOT EXISTS pgcrypto`,

		`CREATE TABLE IF NOT EXISTS users (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            first_name VARCHAR(18) NOT NULL,
            last_name VARCHAR(50) NOT NULL,
            email VARCHAR(255) UNIQUE NOT NULL,
            password VARCHAR(255) NOT NULL,
            age INT CHECK (age IS NULL OR age >= 18),
            gender VARCHAR(10) CHECK (gender IS NULL OR gender IN ('male', 'female', 'others')),
            profile_url TEXT NOT NULL DEFAULT '',
            about TEXT NOT NULL DEFAULT 'This is the default about of the user',
            skills JSONB NOT NULL DEFAULT '[]',
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,

		`CREATE TABLE IF NOT EXISTS connection_requests (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            from_user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            to_user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            status VARCHAR(10) NOT NULL CHECK (status IN ('interested', 'ignored', 'accepted', 'rejected')),
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            CHECK (from_user_id <> to_user_id)
        )`,
		// One edge per unordered pair, whichever side initiated it.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_connection_pair
            ON connection_requests (LEAST(from_user_id, to_user_id), GREATEST(from_user_id, to_user_id))`,
		`CREATE INDEX IF NOT EXISTS idx_connection_to_status ON connection_requests (to_user_id, status)`,

		`CREATE TABLE IF NOT EXISTS conversations (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            participant_a UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            participant_b UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            last_message_id UUID,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            CHECK (participant_a < participant_b),
            UNIQUE (participant_a, participant_b)
        )`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_b ON conversations (participant_b, updated_at DESC)`,

		`CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            sender_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            receiver_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            text TEXT,
            attachments JSONB NOT NULL DEFAULT '[]',
            is_read BOOLEAN NOT NULL DEFAULT false,
            read_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
            CHECK (COALESCE(btrim(text), '') <> '' OR jsonb_array_length(attachments) > 0)
        )`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages (receiver_id, is_read)`,

		`CREATE TABLE IF NOT EXISTS message_deletions (
            message_id UUID NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
            user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            deleted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            PRIMARY KEY (message_id, user_id)
        )`,
	}

	for _, query := range queries {
		if _, err := d.Conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// IsUniqueViolation reports whether err is a Postgres unique constraint violation.
func IsUniqueViolation(err error) bool {
	return pgCode(err) == uniqueViolation
}

// IsCheckViolation reports whether err is a Postgres CHECK constraint violation.
func IsCheckViolation(err error) bool {
	return pgCode(err) == checkViolation
}

// IsForeignKeyViolation reports whether err references a missing row.
func IsForeignKeyViolation(err error) bool {
	return pgCode(err) == fkViolation
}

// IsNoRows reports whether err is sql.ErrNoRows.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// RunInTx runs fn inside a transaction, committing when fn returns nil.
func RunInTx(ctx context.Context, conn *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
