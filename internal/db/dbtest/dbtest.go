// Package dbtest boots a disposable Postgres for repository tests.
package dbtest

import (
	"context"
	"fmt"
	"log"
	"testing"

	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/srinumudili/CodeMate/internal/db"
)

// Instance is a migrated database inside a running container.
type Instance struct {
	DB        *db.Database
	container *postgres.PostgresContainer
}

var runContainer = func(ctx context.Context) (*postgres.PostgresContainer, error) {
	return postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("codemate"),
		postgres.WithUsername("codemate"),
		postgres.WithPassword("password"),
		postgres.BasicWaitStrategies(),
	)
}

// Start launches postgres:16-alpine and applies the schema. Callers treat an error as
// "Docker unavailable" and skip.
func Start(ctx context.Context) (*Instance, error) {
	container, err := startContainer(ctx)
	if err != nil {
		return nil, fmt.Errorf("start container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable", "application_name=test")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("connection string: %w", err)
	}

	database, err := db.NewDatabase(ctx, connStr, db.Options{MaxOpenConns: 10})
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := database.AutoMigrate(ctx); err != nil {
		database.Close()
		_ = container.Terminate(ctx)
		return nil, err
	}
	return &Instance{DB: database, container: container}, nil
}

// testcontainers panics instead of failing when it cannot find a Docker host.
func startContainer(ctx context.Context) (c *postgres.PostgresContainer, err error) {
	defer func() {
		if r := recover(); r != nil {
			c, err = nil, fmt.Errorf("docker unavailable: %v", r)
		}
	}()
	return runContainer(ctx)
}

// Stop closes the pool and terminates the container.
func (i *Instance) Stop(ctx context.Context) {
	if i == nil {
		return
	}
	i.DB.Close()
	if err := i.container.Terminate(ctx); err != nil {
		log.Printf("failed to terminate container: %s", err)
	}
}

// Truncate empties every table, for use in t.Cleanup.
func (i *Instance) Truncate(t *testing.T) {
	t.Helper()
	_, err := i.DB.Conn.ExecContext(context.Background(),
		`TRUNCATE TABLE message_deletions, messages, conversations, connection_requests, users RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

// Require skips the test when no database could be started.
func Require(t *testing.T, i *Instance) *db.Database {
	t.Helper()
	if i == nil {
		t.Skip("postgres container unavailable")
	}
	t.Cleanup(func() { i.Truncate(t) })
	return i.DB
}
