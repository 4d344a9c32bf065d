// Package dbtest provides throwaway databases and fixtures for package tests.
package dbtest

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/vivenzalife/vivenza/internal/db"
)

// Open creates a migrated file-backed database under t.TempDir().
func Open(t testing.TB) *sqlx.DB {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return database.GetConn()
}

func CreateUser(t testing.TB, conn *sqlx.DB, name string) string {
	t.Helper()

	id := uuid.NewString()
	now := time.Now().UTC()
	email := strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "-" + id[:8] + "@example.com"
	_, err := conn.Exec(
		`INSERT INTO users (id, name, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, 'x', ?, ?)`,
		id, name, email, now, now,
	)
	if err != nil {
		t.Fatalf("failed to create user %s: %v", name, err)
	}
	return id
}

func CreatePost(t testing.TB, conn *sqlx.DB, userID, imageURL, caption string) string {
	t.Helper()

	id := uuid.NewString()
	_, err := conn.Exec(
		`INSERT INTO posts (id, user_id, caption, image_url, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, userID, caption, imageURL, time.Now().UTC(),
	)
	if err != nil {
		t.Fatalf("failed to create post: %v", err)
	}
	return id
}
