package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vivenzalife/vivenza/internal/chat"
	"github.com/vivenzalife/vivenza/internal/db"
	"github.com/vivenzalife/vivenza/internal/logging"
	"github.com/vivenzalife/vivenza/pkg/config"
)

var legacyBase = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// createLegacyPairsDB builds a database from before pair keys existed, holding
// two conversations between u1 and u2 and one between u2 and u3.
func createLegacyPairsDB(t *testing.T) string {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "legacy.db")
	conn, err := sqlx.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	defer conn.Close()

	_, err = conn.Exec(`
		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT UNIQUE NOT NULL,
			image TEXT,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE TABLE conversations (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE TABLE conversation_participants (
			conversation_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			joined_at TIMESTAMP NOT NULL,
			PRIMARY KEY (conversation_id, user_id)
		);

		CREATE TABLE messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			content TEXT,
			shared_post_id TEXT,
			is_read BOOLEAN NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		);
	`)
	if err != nil {
		t.Fatalf("failed to create legacy schema: %v", err)
	}

	for _, id := range []string{"u1", "u2", "u3"} {
		if _, err := conn.Exec(
			`INSERT INTO users (id, name, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, 'x', ?, ?)`,
			id, id, id+"@example.com", legacyBase, legacyBase,
		); err != nil {
			t.Fatalf("failed to seed user %s: %v", id, err)
		}
	}

	conversations := []struct {
		id        string
		users     [2]string
		createdAt time.Time
		updatedAt time.Time
	}{
		{id: "c1", users: [2]string{"u1", "u2"}, createdAt: legacyBase, updatedAt: legacyBase.Add(5 * time.Minute)},
		{id: "c2", users: [2]string{"u2", "u1"}, createdAt: legacyBase.Add(time.Hour), updatedAt: legacyBase.Add(2 * time.Hour)},
		{id: "c3", users: [2]string{"u2", "u3"}, createdAt: legacyBase.Add(30 * time.Minute), updatedAt: legacyBase.Add(30 * time.Minute)},
	}
	for _, c := range conversations {
		if _, err := conn.Exec(`INSERT INTO conversations (id, created_at, updated_at) VALUES (?, ?, ?)`, c.id, c.createdAt, c.updatedAt); err != nil {
			t.Fatalf("failed to seed conversation %s: %v", c.id, err)
		}
		for _, u := range c.users {
			if _, err := conn.Exec(`INSERT INTO conversation_participants (conversation_id, user_id, joined_at) VALUES (?, ?, ?)`, c.id, u, c.createdAt); err != nil {
				t.Fatalf("failed to seed participant %s: %v", u, err)
			}
		}
	}

	messages := []struct{ id, conversationID, senderID string }{
		{"m1", "c1", "u1"},
		{"m2", "c2", "u2"},
		{"m3", "c2", "u1"},
		{"m4", "c3", "u3"},
	}
	for i, m := range messages {
		if _, err := conn.Exec(
			`INSERT INTO messages (id, conversation_id, sender_id, content, created_at) VALUES (?, ?, ?, 'hi', ?)`,
			m.id, m.conversationID, m.senderID, legacyBase.Add(time.Duration(i)*time.Minute),
		); err != nil {
			t.Fatalf("failed to seed message %s: %v", m.id, err)
		}
	}

	return dbPath
}

func openTestDB(t *testing.T, path string) *sqlx.DB {
	t.Helper()
	conn, err := sqlx.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestConversationPairsMigrationMergesDuplicates(t *testing.T) {
	dbPath := createLegacyPairsDB(t)

	var out bytes.Buffer
	if err := runConversationPairsMigration(&out, conversationPairsMigrationOptions{DatabasePath: dbPath}); err != nil {
		t.Fatalf("migration failed: %v", err)
	}
	if !strings.Contains(out.String(), "Migration completed") {
		t.Fatalf("expected completion output, got: %s", out.String())
	}
	if !strings.Contains(out.String(), "Merged 1 duplicate conversations (2 messages) into 2 pairs") {
		t.Fatalf("unexpected summary: %s", out.String())
	}

	conn := openTestDB(t, dbPath)

	var ids []string
	if err := conn.Select(&ids, "SELECT id FROM conversations ORDER BY id"); err != nil {
		t.Fatalf("failed to list conversations: %v", err)
	}
	if strings.Join(ids, ",") != "c1,c3" {
		t.Fatalf("conversations = %v, want [c1 c3]", ids)
	}

	var moved int
	if err := conn.Get(&moved, "SELECT COUNT(*) FROM messages WHERE conversation_id = 'c1'"); err != nil {
		t.Fatalf("failed to count messages: %v", err)
	}
	if moved != 3 {
		t.Fatalf("messages in surviving conversation = %d, want 3", moved)
	}

	var participants int
	if err := conn.Get(&participants, "SELECT COUNT(*) FROM conversation_participants"); err != nil {
		t.Fatalf("failed to count participants: %v", err)
	}
	if participants != 4 {
		t.Fatalf("participants = %d, want 4", participants)
	}

	var updatedAt time.Time
	if err := conn.Get(&updatedAt, "SELECT updated_at FROM conversations WHERE id = 'c1'"); err != nil {
		t.Fatalf("failed to read updated_at: %v", err)
	}
	if !updatedAt.Equal(legacyBase.Add(2 * time.Hour)) {
		t.Fatalf("updated_at = %v, want latest activity of the merged pair", updatedAt)
	}

	var key string
	if err := conn.Get(&key, "SELECT pair_key FROM conversations WHERE id = 'c3'"); err != nil {
		t.Fatalf("failed to read pair key: %v", err)
	}
	if key != chat.PairKey("u3", "u2") {
		t.Fatalf("pair_key = %q, want %q", key, chat.PairKey("u2", "u3"))
	}

	if _, err := conn.Exec(
		`INSERT INTO conversations (id, pair_key, created_at, updated_at) VALUES ('c9', ?, ?, ?)`,
		chat.PairKey("u1", "u2"), legacyBase, legacyBase,
	); err == nil {
		t.Fatal("expected unique pair key index to reject a second u1/u2 conversation")
	}
}

func TestConversationPairsMigrationIdempotent(t *testing.T) {
	dbPath := createLegacyPairsDB(t)

	if err := runConversationPairsMigration(&bytes.Buffer{}, conversationPairsMigrationOptions{DatabasePath: dbPath}); err != nil {
		t.Fatalf("first migration failed: %v", err)
	}

	var out bytes.Buffer
	if err := runConversationPairsMigration(&out, conversationPairsMigrationOptions{DatabasePath: dbPath}); err != nil {
		t.Fatalf("second migration should be idempotent, got error: %v", err)
	}
	if !strings.Contains(out.String(), "already migrated") {
		t.Fatalf("expected already migrated output, got: %s", out.String())
	}
}

func TestConversationPairsMigrationDryRun(t *testing.T) {
	dbPath := createLegacyPairsDB(t)

	var out bytes.Buffer
	err := runConversationPairsMigration(&out, conversationPairsMigrationOptions{
		DatabasePath: dbPath,
		DryRun:       true,
	})
	if err != nil {
		t.Fatalf("dry-run failed: %v", err)
	}
	if !strings.Contains(out.String(), "Dry-run successful") {
		t.Fatalf("expected dry-run output, got: %s", out.String())
	}

	conn := openTestDB(t, dbPath)

	hasColumn, err := conversationsTableHasPairKeyColumn(conn)
	if err != nil {
		t.Fatalf("failed to inspect schema: %v", err)
	}
	if hasColumn {
		t.Fatal("dry-run should not add the pair_key column")
	}

	var conversations int
	if err := conn.Get(&conversations, "SELECT COUNT(*) FROM conversations"); err != nil {
		t.Fatalf("failed to count conversations: %v", err)
	}
	if conversations != 3 {
		t.Fatalf("conversation count = %d, want 3", conversations)
	}
}

func TestConversationPairsMigrationInvalidData(t *testing.T) {
	dbPath := createLegacyPairsDB(t)

	conn := openTestDB(t, dbPath)
	if _, err := conn.Exec(`INSERT INTO conversations (id, created_at, updated_at) VALUES ('c4', ?, ?)`, legacyBase, legacyBase); err != nil {
		t.Fatalf("failed to seed conversation: %v", err)
	}
	if _, err := conn.Exec(`INSERT INTO conversation_participants (conversation_id, user_id, joined_at) VALUES ('c4', 'u1', ?)`, legacyBase); err != nil {
		t.Fatalf("failed to seed participant: %v", err)
	}
	conn.Close()

	err := runConversationPairsMigration(&bytes.Buffer{}, conversationPairsMigrationOptions{DatabasePath: dbPath})
	if err == nil {
		t.Fatal("expected migration to fail for a one-person conversation")
	}
	if !strings.Contains(err.Error(), "without exactly two participants: [c4]") {
		t.Fatalf("unexpected error: %v", err)
	}

	conn = openTestDB(t, dbPath)
	hasColumn, err := conversationsTableHasPairKeyColumn(conn)
	if err != nil {
		t.Fatalf("failed to inspect schema after failed migration: %v", err)
	}
	if hasColumn {
		t.Fatal("failed migration should leave the schema untouched")
	}
}

func TestParseConversationPairsMigrationArgs(t *testing.T) {
	cfg := &config.Config{DatabasePath: "/tmp/default.db"}

	opts, err := parseConversationPairsMigrationArgs(cfg, []string{"--dry-run", "--database", "/tmp/override.db"})
	if err != nil {
		t.Fatalf("parse args failed: %v", err)
	}
	if !opts.DryRun {
		t.Fatal("expected dry-run to be true")
	}
	if opts.DatabasePath != "/tmp/override.db" {
		t.Fatalf("database path = %s, want /tmp/override.db", opts.DatabasePath)
	}

	if _, err := parseConversationPairsMigrationArgs(cfg, []string{"--database"}); err == nil {
		t.Fatal("expected error for missing --database value")
	}
	if _, err := parseConversationPairsMigrationArgs(cfg, []string{"--unknown"}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

func TestEnsureConversationPairsMigrated(t *testing.T) {
	legacyPath := createLegacyPairsDB(t)

	legacy, err := db.New(legacyPath)
	if err != nil {
		t.Fatalf("failed to open legacy database: %v", err)
	}
	err = ensureConversationPairsMigrated(legacy.GetConn(), legacyPath)
	legacy.Close()
	if err == nil {
		t.Fatal("expected unkeyed conversations to block startup")
	}
	if !strings.Contains(err.Error(), "migrate conversation-pairs") {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := runConversationPairsMigration(&bytes.Buffer{}, conversationPairsMigrationOptions{DatabasePath: legacyPath}); err != nil {
		t.Fatalf("migration failed: %v", err)
	}

	migrated, err := db.New(legacyPath)
	if err != nil {
		t.Fatalf("failed to reopen database: %v", err)
	}
	defer migrated.Close()
	if err := ensureConversationPairsMigrated(migrated.GetConn(), legacyPath); err != nil {
		t.Fatalf("expected migrated database to pass, got: %v", err)
	}
}

func TestRunCommandMigrateDryRun(t *testing.T) {
	dbPath := createLegacyPairsDB(t)
	cfg := &config.Config{DatabasePath: dbPath}

	if err := runCommand(context.Background(), cfg, logging.Discard(), []string{"migrate", "conversation-pairs", "--dry-run"}); err != nil {
		t.Fatalf("runCommand migrate dry-run failed: %v", err)
	}
	if err := runCommand(context.Background(), cfg, logging.Discard(), []string{"migrate", "nothing"}); err == nil {
		t.Fatal("expected error for unknown migration target")
	}
}
