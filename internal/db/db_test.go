package db

import (
	"testing"
	"time"
)

func TestPragmasApplyToEveryConnection(t *testing.T) {
	db, err := New(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer db.Close()

	// Pin two connections at once so the second one is a fresh pool member.
	first, err := db.conn.Conn(t.Context())
	if err != nil {
		t.Fatalf("Failed to get connection: %v", err)
	}
	defer first.Close()
	second, err := db.conn.Conn(t.Context())
	if err != nil {
		t.Fatalf("Failed to get connection: %v", err)
	}
	defer second.Close()

	var journalMode string
	if err := second.QueryRowContext(t.Context(), "PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("Failed to query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("Expected journal_mode to be 'wal' for file database, got: %s", journalMode)
	}

	var busyTimeout int
	if err := second.QueryRowContext(t.Context(), "PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
		t.Fatalf("Failed to query busy_timeout: %v", err)
	}
	if busyTimeout != 5000 {
		t.Errorf("Expected busy_timeout to be 5000, got: %d", busyTimeout)
	}

	var syncMode int
	if err := second.QueryRowContext(t.Context(), "PRAGMA synchronous").Scan(&syncMode); err != nil {
		t.Fatalf("Failed to query synchronous: %v", err)
	}
	if syncMode != 1 {
		t.Errorf("Expected synchronous to be 1 (NORMAL), got: %d", syncMode)
	}
}

func TestInMemoryDatabaseIsUsable(t *testing.T) {
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer db.Close()

	var tables int
	if err := db.conn.Get(&tables, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'stories'`); err != nil {
		t.Fatalf("Failed to inspect schema: %v", err)
	}
	if tables != 1 {
		t.Fatalf("Expected stories table to exist on the in-memory database")
	}
}

func TestSchemaIndexes(t *testing.T) {
	db, err := New(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer db.Close()

	for _, name := range []string{
		"idx_conversations_pair_key",
		"idx_conversation_participants_user_id",
		"idx_messages_conversation_created",
		"idx_messages_unread",
		"idx_stories_expires_at",
		"idx_stories_user_expires",
	} {
		var count int
		err := db.conn.Get(&count, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?`, name)
		if err != nil {
			t.Fatalf("Failed to inspect index %s: %v", name, err)
		}
		if count != 1 {
			t.Errorf("Expected index %s to exist", name)
		}
	}
}

func TestPairKeyIsUnique(t *testing.T) {
	db, err := New(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	insert := `INSERT INTO conversations (id, pair_key, created_at, updated_at) VALUES (?, ?, ?, ?)`
	if _, err := db.conn.Exec(insert, "c1", "a:b", now, now); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if _, err := db.conn.Exec(insert, "c2", "a:b", now, now); err == nil {
		t.Fatalf("expected duplicate pair_key to be rejected")
	}

	// Legacy rows without a key must not collide with each other.
	if _, err := db.conn.Exec(insert, "c3", nil, now, now); err != nil {
		t.Fatalf("null pair_key insert failed: %v", err)
	}
	if _, err := db.conn.Exec(insert, "c4", nil, now, now); err != nil {
		t.Fatalf("second null pair_key insert failed: %v", err)
	}
}

func TestMigrateAddsPairKeyToLegacyDatabase(t *testing.T) {
	path := t.TempDir() + "/legacy.db"

	legacy, err := New(path)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	for _, stmt := range []string{
		`DROP INDEX idx_conversations_pair_key`,
		`DROP TABLE conversations`,
		`CREATE TABLE conversations (id TEXT PRIMARY KEY, created_at TIMESTAMP NOT NULL, updated_at TIMESTAMP NOT NULL)`,
	} {
		if _, err := legacy.GetConn().Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	legacy.Close()

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("Failed to reopen legacy database: %v", err)
	}
	defer reopened.Close()

	var hasColumn int
	err = reopened.GetConn().Get(&hasColumn, `SELECT COUNT(*) FROM pragma_table_info('conversations') WHERE name = 'pair_key'`)
	if err != nil {
		t.Fatalf("Failed to inspect columns: %v", err)
	}
	if hasColumn != 1 {
		t.Fatalf("Expected pair_key column to be added")
	}
}
