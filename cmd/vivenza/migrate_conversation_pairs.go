package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vivenzalife/vivenza/internal/chat"
	"github.com/vivenzalife/vivenza/pkg/config"
)

type conversationPairsMigrationOptions struct {
	DatabasePath string
	DryRun       bool
}

// pairGroup holds every conversation between the same two users. The first
// entry is the oldest and survives the merge.
type pairGroup struct {
	Key             string
	ConversationIDs []string
}

type pairMigrationPlan struct {
	Groups          []pairGroup
	Conversations   int
	Duplicates      int
	MissingKeys     int
	InvalidConvIDs  []string
	MessagesToMerge int64
}

func runMigrate(cfg *config.Config, out io.Writer, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("missing migration target (supported: conversation-pairs)")
	}

	switch args[0] {
	case "conversation-pairs":
		opts, err := parseConversationPairsMigrationArgs(cfg, args[1:])
		if err != nil {
			return err
		}
		return runConversationPairsMigration(out, opts)
	default:
		return fmt.Errorf("unknown migration target: %s", args[0])
	}
}

func parseConversationPairsMigrationArgs(cfg *config.Config, args []string) (conversationPairsMigrationOptions, error) {
	opts := conversationPairsMigrationOptions{DatabasePath: cfg.DatabasePath}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--dry-run":
			opts.DryRun = true
		case "--database":
			i++
			if i >= len(args) || strings.TrimSpace(args[i]) == "" {
				return opts, fmt.Errorf("--database requires a path")
			}
			opts.DatabasePath = args[i]
		default:
			return opts, fmt.Errorf("unknown migration flag: %s", args[i])
		}
	}

	if strings.TrimSpace(opts.DatabasePath) == "" {
		return opts, fmt.Errorf("database path cannot be empty")
	}

	return opts, nil
}

func openMigrationDB(path string) (*sqlx.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to access database path: %w", err)
	}

	conn, err := sqlx.Open("sqlite3", "file:"+path+"?_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return conn, nil
}

// runConversationPairsMigration merges conversations that share the same two
// participants into the oldest one, then assigns every conversation its pair
// key and enforces uniqueness.
func runConversationPairsMigration(out io.Writer, opts conversationPairsMigrationOptions) error {
	conn, err := openMigrationDB(opts.DatabasePath)
	if err != nil {
		return err
	}
	defer conn.Close()

	tx, err := conn.Beginx()
	if err != nil {
		return fmt.Errorf("failed to start migration transaction: %w", err)
	}
	defer tx.Rollback()

	hasColumn, err := conversationsTableHasPairKeyColumn(tx)
	if err != nil {
		return fmt.Errorf("failed to inspect conversations schema: %w", err)
	}
	if !hasColumn {
		if _, err := tx.Exec("ALTER TABLE conversations ADD COLUMN pair_key TEXT"); err != nil {
			return fmt.Errorf("failed to add pair_key column: %w", err)
		}
	}

	plan, err := loadPairMigrationPlan(tx)
	if err != nil {
		return err
	}
	if len(plan.InvalidConvIDs) > 0 {
		sort.Strings(plan.InvalidConvIDs)
		return fmt.Errorf("conversations without exactly two participants: %v", plan.InvalidConvIDs)
	}

	if plan.Duplicates == 0 && plan.MissingKeys == 0 && hasColumn {
		if _, err := tx.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_pair_key ON conversations(pair_key)"); err != nil {
			return fmt.Errorf("failed to create pair key index: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to finish migration transaction: %w", err)
		}
		fmt.Fprintln(out, "Conversation pairs migration: already migrated (every conversation has a unique pair key).")
		return nil
	}

	if opts.DryRun {
		fmt.Fprintf(out, "Dry-run successful. Database: %s\n", opts.DatabasePath)
		fmt.Fprintf(out, "Would merge %d duplicate conversations (%d messages) into %d pairs and set %d missing pair keys.\n",
			plan.Duplicates, plan.MessagesToMerge, len(plan.Groups), plan.MissingKeys)
		return nil
	}

	if err := mergeDuplicateConversations(tx, plan.Groups); err != nil {
		return err
	}

	if err := assignPairKeys(tx, plan.Groups); err != nil {
		return err
	}

	if _, err := tx.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_pair_key ON conversations(pair_key)"); err != nil {
		return fmt.Errorf("failed to create pair key index: %w", err)
	}

	if err := validatePairMigration(tx, len(plan.Groups)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	fmt.Fprintf(out, "Migration completed. Database: %s\n", opts.DatabasePath)
	fmt.Fprintf(out, "Merged %d duplicate conversations (%d messages) into %d pairs.\n",
		plan.Duplicates, plan.MessagesToMerge, len(plan.Groups))
	return nil
}

// ensureConversationPairsMigrated fails when any conversation still lacks a
// pair key.
func ensureConversationPairsMigrated(conn *sqlx.DB, databasePath string) error {
	var missing int64
	if err := conn.Get(&missing, "SELECT COUNT(*) FROM conversations WHERE pair_key IS NULL"); err != nil {
		return fmt.Errorf("failed to inspect conversations: %w", err)
	}
	if missing > 0 {
		return fmt.Errorf("%d conversations have no pair key. Run `vivenza migrate conversation-pairs --database %s` before starting server", missing, databasePath)
	}
	return nil
}

func conversationsTableHasPairKeyColumn(q sqlx.Queryer) (bool, error) {
	rows, err := q.Query("PRAGMA table_info(conversations)")
	if err != nil {
		return false, err
	}
	defer rows.Close()

	found := false
	for rows.Next() {
		var cid int
		var name string
		var columnType string
		var notNull int
		var defaultValue any
		var pk int
		if err := rows.Scan(&cid, &name, &columnType, &notNull, &defaultValue, &pk); err != nil {
			return false, err
		}
		if name == "pair_key" {
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		return false, err
	}
	if !found && !tableExists(q, "conversations") {
		return false, errors.New("conversations table not found")
	}

	return found, nil
}

func tableExists(q sqlx.Queryer, name string) bool {
	var count int
	if err := sqlx.Get(q, &count, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name); err != nil {
		return false
	}
	return count > 0
}

func loadPairMigrationPlan(tx *sqlx.Tx) (pairMigrationPlan, error) {
	var plan pairMigrationPlan

	var conversations []struct {
		ID      string  `db:"id"`
		PairKey *string `db:"pair_key"`
	}
	if err := tx.Select(&conversations, `
		SELECT id, pair_key
		FROM conversations
		ORDER BY created_at ASC, rowid ASC
	`); err != nil {
		return plan, fmt.Errorf("failed to read conversations: %w", err)
	}

	var participants []struct {
		ConversationID string `db:"conversation_id"`
		UserID         string `db:"user_id"`
	}
	if err := tx.Select(&participants, `
		SELECT conversation_id, user_id
		FROM conversation_participants
	`); err != nil {
		return plan, fmt.Errorf("failed to read conversation participants: %w", err)
	}

	members := make(map[string]map[string]struct{}, len(conversations))
	for _, p := range participants {
		if members[p.ConversationID] == nil {
			members[p.ConversationID] = make(map[string]struct{}, 2)
		}
		members[p.ConversationID][p.UserID] = struct{}{}
	}

	groupIndex := make(map[string]int)
	for _, conv := range conversations {
		users := members[conv.ID]
		if len(users) != 2 {
			plan.InvalidConvIDs = append(plan.InvalidConvIDs, conv.ID)
			continue
		}
		pair := make([]string, 0, 2)
		for id := range users {
			pair = append(pair, id)
		}
		key := chat.PairKey(pair[0], pair[1])

		plan.Conversations++
		if conv.PairKey == nil || *conv.PairKey != key {
			plan.MissingKeys++
		}

		if idx, ok := groupIndex[key]; ok {
			plan.Groups[idx].ConversationIDs = append(plan.Groups[idx].ConversationIDs, conv.ID)
			plan.Duplicates++
			continue
		}
		groupIndex[key] = len(plan.Groups)
		plan.Groups = append(plan.Groups, pairGroup{Key: key, ConversationIDs: []string{conv.ID}})
	}

	for _, group := range plan.Groups {
		for _, duplicateID := range group.ConversationIDs[1:] {
			var count int64
			if err := tx.Get(&count, "SELECT COUNT(*) FROM messages WHERE conversation_id = ?", duplicateID); err != nil {
				return plan, fmt.Errorf("failed to count messages of conversation %s: %w", duplicateID, err)
			}
			plan.MessagesToMerge += count
		}
	}

	return plan, nil
}

func mergeDuplicateConversations(tx *sqlx.Tx, groups []pairGroup) error {
	for _, group := range groups {
		survivor := group.ConversationIDs[0]
		for _, duplicateID := range group.ConversationIDs[1:] {
			if _, err := tx.Exec("UPDATE messages SET conversation_id = ? WHERE conversation_id = ?", survivor, duplicateID); err != nil {
				return fmt.Errorf("failed to move messages of conversation %s: %w", duplicateID, err)
			}

			if _, err := tx.Exec(`
				UPDATE conversations
				SET updated_at = MAX(updated_at, (SELECT updated_at FROM conversations WHERE id = ?))
				WHERE id = ?
			`, duplicateID, survivor); err != nil {
				return fmt.Errorf("failed to update conversation %s: %w", survivor, err)
			}

			if _, err := tx.Exec("DELETE FROM conversation_participants WHERE conversation_id = ?", duplicateID); err != nil {
				return fmt.Errorf("failed to remove participants of conversation %s: %w", duplicateID, err)
			}

			if _, err := tx.Exec("DELETE FROM conversations WHERE id = ?", duplicateID); err != nil {
				return fmt.Errorf("failed to remove conversation %s: %w", duplicateID, err)
			}
		}
	}
	return nil
}

func assignPairKeys(tx *sqlx.Tx, groups []pairGroup) error {
	stmt, err := tx.Preparex("UPDATE conversations SET pair_key = ? WHERE id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare pair key statement: %w", err)
	}
	defer stmt.Close()

	for _, group := range groups {
		if _, err := stmt.Exec(group.Key, group.ConversationIDs[0]); err != nil {
			return fmt.Errorf("failed to set pair key for conversation %s: %w", group.ConversationIDs[0], err)
		}
	}
	return nil
}

func validatePairMigration(tx *sqlx.Tx, expectedConversationCount int) error {
	var conversationCount int
	if err := tx.Get(&conversationCount, "SELECT COUNT(*) FROM conversations"); err != nil {
		return fmt.Errorf("failed to validate conversations count: %w", err)
	}
	if conversationCount != expectedConversationCount {
		return fmt.Errorf("conversation count mismatch after migration: got %d want %d", conversationCount, expectedConversationCount)
	}

	var missing int
	if err := tx.Get(&missing, "SELECT COUNT(*) FROM conversations WHERE pair_key IS NULL"); err != nil {
		return fmt.Errorf("failed to validate pair keys: %w", err)
	}
	if missing != 0 {
		return fmt.Errorf("%d conversations still have no pair key after migration", missing)
	}

	return nil
}
