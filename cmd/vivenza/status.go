package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vivenzalife/vivenza/pkg/config"
)

type appStatus struct {
	GeneratedAt          time.Time
	Environment          string
	Port                 string
	DatabasePath         string
	FileStoragePath      string
	Users                int64
	Conversations        int64
	UnkeyedConversations int64
	Messages             int64
	UnreadMessages       int64
	MessagesLast24h      int64
	LatestMessageAt      string
	ActiveStories        int64
	ExpiredStories       int64
	Posts                int64
	Bookings             int64
	DBSize               int64
	DBWALSize            int64
	DBSHMSize            int64
	UploadDirSize        int64
	UploadFileCount      int64
	DBMetricsReady       bool
	DBWarning            string
	StorageWarnings      []string
}

type statusOptions struct {
	JSON bool
}

func parseStatusArgs(args []string) (statusOptions, error) {
	opts := statusOptions{}
	for _, arg := range args {
		switch arg {
		case "--json", "-j":
			opts.JSON = true
		default:
			return opts, fmt.Errorf("unknown status flag: %s", arg)
		}
	}
	return opts, nil
}

func runStatus(cfg *config.Config, out io.Writer, args []string) error {
	opts, err := parseStatusArgs(args)
	if err != nil {
		return err
	}

	status := collectStatus(cfg, time.Now().UTC())
	if opts.JSON {
		return printStatusJSON(out, status)
	}
	printStatus(out, status)
	return nil
}

type statusQuery struct {
	dest  *int64
	query string
	args  []any
}

func collectStatus(cfg *config.Config, now time.Time) appStatus {
	status := appStatus{
		GeneratedAt:     now,
		Environment:     cfg.Environment,
		Port:            cfg.Port,
		DatabasePath:    cfg.DatabasePath,
		FileStoragePath: cfg.FileStoragePath,
	}

	if size, err := fileSize(cfg.DatabasePath); err == nil {
		status.DBSize = size
	} else {
		status.StorageWarnings = append(status.StorageWarnings, fmt.Sprintf("database file: %v", err))
	}

	if size, err := fileSize(cfg.DatabasePath + "-wal"); err == nil {
		status.DBWALSize = size
	}

	if size, err := fileSize(cfg.DatabasePath + "-shm"); err == nil {
		status.DBSHMSize = size
	}

	if bytes, files, err := dirUsage(cfg.FileStoragePath); err == nil {
		status.UploadDirSize = bytes
		status.UploadFileCount = files
	} else {
		status.StorageWarnings = append(status.StorageWarnings, fmt.Sprintf("upload dir: %v", err))
	}

	if _, err := os.Stat(cfg.DatabasePath); err != nil {
		status.DBWarning = fmt.Sprintf("database unavailable: %v", err)
		return status
	}

	dbConn, err := sqlx.Open("sqlite3", cfg.DatabasePath)
	if err != nil {
		status.DBWarning = fmt.Sprintf("database unavailable: %v", err)
		return status
	}
	defer dbConn.Close()

	if err := dbConn.Ping(); err != nil {
		status.DBWarning = fmt.Sprintf("database unavailable: %v", err)
		return status
	}

	queries := []statusQuery{
		{dest: &status.Users, query: "SELECT COUNT(*) FROM users"},
		{dest: &status.Conversations, query: "SELECT COUNT(*) FROM conversations"},
		{dest: &status.UnkeyedConversations, query: "SELECT COUNT(*) FROM conversations WHERE pair_key IS NULL"},
		{dest: &status.Messages, query: "SELECT COUNT(*) FROM messages"},
		{dest: &status.UnreadMessages, query: "SELECT COUNT(*) FROM messages WHERE is_read = 0"},
		{dest: &status.MessagesLast24h, query: "SELECT COUNT(*) FROM messages WHERE created_at >= ?", args: []any{now.Add(-24 * time.Hour)}},
		{dest: &status.ActiveStories, query: "SELECT COUNT(*) FROM stories WHERE expires_at > ?", args: []any{now}},
		{dest: &status.ExpiredStories, query: "SELECT COUNT(*) FROM stories WHERE expires_at <= ?", args: []any{now}},
		{dest: &status.Posts, query: "SELECT COUNT(*) FROM posts"},
		{dest: &status.Bookings, query: "SELECT COUNT(*) FROM appointments"},
	}
	for _, q := range queries {
		if *q.dest, err = queryInt64(dbConn, q.query, q.args...); err != nil {
			status.DBWarning = fmt.Sprintf("could not read database stats: %v", err)
			return status
		}
	}

	if status.LatestMessageAt, err = queryString(dbConn, "SELECT COALESCE(MAX(created_at), '') FROM messages"); err != nil {
		status.DBWarning = fmt.Sprintf("could not read database stats: %v", err)
		return status
	}

	if status.UnkeyedConversations > 0 {
		status.DBWarning = fmt.Sprintf("%d conversations have no pair key; run `vivenza migrate conversation-pairs`", status.UnkeyedConversations)
	}

	status.DBMetricsReady = true
	return status
}

func queryInt64(db *sqlx.DB, query string, args ...any) (int64, error) {
	var value int64
	if err := db.Get(&value, query, args...); err != nil {
		return 0, err
	}
	return value, nil
}

func queryString(db *sqlx.DB, query string, args ...any) (string, error) {
	var value string
	if err := db.Get(&value, query, args...); err != nil {
		return "", err
	}
	return value, nil
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%s is a directory", path)
	}
	return info.Size(), nil
}

func dirUsage(root string) (int64, int64, error) {
	var totalBytes int64
	var totalFiles int64

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		totalBytes += info.Size()
		totalFiles++
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	return totalBytes, totalFiles, nil
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func formatTimestamp(value string) string {
	if value == "" {
		return "n/a"
	}
	return value
}

func printStatus(out io.Writer, status appStatus) {
	totalDB := status.DBSize + status.DBWALSize + status.DBSHMSize

	fmt.Fprintln(out, "Vivenza Status")
	fmt.Fprintf(out, "Generated at: %s\n", status.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "Environment : %s\n", status.Environment)
	fmt.Fprintf(out, "Port        : %s\n", status.Port)
	fmt.Fprintf(out, "Database    : %s\n", status.DatabasePath)
	fmt.Fprintf(out, "Uploads dir : %s\n", status.FileStoragePath)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Data")
	if status.DBMetricsReady {
		fmt.Fprintf(out, "  Users             : %d\n", status.Users)
		fmt.Fprintf(out, "  Conversations     : %d\n", status.Conversations)
		fmt.Fprintf(out, "  Without pair key  : %d\n", status.UnkeyedConversations)
		fmt.Fprintf(out, "  Messages          : %d\n", status.Messages)
		fmt.Fprintf(out, "  Unread messages   : %d\n", status.UnreadMessages)
		fmt.Fprintf(out, "  Messages last 24h : %d\n", status.MessagesLast24h)
		fmt.Fprintf(out, "  Latest message at : %s\n", formatTimestamp(status.LatestMessageAt))
		fmt.Fprintf(out, "  Active stories    : %d\n", status.ActiveStories)
		fmt.Fprintf(out, "  Expired stories   : %d\n", status.ExpiredStories)
		fmt.Fprintf(out, "  Posts             : %d\n", status.Posts)
		fmt.Fprintf(out, "  Bookings          : %d\n", status.Bookings)
	} else {
		fmt.Fprintln(out, "  Database metrics  : n/a")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Storage")
	fmt.Fprintf(out, "  DB file       : %s\n", formatBytes(status.DBSize))
	fmt.Fprintf(out, "  DB WAL file   : %s\n", formatBytes(status.DBWALSize))
	fmt.Fprintf(out, "  DB SHM file   : %s\n", formatBytes(status.DBSHMSize))
	fmt.Fprintf(out, "  DB footprint  : %s\n", formatBytes(totalDB))
	fmt.Fprintf(out, "  Upload files  : %d\n", status.UploadFileCount)
	fmt.Fprintf(out, "  Upload size   : %s\n", formatBytes(status.UploadDirSize))

	if status.DBWarning != "" {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Warning: %s\n", status.DBWarning)
	}

	if len(status.StorageWarnings) > 0 {
		fmt.Fprintln(out)
		for _, warning := range status.StorageWarnings {
			fmt.Fprintf(out, "Warning: %s\n", warning)
		}
	}
}

func printStatusJSON(out io.Writer, status appStatus) error {
	payload := map[string]any{
		"generated_at":      status.GeneratedAt.Format(time.RFC3339),
		"environment":       status.Environment,
		"port":              status.Port,
		"database_path":     status.DatabasePath,
		"file_storage_path": status.FileStoragePath,
		"metrics_ready":     status.DBMetricsReady,
		"metrics": map[string]any{
			"users":                 status.Users,
			"conversations":         status.Conversations,
			"conversations_unkeyed": status.UnkeyedConversations,
			"messages":              status.Messages,
			"unread_messages":       status.UnreadMessages,
			"messages_last_24h":     status.MessagesLast24h,
			"latest_message_at":     formatTimestamp(status.LatestMessageAt),
			"active_stories":        status.ActiveStories,
			"expired_stories":       status.ExpiredStories,
			"posts":                 status.Posts,
			"bookings":              status.Bookings,
		},
		"storage": map[string]any{
			"db_file_bytes":      status.DBSize,
			"db_wal_bytes":       status.DBWALSize,
			"db_shm_bytes":       status.DBSHMSize,
			"db_footprint_bytes": status.DBSize + status.DBWALSize + status.DBSHMSize,
			"upload_dir_bytes":   status.UploadDirSize,
			"upload_file_count":  status.UploadFileCount,
			"db_file_hum":        formatBytes(status.DBSize),
			"db_footprint_hum":   formatBytes(status.DBSize + status.DBWALSize + status.DBSHMSize),
			"upload_dir_hum":     formatBytes(status.UploadDirSize),
		},
		"warnings": map[string]any{
			"database": status.DBWarning,
			"storage":  status.StorageWarnings,
		},
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}
